package checkout

import (
	"regexp"

	pkgerrors "github.com/luiscamargo/farmfresh-backend/pkg/errors"
	"github.com/luiscamargo/farmfresh-backend/pkg/types"
)

var (
	usZipPattern       = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	caPostalPattern    = regexp.MustCompile(`^[A-Z]\d[A-Z]\s?\d[A-Z]\d$`)
	usStatePattern     = regexp.MustCompile(`^[A-Z]{2}$`)
	supportedCountries = map[string]bool{"US": true, "CA": true}
)

// ValidateShippingAddress normalizes the address and enforces per-country
// rules. Missing fields are collected and reported together; format checks
// run only once every required field is present. US postal codes are 5 or 9
// digit ZIPs; Canadian ones follow the letter-digit alternating format.
func ValidateShippingAddress(addr types.Address) (types.Address, error) {
	addr = addr.Normalize()

	var missing []string
	if addr.Name == "" {
		missing = append(missing, "name")
	}
	if addr.Line1 == "" {
		missing = append(missing, "line1")
	}
	if addr.City == "" {
		missing = append(missing, "city")
	}
	if addr.State == "" {
		missing = append(missing, "state")
	}
	if addr.PostalCode == "" {
		missing = append(missing, "postal_code")
	}
	if len(missing) > 0 {
		return addr, pkgerrors.New(pkgerrors.CodeValidation, "missing required address fields").
			WithDetails(map[string]any{"missing_fields": missing})
	}

	if !supportedCountries[addr.Country] {
		return addr, pkgerrors.New(pkgerrors.CodeValidation, "unsupported shipping country").
			WithDetails(map[string]any{"country": addr.Country})
	}
	if !usStatePattern.MatchString(addr.State) {
		return addr, pkgerrors.New(pkgerrors.CodeValidation, "state must be a two-letter code")
	}

	switch addr.Country {
	case "US":
		if !usZipPattern.MatchString(addr.PostalCode) {
			return addr, pkgerrors.New(pkgerrors.CodeValidation, "invalid US ZIP code")
		}
	case "CA":
		if !caPostalPattern.MatchString(addr.PostalCode) {
			return addr, pkgerrors.New(pkgerrors.CodeValidation, "invalid Canadian postal code")
		}
	}
	return addr, nil
}
