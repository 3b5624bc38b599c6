package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/luiscamargo/farmfresh-backend/pkg/config"
)

// Published combined state rates we collect for. Anything missing falls back
// to the configured default rate.
var regionTaxRates = map[string]decimal.Decimal{
	"CA": decimal.NewFromFloat(0.0725),
	"NY": decimal.NewFromFloat(0.08),
	"TX": decimal.NewFromFloat(0.0625),
	"WA": decimal.NewFromFloat(0.065),
	"FL": decimal.NewFromFloat(0.06),
	"OR": decimal.Zero,
	"MT": decimal.Zero,
	"NH": decimal.Zero,
	"DE": decimal.Zero,
}

// Remote regions carry a flat delivery surcharge in cents.
var regionShippingSurchargeCents = map[string]int64{
	"AK": 1500,
	"HI": 1500,
	"PR": 1000,
}

type pricer struct {
	platformFeePercent decimal.Decimal
	defaultTaxRate     decimal.Decimal
	shippingBase       decimal.Decimal
	shippingPerKg      decimal.Decimal
}

func newPricer(cfg config.PricingConfig) pricer {
	return pricer{
		platformFeePercent: decimal.NewFromFloat(cfg.PlatformFeePercent),
		defaultTaxRate:     decimal.NewFromFloat(cfg.DefaultTaxRate),
		shippingBase:       decimal.NewFromInt(int64(cfg.ShippingBaseCents)).Div(decimal.NewFromInt(100)),
		shippingPerKg:      decimal.NewFromInt(int64(cfg.ShippingPerKgCents)).Div(decimal.NewFromInt(100)),
	}
}

// taxRateFor resolves the rate for a state code, falling back to the default.
func (p pricer) taxRateFor(state string) decimal.Decimal {
	if rate, ok := regionTaxRates[state]; ok {
		return rate
	}
	return p.defaultTaxRate
}

// CalculateTax applies the region's rate to the taxable amount and rounds
// half-up to the minor unit.
func (p pricer) CalculateTax(taxable decimal.Decimal, state string) decimal.Decimal {
	return taxable.Mul(p.taxRateFor(state)).Round(2)
}

// EstimateShipping prices delivery as base + per-started-kg + region
// surcharge. The started-kg tiering keeps the estimate monotonic in weight.
func (p pricer) EstimateShipping(totalWeightKg decimal.Decimal, state string) decimal.Decimal {
	if totalWeightKg.IsNegative() {
		totalWeightKg = decimal.Zero
	}
	tiers := totalWeightKg.Ceil()
	amount := p.shippingBase.Add(p.shippingPerKg.Mul(tiers))
	if surcharge, ok := regionShippingSurchargeCents[state]; ok {
		amount = amount.Add(decimal.NewFromInt(surcharge).Div(decimal.NewFromInt(100)))
	}
	return amount.Round(2)
}

// platformFee takes the configured percentage of the subtotal, half-up.
func (p pricer) platformFee(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.platformFeePercent).Div(decimal.NewFromInt(100)).Round(2)
}
