package payments

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/luiscamargo/farmfresh-backend/pkg/errors"
)

// CardDeclinedError carries the provider's decline reason to the caller.
type CardDeclinedError struct {
	Code        string
	DeclineCode string
	Message     string
}

func (e *CardDeclinedError) Error() string {
	if e.DeclineCode != "" {
		return fmt.Sprintf("card declined (%s/%s): %s", e.Code, e.DeclineCode, e.Message)
	}
	return fmt.Sprintf("card declined (%s): %s", e.Code, e.Message)
}

// CannotRetryError signals that a payment retry is pointless, for example
// because the original intent already succeeded.
type CannotRetryError struct {
	Reason string
}

func (e *CannotRetryError) Error() string {
	return "payment cannot be retried: " + e.Reason
}

// wrapProviderError converts Stripe failures into coded errors. Card errors
// keep their decline detail, everything else becomes a dependency error.
func wrapProviderError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		declined := &CardDeclinedError{
			Code:        string(stripeErr.Code),
			DeclineCode: string(stripeErr.DeclineCode),
			Message:     stripeErr.Msg,
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, declined, msg).
			WithDetails(map[string]any{
				"code":         declined.Code,
				"decline_code": declined.DeclineCode,
			})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
