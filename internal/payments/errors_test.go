package payments

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/luiscamargo/farmfresh-backend/pkg/errors"
)

func TestWrapProviderErrorCardDecline(t *testing.T) {
	t.Parallel()

	stripeErr := &stripe.Error{
		Type:        stripe.ErrorTypeCard,
		Code:        stripe.ErrorCodeCardDeclined,
		DeclineCode: stripe.DeclineCodeInsufficientFunds,
		Msg:         "Your card has insufficient funds.",
	}

	err := wrapProviderError(stripeErr, "create checkout session")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeValidation {
		t.Fatalf("code = %s, want %s", code, pkgerrors.CodeValidation)
	}

	var declined *CardDeclinedError
	if !errors.As(err, &declined) {
		t.Fatal("decline detail not preserved")
	}
	if declined.DeclineCode != string(stripe.DeclineCodeInsufficientFunds) {
		t.Fatalf("decline code = %q", declined.DeclineCode)
	}
}

func TestWrapProviderErrorNonCard(t *testing.T) {
	t.Parallel()

	stripeErr := &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "upstream unavailable"}
	err := wrapProviderError(stripeErr, "create refund")
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeDependency {
		t.Fatalf("code = %s, want %s", code, pkgerrors.CodeDependency)
	}

	plain := fmt.Errorf("connection reset")
	err = wrapProviderError(plain, "fetch payment intent")
	if code := pkgerrors.As(err).Code(); code != pkgerrors.CodeDependency {
		t.Fatalf("code = %s, want %s", code, pkgerrors.CodeDependency)
	}
}

func TestWrapProviderErrorNil(t *testing.T) {
	t.Parallel()

	if err := wrapProviderError(nil, "noop"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
