package checkout

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/luiscamargo/farmfresh-backend/api/middleware"
	"github.com/luiscamargo/farmfresh-backend/api/responses"
	"github.com/luiscamargo/farmfresh-backend/api/validators"
	checkoutsvc "github.com/luiscamargo/farmfresh-backend/internal/checkout"
	"github.com/luiscamargo/farmfresh-backend/internal/orders"
	"github.com/luiscamargo/farmfresh-backend/internal/payments"
	pkgerrors "github.com/luiscamargo/farmfresh-backend/pkg/errors"
	"github.com/luiscamargo/farmfresh-backend/pkg/logger"
)

// Quote prices the active cart for a destination without creating anything.
func Quote(svc *checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := buyerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload QuoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipTo, err := checkoutsvc.ValidateShippingAddress(payload.ShippingAddress)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pricing, summary, err := svc.ValidatePricing(r.Context(), userID, shipTo)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"pricing": pricing,
			"cart":    summary,
		})
	}
}

// Submit runs the full checkout: validate the cart, snapshot it into an
// order, and open a payment session with the provider.
func Submit(svc *checkoutsvc.Service, orderSvc *orders.Service, paySvc *payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := buyerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload SubmitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.CreateCheckoutSession(r.Context(), checkoutsvc.CreateSessionInput{
			UserID:          userID,
			ShippingAddress: payload.ShippingAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := orderSvc.CreateFromSession(r.Context(), session)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := paySvc.CreateCheckoutSession(r.Context(), order.ID, userID)
		if err != nil {
			// The order exists but payment could not start. Surface the
			// order so the client can retry payment against it.
			if logg != nil {
				ctx := logg.WithField(r.Context(), "order_id", order.ID.String())
				logg.Error(ctx, "checkout.payment_session_failed", err)
			}
			responses.WriteSuccessStatus(w, http.StatusAccepted, SubmitResponse{Order: order})
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, SubmitResponse{
			Order:      order,
			PaymentURL: payment.URL,
		})
	}
}

func buyerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid actor id")
	}
	return id, nil
}
