package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/angelmondragon/vendorlution-backend/api/responses"
	"github.com/angelmondragon/vendorlution-backend/api/validators"
	"github.com/angelmondragon/vendorlution-backend/internal/escrow"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
)

type checkoutRequest struct {
	DeliveryMethod string          `json:"delivery_method" validate:"required"`
	PaymentMethod  string          `json:"payment_method" validate:"required"`
	Address        json.RawMessage `json:"address,omitempty"`
	Notes          string          `json:"notes,omitempty" validate:"max=1000"`
}

func (p checkoutRequest) toInput() (escrow.CheckoutInput, error) {
	delivery, err := enums.ParseDeliveryMethod(p.DeliveryMethod)
	if err != nil {
		return escrow.CheckoutInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery_method")
	}
	method, err := enums.ParsePaymentMethod(p.PaymentMethod)
	if err != nil {
		return escrow.CheckoutInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_method")
	}
	return escrow.CheckoutInput{
		DeliveryMethod:  delivery,
		PaymentMethod:   method,
		AddressSnapshot: p.Address,
		Notes:           validators.SanitizeString(p.Notes, maxNotesLength),
	}, nil
}

// Checkout converts the buyer's cart into an order and pays for it, either
// from the wallet or by starting a provider payment.
func Checkout(engine escrow.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout unavailable"))
			return
		}
		buyerID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := engine.Checkout(r.Context(), buyerID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(result))
	}
}
