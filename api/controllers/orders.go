package controllers

import (
	"net/http"

	"github.com/angelmondragon/vendorlution-backend/api/responses"
	"github.com/angelmondragon/vendorlution-backend/api/validators"
	"github.com/angelmondragon/vendorlution-backend/internal/escrow"
	"github.com/angelmondragon/vendorlution-backend/internal/payments"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
)

type orderPaymentRequest struct {
	Provider string `json:"provider" validate:"required"`
}

// OrderPayment starts a provider payment for a pending order.
func OrderPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		buyerID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload orderPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := enums.ParsePaymentProvider(payload.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider"))
			return
		}

		result, err := svc.StartOrderPayment(r.Context(), buyerID, provider, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type shipmentRequest struct {
	Method         string `json:"method" validate:"required"`
	TrackingNumber string `json:"tracking_number" validate:"max=64"`
	Courier        string `json:"courier" validate:"max=64"`
}

func OrderShipment(engine escrow.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow unavailable"))
			return
		}
		sellerID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload shipmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParseDeliveryMethod(payload.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid method"))
			return
		}

		shipment, err := engine.CreateShipment(r.Context(), sellerID, orderID, escrow.ShipmentInput{
			Method:         method,
			TrackingNumber: validators.SanitizeString(payload.TrackingNumber, 64),
			Courier:        validators.SanitizeString(payload.Courier, 64),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newShipmentResponse(shipment))
	}
}

func OrderShipmentDelivered(engine escrow.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow unavailable"))
			return
		}
		sellerID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipment, err := engine.MarkDelivered(r.Context(), sellerID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newShipmentResponse(shipment))
	}
}

// OrderConfirmDelivery releases escrow to the seller on the buyer's word.
func OrderConfirmDelivery(engine escrow.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow unavailable"))
			return
		}
		buyerID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		settlement, err := engine.ConfirmDelivery(r.Context(), buyerID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSettlementResponse(settlement))
	}
}

type disputeRequest struct {
	Reason      string `json:"reason" validate:"required"`
	Description string `json:"description" validate:"required,max=2000"`
}

func OrderOpenDispute(engine escrow.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow unavailable"))
			return
		}
		buyerID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload disputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason, err := enums.ParseDisputeReason(payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason"))
			return
		}

		dispute, err := engine.OpenDispute(r.Context(), buyerID, orderID, escrow.DisputeInput{
			Reason:      reason,
			Description: validators.SanitizeString(payload.Description, 2000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newDisputeResponse(dispute))
	}
}
