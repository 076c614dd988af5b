package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendorlution-backend/api/responses"
	"github.com/angelmondragon/vendorlution-backend/api/validators"
	"github.com/angelmondragon/vendorlution-backend/internal/escrow"
	"github.com/angelmondragon/vendorlution-backend/internal/payouts"
	"github.com/angelmondragon/vendorlution-backend/internal/vouchers"
	"github.com/angelmondragon/vendorlution-backend/internal/wallet"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/money"
)

func AdminDisputeReview(engine escrow.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow unavailable"))
			return
		}
		adminID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		disputeID, err := pathUUID(r, "disputeID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dispute, err := engine.ReviewDispute(r.Context(), adminID, disputeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDisputeResponse(dispute))
	}
}

type resolveDisputeRequest struct {
	Action       string `json:"action" validate:"required"`
	RefundAmount string `json:"refund_amount,omitempty"`
	Notes        string `json:"notes" validate:"max=1000"`
}

func (p resolveDisputeRequest) toInput() (escrow.ResolveInput, error) {
	action, err := enums.ParseDisputeResolution(p.Action)
	if err != nil {
		return escrow.ResolveInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action")
	}
	input := escrow.ResolveInput{Action: action, Notes: validators.SanitizeString(p.Notes, maxNotesLength)}
	if strings.TrimSpace(p.RefundAmount) != "" {
		if action != enums.ResolutionRefund {
			return escrow.ResolveInput{}, pkgerrors.New(pkgerrors.CodeValidation, "refund_amount only applies to refunds")
		}
		amount, err := money.Parse(p.RefundAmount)
		if err != nil {
			return escrow.ResolveInput{}, err
		}
		input.RefundAmount = &amount
	}
	return input, nil
}

// AdminDisputeResolve moves the escrowed funds according to the decision.
func AdminDisputeResolve(engine escrow.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow unavailable"))
			return
		}
		adminID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		disputeID, err := pathUUID(r, "disputeID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload resolveDisputeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resolution, err := engine.ResolveDispute(r.Context(), adminID, disputeID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newResolutionResponse(resolution))
	}
}

type reviewNotesRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

func AdminVoucherPending(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := svc.ListPending(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]voucherResponse, 0, len(records))
		for i := range records {
			out = append(out, newVoucherResponse(&records[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func AdminVoucherApprove(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return voucherDecision(svc, logg, true)
}

func AdminVoucherReject(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return voucherDecision(svc, logg, false)
}

func voucherDecision(svc vouchers.Service, logg *logger.Logger, approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}
		adminID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		voucherID, err := pathUUID(r, "voucherID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reviewNotesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		notes := validators.SanitizeString(payload.Notes, maxNotesLength)

		decide := svc.Reject
		if approve {
			decide = svc.Approve
		}
		record, err := decide(r.Context(), adminID, voucherID, notes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newVoucherResponse(record))
	}
}

func AdminPayoutList(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		status := enums.PayoutPending
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParsePayoutStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			status = parsed
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := svc.ListByStatus(r.Context(), status, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]payoutResponse, 0, len(records))
		for i := range records {
			out = append(out, newPayoutResponse(&records[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type payoutStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"max=1000"`
}

// AdminPayoutStatus records the bank-side outcome of a withdrawal. Failing
// a payout refunds the wallet.
func AdminPayoutStatus(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		adminID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payoutID, err := pathUUID(r, "payoutID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload payoutStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		notes := validators.SanitizeString(payload.Notes, maxNotesLength)

		var transition func(context.Context, uuid.UUID, uuid.UUID, string) (*models.PayoutRequest, error)
		switch enums.PayoutStatus(payload.Status) {
		case enums.PayoutProcessing:
			transition = svc.MarkProcessing
		case enums.PayoutPaid:
			transition = svc.MarkPaid
		case enums.PayoutFailed:
			transition = svc.MarkFailed
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "status must be processing, paid or failed"))
			return
		}

		record, err := transition(r.Context(), adminID, payoutID, notes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPayoutResponse(record))
	}
}

type provisionWalletRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
}

// AdminProvisionWallet creates the wallet for a user, returning the existing
// one when already provisioned.
func AdminProvisionWallet(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}

		var payload provisionWalletRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.UserID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required"))
			return
		}

		record, err := svc.Provision(r.Context(), payload.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newWalletResponse(record))
	}
}

type replayResponse struct {
	WalletID        uuid.UUID `json:"wallet_id"`
	Entries         int       `json:"entries"`
	StoredBalance   string    `json:"stored_balance"`
	StoredPending   string    `json:"stored_pending"`
	ReplayedBalance string    `json:"replayed_balance"`
	ReplayedPending string    `json:"replayed_pending"`
	Consistent      bool      `json:"consistent"`
}

// AdminWalletVerify replays a wallet's ledger against its stored snapshot.
func AdminWalletVerify(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		userID, err := pathUUID(r, "userID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.Verify(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, replayResponse{
			WalletID:        report.WalletID,
			Entries:         report.Entries,
			StoredBalance:   money.Format(report.StoredBalance),
			StoredPending:   money.Format(report.StoredPending),
			ReplayedBalance: money.Format(report.ReplayedBalance),
			ReplayedPending: money.Format(report.ReplayedPending),
			Consistent:      report.Consistent(),
		})
	}
}
