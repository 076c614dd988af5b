package controllers

import (
	"net/http"

	"github.com/angelmondragon/vendorlution-backend/api/responses"
	"github.com/angelmondragon/vendorlution-backend/api/validators"
	"github.com/angelmondragon/vendorlution-backend/internal/payments"
	"github.com/angelmondragon/vendorlution-backend/internal/payouts"
	"github.com/angelmondragon/vendorlution-backend/internal/vouchers"
	"github.com/angelmondragon/vendorlution-backend/internal/wallet"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/money"
)

// WalletFetch returns the caller's wallet snapshot.
func WalletFetch(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.GetByUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newWalletResponse(record))
	}
}

// WalletEntries lists ledger history, newest first.
func WalletEntries(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePage(r, 50, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.ListEntries(r.Context(), userID, wallet.ListOptions{Limit: page.Limit, Offset: page.Offset, NewestFirst: true})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLedgerEntryResponses(entries))
	}
}

type depositRequest struct {
	Provider string `json:"provider" validate:"required"`
	Amount   string `json:"amount" validate:"required"`
}

// WalletDeposit starts a provider top-up and returns the redirect.
func WalletDeposit(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload depositRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := enums.ParsePaymentProvider(payload.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider"))
			return
		}
		amount, err := money.Parse(payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.StartDeposit(r.Context(), userID, provider, amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type voucherRequest struct {
	Issuer string `json:"issuer" validate:"required"`
	Code   string `json:"code" validate:"required,max=64,vouchercode"`
	Amount string `json:"amount" validate:"required"`
}

// WalletVoucherSubmit queues a voucher for manual review.
func WalletVoucherSubmit(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload voucherRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := money.Parse(payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Submit(r.Context(), userID, vouchers.SubmitInput{
			Issuer: payload.Issuer,
			Code:   payload.Code,
			Amount: amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newVoucherResponse(record))
	}
}

type payoutRequest struct {
	Amount        string `json:"amount" validate:"required"`
	BankHolder    string `json:"bank_holder" validate:"required,max=120"`
	BankName      string `json:"bank_name" validate:"required,max=120"`
	AccountNumber string `json:"account_number" validate:"required,max=32,bankdigits"`
	BranchCode    string `json:"branch_code" validate:"omitempty,max=16,bankdigits"`
	AccountType   string `json:"account_type"`
}

// WalletPayoutRequest debits the wallet and queues a bank withdrawal.
func WalletPayoutRequest(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload payoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := money.Parse(payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Request(r.Context(), userID, payouts.RequestInput{
			Amount:        amount,
			BankHolder:    payload.BankHolder,
			BankName:      payload.BankName,
			AccountNumber: payload.AccountNumber,
			BranchCode:    payload.BranchCode,
			AccountType:   enums.BankAccountType(payload.AccountType),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPayoutResponse(record))
	}
}

// WalletPayoutList pages through the caller's withdrawals.
func WalletPayoutList(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePage(r, 20, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := svc.List(r.Context(), userID, page.Limit, page.Offset)
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
