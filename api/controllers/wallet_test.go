package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorlution-backend/api/middleware"
	"github.com/angelmondragon/vendorlution-backend/internal/payments"
	"github.com/angelmondragon/vendorlution-backend/internal/payouts"
	"github.com/angelmondragon/vendorlution-backend/internal/wallet"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
)

type stubWallet struct {
	wallet.Service
	record *models.Wallet
	err    error
}

func (s stubWallet) GetByUser(context.Context, uuid.UUID) (*models.Wallet, error) {
	return s.record, s.err
}

type stubPayments struct {
	provider enums.PaymentProvider
	amount   decimal.Decimal
	orderID  uuid.UUID
}

func (s *stubPayments) StartDeposit(_ context.Context, _ uuid.UUID, provider enums.PaymentProvider, amount decimal.Decimal) (*payments.StartResult, error) {
	s.provider = provider
	s.amount = amount
	return &payments.StartResult{IntentID: uuid.New(), RedirectURL: "https://pay.example/redirect"}, nil
}

func (s *stubPayments) StartOrderPayment(_ context.Context, _ uuid.UUID, provider enums.PaymentProvider, orderID uuid.UUID) (*payments.StartResult, error) {
	s.provider = provider
	s.orderID = orderID
	return &payments.StartResult{IntentID: uuid.New()}, nil
}

type stubPayouts struct {
	payouts.Service
	input payouts.RequestInput
	err   error
}

func (s *stubPayouts) Request(_ context.Context, userID uuid.UUID, input payouts.RequestInput) (*models.PayoutRequest, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.input = input
	return &models.PayoutRequest{ID: uuid.New(), UserID: userID, Amount: input.Amount, AccountNumber: input.AccountNumber, Status: enums.PayoutPending}, nil
}

func authed(req *http.Request, userID uuid.UUID, role enums.UserRole) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func TestWalletFetchFormatsAmounts(t *testing.T) {
	userID := uuid.New()
	record := &models.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		Balance:  decimal.RequireFromString("100.5"),
		Pending:  decimal.RequireFromString("20"),
		Currency: "ZAR",
	}
	handler := WalletFetch(stubWallet{record: record}, nil)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil), userID, enums.RoleBuyer)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data walletResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Balance != "100.50" || envelope.Data.Available != "80.50" {
		t.Fatalf("unexpected amounts: %+v", envelope.Data)
	}
}

func TestWalletFetchNotProvisioned(t *testing.T) {
	handler := WalletFetch(stubWallet{err: pkgerrors.New(pkgerrors.CodeNotFound, "wallet not provisioned")}, nil)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil), uuid.New(), enums.RoleBuyer)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestWalletFetchMissingUser(t *testing.T) {
	handler := WalletFetch(stubWallet{}, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestWalletDeposit(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "ok", body: `{"provider":"ozow","amount":"150.00"}`, want: http.StatusCreated},
		{name: "unknown provider", body: `{"provider":"paypal","amount":"150.00"}`, want: http.StatusBadRequest},
		{name: "negative amount", body: `{"provider":"ozow","amount":"-1"}`, want: http.StatusBadRequest},
		{name: "sub cent amount", body: `{"provider":"peach","amount":"1.005"}`, want: http.StatusBadRequest},
		{name: "missing amount", body: `{"provider":"ozow"}`, want: http.StatusBadRequest},
		{name: "unknown field", body: `{"provider":"ozow","amount":"1","total":"9"}`, want: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubPayments{}
			handler := WalletDeposit(svc, nil)

			req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/wallet/deposits", strings.NewReader(tc.body)), uuid.New(), enums.RoleBuyer)
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)

			if resp.Code != tc.want {
				t.Fatalf("expected %d got %d: %s", tc.want, resp.Code, resp.Body.String())
			}
			if tc.want == http.StatusCreated && (svc.provider != enums.ProviderOzow || !svc.amount.Equal(decimal.RequireFromString("150"))) {
				t.Fatalf("unexpected deposit call: %s %s", svc.provider, svc.amount)
			}
		})
	}
}

func TestWalletPayoutRequestMasksAccount(t *testing.T) {
	svc := &stubPayouts{}
	handler := WalletPayoutRequest(svc, nil)

	body := `{"amount":"200.00","bank_holder":"T Ndlovu","bank_name":"FNB","account_number":"62001234567","account_type":"savings"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/wallet/payouts", strings.NewReader(body)), uuid.New(), enums.RoleSeller)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.input.AccountType != enums.AccountSavings {
		t.Fatalf("unexpected account type %q", svc.input.AccountType)
	}
	if strings.Contains(resp.Body.String(), "62001234567") {
		t.Fatalf("account number leaked: %s", resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"account_last4":"4567"`) {
		t.Fatalf("expected masked account: %s", resp.Body.String())
	}
}

func TestWalletPayoutRequestInsufficientFunds(t *testing.T) {
	svc := &stubPayouts{err: pkgerrors.New(pkgerrors.CodeInsufficientFunds, "available 10.00")}
	handler := WalletPayoutRequest(svc, nil)

	body := `{"amount":"200.00","bank_holder":"T Ndlovu","bank_name":"FNB","account_number":"62001234567"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/wallet/payouts", strings.NewReader(body)), uuid.New(), enums.RoleSeller)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 got %d", resp.Code)
	}
}
