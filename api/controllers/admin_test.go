package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendorlution-backend/internal/escrow"
	"github.com/angelmondragon/vendorlution-backend/internal/payouts"
	"github.com/angelmondragon/vendorlution-backend/internal/webhooks"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
)

type stubEngine struct {
	escrow.Engine
	resolve escrow.ResolveInput
}

func (s *stubEngine) ResolveDispute(_ context.Context, _, disputeID uuid.UUID, input escrow.ResolveInput) (*escrow.Resolution, error) {
	s.resolve = input
	return &escrow.Resolution{
		Dispute:      &models.Dispute{ID: disputeID, Status: enums.DisputeResolvedRefund},
		Order:        &models.Order{ID: uuid.New(), Status: enums.OrderStatusRefunded},
		RefundAmount: input.RefundAmount,
	}, nil
}

type transitionPayouts struct {
	payouts.Service
	called string
}

func (s *transitionPayouts) record(name string, id uuid.UUID) (*models.PayoutRequest, error) {
	s.called = name
	return &models.PayoutRequest{ID: id, Status: enums.PayoutStatus(name)}, nil
}

func (s *transitionPayouts) MarkProcessing(_ context.Context, _, id uuid.UUID, _ string) (*models.PayoutRequest, error) {
	return s.record("processing", id)
}

func (s *transitionPayouts) MarkPaid(_ context.Context, _, id uuid.UUID, _ string) (*models.PayoutRequest, error) {
	return s.record("paid", id)
}

func (s *transitionPayouts) MarkFailed(_ context.Context, _, id uuid.UUID, _ string) (*models.PayoutRequest, error) {
	return s.record("failed", id)
}

type errReceiver struct{}

func (errReceiver) Receive(context.Context, enums.PaymentProvider, webhooks.Inbound) (*webhooks.Receipt, error) {
	return nil, errors.New("db down")
}

func withParam(req *http.Request, key, value string) *http.Request {
	rc := chi.RouteContext(req.Context())
	if rc == nil {
		rc = chi.NewRouteContext()
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}
	rc.URLParams.Add(key, value)
	return req
}

func TestAdminPayoutStatusDispatch(t *testing.T) {
	for _, status := range []string{"processing", "paid", "failed"} {
		t.Run(status, func(t *testing.T) {
			svc := &transitionPayouts{}
			handler := AdminPayoutStatus(svc, nil)

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"`+status+`","notes":"bank ref 991"}`))
			req = withParam(authed(req, uuid.New(), enums.RoleAdmin), "payoutID", uuid.NewString())
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)

			if resp.Code != http.StatusOK {
				t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
			}
			if svc.called != status {
				t.Fatalf("expected %s transition, got %q", status, svc.called)
			}
		})
	}
}

func TestAdminPayoutStatusRejectsPending(t *testing.T) {
	svc := &transitionPayouts{}
	handler := AdminPayoutStatus(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"pending"}`))
	req = withParam(authed(req, uuid.New(), enums.RoleAdmin), "payoutID", uuid.NewString())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.called != "" {
		t.Fatalf("no transition expected")
	}
}

func TestAdminDisputeResolveParsesRefund(t *testing.T) {
	engine := &stubEngine{}
	handler := AdminDisputeResolve(engine, nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"refund","refund_amount":"40.00","notes":"partial"}`))
	req = withParam(authed(req, uuid.New(), enums.RoleAdmin), "disputeID", uuid.NewString())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if engine.resolve.Action != enums.ResolutionRefund {
		t.Fatalf("unexpected action %q", engine.resolve.Action)
	}
	if engine.resolve.RefundAmount == nil || !engine.resolve.RefundAmount.Equal(decimal.RequireFromString("40")) {
		t.Fatalf("unexpected refund amount %v", engine.resolve.RefundAmount)
	}
	if !strings.Contains(resp.Body.String(), `"refund_amount":"40.00"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestAdminDisputeResolveRejectsAmountOnRelease(t *testing.T) {
	handler := AdminDisputeResolve(&stubEngine{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"release","refund_amount":"40.00"}`))
	req = withParam(authed(req, uuid.New(), enums.RoleAdmin), "disputeID", uuid.NewString())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestInvalidPathID(t *testing.T) {
	handler := AdminDisputeReview(&stubEngine{}, nil)

	req := withParam(authed(httptest.NewRequest(http.MethodPost, "/", nil), uuid.New(), enums.RoleAdmin), "disputeID", "nope")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestProviderWebhookSurfacesLogFailure(t *testing.T) {
	handler := ProviderWebhook(errReceiver{}, nil)

	req := withParam(httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/ozow", strings.NewReader(`{}`)), "provider", "ozow")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

func TestCheckoutRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload checkoutRequest
		code    pkgerrors.Code
	}{
		{name: "bad delivery", payload: checkoutRequest{DeliveryMethod: "drone", PaymentMethod: "wallet"}, code: pkgerrors.CodeValidation},
		{name: "bad payment", payload: checkoutRequest{DeliveryMethod: "pargo", PaymentMethod: "cash"}, code: pkgerrors.CodeValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.payload.toInput()
			if !pkgerrors.Is(err, tc.code) {
				t.Fatalf("expected %s got %v", tc.code, err)
			}
		})
	}

	input, err := checkoutRequest{DeliveryMethod: "courier", PaymentMethod: "wallet", Notes: "  leave at gate  "}.toInput()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if input.DeliveryMethod != enums.DeliveryCourier || input.Notes != "leave at gate" {
		t.Fatalf("unexpected input %+v", input)
	}
}
