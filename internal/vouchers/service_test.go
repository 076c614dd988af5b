package vouchers

import (
	"context"
	"testing"

	"github.com/angelmondragon/vendorlution-backend/internal/intents"
	"github.com/angelmondragon/vendorlution-backend/internal/wallet"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc     Service
	intents intents.Service
	wallets wallet.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.Nop()
	wallets, err := wallet.NewService(wallet.ServiceParams{Repo: wallet.NewRepository(client.DB()), DB: client, Logger: logg})
	require.NoError(t, err)
	intentSvc, err := intents.NewService(intents.ServiceParams{Repo: intents.NewRepository(client.DB()), Logger: logg})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		DB:      client,
		Repo:    NewRepository(client.DB()),
		Intents: intentSvc,
		Wallets: wallets,
		Logger:  logg,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, intents: intentSvc, wallets: wallets}
}

func (f *fixture) user(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := f.wallets.Provision(context.Background(), id)
	require.NoError(t, err)
	return id
}

func TestSubmitApproveCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.user(t)
	admin := uuid.New()

	redemption, err := f.svc.Submit(ctx, userID, SubmitInput{Issuer: " 1voucher ", Code: "1234-5678", Amount: decimal.RequireFromString("100.00")})
	require.NoError(t, err)
	require.Equal(t, "1VOUCHER", redemption.Issuer)
	require.Equal(t, enums.VoucherPending, redemption.Status)

	intent, err := f.intents.Get(ctx, redemption.IntentID)
	require.NoError(t, err)
	require.Equal(t, enums.IntentStatusPending, intent.Status)
	require.Equal(t, enums.ProviderVoucher, intent.Provider)

	w, err := f.wallets.GetByUser(ctx, userID)
	require.NoError(t, err)
	require.True(t, w.Balance.IsZero(), "submission alone must not credit")

	approved, err := f.svc.Approve(ctx, admin, redemption.ID, "checked with issuer")
	require.NoError(t, err)
	require.Equal(t, enums.VoucherApproved, approved.Status)
	require.Equal(t, admin, *approved.ReviewedBy)

	w, err = f.wallets.GetByUser(ctx, userID)
	require.NoError(t, err)
	require.True(t, w.Balance.Equal(decimal.RequireFromString("100.00")))
	entries, err := f.wallets.ListEntries(ctx, userID, wallet.ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "voucher:1VOUCHER", entries[0].Source)
	require.Equal(t, "1234-5678", entries[0].Reference)

	intent, err = f.intents.Get(ctx, redemption.IntentID)
	require.NoError(t, err)
	require.Equal(t, enums.IntentStatusSucceeded, intent.Status)

	_, err = f.svc.Approve(ctx, admin, redemption.ID, "")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeAlreadyProcessed), "got %v", err)
	_, err = f.svc.Reject(ctx, admin, redemption.ID, "")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeAlreadyProcessed), "got %v", err)
	w, err = f.wallets.GetByUser(ctx, userID)
	require.NoError(t, err)
	require.True(t, w.Balance.Equal(decimal.RequireFromString("100.00")))
}

func TestRejectFailsIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.user(t)

	redemption, err := f.svc.Submit(ctx, userID, SubmitInput{Issuer: "OTT", Code: "OTT-1", Amount: decimal.RequireFromString("20.00")})
	require.NoError(t, err)
	rejected, err := f.svc.Reject(ctx, uuid.New(), redemption.ID, "code already used at issuer")
	require.NoError(t, err)
	require.Equal(t, enums.VoucherRejected, rejected.Status)

	intent, err := f.intents.Get(ctx, redemption.IntentID)
	require.NoError(t, err)
	require.Equal(t, enums.IntentStatusFailed, intent.Status)
	require.NotNil(t, intent.FailureReason)
	require.Equal(t, "code already used at issuer", *intent.FailureReason)

	pending, err := f.svc.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.user(t)

	cases := []struct {
		name  string
		input SubmitInput
		code  pkgerrors.Code
	}{
		{name: "unknown issuer", input: SubmitInput{Issuer: "acme", Code: "1", Amount: decimal.NewFromInt(10)}, code: pkgerrors.CodeValidation},
		{name: "blank code", input: SubmitInput{Issuer: "BLU", Code: "  ", Amount: decimal.NewFromInt(10)}, code: pkgerrors.CodeValidation},
		{name: "zero amount", input: SubmitInput{Issuer: "BLU", Code: "1", Amount: decimal.Zero}, code: pkgerrors.CodeInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, userID, tc.input)
			if !pkgerrors.Is(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}

	_, err := f.svc.Submit(ctx, uuid.New(), SubmitInput{Issuer: "BLU", Code: "1", Amount: decimal.NewFromInt(10)})
	if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected wallet not provisioned, got %v", err)
	}
}

func TestDuplicateCodeConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := SubmitInput{Issuer: "FLASH", Code: "F-99", Amount: decimal.NewFromInt(50)}

	_, err := f.svc.Submit(ctx, f.user(t), input)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, f.user(t), input)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict), "got %v", err)
}
