package payouts

import (
	"context"
	"testing"

	"github.com/angelmondragon/vendorlution-backend/internal/wallet"
	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	client  *db.Client
	svc     Service
	wallets wallet.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.Nop()
	wallets, err := wallet.NewService(wallet.ServiceParams{Repo: wallet.NewRepository(client.DB()), DB: client, Logger: logg})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		DB:        client,
		Repo:      NewRepository(client.DB()),
		Wallets:   wallets,
		Outbox:    outbox.NewService(outbox.NewRepository(client.DB()), logg),
		Logger:    logg,
		MinAmount: decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)
	return &fixture{client: client, svc: svc, wallets: wallets}
}

func (f *fixture) funded(t *testing.T, amount string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	_, err := f.wallets.Provision(ctx, id)
	require.NoError(t, err)
	require.NoError(t, f.client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := f.wallets.Credit(ctx, tx, wallet.Posting{
			UserID:         id,
			Amount:         decimal.RequireFromString(amount),
			Source:         "deposit",
			Reference:      "seed",
			IdempotencyKey: "seed-" + id.String(),
		})
		return err
	}))
	return id
}

func (f *fixture) balance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	w, err := f.wallets.GetByUser(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func validInput(amount string) RequestInput {
	return RequestInput{
		Amount:        decimal.RequireFromString(amount),
		BankHolder:    "T Nkosi",
		BankName:      "FNB",
		AccountNumber: "6200 1234 5678",
		BranchCode:    "250655",
	}
}

func TestRequestDebitsAndEmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.funded(t, "300.00")

	payout, err := f.svc.Request(ctx, userID, validInput("120.00"))
	require.NoError(t, err)
	require.Equal(t, enums.PayoutPending, payout.Status)
	require.Equal(t, enums.AccountCheque, payout.AccountType)
	require.Equal(t, "620012345678", payout.AccountNumber)
	require.Equal(t, Reference(payout.ID), payout.Reference)
	require.Len(t, payout.Reference, 11)
	require.True(t, f.balance(t, userID).Equal(decimal.RequireFromString("180.00")))

	entries, err := f.wallets.ListEntries(ctx, userID, wallet.ListOptions{NewestFirst: true})
	require.NoError(t, err)
	require.Equal(t, enums.LedgerEntryDebit, entries[0].Type)
	require.Equal(t, SourcePayout, entries[0].Source)
	require.Equal(t, payout.Reference, entries[0].Reference)

	var events int64
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPayoutRequested).Count(&events).Error)
	require.EqualValues(t, 1, events)

	list, err := f.svc.List(ctx, userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = f.svc.Get(ctx, uuid.New(), payout.ID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "other users cannot see the payout")
}

func TestRequestRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.funded(t, "50.00")

	below := validInput("9.99")
	overdraw := validInput("50.01")
	incomplete := validInput("20.00")
	incomplete.BankName = " "
	badType := validInput("20.00")
	badType.AccountType = "crypto"

	cases := []struct {
		name  string
		input RequestInput
		code  pkgerrors.Code
	}{
		{name: "below minimum", input: below, code: pkgerrors.CodeInvalidAmount},
		{name: "insufficient", input: overdraw, code: pkgerrors.CodeInsufficientFunds},
		{name: "missing bank", input: incomplete, code: pkgerrors.CodeValidation},
		{name: "account type", input: badType, code: pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Request(ctx, userID, tc.input)
			if !pkgerrors.Is(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}

	require.True(t, f.balance(t, userID).Equal(decimal.RequireFromString("50.00")))
	var count int64
	require.NoError(t, f.client.DB().Model(&models.PayoutRequest{}).Count(&count).Error)
	require.Zero(t, count, "failed debit must roll back the payout row")
}

func TestPayoutLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.funded(t, "100.00")
	admin := uuid.New()

	payout, err := f.svc.Request(ctx, userID, validInput("40.00"))
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(ctx, admin, payout.ID, "")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict), "paid requires processing")

	processing, err := f.svc.MarkProcessing(ctx, admin, payout.ID, "batch 12")
	require.NoError(t, err)
	require.Equal(t, enums.PayoutProcessing, processing.Status)

	paid, err := f.svc.MarkPaid(ctx, admin, payout.ID, "")
	require.NoError(t, err)
	require.Equal(t, enums.PayoutPaid, paid.Status)
	require.NotNil(t, paid.ProcessedAt)

	_, err = f.svc.MarkFailed(ctx, admin, payout.ID, "")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict), "paid payouts cannot fail")
	require.True(t, f.balance(t, userID).Equal(decimal.RequireFromString("60.00")))
}

func TestMarkFailedRefundsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.funded(t, "100.00")
	admin := uuid.New()

	payout, err := f.svc.Request(ctx, userID, validInput("75.00"))
	require.NoError(t, err)
	require.True(t, f.balance(t, userID).Equal(decimal.RequireFromString("25.00")))

	failed, err := f.svc.MarkFailed(ctx, admin, payout.ID, "account closed")
	require.NoError(t, err)
	require.Equal(t, enums.PayoutFailed, failed.Status)
	require.Equal(t, "account closed", failed.Notes)
	require.True(t, f.balance(t, userID).Equal(decimal.RequireFromString("100.00")))

	_, err = f.svc.MarkFailed(ctx, admin, payout.ID, "")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict))
	require.True(t, f.balance(t, userID).Equal(decimal.RequireFromString("100.00")))

	pending, err := f.svc.ListByStatus(ctx, enums.PayoutFailed, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestLast4(t *testing.T) {
	require.Equal(t, "5678", Last4("620012345678"))
	require.Equal(t, "12", Last4("12"))
}
