package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(client.DB()),
		DB:     client,
		Logger: logger.Nop(),
	})
	require.NoError(t, err)
	return svc, client
}

func provisioned(t *testing.T, svc Service) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	_, err := svc.Provision(context.Background(), userID)
	require.NoError(t, err)
	return userID
}

func entryCount(t *testing.T, client *db.Client) int64 {
	t.Helper()
	var count int64
	require.NoError(t, client.DB().Model(&models.LedgerEntry{}).Count(&count).Error)
	return count
}

func TestProvisionIsExplicitAndIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.GetByUser(ctx, userID)
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound), "unprovisioned wallet must not be created lazily: %v", err)

	first, err := svc.Provision(ctx, userID)
	require.NoError(t, err)
	second, err := svc.Provision(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "ZAR", second.Currency)
	require.True(t, second.Balance.IsZero())
}

func TestCreditDebitHoldRelease(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	userID := provisioned(t, svc)

	res, err := svc.Credit(ctx, nil, Posting{UserID: userID, Amount: amt("200.00"), Source: "deposit", Reference: "DEP-1"})
	require.NoError(t, err)
	require.True(t, res.Wallet.Balance.Equal(amt("200")))
	require.Equal(t, enums.LedgerEntryCredit, res.Entry.Type)
	require.Equal(t, int64(1), res.Entry.Sequence)

	res, err = svc.Hold(ctx, nil, Posting{UserID: userID, Amount: amt("150.00"), Source: "order_payment", Reference: "ORDER-1"})
	require.NoError(t, err)
	require.True(t, res.Wallet.Balance.Equal(amt("50")), "balance %s", res.Wallet.Balance)
	require.True(t, res.Wallet.Pending.Equal(amt("150")), "pending %s", res.Wallet.Pending)
	require.True(t, res.Entry.BalanceAfter.Equal(amt("50")))
	require.True(t, res.Entry.PendingAfter.Equal(amt("150")))

	res, err = svc.Release(ctx, nil, Posting{UserID: userID, Amount: amt("150.00"), Source: "escrow_release", Reference: "ORDER-1-RELEASE"})
	require.NoError(t, err)
	require.True(t, res.Wallet.Pending.IsZero())

	res, err = svc.Debit(ctx, nil, Posting{UserID: userID, Amount: amt("50.00"), Source: "payout"})
	require.NoError(t, err)
	require.True(t, res.Wallet.Balance.IsZero())

	stored, err := svc.GetByUser(ctx, userID)
	require.NoError(t, err)
	require.True(t, stored.Balance.IsZero())
	require.True(t, stored.Pending.IsZero())
	require.Equal(t, int64(4), stored.Version)
	require.Equal(t, int64(4), entryCount(t, client))

	report, err := svc.Verify(ctx, userID)
	require.NoError(t, err)
	require.True(t, report.Consistent())
	require.Equal(t, 4, report.Entries)
}

func TestInvalidAmountsRejectedBeforeMutation(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	userID := provisioned(t, svc)

	for _, raw := range []string{"0", "-5", "1.005"} {
		_, err := svc.Credit(ctx, nil, Posting{UserID: userID, Amount: amt(raw), Source: "deposit"})
		require.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidAmount), "%s: %v", raw, err)
	}
	require.Equal(t, int64(0), entryCount(t, client))
}

func TestInsufficientBalanceLeavesNoEffect(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	userID := provisioned(t, svc)

	_, err := svc.Credit(ctx, nil, Posting{UserID: userID, Amount: amt("10.00"), Source: "deposit"})
	require.NoError(t, err)

	_, err = svc.Debit(ctx, nil, Posting{UserID: userID, Amount: amt("10.01"), Source: "payout"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientFunds), "%v", err)
	_, err = svc.Hold(ctx, nil, Posting{UserID: userID, Amount: amt("20.00"), Source: "order_payment"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientFunds), "%v", err)

	stored, err := svc.GetByUser(ctx, userID)
	require.NoError(t, err)
	require.True(t, stored.Balance.Equal(amt("10")))
	require.Equal(t, int64(1), entryCount(t, client))
}

func TestHoldOfExactBalanceSucceeds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := provisioned(t, svc)

	_, err := svc.Credit(ctx, nil, Posting{UserID: userID, Amount: amt("150.00"), Source: "deposit"})
	require.NoError(t, err)
	res, err := svc.Hold(ctx, nil, Posting{UserID: userID, Amount: amt("150.00"), Source: "order_payment"})
	require.NoError(t, err)
	require.True(t, res.Wallet.Balance.IsZero())
	require.True(t, res.Wallet.Pending.Equal(amt("150")))
}

func TestReleaseBeyondPendingIsInvariantViolation(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	userID := provisioned(t, svc)

	_, err := svc.Release(ctx, nil, Posting{UserID: userID, Amount: amt("1.00"), Source: "escrow_release"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInternal), "%v", err)
	require.Equal(t, int64(0), entryCount(t, client))
}

func TestIdempotencyKeyProducesSingleEffect(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	userID := provisioned(t, svc)

	posting := Posting{UserID: userID, Amount: amt("95.00"), Source: "order_payout", Reference: "ORDER-9", IdempotencyKey: "order-release-9"}
	first, err := svc.Credit(ctx, nil, posting)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := svc.Credit(ctx, nil, posting)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.Entry.ID, second.Entry.ID)

	stored, err := svc.GetByUser(ctx, userID)
	require.NoError(t, err)
	require.True(t, stored.Balance.Equal(amt("95")))
	require.Equal(t, int64(1), entryCount(t, client))
}

func TestIdempotencyKeyChecksBeforeBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := provisioned(t, svc)

	_, err := svc.Credit(ctx, nil, Posting{UserID: userID, Amount: amt("40.00"), Source: "deposit"})
	require.NoError(t, err)
	debit := Posting{UserID: userID, Amount: amt("40.00"), Source: "payout", IdempotencyKey: "payout-1"}
	_, err = svc.Debit(ctx, nil, debit)
	require.NoError(t, err)

	// balance is now zero; a retried debit must still answer from the key
	res, err := svc.Debit(ctx, nil, debit)
	require.NoError(t, err)
	require.True(t, res.Replayed)
}

func TestIdempotencyKeyReuseForDifferentOperation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := provisioned(t, svc)

	_, err := svc.Credit(ctx, nil, Posting{UserID: userID, Amount: amt("10.00"), Source: "deposit", IdempotencyKey: "k-1"})
	require.NoError(t, err)
	_, err = svc.Credit(ctx, nil, Posting{UserID: userID, Amount: amt("11.00"), Source: "deposit", IdempotencyKey: "k-1"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeIdempotency), "%v", err)
}

func TestPostingsJoinCallerTransaction(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	buyer := provisioned(t, svc)
	seller := provisioned(t, svc)

	_, err := svc.Credit(ctx, nil, Posting{UserID: buyer, Amount: amt("100.00"), Source: "deposit"})
	require.NoError(t, err)

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := svc.LockUsers(ctx, tx, buyer, seller)
		require.NoError(t, err)
		require.Len(t, locked, 2)

		if _, err := svc.Debit(ctx, tx, Posting{UserID: buyer, Amount: amt("100.00"), Source: "transfer"}); err != nil {
			return err
		}
		if _, err := svc.Credit(ctx, tx, Posting{UserID: seller, Amount: amt("100.00"), Source: "transfer"}); err != nil {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeConflict, "abort")
	})
	require.Error(t, err)

	buyerWallet, err := svc.GetByUser(ctx, buyer)
	require.NoError(t, err)
	require.True(t, buyerWallet.Balance.Equal(amt("100")), "rollback must restore buyer balance, got %s", buyerWallet.Balance)
	sellerWallet, err := svc.GetByUser(ctx, seller)
	require.NoError(t, err)
	require.True(t, sellerWallet.Balance.IsZero())
	require.Equal(t, int64(1), entryCount(t, client))
}

func TestConcurrentCreditsSerialize(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := provisioned(t, svc)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Credit(ctx, nil, Posting{UserID: userID, Amount: amt("1.25"), Source: "deposit"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	report, err := svc.Verify(ctx, userID)
	require.NoError(t, err)
	require.True(t, report.Consistent())
	require.True(t, report.StoredBalance.Equal(amt("25.00")), "balance %s", report.StoredBalance)
	require.Equal(t, 20, report.Entries)
}

func TestUniqueSortedOrdersByWalletID(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-0000000000ff")
	c := uuid.MustParse("ff000000-0000-0000-0000-000000000000")

	got := uniqueSorted([]uuid.UUID{c, a, b, a, uuid.Nil})
	require.Equal(t, []uuid.UUID{a, b, c}, got)
}

func TestReplayDetectsTamperedSnapshot(t *testing.T) {
	entries := []models.LedgerEntry{
		{ID: uuid.New(), Type: enums.LedgerEntryCredit, Amount: amt("10"), BalanceAfter: amt("10"), PendingAfter: decimal.Zero},
		{ID: uuid.New(), Type: enums.LedgerEntryHold, Amount: amt("4"), BalanceAfter: amt("6"), PendingAfter: amt("4")},
	}
	balance, pending, err := Replay(entries)
	require.NoError(t, err)
	require.True(t, balance.Equal(amt("6")))
	require.True(t, pending.Equal(amt("4")))

	entries[1].BalanceAfter = amt("7")
	_, _, err = Replay(entries)
	require.Error(t, err)
}
