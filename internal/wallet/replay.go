package wallet

import (
	"context"
	"fmt"

	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReplayReport compares the stored snapshot with the one rebuilt from history.
type ReplayReport struct {
	WalletID        uuid.UUID
	Entries         int
	StoredBalance   decimal.Decimal
	StoredPending   decimal.Decimal
	ReplayedBalance decimal.Decimal
	ReplayedPending decimal.Decimal
}

func (r ReplayReport) Consistent() bool {
	return r.StoredBalance.Equal(r.ReplayedBalance) && r.StoredPending.Equal(r.ReplayedPending)
}

// Replay folds entries (in sequence order) into a balance/pending pair,
// checking each entry's recorded snapshot along the way.
func Replay(entries []models.LedgerEntry) (decimal.Decimal, decimal.Decimal, error) {
	balance, pending := decimal.Zero, decimal.Zero
	for i, entry := range entries {
		var err error
		balance, pending, err = next(balance, pending, entry.Type, entry.Amount)
		if err != nil {
			return balance, pending, fmt.Errorf("entry %d (%s): %w", i, entry.ID, err)
		}
		if !balance.Equal(entry.BalanceAfter) || !pending.Equal(entry.PendingAfter) {
			return balance, pending, fmt.Errorf("entry %d (%s): recorded %s/%s, replayed %s/%s", i, entry.ID,
				money.Format(entry.BalanceAfter), money.Format(entry.PendingAfter), money.Format(balance), money.Format(pending))
		}
	}
	return balance, pending, nil
}

// Verify rebuilds the user's wallet from its ledger and reports drift.
func (s *service) Verify(ctx context.Context, userID uuid.UUID) (*ReplayReport, error) {
	wallet, err := s.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListEntries(ctx, wallet.ID, ListOptions{})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ledger entries")
	}
	balance, pending, err := Replay(entries)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invariant violated: ledger replay failed")
	}
	report := &ReplayReport{
		WalletID:        wallet.ID,
		Entries:         len(entries),
		StoredBalance:   wallet.Balance,
		StoredPending:   wallet.Pending,
		ReplayedBalance: balance,
		ReplayedPending: pending,
	}
	if !report.Consistent() {
		s.logg.Error(s.logg.WithField(ctx, "wallet_id", wallet.ID.String()), "wallet snapshot drifted from ledger", fmt.Errorf("stored %s/%s replayed %s/%s",
			money.Format(wallet.Balance), money.Format(wallet.Pending), money.Format(balance), money.Format(pending)))
	}
	return report, nil
}
