package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service is the single writer of wallet balances. Every mutation is one of
// the four ledger primitives and happens under the wallet row lock together
// with its ledger entry.
//
// The primitives accept an optional transaction so callers composing a larger
// unit of work (settlement, webhook reconciliation) can run them inside their
// own transaction. A nil tx opens a dedicated one.
type Service interface {
	Provision(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	ListEntries(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.LedgerEntry, error)

	Credit(ctx context.Context, tx *gorm.DB, posting Posting) (*Result, error)
	Debit(ctx context.Context, tx *gorm.DB, posting Posting) (*Result, error)
	Hold(ctx context.Context, tx *gorm.DB, posting Posting) (*Result, error)
	Release(ctx context.Context, tx *gorm.DB, posting Posting) (*Result, error)

	LockUsers(ctx context.Context, tx *gorm.DB, userIDs ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error)
	Verify(ctx context.Context, userID uuid.UUID) (*ReplayReport, error)
}

// Posting describes one primitive ledger operation. The wallet is addressed by
// its owner; WalletID takes precedence when set.
type Posting struct {
	UserID         uuid.UUID
	WalletID       uuid.UUID
	Amount         decimal.Decimal
	Source         string
	Reference      string
	Description    string
	IdempotencyKey string
}

// Result is the entry written (or found) and the wallet snapshot after it.
type Result struct {
	Entry    *models.LedgerEntry
	Wallet   *models.Wallet
	Replayed bool
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type postingMetrics interface {
	IncPosting(entryType, source string)
	IncReplay(entryType string)
}

type noopMetrics struct{}

func (noopMetrics) IncPosting(string, string) {}
func (noopMetrics) IncReplay(string)          {}

type ServiceParams struct {
	Repo     Repository
	DB       txRunner
	Logger   *logger.Logger
	Metrics  postingMetrics
	Currency string
	Now      func() time.Time
}

type service struct {
	repo     Repository
	db       txRunner
	logg     *logger.Logger
	metrics  postingMetrics
	currency string
	now      func() time.Time
}

// NewService wires the wallet service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "ZAR"
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	metrics := params.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &service{
		repo:     params.Repo,
		db:       params.DB,
		logg:     params.Logger,
		metrics:  metrics,
		currency: currency,
		now:      now,
	}, nil
}

// Provision creates the user's wallet. It is the only place wallets are
// created; calling it again returns the existing wallet.
func (s *service) Provision(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	existing, err := s.repo.FindByUserID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup wallet")
	}

	wallet := &models.Wallet{
		ID:       uuid.New(),
		UserID:   userID,
		Balance:  decimal.Zero,
		Pending:  decimal.Zero,
		Currency: s.currency,
	}
	if err := s.repo.Create(ctx, wallet); err != nil {
		if db.IsUniqueViolation(err, "") {
			return s.repo.FindByUserID(ctx, userID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create wallet")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"wallet_id": wallet.ID.String(), "user_id": userID.String()}), "wallet provisioned")
	return wallet, nil
}

func (s *service) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, notProvisioned(err, userID)
	}
	return wallet, nil
}

func (s *service) ListEntries(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.LedgerEntry, error) {
	wallet, err := s.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListEntries(ctx, wallet.ID, opts)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ledger entries")
	}
	return entries, nil
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, posting Posting) (*Result, error) {
	return s.post(ctx, tx, enums.LedgerEntryCredit, posting)
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, posting Posting) (*Result, error) {
	return s.post(ctx, tx, enums.LedgerEntryDebit, posting)
}

func (s *service) Hold(ctx context.Context, tx *gorm.DB, posting Posting) (*Result, error) {
	return s.post(ctx, tx, enums.LedgerEntryHold, posting)
}

func (s *service) Release(ctx context.Context, tx *gorm.DB, posting Posting) (*Result, error) {
	return s.post(ctx, tx, enums.LedgerEntryRelease, posting)
}

// LockUsers locks the wallets of every given user in ascending wallet id order
// and returns them keyed by user id. Multi-wallet operations call it before
// their first primitive.
func (s *service) LockUsers(ctx context.Context, tx *gorm.DB, userIDs ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error) {
	if tx == nil {
		return nil, fmt.Errorf("LockUsers requires a transaction")
	}
	repo := s.repo.WithTx(tx)
	walletIDs := make([]uuid.UUID, 0, len(userIDs))
	owners := make(map[uuid.UUID]uuid.UUID, len(userIDs))
	for _, userID := range userIDs {
		wallet, err := repo.FindByUserID(ctx, userID)
		if err != nil {
			return nil, notProvisioned(err, userID)
		}
		walletIDs = append(walletIDs, wallet.ID)
		owners[wallet.ID] = userID
	}
	locked, err := repo.LockByIDs(ctx, walletIDs...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock wallets")
	}
	byUser := make(map[uuid.UUID]*models.Wallet, len(locked))
	for walletID, wallet := range locked {
		byUser[owners[walletID]] = wallet
	}
	return byUser, nil
}

func (s *service) post(ctx context.Context, tx *gorm.DB, entryType enums.LedgerEntryType, posting Posting) (*Result, error) {
	if err := money.RequirePositive(posting.Amount); err != nil {
		return nil, err
	}
	if posting.UserID == uuid.Nil && posting.WalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet owner is required")
	}

	if tx != nil {
		return s.apply(ctx, tx, entryType, posting)
	}
	var result *Result
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.apply(ctx, tx, entryType, posting)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) apply(ctx context.Context, tx *gorm.DB, entryType enums.LedgerEntryType, posting Posting) (*Result, error) {
	repo := s.repo.WithTx(tx)

	walletID := posting.WalletID
	if walletID == uuid.Nil {
		owned, err := repo.FindByUserID(ctx, posting.UserID)
		if err != nil {
			return nil, notProvisioned(err, posting.UserID)
		}
		walletID = owned.ID
	}
	locked, err := repo.LockByIDs(ctx, walletID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock wallet")
	}
	wallet := locked[walletID]

	key := strings.TrimSpace(posting.IdempotencyKey)
	if key != "" {
		existing, err := repo.FindEntryByIdempotencyKey(ctx, wallet.ID, key)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup idempotency key")
		}
		if existing != nil {
			return s.replay(ctx, wallet, existing, entryType, posting)
		}
	}

	previousVersion := wallet.Version
	balance, pending, err := next(wallet.Balance, wallet.Pending, entryType, posting.Amount)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeInternal) {
			s.logg.Error(s.postingContext(ctx, wallet, entryType, posting), "ledger invariant violated", err)
		}
		return nil, err
	}

	now := s.now().UTC()
	wallet.Balance = balance
	wallet.Pending = pending
	wallet.Version = previousVersion + 1
	wallet.UpdatedAt = now

	entry := &models.LedgerEntry{
		ID:           uuid.New(),
		WalletID:     wallet.ID,
		Sequence:     wallet.Version,
		Type:         entryType,
		Amount:       posting.Amount,
		BalanceAfter: balance,
		PendingAfter: pending,
		Reference:    posting.Reference,
		Description:  posting.Description,
		Source:       posting.Source,
		Status:       enums.LedgerStatusPosted,
		CreatedAt:    now,
	}
	if key != "" {
		entry.IdempotencyKey = &key
	}

	if err := repo.InsertEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert ledger entry")
	}
	if err := repo.SaveSnapshot(ctx, wallet, previousVersion); err != nil {
		if errors.Is(err, errStaleSnapshot) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "wallet changed concurrently")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update wallet snapshot")
	}

	s.metrics.IncPosting(string(entryType), posting.Source)
	s.logg.Info(s.postingContext(ctx, wallet, entryType, posting), "ledger entry posted")
	return &Result{Entry: entry, Wallet: wallet}, nil
}

// replay answers a repeated idempotency key with the original entry. A key
// reused for a different operation shape is a caller bug.
func (s *service) replay(ctx context.Context, wallet *models.Wallet, existing *models.LedgerEntry, entryType enums.LedgerEntryType, posting Posting) (*Result, error) {
	if existing.Type != entryType || !existing.Amount.Equal(posting.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used for a different ledger operation").
			WithDetails(map[string]any{
				"idempotency_key": posting.IdempotencyKey,
				"existing_type":   existing.Type,
				"existing_amount": money.Format(existing.Amount),
			})
	}
	s.metrics.IncReplay(string(entryType))
	s.logg.Info(s.postingContext(ctx, wallet, entryType, posting), "ledger idempotent replay")
	return &Result{Entry: existing, Wallet: wallet, Replayed: true}, nil
}

// next computes the snapshot after applying one primitive. Available-funds
// shortfalls are user errors; a release beyond pending means the caller's
// bookkeeping is wrong and surfaces as an internal error.
func next(balance, pending decimal.Decimal, entryType enums.LedgerEntryType, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	switch entryType {
	case enums.LedgerEntryCredit:
		return balance.Add(amount), pending, nil
	case enums.LedgerEntryDebit, enums.LedgerEntryHold:
		if balance.LessThan(amount) {
			return balance, pending, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance").
				WithDetails(map[string]any{
					"available": money.Format(balance),
					"required":  money.Format(amount),
				})
		}
		if entryType == enums.LedgerEntryHold {
			return balance.Sub(amount), pending.Add(amount), nil
		}
		return balance.Sub(amount), pending, nil
	case enums.LedgerEntryRelease:
		if pending.LessThan(amount) {
			return balance, pending, pkgerrors.New(pkgerrors.CodeInternal, "invariant violated: release exceeds pending").
				WithDetails(map[string]any{
					"pending": money.Format(pending),
					"release": money.Format(amount),
				})
		}
		return balance, pending.Sub(amount), nil
	default:
		return balance, pending, pkgerrors.Newf(pkgerrors.CodeInternal, "unknown ledger entry type %q", entryType)
	}
}

func (s *service) postingContext(ctx context.Context, wallet *models.Wallet, entryType enums.LedgerEntryType, posting Posting) context.Context {
	return s.logg.WithFields(ctx, map[string]any{
		"wallet_id":  wallet.ID.String(),
		"entry_type": string(entryType),
		"amount":     money.Format(posting.Amount),
		"reference":  posting.Reference,
		"source":     posting.Source,
	})
}

func notProvisioned(err error, userID uuid.UUID) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not provisioned").
			WithDetails(map[string]any{"user_id": userID.String()})
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup wallet")
}
