package wallet

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists wallets and their ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, wallet *models.Wallet) error
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	FindByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	LockByIDs(ctx context.Context, walletIDs ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error)
	FindEntryByIdempotencyKey(ctx context.Context, walletID uuid.UUID, key string) (*models.LedgerEntry, error)
	InsertEntry(ctx context.Context, entry *models.LedgerEntry) error
	SaveSnapshot(ctx context.Context, wallet *models.Wallet, previousVersion int64) error
	ListEntries(ctx context.Context, walletID uuid.UUID, opts ListOptions) ([]models.LedgerEntry, error)
}

// ListOptions pages through a wallet's history.
type ListOptions struct {
	Limit       int
	Offset      int
	NewestFirst bool
}

var errStaleSnapshot = errors.New("wallet snapshot changed underneath the lock")

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByID(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("id = ?", walletID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// LockByIDs takes row locks one wallet at a time in ascending id order, so
// two transactions touching overlapping wallets always queue in the same order.
func (r *repository) LockByIDs(ctx context.Context, walletIDs ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error) {
	ordered := uniqueSorted(walletIDs)
	locked := make(map[uuid.UUID]*models.Wallet, len(ordered))
	for _, id := range ordered {
		var wallet models.Wallet
		if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&wallet).Error; err != nil {
			return nil, err
		}
		locked[id] = &wallet
	}
	return locked, nil
}

func (r *repository) FindEntryByIdempotencyKey(ctx context.Context, walletID uuid.UUID, key string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND idempotency_key = ?", walletID, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) InsertEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// SaveSnapshot writes balance, pending and version guarded by the version read
// under lock.
func (r *repository) SaveSnapshot(ctx context.Context, wallet *models.Wallet, previousVersion int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND version = ?", wallet.ID, previousVersion).
		Updates(map[string]any{
			"balance":    wallet.Balance,
			"pending":    wallet.Pending,
			"version":    wallet.Version,
			"updated_at": wallet.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errStaleSnapshot
	}
	return nil
}

func (r *repository) ListEntries(ctx context.Context, walletID uuid.UUID, opts ListOptions) ([]models.LedgerEntry, error) {
	order := "sequence ASC"
	if opts.NewestFirst {
		order = "sequence DESC"
	}
	query := r.db.WithContext(ctx).Where("wallet_id = ?", walletID).Order(order)
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}
	var entries []models.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func uniqueSorted(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
