// Package vouchers redeems prepaid retail vouchers into wallet credit. A code
// is captured with a pending deposit intent and credited only when an admin
// approves it.
package vouchers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/vendorlution-backend/internal/intents"
	"github.com/angelmondragon/vendorlution-backend/internal/wallet"
	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/vendorlution-backend/pkg/db/types"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DefaultIssuers are the voucher brands accepted when none are configured.
var DefaultIssuers = []string{"1VOUCHER", "OTT", "BLU", "KAZANG", "FLASH"}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Service interface {
	Submit(ctx context.Context, userID uuid.UUID, input SubmitInput) (*models.VoucherRedemption, error)
	Approve(ctx context.Context, adminID, redemptionID uuid.UUID, notes string) (*models.VoucherRedemption, error)
	Reject(ctx context.Context, adminID, redemptionID uuid.UUID, notes string) (*models.VoucherRedemption, error)
	ListPending(ctx context.Context, limit int) ([]models.VoucherRedemption, error)
}

type SubmitInput struct {
	Issuer string
	Code   string
	Amount decimal.Decimal
}

type ServiceParams struct {
	DB      txRunner
	Repo    Repository
	Intents intents.Service
	Wallets wallet.Service
	Logger  *logger.Logger
	Issuers []string
	Now     func() time.Time
}

type service struct {
	db      txRunner
	repo    Repository
	intents intents.Service
	wallets wallet.Service
	logg    *logger.Logger
	issuers map[string]struct{}
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("voucher repository required")
	case params.Intents == nil:
		return nil, fmt.Errorf("intent service required")
	case params.Wallets == nil:
		return nil, fmt.Errorf("wallet service required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	list := params.Issuers
	if len(list) == 0 {
		list = DefaultIssuers
	}
	issuers := make(map[string]struct{}, len(list))
	for _, issuer := range list {
		issuers[normalizeIssuer(issuer)] = struct{}{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:      params.DB,
		repo:    params.Repo,
		intents: params.Intents,
		wallets: params.Wallets,
		logg:    params.Logger,
		issuers: issuers,
		now:     now,
	}, nil
}

// Submit records the code against a pending voucher deposit. No money moves.
func (s *service) Submit(ctx context.Context, userID uuid.UUID, input SubmitInput) (*models.VoucherRedemption, error) {
	issuer := normalizeIssuer(input.Issuer)
	if _, ok := s.issuers[issuer]; !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported voucher issuer %q", input.Issuer)
	}
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher code is required")
	}
	if err := money.RequirePositive(input.Amount); err != nil {
		return nil, err
	}
	w, err := s.wallets.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var redemption *models.VoucherRedemption
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		intent, err := s.intents.Create(ctx, tx, intents.CreateInput{
			UserID:   userID,
			WalletID: w.ID,
			Provider: enums.ProviderVoucher,
			Kind:     enums.IntentKindDeposit,
			Amount:   input.Amount,
			Currency: w.Currency,
			Metadata: dbtypes.DepositMetadata(),
		})
		if err != nil {
			return err
		}
		if _, err := s.intents.MarkPending(ctx, tx, intent.ID, code); err != nil {
			return err
		}
		redemption = &models.VoucherRedemption{
			ID:       uuid.New(),
			UserID:   userID,
			IntentID: intent.ID,
			Issuer:   issuer,
			Code:     code,
			Amount:   input.Amount,
			Status:   enums.VoucherPending,
		}
		if err := s.repo.WithTx(tx).Create(ctx, redemption); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "voucher code already submitted")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create voucher redemption")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.redemptionContext(ctx, redemption), "voucher submitted")
	return redemption, nil
}

// Approve credits the wallet and closes the intent in one transaction.
func (s *service) Approve(ctx context.Context, adminID, redemptionID uuid.UUID, notes string) (*models.VoucherRedemption, error) {
	return s.review(ctx, adminID, redemptionID, enums.VoucherApproved, notes, func(tx *gorm.DB, r *models.VoucherRedemption) error {
		if _, err := s.wallets.Credit(ctx, tx, wallet.Posting{
			UserID:         r.UserID,
			Amount:         r.Amount,
			Source:         "voucher:" + r.Issuer,
			Reference:      r.Code,
			Description:    "Voucher redemption",
			IdempotencyKey: "voucher-" + r.ID.String(),
		}); err != nil {
			return err
		}
		_, err := s.intents.MarkSucceeded(ctx, tx, r.IntentID, r.Code)
		return err
	})
}

func (s *service) Reject(ctx context.Context, adminID, redemptionID uuid.UUID, notes string) (*models.VoucherRedemption, error) {
	return s.review(ctx, adminID, redemptionID, enums.VoucherRejected, notes, func(tx *gorm.DB, r *models.VoucherRedemption) error {
		reason := "voucher rejected"
		if trimmed := strings.TrimSpace(notes); trimmed != "" {
			reason = trimmed
		}
		_, err := s.intents.MarkFailed(ctx, tx, r.IntentID, reason)
		return err
	})
}

func (s *service) review(ctx context.Context, adminID, redemptionID uuid.UUID, decision enums.VoucherStatus, notes string, apply func(tx *gorm.DB, r *models.VoucherRedemption) error) (*models.VoucherRedemption, error) {
	var redemption *models.VoucherRedemption
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		redemption, err = repo.Lock(ctx, redemptionID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "voucher redemption not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load voucher redemption")
		}
		if redemption.Status != enums.VoucherPending {
			return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "voucher already reviewed").
				WithDetails(map[string]any{"status": redemption.Status})
		}
		if err := apply(tx, redemption); err != nil {
			return err
		}

		reviewedAt := s.now().UTC()
		ok, err := repo.Review(ctx, redemption.ID, map[string]any{
			"status":      decision,
			"reviewed_by": adminID,
			"reviewed_at": reviewedAt,
			"notes":       strings.TrimSpace(notes),
			"updated_at":  reviewedAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "review voucher redemption")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "voucher already reviewed")
		}
		redemption.Status = decision
		redemption.ReviewedBy = &adminID
		redemption.ReviewedAt = &reviewedAt
		redemption.Notes = strings.TrimSpace(notes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(s.redemptionContext(ctx, redemption), "admin_id", adminID.String()), "voucher reviewed")
	return redemption, nil
}

func (s *service) ListPending(ctx context.Context, limit int) ([]models.VoucherRedemption, error) {
	rows, err := s.repo.ListByStatus(ctx, enums.VoucherPending, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list vouchers")
	}
	return rows, nil
}

func (s *service) redemptionContext(ctx context.Context, r *models.VoucherRedemption) context.Context {
	return s.logg.WithFields(ctx, map[string]any{
		"voucher_id":     r.ID.String(),
		"voucher_issuer": r.Issuer,
		"voucher_status": string(r.Status),
		"amount":         money.Format(r.Amount),
	})
}

func normalizeIssuer(issuer string) string {
	return strings.ToUpper(strings.TrimSpace(issuer))
}
