// Package payouts moves wallet funds off the platform. A request debits the
// wallet immediately; finance settles it with the bank and marks it paid, or
// fails it and the amount is credited back.
package payouts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/vendorlution-backend/internal/wallet"
	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/money"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	SourcePayout       = "payout"
	SourcePayoutRefund = "payout_refund"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Service interface {
	Request(ctx context.Context, userID uuid.UUID, input RequestInput) (*models.PayoutRequest, error)
	Get(ctx context.Context, userID, payoutID uuid.UUID) (*models.PayoutRequest, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PayoutRequest, error)
	ListByStatus(ctx context.Context, status enums.PayoutStatus, limit int) ([]models.PayoutRequest, error)
	MarkProcessing(ctx context.Context, adminID, payoutID uuid.UUID, notes string) (*models.PayoutRequest, error)
	MarkPaid(ctx context.Context, adminID, payoutID uuid.UUID, notes string) (*models.PayoutRequest, error)
	MarkFailed(ctx context.Context, adminID, payoutID uuid.UUID, notes string) (*models.PayoutRequest, error)
}

type RequestInput struct {
	Amount        decimal.Decimal
	BankHolder    string
	BankName      string
	AccountNumber string
	BranchCode    string
	AccountType   enums.BankAccountType
}

type ServiceParams struct {
	DB        txRunner
	Repo      Repository
	Wallets   wallet.Service
	Outbox    outbox.Emitter
	Logger    *logger.Logger
	MinAmount decimal.Decimal
	Now       func() time.Time
}

type service struct {
	db        txRunner
	repo      Repository
	wallets   wallet.Service
	outbox    outbox.Emitter
	logg      *logger.Logger
	minAmount decimal.Decimal
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("payout repository required")
	case params.Wallets == nil:
		return nil, fmt.Errorf("wallet service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case !params.MinAmount.IsPositive():
		return nil, fmt.Errorf("payout minimum must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:        params.DB,
		repo:      params.Repo,
		wallets:   params.Wallets,
		outbox:    params.Outbox,
		logg:      params.Logger,
		minAmount: params.MinAmount,
		now:       now,
	}, nil
}

// Request debits the wallet and queues the payout for finance.
func (s *service) Request(ctx context.Context, userID uuid.UUID, input RequestInput) (*models.PayoutRequest, error) {
	if err := s.validate(&input); err != nil {
		return nil, err
	}
	w, err := s.wallets.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	payout := &models.PayoutRequest{
		ID:            id,
		UserID:        userID,
		WalletID:      w.ID,
		Amount:        input.Amount,
		BankHolder:    input.BankHolder,
		BankName:      input.BankName,
		AccountNumber: input.AccountNumber,
		BranchCode:    input.BranchCode,
		AccountType:   input.AccountType,
		Status:        enums.PayoutPending,
		Reference:     Reference(id),
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payout request")
		}
		if _, err := s.wallets.Debit(ctx, tx, wallet.Posting{
			UserID:         userID,
			Amount:         input.Amount,
			Source:         SourcePayout,
			Reference:      payout.Reference,
			Description:    "Payout request",
			IdempotencyKey: "payout-" + id.String(),
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutRequested,
			AggregateType: enums.AggregatePayout,
			AggregateID:   id,
			Actor:         outbox.Actor(userID, ""),
			Data: payloads.PayoutRequestedEvent{
				PayoutID:  id,
				UserID:    userID,
				Amount:    money.Format(input.Amount),
				Reference: payout.Reference,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.payoutContext(ctx, payout), "payout requested")
	return payout, nil
}

func (s *service) validate(input *RequestInput) error {
	if err := money.RequirePositive(input.Amount); err != nil {
		return err
	}
	if input.Amount.LessThan(s.minAmount) {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount below payout minimum").
			WithDetails(map[string]any{"minimum": money.Format(s.minAmount)})
	}
	input.BankHolder = strings.TrimSpace(input.BankHolder)
	input.BankName = strings.TrimSpace(input.BankName)
	input.AccountNumber = strings.ReplaceAll(strings.TrimSpace(input.AccountNumber), " ", "")
	input.BranchCode = strings.TrimSpace(input.BranchCode)

	missing := []string{}
	if input.BankHolder == "" {
		missing = append(missing, "bank_holder")
	}
	if input.BankName == "" {
		missing = append(missing, "bank_name")
	}
	if input.AccountNumber == "" {
		missing = append(missing, "account_number")
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "bank details incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	if input.AccountType == "" {
		input.AccountType = enums.AccountCheque
	}
	if !input.AccountType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid bank account type").
			WithDetails(map[string]any{"account_type": string(input.AccountType)})
	}
	return nil
}

func (s *service) Get(ctx context.Context, userID, payoutID uuid.UUID) (*models.PayoutRequest, error) {
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		return nil, notFound(err)
	}
	if payout.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	return payout, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.PayoutRequest, error) {
	rows, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payouts")
	}
	return rows, nil
}

func (s *service) ListByStatus(ctx context.Context, status enums.PayoutStatus, limit int) ([]models.PayoutRequest, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout status")
	}
	rows, err := s.repo.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payouts")
	}
	return rows, nil
}

func (s *service) MarkProcessing(ctx context.Context, adminID, payoutID uuid.UUID, notes string) (*models.PayoutRequest, error) {
	return s.transition(ctx, adminID, payoutID, []enums.PayoutStatus{enums.PayoutPending}, enums.PayoutProcessing, notes, nil)
}

func (s *service) MarkPaid(ctx context.Context, adminID, payoutID uuid.UUID, notes string) (*models.PayoutRequest, error) {
	return s.transition(ctx, adminID, payoutID, []enums.PayoutStatus{enums.PayoutProcessing}, enums.PayoutPaid, notes, nil)
}

// MarkFailed returns the debited amount to the wallet.
func (s *service) MarkFailed(ctx context.Context, adminID, payoutID uuid.UUID, notes string) (*models.PayoutRequest, error) {
	from := []enums.PayoutStatus{enums.PayoutPending, enums.PayoutProcessing}
	return s.transition(ctx, adminID, payoutID, from, enums.PayoutFailed, notes, func(tx *gorm.DB, p *models.PayoutRequest) error {
		_, err := s.wallets.Credit(ctx, tx, wallet.Posting{
			UserID:         p.UserID,
			Amount:         p.Amount,
			Source:         SourcePayoutRefund,
			Reference:      p.Reference,
			Description:    "Payout failed",
			IdempotencyKey: "payout-refund-" + p.ID.String(),
		})
		return err
	})
}

func (s *service) transition(ctx context.Context, adminID, payoutID uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, notes string, apply func(tx *gorm.DB, p *models.PayoutRequest) error) (*models.PayoutRequest, error) {
	var payout *models.PayoutRequest
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		payout, err = repo.Lock(ctx, payoutID)
		if err != nil {
			return notFound(err)
		}
		if !allowed(payout.Status, from) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout cannot move to "+string(to)).
				WithDetails(map[string]any{"status": string(payout.Status)})
		}
		if apply != nil {
			if err := apply(tx, payout); err != nil {
				return err
			}
		}
		now := s.now().UTC()
		updates := map[string]any{"status": to, "updated_at": now}
		if trimmed := strings.TrimSpace(notes); trimmed != "" {
			updates["notes"] = trimmed
			payout.Notes = trimmed
		}
		if to == enums.PayoutPaid || to == enums.PayoutFailed {
			updates["processed_at"] = now
			payout.ProcessedAt = &now
		}
		ok, err := repo.Transition(ctx, payout.ID, from, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payout")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout changed concurrently")
		}
		payout.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(s.payoutContext(ctx, payout), "admin_id", adminID.String()), "payout transitioned")
	return payout, nil
}

func (s *service) payoutContext(ctx context.Context, p *models.PayoutRequest) context.Context {
	return s.logg.WithFields(ctx, map[string]any{
		"payout_id":     p.ID.String(),
		"payout_status": string(p.Status),
		"amount":        money.Format(p.Amount),
		"account_last4": Last4(p.AccountNumber),
	})
}

// Reference is the bank-facing reference printed on the payout.
func Reference(id uuid.UUID) string {
	return "PO-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

// Last4 masks an account number down to its final four digits.
func Last4(account string) string {
	if len(account) <= 4 {
		return account
	}
	return account[len(account)-4:]
}

func allowed(status enums.PayoutStatus, from []enums.PayoutStatus) bool {
	for _, candidate := range from {
		if candidate == status {
			return true
		}
	}
	return false
}

func notFound(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payout")
}
