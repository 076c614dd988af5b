package intents

import (
	"context"
	"fmt"
	"strings"
	"time"

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

// Service tracks payment intents from creation to exactly one terminal state.
// Every transition takes an optional tx; a nil tx runs on the base handle.
type Service interface {
	Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.PaymentIntent, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	Lock(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.PaymentIntent, error)
	FindByProviderReference(ctx context.Context, provider enums.PaymentProvider, reference string) (*models.PaymentIntent, error)

	MarkPending(ctx context.Context, tx *gorm.DB, id uuid.UUID, providerReference string) (bool, error)
	MarkSucceeded(ctx context.Context, tx *gorm.DB, id uuid.UUID, providerReference string) (bool, error)
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) (bool, error)
	MarkCancelled(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) (bool, error)

	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]models.PaymentIntent, error)
}

// CreateInput describes a new intent.
type CreateInput struct {
	UserID   uuid.UUID
	WalletID uuid.UUID
	Provider enums.PaymentProvider
	Kind     enums.IntentKind
	Amount   decimal.Decimal
	Currency string
	Metadata dbtypes.IntentMetadata
}

type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

var openStatuses = []enums.IntentStatus{enums.IntentStatusCreated, enums.IntentStatusPending}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("intent repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: params.Repo, logg: params.Logger, now: now}, nil
}

func (s *service) Create(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.PaymentIntent, error) {
	if err := money.RequirePositive(input.Amount); err != nil {
		return nil, err
	}
	if input.UserID == uuid.Nil || input.WalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent owner and wallet are required")
	}
	if !input.Provider.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported provider %q", input.Provider)
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported intent kind %q", input.Kind)
	}
	if input.Metadata.Purpose == "" {
		input.Metadata = dbtypes.DepositMetadata()
	}
	if _, isOrder := input.Metadata.Order(); isOrder != (input.Kind == enums.IntentKindPayment) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order payments and only order payments carry an order id")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "ZAR"
	}

	intent := &models.PaymentIntent{
		ID:       uuid.New(),
		UserID:   input.UserID,
		WalletID: input.WalletID,
		Provider: input.Provider,
		Kind:     input.Kind,
		Amount:   input.Amount,
		Currency: currency,
		Status:   enums.IntentStatusCreated,
		Metadata: input.Metadata,
	}
	if err := s.repo.WithTx(tx).Create(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment intent")
	}
	s.logg.Info(s.intentContext(ctx, intent.ID, intent.Status), "payment intent created")
	return intent, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	intent, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return intent, nil
}

// Lock reads the intent under a row lock inside tx.
func (s *service) Lock(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.PaymentIntent, error) {
	if tx == nil {
		return nil, fmt.Errorf("Lock requires a transaction")
	}
	intent, err := s.repo.WithTx(tx).LockByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return intent, nil
}

func (s *service) FindByProviderReference(ctx context.Context, provider enums.PaymentProvider, reference string) (*models.PaymentIntent, error) {
	intent, err := s.repo.FindByProviderReference(ctx, provider, reference)
	if err != nil {
		return nil, notFound(err)
	}
	return intent, nil
}

// MarkPending records the gateway's acceptance. Only a CREATED intent moves.
func (s *service) MarkPending(ctx context.Context, tx *gorm.DB, id uuid.UUID, providerReference string) (bool, error) {
	updates := map[string]any{"status": enums.IntentStatusPending, "updated_at": s.now().UTC()}
	if ref := strings.TrimSpace(providerReference); ref != "" {
		updates["provider_reference"] = ref
	}
	return s.transition(ctx, tx, id, []enums.IntentStatus{enums.IntentStatusCreated}, enums.IntentStatusPending, updates)
}

func (s *service) MarkSucceeded(ctx context.Context, tx *gorm.DB, id uuid.UUID, providerReference string) (bool, error) {
	now := s.now().UTC()
	updates := map[string]any{"status": enums.IntentStatusSucceeded, "completed_at": now, "updated_at": now}
	if ref := strings.TrimSpace(providerReference); ref != "" {
		updates["provider_reference"] = ref
	}
	return s.transition(ctx, tx, id, openStatuses, enums.IntentStatusSucceeded, updates)
}

func (s *service) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) (bool, error) {
	return s.terminate(ctx, tx, id, enums.IntentStatusFailed, reason)
}

func (s *service) MarkCancelled(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) (bool, error) {
	return s.terminate(ctx, tx, id, enums.IntentStatusCancelled, reason)
}

func (s *service) terminate(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.IntentStatus, reason string) (bool, error) {
	now := s.now().UTC()
	updates := map[string]any{"status": status, "completed_at": now, "updated_at": now}
	if reason = strings.TrimSpace(reason); reason != "" {
		updates["failure_reason"] = reason
	}
	return s.transition(ctx, tx, id, openStatuses, status, updates)
}

// transition is a guarded update: a terminal intent is left untouched and the
// call reports false instead of failing, so duplicate deliveries are no-ops.
func (s *service) transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, from []enums.IntentStatus, to enums.IntentStatus, updates map[string]any) (bool, error) {
	repo := s.repo.WithTx(tx)
	changed, err := repo.Transition(ctx, id, from, updates)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment intent")
	}
	logCtx := s.intentContext(ctx, id, to)
	if !changed {
		if _, err := repo.FindByID(ctx, id); err != nil {
			return false, notFound(err)
		}
		s.logg.Info(logCtx, "payment intent transition skipped")
		return false, nil
	}
	s.logg.Info(logCtx, "payment intent transitioned")
	return true, nil
}

func (s *service) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]models.PaymentIntent, error) {
	if olderThan <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stale window must be positive")
	}
	rows, err := s.repo.ListOpenBefore(ctx, s.now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stale intents")
	}
	return rows, nil
}

func (s *service) intentContext(ctx context.Context, id uuid.UUID, status enums.IntentStatus) context.Context {
	return s.logg.WithFields(ctx, map[string]any{
		"intent_id":     id.String(),
		"intent_status": string(status),
	})
}

func notFound(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeUnknownReference, "payment intent not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup payment intent")
}
