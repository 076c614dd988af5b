// Package payments starts externally settled payments: wallet top-ups and
// order payments through a hosted gateway.
package payments

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/angelmondragon/vendorlution-backend/internal/intents"
	"github.com/angelmondragon/vendorlution-backend/internal/orders"
	"github.com/angelmondragon/vendorlution-backend/internal/providers"
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

const (
	bankReferencePrefix = "VDL-"
	bankReferenceMaxLen = 20
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gatewayResolver interface {
	Gateway(provider enums.PaymentProvider) (providers.Gateway, error)
}

type walletReader interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

// Service is the entry point for money that arrives through a provider.
type Service interface {
	StartDeposit(ctx context.Context, userID uuid.UUID, provider enums.PaymentProvider, amount decimal.Decimal) (*StartResult, error)
	StartOrderPayment(ctx context.Context, userID uuid.UUID, provider enums.PaymentProvider, orderID uuid.UUID) (*StartResult, error)
}

// StartResult tells the client where to complete the payment. Reference is
// the transaction reference the provider will echo back.
type StartResult struct {
	IntentID          uuid.UUID      `json:"intent_id"`
	Reference         string         `json:"reference"`
	RedirectURL       string         `json:"redirect_url"`
	ProviderReference string         `json:"provider_reference,omitempty"`
	Payload           map[string]any `json:"payload,omitempty"`
}

type ServiceParams struct {
	DB       txRunner
	Intents  intents.Service
	Orders   orders.Repository
	Wallets  walletReader
	Gateways gatewayResolver
	Logger   *logger.Logger
	Currency string
}

type service struct {
	db       txRunner
	intents  intents.Service
	orders   orders.Repository
	wallets  walletReader
	gateways gatewayResolver
	logg     *logger.Logger
	currency string
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Intents == nil:
		return nil, fmt.Errorf("intents service required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Wallets == nil:
		return nil, fmt.Errorf("wallet reader required")
	case params.Gateways == nil:
		return nil, fmt.Errorf("gateway registry required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "ZAR"
	}
	return &service{
		db:       params.DB,
		intents:  params.Intents,
		orders:   params.Orders,
		wallets:  params.Wallets,
		gateways: params.Gateways,
		logg:     params.Logger,
		currency: currency,
	}, nil
}

func (s *service) StartDeposit(ctx context.Context, userID uuid.UUID, provider enums.PaymentProvider, amount decimal.Decimal) (*StartResult, error) {
	if err := money.RequirePositive(amount); err != nil {
		return nil, err
	}
	gateway, err := s.gateways.Gateway(provider)
	if err != nil {
		return nil, err
	}
	wallet, err := s.wallets.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	intent, err := s.intents.Create(ctx, nil, intents.CreateInput{
		UserID:   userID,
		WalletID: wallet.ID,
		Provider: provider,
		Kind:     enums.IntentKindDeposit,
		Amount:   amount,
		Currency: s.currency,
		Metadata: dbtypes.DepositMetadata(),
	})
	if err != nil {
		return nil, err
	}
	return s.start(ctx, gateway, intent)
}

// StartOrderPayment charges the order total through the provider. The order
// stays PENDING until the provider's notification is reconciled.
func (s *service) StartOrderPayment(ctx context.Context, userID uuid.UUID, provider enums.PaymentProvider, orderID uuid.UUID) (*StartResult, error) {
	gateway, err := s.gateways.Gateway(provider)
	if err != nil {
		return nil, err
	}
	wallet, err := s.wallets.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var intent *models.PaymentIntent
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order.BuyerID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
				WithDetails(map[string]any{"status": order.Status})
		}

		intent, err = s.intents.Create(ctx, tx, intents.CreateInput{
			UserID:   userID,
			WalletID: wallet.ID,
			Provider: provider,
			Kind:     enums.IntentKindPayment,
			Amount:   order.TotalAmount,
			Currency: s.currency,
			Metadata: dbtypes.OrderPaymentMetadata(order.ID),
		})
		if err != nil {
			return err
		}
		if _, err := repo.UpdateOrder(ctx, order.ID, nil, map[string]any{"payment_intent_id": intent.ID}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "link payment intent")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.start(ctx, gateway, intent)
}

// start calls the gateway outside any transaction. A gateway failure fails
// the intent; it is never retried inline.
func (s *service) start(ctx context.Context, gateway providers.Gateway, intent *models.PaymentIntent) (*StartResult, error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"intent_id": intent.ID.String(),
		"provider":  string(intent.Provider),
		"amount":    money.Format(intent.Amount),
	})

	session, err := gateway.CreateCheckout(ctx, providers.CheckoutRequest{
		IntentID:      intent.ID,
		Amount:        intent.Amount,
		Currency:      intent.Currency,
		BankReference: BankReference(intent.ID),
	})
	if err != nil {
		if !pkgerrors.Is(err, pkgerrors.CodeProviderRejected) && !pkgerrors.Is(err, pkgerrors.CodeProviderUnavailable) {
			err = pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "payment provider call failed")
		}
		if _, markErr := s.intents.MarkFailed(ctx, nil, intent.ID, err.Error()); markErr != nil {
			s.logg.Error(logCtx, "failed to mark payment intent failed", markErr)
		}
		s.logg.Warn(logCtx, "payment provider refused checkout")
		return nil, err
	}

	if _, err := s.intents.MarkPending(ctx, nil, intent.ID, session.ProviderReference); err != nil {
		return nil, err
	}
	s.logg.Info(logCtx, "payment started")
	return &StartResult{
		IntentID:          intent.ID,
		Reference:         intent.ID.String(),
		RedirectURL:       session.RedirectURL,
		ProviderReference: session.ProviderReference,
		Payload:           session.Payload,
	}, nil
}

// BankReference is the statement reference shown to the payer: the prefix
// followed by the intent id's alphanumerics, cut to the gateway's twenty
// character limit.
func BankReference(intentID uuid.UUID) string {
	var b strings.Builder
	b.WriteString(bankReferencePrefix)
	for _, r := range intentID.String() {
		if b.Len() == bankReferenceMaxLen {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
