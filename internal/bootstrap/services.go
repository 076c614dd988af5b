// Package bootstrap assembles the service graph shared by the api and
// cron-worker binaries.
package bootstrap

import (
	"fmt"

	"github.com/angelmondragon/vendorlution-backend/internal/cart"
	"github.com/angelmondragon/vendorlution-backend/internal/catalog"
	"github.com/angelmondragon/vendorlution-backend/internal/escrow"
	"github.com/angelmondragon/vendorlution-backend/internal/intents"
	"github.com/angelmondragon/vendorlution-backend/internal/orders"
	"github.com/angelmondragon/vendorlution-backend/internal/payments"
	"github.com/angelmondragon/vendorlution-backend/internal/payouts"
	"github.com/angelmondragon/vendorlution-backend/internal/providers"
	"github.com/angelmondragon/vendorlution-backend/internal/providers/ozow"
	"github.com/angelmondragon/vendorlution-backend/internal/providers/peach"
	"github.com/angelmondragon/vendorlution-backend/internal/vouchers"
	"github.com/angelmondragon/vendorlution-backend/internal/wallet"
	"github.com/angelmondragon/vendorlution-backend/internal/webhooks"
	"github.com/angelmondragon/vendorlution-backend/pkg/config"
	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/metrics"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox"
	"github.com/angelmondragon/vendorlution-backend/pkg/redis"
)

type Params struct {
	Config  *config.Config
	DB      *db.Client
	Redis   *redis.Client
	Metrics *metrics.MoneyMetrics
	Logger  *logger.Logger
}

// Services holds every domain service a binary may expose.
type Services struct {
	Wallets    wallet.Service
	Intents    intents.Service
	Payments   payments.Service
	Vouchers   vouchers.Service
	Payouts    payouts.Service
	Cart       cart.Service
	Escrow     escrow.Engine
	Reconciler *webhooks.Reconciler
	Outbox     *outbox.Repository
	Providers  *providers.Registry
}

func Build(p Params) (*Services, error) {
	switch {
	case p.Config == nil:
		return nil, fmt.Errorf("config required")
	case p.DB == nil:
		return nil, fmt.Errorf("db client required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	cfg := p.Config
	conn := p.DB.DB()

	registry, err := buildProviders(cfg, p.Logger)
	if err != nil {
		return nil, err
	}

	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, p.Logger)

	walletSvc, err := wallet.NewService(wallet.ServiceParams{
		Repo:     wallet.NewRepository(conn),
		DB:       p.DB,
		Logger:   p.Logger,
		Metrics:  p.Metrics,
		Currency: cfg.Escrow.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("wallet service: %w", err)
	}

	intentSvc, err := intents.NewService(intents.ServiceParams{
		Repo:   intents.NewRepository(conn),
		Logger: p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("intent service: %w", err)
	}

	ordersRepo := orders.NewRepository(conn)
	catalogRepo := catalog.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)

	paymentSvc, err := payments.NewService(payments.ServiceParams{
		DB:       p.DB,
		Intents:  intentSvc,
		Orders:   ordersRepo,
		Wallets:  walletSvc,
		Gateways: registry,
		Logger:   p.Logger,
		Currency: cfg.Escrow.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}

	cartSvc, err := cart.NewService(cartRepo, catalogRepo)
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}

	engine, err := escrow.NewEngine(escrow.EngineParams{
		DB:       p.DB,
		Orders:   ordersRepo,
		Catalog:  catalogRepo,
		Cart:     cartRepo,
		Wallets:  walletSvc,
		Payments: paymentSvc,
		Outbox:   emitter,
		Logger:   p.Logger,
		Metrics:  p.Metrics,
		Config:   cfg.Escrow,
	})
	if err != nil {
		return nil, fmt.Errorf("escrow engine: %w", err)
	}

	reconcilerParams := webhooks.ReconcilerParams{
		DB:       p.DB,
		Logs:     webhooks.NewLogRepository(conn),
		Adapters: registry,
		Intents:  intentSvc,
		Wallets:  walletSvc,
		Escrow:   engine,
		Outbox:   emitter,
		Metrics:  p.Metrics,
		Logger:   p.Logger,
	}
	if p.Redis != nil {
		reconcilerParams.Dedupe = p.Redis
	}
	reconciler, err := webhooks.NewReconciler(reconcilerParams)
	if err != nil {
		return nil, fmt.Errorf("webhook reconciler: %w", err)
	}

	voucherSvc, err := vouchers.NewService(vouchers.ServiceParams{
		DB:      p.DB,
		Repo:    vouchers.NewRepository(conn),
		Intents: intentSvc,
		Wallets: walletSvc,
		Logger:  p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("voucher service: %w", err)
	}

	payoutSvc, err := payouts.NewService(payouts.ServiceParams{
		DB:        p.DB,
		Repo:      payouts.NewRepository(conn),
		Wallets:   walletSvc,
		Outbox:    emitter,
		Logger:    p.Logger,
		MinAmount: cfg.Payouts.MinAmount,
	})
	if err != nil {
		return nil, fmt.Errorf("payout service: %w", err)
	}

	return &Services{
		Wallets:    walletSvc,
		Intents:    intentSvc,
		Payments:   paymentSvc,
		Vouchers:   voucherSvc,
		Payouts:    payoutSvc,
		Cart:       cartSvc,
		Escrow:     engine,
		Reconciler: reconciler,
		Outbox:     outboxRepo,
		Providers:  registry,
	}, nil
}

// buildProviders registers every gateway whose credentials are configured.
func buildProviders(cfg *config.Config, logg *logger.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry()
	if cfg.Ozow.Enabled() {
		client, err := ozow.NewClient(cfg.Ozow, logg, ozow.AllowUnsigned(!cfg.App.IsProd()))
		if err != nil {
			return nil, fmt.Errorf("ozow client: %w", err)
		}
		registry.RegisterGateway(client)
		registry.RegisterWebhook(client)
	}
	if cfg.Peach.Enabled() {
		client, err := peach.NewClient(cfg.Peach, logg)
		if err != nil {
			return nil, fmt.Errorf("peach client: %w", err)
		}
		registry.RegisterGateway(client)
		registry.RegisterWebhook(client)
	}
	return registry, nil
}
