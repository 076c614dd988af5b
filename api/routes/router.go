package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/vendorlution-backend/api/controllers"
	"github.com/angelmondragon/vendorlution-backend/api/middleware"
	"github.com/angelmondragon/vendorlution-backend/internal/cart"
	"github.com/angelmondragon/vendorlution-backend/internal/escrow"
	"github.com/angelmondragon/vendorlution-backend/internal/payments"
	"github.com/angelmondragon/vendorlution-backend/internal/payouts"
	"github.com/angelmondragon/vendorlution-backend/internal/vouchers"
	"github.com/angelmondragon/vendorlution-backend/internal/wallet"
	"github.com/angelmondragon/vendorlution-backend/pkg/config"
	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP db.Pinger,
	idempotencyStore redis.IdempotencyStore,
	gatherer prometheus.Gatherer,
	walletService wallet.Service,
	paymentsService payments.Service,
	voucherService vouchers.Service,
	payoutService payouts.Service,
	cartService cart.Service,
	escrowEngine escrow.Engine,
	reconciler controllers.WebhookReceiver,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/{provider}", controllers.ProviderWebhook(reconciler, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletFetch(walletService, logg))
			r.Get("/entries", controllers.WalletEntries(walletService, logg))
			r.Post("/deposits", controllers.WalletDeposit(paymentsService, logg))
			r.Post("/vouchers", controllers.WalletVoucherSubmit(voucherService, logg))
			r.Get("/payouts", controllers.WalletPayoutList(payoutService, logg))
			r.Post("/payouts", controllers.WalletPayoutRequest(payoutService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleBuyer))
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(cartService, logg))
				r.Post("/items", controllers.CartAddItem(cartService, logg))
				r.Delete("/items/{productID}", controllers.CartRemoveItem(cartService, logg))
			})
			r.Post("/checkout", controllers.Checkout(escrowEngine, logg))
			r.Post("/orders/{orderID}/payments", controllers.OrderPayment(paymentsService, logg))
			r.Post("/orders/{orderID}/confirm-delivery", controllers.OrderConfirmDelivery(escrowEngine, logg))
			r.Post("/orders/{orderID}/disputes", controllers.OrderOpenDispute(escrowEngine, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleSeller))
			r.Post("/orders/{orderID}/shipment", controllers.OrderShipment(escrowEngine, logg))
			r.Post("/orders/{orderID}/shipment/delivered", controllers.OrderShipmentDelivered(escrowEngine, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg))
			r.Post("/disputes/{disputeID}/review", controllers.AdminDisputeReview(escrowEngine, logg))
			r.Post("/disputes/{disputeID}/resolve", controllers.AdminDisputeResolve(escrowEngine, logg))
			r.Get("/vouchers", controllers.AdminVoucherPending(voucherService, logg))
			r.Post("/vouchers/{voucherID}/approve", controllers.AdminVoucherApprove(voucherService, logg))
			r.Post("/vouchers/{voucherID}/reject", controllers.AdminVoucherReject(voucherService, logg))
			r.Get("/payouts", controllers.AdminPayoutList(payoutService, logg))
			r.Post("/payouts/{payoutID}/status", controllers.AdminPayoutStatus(payoutService, logg))
			r.Post("/wallets", controllers.AdminProvisionWallet(walletService, logg))
			r.Get("/wallets/{userID}/verify", controllers.AdminWalletVerify(walletService, logg))
		})
	})

	return r
}
