package controllers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/vendorlution-backend/api/responses"
	"github.com/angelmondragon/vendorlution-backend/internal/webhooks"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

// WebhookReceiver is satisfied by *webhooks.Reconciler.
type WebhookReceiver interface {
	Receive(ctx context.Context, provider enums.PaymentProvider, in webhooks.Inbound) (*webhooks.Receipt, error)
}

type webhookAck struct {
	Received bool `json:"received"`
}

// ProviderWebhook hands a provider notification to the reconciler. Providers
// always get a 200 unless the delivery could not be logged at all. The
// outcome stays in the webhook log; callers are unauthenticated.
func ProviderWebhook(receiver WebhookReceiver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if receiver == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook receiver unavailable"))
			return
		}
		provider := enums.PaymentProvider(strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider"))))

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			// keep whatever arrived; the reconciler records the parse failure
			if logg != nil {
				logg.Warn(logg.WithField(r.Context(), "provider", string(provider)), "webhook body read truncated")
			}
		}

		_, err = receiver.Receive(r.Context(), provider, webhooks.Inbound{
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, webhookAck{Received: true})
	}
}
