// Package providers defines the contracts every external payment gateway
// adapter implements and a registry that resolves the adapter for a provider
// once, at the call site.
package providers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckoutRequest is what the payment layer asks a gateway to collect.
type CheckoutRequest struct {
	IntentID      uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	BankReference string
	Customer      string
	Optional      [5]string
}

// TransactionReference is the provider-facing correlation token.
func (r CheckoutRequest) TransactionReference() string {
	return r.IntentID.String()
}

// CheckoutSession is the gateway's answer: where to send the user and the
// gateway's own id for the attempt.
type CheckoutSession struct {
	RedirectURL       string
	ProviderReference string
	Payload           map[string]any
}

// Gateway starts hosted payments.
type Gateway interface {
	Provider() enums.PaymentProvider
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// Outcome is the provider-neutral result a notification reports.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomePending   Outcome = "pending"
	OutcomeUnknown   Outcome = "unknown"
)

// Notification is an inbound webhook reduced to what reconciliation needs.
// Fields holds the raw provider values used for signature checks.
type Notification struct {
	Provider             enums.PaymentProvider
	TransactionReference string
	ProviderReference    string
	RawStatus            string
	Outcome              Outcome
	Amount               *decimal.Decimal
	Signature            string
	Fields               map[string]string
}

// Authentication records how a notification's authenticity was established.
type Authentication string

const (
	AuthVerified Authentication = "verified"
	// AuthUnsigned means no shared secret is configured and the adapter was
	// allowed to accept the payload anyway. Never granted in production.
	AuthUnsigned Authentication = "unsigned"
)

// WebhookAdapter parses and authenticates inbound notifications.
type WebhookAdapter interface {
	Provider() enums.PaymentProvider
	ParseNotification(body []byte, header http.Header) (*Notification, error)
	Authenticate(ctx context.Context, n *Notification) (Authentication, error)
}

// Registry resolves adapters by provider.
type Registry struct {
	gateways map[enums.PaymentProvider]Gateway
	webhooks map[enums.PaymentProvider]WebhookAdapter
}

func NewRegistry() *Registry {
	return &Registry{
		gateways: make(map[enums.PaymentProvider]Gateway),
		webhooks: make(map[enums.PaymentProvider]WebhookAdapter),
	}
}

func (r *Registry) RegisterGateway(g Gateway) {
	if g != nil {
		r.gateways[g.Provider()] = g
	}
}

func (r *Registry) RegisterWebhook(w WebhookAdapter) {
	if w != nil {
		r.webhooks[w.Provider()] = w
	}
}

func (r *Registry) Gateway(provider enums.PaymentProvider) (Gateway, error) {
	if g, ok := r.gateways[provider]; ok {
		return g, nil
	}
	return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "payment provider %q is not available", provider)
}

func (r *Registry) Webhook(provider enums.PaymentProvider) (WebhookAdapter, error) {
	if w, ok := r.webhooks[provider]; ok {
		return w, nil
	}
	return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "no webhook handler for provider %q", provider)
}
