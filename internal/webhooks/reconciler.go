// Package webhooks reconciles provider notifications against payment intents.
// Every delivery is logged before it is looked at, and the intent's terminal
// status is the idempotency boundary for redelivered notifications.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/vendorlution-backend/internal/escrow"
	"github.com/angelmondragon/vendorlution-backend/internal/intents"
	"github.com/angelmondragon/vendorlution-backend/internal/providers"
	"github.com/angelmondragon/vendorlution-backend/internal/wallet"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/money"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox"
	"github.com/angelmondragon/vendorlution-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultDedupeTTL = 24 * time.Hour

var errAlreadyTerminal = errors.New("payment intent already terminal")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type adapterResolver interface {
	Webhook(provider enums.PaymentProvider) (providers.WebhookAdapter, error)
}

type orderHolder interface {
	HoldForOrder(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent) (*models.Order, error)
}

// dedupeStore is the redis pre-filter. The reconciler is correct without it.
type dedupeStore interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	WebhookKey(provider, reference, status string) string
	Del(ctx context.Context, keys ...string) error
}

type webhookMetrics interface {
	IncWebhook(provider, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) IncWebhook(string, string) {}

// Inbound is one HTTP delivery as received.
type Inbound struct {
	Path   string
	Header http.Header
	Body   []byte
}

// Receipt reports what became of a delivery.
type Receipt struct {
	LogID    uuid.UUID            `json:"webhook_log_id"`
	Outcome  enums.WebhookOutcome `json:"outcome"`
	IntentID *uuid.UUID           `json:"intent_id,omitempty"`
	Notes    string               `json:"notes,omitempty"`
}

type ReconcilerParams struct {
	DB        txRunner
	Logs      LogRepository
	Adapters  adapterResolver
	Intents   intents.Service
	Wallets   wallet.Service
	Escrow    orderHolder
	Outbox    outbox.Emitter
	Dedupe    dedupeStore
	DedupeTTL time.Duration
	Metrics   webhookMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type Reconciler struct {
	db        txRunner
	logs      LogRepository
	adapters  adapterResolver
	intents   intents.Service
	wallets   wallet.Service
	escrow    orderHolder
	outbox    outbox.Emitter
	dedupe    dedupeStore
	dedupeTTL time.Duration
	metrics   webhookMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logs == nil:
		return nil, fmt.Errorf("webhook log repository required")
	case params.Adapters == nil:
		return nil, fmt.Errorf("provider registry required")
	case params.Intents == nil:
		return nil, fmt.Errorf("intent service required")
	case params.Wallets == nil:
		return nil, fmt.Errorf("wallet service required")
	case params.Escrow == nil:
		return nil, fmt.Errorf("escrow engine required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	metrics := params.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	ttl := params.DedupeTTL
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		db:        params.DB,
		logs:      params.Logs,
		adapters:  params.Adapters,
		intents:   params.Intents,
		wallets:   params.Wallets,
		escrow:    params.Escrow,
		outbox:    params.Outbox,
		dedupe:    params.Dedupe,
		dedupeTTL: ttl,
		metrics:   metrics,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Receive reconciles one delivery. The only error it returns is a failure to
// write the audit log; every other problem is recorded on the log row and
// reported through the receipt so the provider still gets a 200.
func (r *Reconciler) Receive(ctx context.Context, provider enums.PaymentProvider, in Inbound) (*Receipt, error) {
	entry := &models.WebhookLog{
		ID:         uuid.New(),
		Provider:   string(provider),
		Path:       in.Path,
		Headers:    encodeHeaders(in.Header),
		RawBody:    in.Body,
		Payload:    decodePayload(in.Body),
		Outcome:    enums.WebhookReceived,
		StatusCode: http.StatusOK,
	}
	if err := r.logs.Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist webhook log")
	}

	ctx = r.logg.WithFields(ctx, map[string]any{
		"provider":       string(provider),
		"webhook_log_id": entry.ID.String(),
	})
	receipt := r.reconcile(ctx, provider, entry, in)
	r.finish(ctx, provider, entry, receipt)
	return receipt, nil
}

func (r *Reconciler) reconcile(ctx context.Context, provider enums.PaymentProvider, entry *models.WebhookLog, in Inbound) *Receipt {
	receipt := &Receipt{LogID: entry.ID}
	outcome := func(o enums.WebhookOutcome, notes string) *Receipt {
		receipt.Outcome = o
		receipt.Notes = notes
		return receipt
	}

	adapter, err := r.adapters.Webhook(provider)
	if err != nil {
		return outcome(enums.WebhookError, err.Error())
	}
	n, err := adapter.ParseNotification(in.Body, in.Header)
	if err != nil {
		return outcome(enums.WebhookError, err.Error())
	}

	reference := strings.TrimSpace(n.TransactionReference)
	providerReference := strings.TrimSpace(n.ProviderReference)
	updates := map[string]any{}
	if reference != "" {
		updates["transaction_reference"] = reference
	}
	if n.RawStatus != "" {
		updates["provider_status"] = n.RawStatus
	}
	if len(updates) > 0 {
		if err := r.logs.Update(ctx, entry.ID, updates); err != nil {
			r.logg.Error(ctx, "failed to annotate webhook log", err)
		}
	}
	if reference == "" && providerReference == "" {
		return outcome(enums.WebhookMissingReference, "notification carries no transaction reference")
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"transaction_reference": reference,
		"provider_reference":    providerReference,
	})

	intent, err := r.resolveIntent(ctx, provider, reference, providerReference)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeUnknownReference) {
			return outcome(enums.WebhookUnknownReference, "no payment intent for reference")
		}
		return outcome(enums.WebhookError, err.Error())
	}
	receipt.IntentID = &intent.ID
	ctx = r.logg.WithField(ctx, "intent_id", intent.ID.String())

	if intent.Status.IsTerminal() {
		return outcome(enums.WebhookAlreadyProcessed, fmt.Sprintf("intent already %s", intent.Status))
	}
	if intent.Provider != provider {
		return outcome(enums.WebhookRejectedSignature, fmt.Sprintf("intent belongs to provider %s", intent.Provider))
	}

	auth, err := adapter.Authenticate(ctx, n)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeInvalidSignature) {
			r.logg.Warn(ctx, "webhook signature rejected")
			return outcome(enums.WebhookRejectedSignature, err.Error())
		}
		return outcome(enums.WebhookError, err.Error())
	}
	notes := ""
	if auth == providers.AuthUnsigned {
		notes = "accepted without signature verification"
	}
	if reference == "" && n.TransactionReference != "" {
		if err := r.logs.Update(ctx, entry.ID, map[string]any{"transaction_reference": n.TransactionReference}); err != nil {
			r.logg.Error(ctx, "failed to annotate webhook log", err)
		}
	}

	// Only authenticated deliveries may claim the dedupe key.
	dedupeKey, duplicate := r.markDelivery(ctx, provider, intent.ID.String(), n.RawStatus)
	if duplicate {
		return outcome(enums.WebhookAlreadyProcessed, "duplicate delivery")
	}
	forget := func() {
		if dedupeKey != "" {
			if err := r.dedupe.Del(ctx, dedupeKey); err != nil {
				r.logg.Warn(ctx, "failed to clear webhook dedupe key")
			}
		}
	}

	switch n.Outcome {
	case providers.OutcomeSuccess:
		if n.Amount != nil && !n.Amount.Equal(intent.Amount) {
			forget()
			return outcome(enums.WebhookError, fmt.Sprintf("amount %s does not match intent amount %s", money.Format(*n.Amount), money.Format(intent.Amount)))
		}
		if err := r.applySuccess(ctx, intent.ID, n); err != nil {
			if errors.Is(err, errAlreadyTerminal) {
				return outcome(enums.WebhookAlreadyProcessed, "intent completed concurrently")
			}
			forget()
			return outcome(enums.WebhookError, err.Error())
		}
		return outcome(enums.WebhookProcessed, joinNotes(notes, "payment applied"))
	case providers.OutcomeFailed, providers.OutcomeCancelled:
		mark := r.intents.MarkFailed
		if n.Outcome == providers.OutcomeCancelled {
			mark = r.intents.MarkCancelled
		}
		changed, err := mark(ctx, nil, intent.ID, fmt.Sprintf("%s reported %s", provider, n.RawStatus))
		if err != nil {
			forget()
			return outcome(enums.WebhookError, err.Error())
		}
		if !changed {
			return outcome(enums.WebhookAlreadyProcessed, "intent completed concurrently")
		}
		return outcome(enums.WebhookProcessed, joinNotes(notes, fmt.Sprintf("intent %s", n.Outcome)))
	default:
		forget()
		return outcome(enums.WebhookIgnoredPending, fmt.Sprintf("provider status %q has no transition", n.RawStatus))
	}
}

// applySuccess moves the money and the intent's terminal status in one
// transaction.
func (r *Reconciler) applySuccess(ctx context.Context, intentID uuid.UUID, n *providers.Notification) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		intent, err := r.intents.Lock(ctx, tx, intentID)
		if err != nil {
			return err
		}
		if intent.Status.IsTerminal() {
			return errAlreadyTerminal
		}

		if _, isOrder := intent.Metadata.Order(); isOrder {
			if _, err := r.escrow.HoldForOrder(ctx, tx, intent); err != nil {
				return err
			}
		} else {
			result, err := r.wallets.Credit(ctx, tx, wallet.Posting{
				UserID:         intent.UserID,
				WalletID:       intent.WalletID,
				Amount:         intent.Amount,
				Source:         escrow.SourceDeposit,
				Reference:      intent.ID.String(),
				Description:    fmt.Sprintf("%s deposit", intent.Provider),
				IdempotencyKey: "intent-" + intent.ID.String(),
			})
			if err != nil {
				return err
			}
			if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventWalletCredited,
				AggregateType: enums.AggregateWallet,
				AggregateID:   result.Wallet.ID,
				Data: payloads.WalletCreditedEvent{
					WalletID:  result.Wallet.ID,
					UserID:    intent.UserID,
					Amount:    money.Format(intent.Amount),
					Provider:  intent.Provider,
					Reference: intent.ID.String(),
				},
			}); err != nil {
				return err
			}
		}

		changed, err := r.intents.MarkSucceeded(ctx, tx, intent.ID, n.ProviderReference)
		if err != nil {
			return err
		}
		if !changed {
			return errAlreadyTerminal
		}
		return nil
	})
}

// resolveIntent maps the echoed transaction reference to an intent, falling
// back to the gateway's own reference for providers that only send that.
func (r *Reconciler) resolveIntent(ctx context.Context, provider enums.PaymentProvider, reference, providerReference string) (*models.PaymentIntent, error) {
	if id, err := uuid.Parse(reference); err == nil {
		intent, err := r.intents.Get(ctx, id)
		if err == nil || !pkgerrors.Is(err, pkgerrors.CodeUnknownReference) {
			return intent, err
		}
	}
	for _, candidate := range []string{providerReference, reference} {
		if candidate = strings.TrimSpace(candidate); candidate == "" {
			continue
		}
		intent, err := r.intents.FindByProviderReference(ctx, provider, candidate)
		if err == nil || !pkgerrors.Is(err, pkgerrors.CodeUnknownReference) {
			return intent, err
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeUnknownReference, "payment intent not found")
}

func (r *Reconciler) markDelivery(ctx context.Context, provider enums.PaymentProvider, reference, status string) (string, bool) {
	if r.dedupe == nil {
		return "", false
	}
	key := r.dedupe.WebhookKey(string(provider), reference, status)
	first, err := r.dedupe.MarkOnce(ctx, key, r.dedupeTTL)
	if err != nil {
		r.logg.Warn(ctx, "webhook dedupe unavailable; continuing without it")
		return "", false
	}
	return key, !first
}

func (r *Reconciler) finish(ctx context.Context, provider enums.PaymentProvider, entry *models.WebhookLog, receipt *Receipt) {
	processedAt := r.now().UTC()
	if err := r.logs.Update(ctx, entry.ID, map[string]any{
		"outcome":      receipt.Outcome,
		"notes":        receipt.Notes,
		"processed_at": processedAt,
	}); err != nil {
		r.logg.Error(ctx, "failed to record webhook outcome", err)
	}
	r.metrics.IncWebhook(string(provider), string(receipt.Outcome))

	logCtx := r.logg.WithField(ctx, "outcome", string(receipt.Outcome))
	if receipt.Outcome == enums.WebhookError {
		r.logg.Warn(r.logg.WithField(logCtx, "notes", receipt.Notes), "webhook reconciliation failed")
		return
	}
	r.logg.Info(logCtx, "webhook reconciled")
}

func encodeHeaders(header http.Header) json.RawMessage {
	if len(header) == 0 {
		return nil
	}
	flat := make(map[string]string, len(header))
	for key, values := range header {
		if strings.EqualFold(key, "Authorization") || strings.EqualFold(key, "Cookie") {
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return nil
	}
	return raw
}

// decodePayload keeps a JSON view of the body when one exists. Form bodies
// are converted; anything else is only kept raw.
func decodePayload(body []byte) json.RawMessage {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	values, err := url.ParseQuery(trimmed)
	if err != nil || len(values) == 0 {
		return nil
	}
	flat := make(map[string]string, len(values))
	for key := range values {
		flat[key] = values.Get(key)
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return nil
	}
	return raw
}

func joinNotes(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "; ")
}
