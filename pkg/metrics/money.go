package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MoneyMetrics counts ledger postings and webhook reconciliation outcomes.
type MoneyMetrics struct {
	postings *prometheus.CounterVec
	replays  *prometheus.CounterVec
	webhooks *prometheus.CounterVec
	releases *prometheus.CounterVec
}

// NewMoneyMetrics registers the ledger and webhook collectors on reg.
func NewMoneyMetrics(reg prometheus.Registerer) *MoneyMetrics {
	if reg == nil {
		return &MoneyMetrics{}
	}
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "ledger_postings_total",
		Help:      "Ledger entries written, by entry type and source.",
	}, []string{"type", "source"})
	replays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "ledger_idempotent_replays_total",
		Help:      "Ledger operations answered from an existing idempotency key.",
	}, []string{"type"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "webhook_outcomes_total",
		Help:      "Provider webhook deliveries by reconciliation outcome.",
	}, []string{"provider", "outcome"})
	releases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "escrow_settlements_total",
		Help:      "Escrow settlements by trigger.",
	}, []string{"trigger"})
	reg.MustRegister(postings, replays, webhooks, releases)
	return &MoneyMetrics{
		postings: postings,
		replays:  replays,
		webhooks: webhooks,
		releases: releases,
	}
}

func (m *MoneyMetrics) IncPosting(entryType, source string) {
	if m == nil || m.postings == nil {
		return
	}
	m.postings.WithLabelValues(normalizeLabel(entryType), normalizeLabel(source)).Inc()
}

func (m *MoneyMetrics) IncReplay(entryType string) {
	if m == nil || m.replays == nil {
		return
	}
	m.replays.WithLabelValues(normalizeLabel(entryType)).Inc()
}

func (m *MoneyMetrics) IncWebhook(provider, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

func (m *MoneyMetrics) IncSettlement(trigger string) {
	if m == nil || m.releases == nil {
		return
	}
	m.releases.WithLabelValues(normalizeLabel(trigger)).Inc()
}
