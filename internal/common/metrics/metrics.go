// Package metrics registers the payments collectors on the default prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IntentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_intents_total",
		Help: "Total payment intents by provider and status",
	}, []string{"provider", "status"})

	PaymentAttemptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_attempt_total",
		Help: "Payment attempts by provider and status",
	}, []string{"provider", "status"})

	PayoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_payouts_total",
		Help: "Total payouts by provider and status",
	}, []string{"provider", "status"})

	PayoutTotalPublic = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_total",
		Help: "Payouts by provider and status",
	}, []string{"provider", "status"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payments_provider_latency_seconds",
		Help:    "Provider request latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"provider", "action"})

	WebhookDelay = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payments_webhook_delay_seconds",
		Help:    "Delay between provider event and webhook ingestion",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"provider"})

	PayoutDelay = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payments_payout_delay_seconds",
		Help:    "Delay between payout request and provider response",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"provider", "status"})

	LedgerDrift = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payments_ledger_drift",
		Help: "Ledger drift detected by reconciliation",
	})

	SettlementDriftAmount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_drift_amount",
		Help: "Settlement drift amount in currency units",
	})

	LedgerInvariantFailTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_invariant_fail_total",
		Help: "Ledger invariant failures",
	})

	EscrowHoldTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_hold_total",
		Help: "Escrow holds by state",
	}, []string{"state"})

	ReconciliationLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payments_reconciliation_lag_seconds",
		Help: "Time since last reconciliation",
	})

	FraudAssessmentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_fraud_assessment_total",
		Help: "Fraud assessments by verdict",
	}, []string{"status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "code"})
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
