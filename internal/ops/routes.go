package ops

import (
	"net/http"

	"github.com/kmassidik/movegh/internal/common/metrics"
)

// RegisterRoutes mounts the ops endpoints. Health and metrics are open for
// health checks and scrapers; the rest require the ops key.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, opsAuth func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /v1/ops/health", h.Health)
	mux.Handle("GET /v1/ops/metrics", metrics.Handler())

	guarded := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, opsAuth(fn))
	}
	guarded("GET /v1/ops/payments-status", h.PaymentsStatus)
	guarded("GET /v1/ops/settlement-status", h.SettlementStatus)
	guarded("POST /v1/ops/settlement-run", h.RunSettlement)
	guarded("POST /v1/ops/settlement-batches", h.CreateBatch)
	guarded("GET /v1/ops/settlement-batches", h.ListBatches)
	guarded("GET /v1/ops/settlement-batches/{id}/settlements", h.BatchSettlements)
	guarded("POST /v1/ops/settlement-batches/{id}/close", h.CloseBatch)
	guarded("GET /v1/ops/treasury-status", h.TreasuryStatus)
	guarded("POST /v1/ops/treasury-rebalance", h.TreasuryRebalance)
	guarded("GET /v1/ops/finos-report", h.FinOSReport)
	guarded("GET /v1/ops/risk-cases", h.ListRiskCases)
	guarded("POST /v1/ops/risk-cases/{id}/resolve", h.ResolveRiskCase)
	guarded("GET /v1/ops/escrow/open", h.OpenHolds)
	guarded("POST /v1/ops/escrow/{id}/{action}", h.ApplyHoldAction)
	guarded("POST /v1/ops/payments/intents/{id}/refund", h.RefundPayment)
}
