package ledger

import (
	"net/http"
)

// RegisterRoutes mounts the read-only ledger endpoints behind the ops guard
func (h *Handler) RegisterRoutes(mux *http.ServeMux, opsAuth func(http.Handler) http.Handler) {
	mux.Handle("GET /v1/ops/ledger/invariant", opsAuth(http.HandlerFunc(h.Invariant)))
	mux.Handle("GET /v1/ops/ledger/transactions/{id}", opsAuth(http.HandlerFunc(h.GetTransactionLedger)))
}
