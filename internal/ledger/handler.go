package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ServiceInterface is what the ops ledger endpoints need
type ServiceInterface interface {
	InvariantCheck(ctx context.Context) ([]string, error)
	GetTransactionLedger(ctx context.Context, txnID string) (*TransactionLedger, error)
}

type Handler struct {
	service ServiceInterface
}

func NewHandler(service ServiceInterface) *Handler {
	return &Handler{service: service}
}

// GET /v1/ops/ledger/invariant
func (h *Handler) Invariant(w http.ResponseWriter, r *http.Request) {
	violations, err := h.service.InvariantCheck(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if violations == nil {
		violations = []string{}
	}

	h.respondJSON(w, http.StatusOK, InvariantReport{
		Violations: violations,
		CheckedAt:  time.Now().UTC(),
	})
}

// GET /v1/ops/ledger/transactions/{id}
func (h *Handler) GetTransactionLedger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	txn, err := h.service.GetTransactionLedger(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "transaction not found")
		return
	}

	h.respondJSON(w, http.StatusOK, txn)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: message})
}
