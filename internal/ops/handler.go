package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/middleware"
	"github.com/kmassidik/movegh/internal/escrow"
	"github.com/kmassidik/movegh/internal/idempotency"
	"github.com/kmassidik/movegh/internal/payment"
	"github.com/kmassidik/movegh/internal/settlement"
)

// ServiceInterface defines what the ops handlers need
type ServiceInterface interface {
	Health(ctx context.Context) *HealthReport
	PaymentsStatus(ctx context.Context) (*PaymentsStatus, error)
	SettlementStatus(ctx context.Context) (*SettlementStatus, error)
	RunSettlement(ctx context.Context, in settlement.Input) (*SettlementRunResponse, error)
	CreateBatch(ctx context.Context, in settlement.Input) (string, error)
	ListBatches(ctx context.Context, limit int) ([]settlement.Batch, error)
	BatchSettlements(ctx context.Context, batchID string) ([]settlement.Settlement, error)
	CloseBatch(ctx context.Context, id string) error
	TreasuryStatus(ctx context.Context, currency string) (*TreasuryStatus, error)
	TreasuryRebalance(ctx context.Context) *RebalanceResult
	FinOSReport(ctx context.Context) (*FinOSReport, error)
	ListRiskCases(ctx context.Context) ([]payment.RiskCase, error)
	ResolveRiskCase(ctx context.Context, intentID, action string) (*payment.RiskCase, error)
	OpenHolds(ctx context.Context) ([]escrow.Hold, error)
	ApplyHoldAction(ctx context.Context, holdID, action, reason string) (*escrow.Resolution, error)
	RefundPayment(ctx context.Context, intentID string, in payment.RefundInput, key string, meta idempotency.RequestMeta) (*payment.RefundResponse, error)
}

type Handler struct {
	service ServiceInterface
	logger  *logger.Logger
}

func NewHandler(service ServiceInterface, log *logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

// GET /v1/ops/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.service.Health(r.Context())
	report.RequestID = middleware.GetRequestIDFromContext(r.Context())

	status := http.StatusOK
	if report.Status != StatusOK {
		status = http.StatusServiceUnavailable
	}
	h.respondJSON(w, status, report)
}

// GET /v1/ops/payments-status
func (h *Handler) PaymentsStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.PaymentsStatus(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}

// GET /v1/ops/settlement-status
func (h *Handler) SettlementStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.SettlementStatus(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}

// POST /v1/ops/settlement-run
func (h *Handler) RunSettlement(w http.ResponseWriter, r *http.Request) {
	var in settlement.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.service.RunSettlement(r.Context(), in)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// POST /v1/ops/settlement-batches
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var in settlement.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := h.service.CreateBatch(r.Context(), in)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]string{"batchId": id, "status": settlement.BatchOpen})
}

// GET /v1/ops/settlement-batches?limit=50
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	batches, err := h.service.ListBatches(r.Context(), limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, batches)
}

// GET /v1/ops/settlement-batches/{id}/settlements
func (h *Handler) BatchSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := h.service.BatchSettlements(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, settlements)
}

// POST /v1/ops/settlement-batches/{id}/close
func (h *Handler) CloseBatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.service.CloseBatch(r.Context(), id); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"batchId": id, "status": settlement.BatchClosed})
}

// GET /v1/ops/treasury-status?currency=GHS
func (h *Handler) TreasuryStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.TreasuryStatus(r.Context(), r.URL.Query().Get("currency"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}

// POST /v1/ops/treasury-rebalance
func (h *Handler) TreasuryRebalance(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.TreasuryRebalance(r.Context()))
}

// GET /v1/ops/finos-report
func (h *Handler) FinOSReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.FinOSReport(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, report)
}

// GET /v1/ops/risk-cases
func (h *Handler) ListRiskCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.service.ListRiskCases(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, cases)
}

// POST /v1/ops/risk-cases/{id}/resolve?action=clear|block
func (h *Handler) ResolveRiskCase(w http.ResponseWriter, r *http.Request) {
	rc, err := h.service.ResolveRiskCase(r.Context(), r.PathValue("id"), r.URL.Query().Get("action"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, rc)
}

// GET /v1/ops/escrow/open
func (h *Handler) OpenHolds(w http.ResponseWriter, r *http.Request) {
	holds, err := h.service.OpenHolds(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, holds)
}

// HoldActionInput is the optional body of POST /v1/ops/escrow/{id}/{action}
type HoldActionInput struct {
	Reason string `json:"reason"`
}

// POST /v1/ops/escrow/{id}/{action}
func (h *Handler) ApplyHoldAction(w http.ResponseWriter, r *http.Request) {
	var in HoldActionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.service.ApplyHoldAction(r.Context(), r.PathValue("id"), r.PathValue("action"), strings.TrimSpace(in.Reason))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

// POST /v1/ops/payments/intents/{id}/refund
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	key := payment.NormalizeIdempotencyKey(r.Header.Get("Idempotency-Key"))
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "Idempotency-Key header is required")
		return
	}

	var in payment.RefundInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := payment.ValidateRefundInput(&in); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.RefundPayment(r.Context(), r.PathValue("id"), in, key, payment.RequestMetaFrom(r))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// ErrorStatus extends the payment error mapping with the ops errors
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrRiskCaseNotFound), errors.Is(err, settlement.ErrBatchNotFound),
		errors.Is(err, escrow.ErrHoldNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, escrow.ErrIllegalHoldTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, payment.ErrInvalidResolution), errors.Is(err, escrow.ErrInvalidAction),
		errors.Is(err, settlement.ErrMissingProvider), errors.Is(err, settlement.ErrInvalidPeriod):
		return http.StatusBadRequest, err.Error()
	default:
		return payment.ErrorStatus(err)
	}
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("%s %s failed (request_id=%s): %v",
			r.Method, r.URL.Path, middleware.GetRequestIDFromContext(r.Context()), err)
	}
	h.respondError(w, status, message)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: message})
}
