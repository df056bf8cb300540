package payout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/middleware"
	"github.com/kmassidik/movegh/internal/idempotency"
	"github.com/kmassidik/movegh/internal/payment"
)

type ServiceInterface interface {
	RequestPayout(ctx context.Context, driverID string, in PayoutInput, key string, meta idempotency.RequestMeta) (*PayoutResponse, error)
	GetPayout(ctx context.Context, id string) (*Payout, error)
}

type Handler struct {
	service ServiceInterface
	logger  *logger.Logger
}

func NewHandler(service ServiceInterface, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

// RequestPayout handles POST /v1/payouts
func (h *Handler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	driverID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "Idempotency-Key is required")
		return
	}

	var in PayoutInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := ValidatePayoutInput(&in); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.RequestPayout(r.Context(), driverID, in, key, payment.RequestMetaFrom(r))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, resp)
}

// GetPayout handles GET /v1/payouts/{id}; drivers only see their own
func (h *Handler) GetPayout(w http.ResponseWriter, r *http.Request) {
	driverID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	p, err := h.service.GetPayout(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if p.DriverID != driverID {
		h.respondError(w, http.StatusNotFound, ErrPayoutNotFound.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, p)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrPayoutInProgress):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrPayoutNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	default:
		status, message := payment.ErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Errorf("%s %s failed (request_id=%s): %v",
				r.Method, r.URL.Path, middleware.GetRequestIDFromContext(r.Context()), err)
		}
		h.respondError(w, status, message)
	}
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
