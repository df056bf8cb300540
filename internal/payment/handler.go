package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/middleware"
	"github.com/kmassidik/movegh/internal/governance"
	"github.com/kmassidik/movegh/internal/idempotency"
	"github.com/kmassidik/movegh/internal/ledger"
	"github.com/kmassidik/movegh/internal/provider"
)

// maxWebhookBody caps the raw body read for signature verification
const maxWebhookBody = 1 << 20

type ServiceInterface interface {
	CreatePaymentIntent(ctx context.Context, in CreateIntentInput, key string, meta idempotency.RequestMeta) (*IntentResponse, error)
	ConfirmPaymentIntent(ctx context.Context, intentID string, in ConfirmIntentInput, key string, meta idempotency.RequestMeta) (*IntentResponse, error)
	HandleWebhook(ctx context.Context, providerName string, headers http.Header, rawBody []byte) (*WebhookResponse, error)
	GetWalletBalances(ctx context.Context, ownerType, ownerID string) (*governance.WalletBalances, error)
}

type Handler struct {
	service         ServiceInterface
	defaultCurrency string
	logger          *logger.Logger
}

func NewHandler(service ServiceInterface, defaultCurrency string, log *logger.Logger) *Handler {
	return &Handler{
		service:         service,
		defaultCurrency: defaultCurrency,
		logger:          log,
	}
}

// CreateIntent handles POST /v1/payments/intents
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	key := NormalizeIdempotencyKey(r.Header.Get("Idempotency-Key"))
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "Idempotency-Key is required")
		return
	}

	var in CreateIntentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := ValidateCreateIntentInput(&in, userID, h.defaultCurrency); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta := RequestMetaFrom(r)
	in.IP = meta.IP

	resp, err := h.service.CreatePaymentIntent(r.Context(), in, key, meta)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, resp)
}

// ConfirmIntent handles POST /v1/payments/intents/{id}/confirm
func (h *Handler) ConfirmIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	intentID := r.PathValue("id")
	if intentID == "" {
		h.respondError(w, http.StatusBadRequest, "intent ID is required")
		return
	}

	key := NormalizeIdempotencyKey(r.Header.Get("Idempotency-Key"))
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "Idempotency-Key is required")
		return
	}

	var in ConfirmIntentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := ValidateConfirmIntentInput(&in); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.RiderID = userID

	resp, err := h.service.ConfirmPaymentIntent(r.Context(), intentID, in, key, RequestMetaFrom(r))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// GetMyWallet handles GET /v1/wallets/me. Drivers see their driver wallet,
// everyone else their rider wallet.
func (h *Handler) GetMyWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ownerType := governance.OwnerRider
	if middleware.GetRoleFromContext(r.Context()) == middleware.RoleDriver {
		ownerType = governance.OwnerDriver
	}

	balances, err := h.service.GetWalletBalances(r.Context(), ownerType, userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, balances)
}

// Webhook handles POST /v1/payments/webhooks/{provider}. The body is kept
// raw so the signature is checked over the exact bytes received.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	providerName := strings.ToLower(r.PathValue("provider"))

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.HandleWebhook(r.Context(), providerName, r.Header, rawBody)
	if err != nil {
		if errors.Is(err, provider.ErrInvalidSignature) ||
			errors.Is(err, provider.ErrInvalidWebhookPayload) ||
			errors.Is(err, ErrUnsupportedProvider) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// ErrorStatus maps a service error to the status code and message returned
// to the caller. Unknown errors become a generic 500.
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrIntentNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, ErrUnsupportedProvider), errors.Is(err, provider.ErrUnsupportedProvider),
		errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrSameAccount):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrIntentNotCaptured):
		return http.StatusConflict, err.Error()
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ErrRefundExceedsAmount):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, provider.ErrCircuitOpen), errors.Is(err, provider.ErrProviderRequestFailure):
		return http.StatusServiceUnavailable, "payment provider unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
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

// RequestMetaFrom collects the audit fields of a request
func RequestMetaFrom(r *http.Request) idempotency.RequestMeta {
	return idempotency.RequestMeta{
		RequestID: middleware.GetRequestIDFromContext(r.Context()),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
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
