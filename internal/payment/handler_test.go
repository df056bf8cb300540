package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/middleware"
	"github.com/kmassidik/movegh/internal/governance"
	"github.com/kmassidik/movegh/internal/idempotency"
	"github.com/kmassidik/movegh/internal/ledger"
	"github.com/kmassidik/movegh/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

// MockService implements ServiceInterface for handler tests
type MockService struct {
	CreatePaymentIntentFunc  func(ctx context.Context, in CreateIntentInput, key string, meta idempotency.RequestMeta) (*IntentResponse, error)
	ConfirmPaymentIntentFunc func(ctx context.Context, intentID string, in ConfirmIntentInput, key string, meta idempotency.RequestMeta) (*IntentResponse, error)
	HandleWebhookFunc        func(ctx context.Context, providerName string, headers http.Header, rawBody []byte) (*WebhookResponse, error)
	GetWalletBalancesFunc    func(ctx context.Context, ownerType, ownerID string) (*governance.WalletBalances, error)
}

func (m *MockService) CreatePaymentIntent(ctx context.Context, in CreateIntentInput, key string, meta idempotency.RequestMeta) (*IntentResponse, error) {
	if m.CreatePaymentIntentFunc != nil {
		return m.CreatePaymentIntentFunc(ctx, in, key, meta)
	}
	return nil, fmt.Errorf("CreatePaymentIntentFunc not set")
}

func (m *MockService) ConfirmPaymentIntent(ctx context.Context, intentID string, in ConfirmIntentInput, key string, meta idempotency.RequestMeta) (*IntentResponse, error) {
	if m.ConfirmPaymentIntentFunc != nil {
		return m.ConfirmPaymentIntentFunc(ctx, intentID, in, key, meta)
	}
	return nil, fmt.Errorf("ConfirmPaymentIntentFunc not set")
}

func (m *MockService) HandleWebhook(ctx context.Context, providerName string, headers http.Header, rawBody []byte) (*WebhookResponse, error) {
	if m.HandleWebhookFunc != nil {
		return m.HandleWebhookFunc(ctx, providerName, headers, rawBody)
	}
	return nil, fmt.Errorf("HandleWebhookFunc not set")
}

func (m *MockService) GetWalletBalances(ctx context.Context, ownerType, ownerID string) (*governance.WalletBalances, error) {
	if m.GetWalletBalancesFunc != nil {
		return m.GetWalletBalancesFunc(ctx, ownerType, ownerID)
	}
	return nil, fmt.Errorf("GetWalletBalancesFunc not set")
}

var _ ServiceInterface = (*MockService)(nil)

func newTestMux(svc ServiceInterface) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(svc, "GHS", logger.NewNop()).RegisterRoutes(mux, testJWTSecret)
	return mux
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := middleware.GenerateToken(userID, role, config.JWTConfig{Secret: testJWTSecret})
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(t *testing.T, mux http.Handler, method, path, auth, key string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

// TEST: Create intent endpoint
func TestHandlerCreateIntent(t *testing.T) {
	validBody := map[string]interface{}{
		"tripId":      "trip-1",
		"amount":      "50",
		"provider":    "mock",
		"phoneNumber": "0241234567",
	}

	tests := []struct {
		name           string
		role           string
		key            string
		body           interface{}
		mockError      error
		expectedStatus int
	}{
		{name: "created", role: "rider", key: "k1", body: validBody, expectedStatus: http.StatusCreated},
		{name: "missing idempotency key", role: "rider", body: validBody, expectedStatus: http.StatusBadRequest},
		{name: "driver role rejected", role: "driver", key: "k1", body: validBody, expectedStatus: http.StatusForbidden},
		{
			name: "rider mismatch",
			role: "rider",
			key:  "k1",
			body: map[string]interface{}{
				"tripId": "trip-1", "riderId": "someone-else", "amount": "50", "phoneNumber": "0241234567",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "non-positive amount",
			role:           "rider",
			key:            "k1",
			body:           map[string]interface{}{"tripId": "trip-1", "amount": "0", "phoneNumber": "0241234567"},
			expectedStatus: http.StatusBadRequest,
		},
		{name: "circuit open", role: "rider", key: "k1", body: validBody, mockError: provider.ErrCircuitOpen, expectedStatus: http.StatusServiceUnavailable},
		{name: "internal error hidden", role: "rider", key: "k1", body: validBody, mockError: fmt.Errorf("pq: connection reset"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got CreateIntentInput
			svc := &MockService{
				CreatePaymentIntentFunc: func(ctx context.Context, in CreateIntentInput, key string, meta idempotency.RequestMeta) (*IntentResponse, error) {
					got = in
					if tt.mockError != nil {
						return nil, tt.mockError
					}
					return &IntentResponse{IntentID: "intent-1", Status: StatusCreated, CheckoutInstructions: "Dial"}, nil
				},
			}

			rr := doRequest(t, newTestMux(svc), http.MethodPost, "/v1/payments/intents", bearer(t, "rider-1", tt.role), tt.key, tt.body)
			assert.Equal(t, tt.expectedStatus, rr.Code, rr.Body.String())

			if tt.expectedStatus == http.StatusCreated {
				assert.Equal(t, "rider-1", got.RiderID)
				assert.Equal(t, "GHS", got.Currency)
			}
			if tt.expectedStatus == http.StatusInternalServerError {
				var resp ErrorResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
				assert.Equal(t, "internal error", resp.Error)
			}
		})
	}
}

func TestHandlerCreateIntentRequiresAuth(t *testing.T) {
	rr := doRequest(t, newTestMux(&MockService{}), http.MethodPost, "/v1/payments/intents", "", "k1", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

// TEST: Confirm passes the path id and caller through and maps not found
func TestHandlerConfirmIntent(t *testing.T) {
	svc := &MockService{
		ConfirmPaymentIntentFunc: func(ctx context.Context, intentID string, in ConfirmIntentInput, key string, meta idempotency.RequestMeta) (*IntentResponse, error) {
			if intentID == "missing" {
				return nil, ErrIntentNotFound
			}
			assert.Equal(t, "driver-7", in.DriverID)
			assert.Equal(t, "rider-1", in.RiderID)
			return &IntentResponse{IntentID: intentID, Status: StatusCaptured}, nil
		},
	}
	mux := newTestMux(svc)
	auth := bearer(t, "rider-1", "rider")
	body := map[string]string{"phoneNumber": "0241234567", "driverId": "driver-7", "riderId": "rider-2"}

	rr := doRequest(t, mux, http.MethodPost, "/v1/payments/intents/intent-9/confirm", auth, "c1", body)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp IntentResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "intent-9", resp.IntentID)
	assert.Equal(t, StatusCaptured, resp.Status)

	rr = doRequest(t, mux, http.MethodPost, "/v1/payments/intents/missing/confirm", auth, "c2", body)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(t, mux, http.MethodPost, "/v1/payments/intents/intent-9/confirm", auth, "c3", map[string]string{"phoneNumber": "123"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerGetMyWalletUsesRole(t *testing.T) {
	var owner string
	svc := &MockService{
		GetWalletBalancesFunc: func(ctx context.Context, ownerType, ownerID string) (*governance.WalletBalances, error) {
			owner = ownerType + ":" + ownerID
			return &governance.WalletBalances{Balances: governance.Balances{Available: "0.00", Pending: "0.00", Escrow: "0.00"}}, nil
		},
	}
	mux := newTestMux(svc)

	rr := doRequest(t, mux, http.MethodGet, "/v1/wallets/me", bearer(t, "d-1", "driver"), "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "driver:d-1", owner)

	rr = doRequest(t, mux, http.MethodGet, "/v1/wallets/me", bearer(t, "r-1", "rider"), "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "rider:r-1", owner)
}

// TEST: Webhook receives the raw body and maps signature errors to 400
func TestHandlerWebhook(t *testing.T) {
	raw := []byte(`{"eventId":"e1","intentId":"i1","status":"SUCCESSFUL"}`)
	svc := &MockService{
		HandleWebhookFunc: func(ctx context.Context, providerName string, headers http.Header, rawBody []byte) (*WebhookResponse, error) {
			if headers.Get("X-Mock-Signature") != "ok" {
				return nil, provider.ErrInvalidSignature
			}
			assert.Equal(t, "mtn", providerName)
			assert.Equal(t, raw, rawBody)
			return &WebhookResponse{Received: true, IntentID: "i1", Status: StatusCaptured}, nil
		},
	}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhooks/MTN", bytes.NewReader(raw))
	req.Header.Set("X-Mock-Signature", "ok")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/payments/webhooks/mtn", bytes.NewReader(raw))
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrIntentNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", ledger.ErrInsufficientBalance), http.StatusUnprocessableEntity},
		{ErrRefundExceedsAmount, http.StatusUnprocessableEntity},
		{provider.ErrCircuitOpen, http.StatusServiceUnavailable},
		{ErrUnsupportedProvider, http.StatusBadRequest},
		{ErrIntentNotCaptured, http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := ErrorStatus(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
