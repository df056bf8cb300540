package payout

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/middleware"
	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/kmassidik/movegh/internal/idempotency"
	"github.com/kmassidik/movegh/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockService implements ServiceInterface for handler tests
type MockService struct {
	RequestPayoutFunc func(ctx context.Context, driverID string, in PayoutInput, key string, meta idempotency.RequestMeta) (*PayoutResponse, error)
	GetPayoutFunc     func(ctx context.Context, id string) (*Payout, error)
}

func (m *MockService) RequestPayout(ctx context.Context, driverID string, in PayoutInput, key string, meta idempotency.RequestMeta) (*PayoutResponse, error) {
	if m.RequestPayoutFunc != nil {
		return m.RequestPayoutFunc(ctx, driverID, in, key, meta)
	}
	return nil, fmt.Errorf("RequestPayoutFunc not set")
}

func (m *MockService) GetPayout(ctx context.Context, id string) (*Payout, error) {
	if m.GetPayoutFunc != nil {
		return m.GetPayoutFunc(ctx, id)
	}
	return nil, fmt.Errorf("GetPayoutFunc not set")
}

var _ ServiceInterface = (*MockService)(nil)

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := middleware.GenerateToken(userID, role, config.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)
	return "Bearer " + tok
}

// TEST: Payout endpoint
func TestHandlerRequestPayout(t *testing.T) {
	tests := []struct {
		name           string
		role           string
		key            string
		body           string
		mockError      error
		expectedStatus int
	}{
		{"queued", "driver", "k1", `{"amount":"25","destinationPhone":"0241234567"}`, nil, http.StatusCreated},
		{"rider forbidden", "rider", "k1", `{"amount":"25","destinationPhone":"0241234567"}`, nil, http.StatusForbidden},
		{"missing key", "driver", "", `{"amount":"25","destinationPhone":"0241234567"}`, nil, http.StatusBadRequest},
		{"zero amount", "driver", "k1", `{"amount":"0","destinationPhone":"0241234567"}`, nil, http.StatusBadRequest},
		{"short phone", "driver", "k1", `{"amount":"5","destinationPhone":"024"}`, nil, http.StatusBadRequest},
		{"insufficient", "driver", "k1", `{"amount":"25","destinationPhone":"0241234567"}`, ledger.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{"locked", "driver", "k1", `{"amount":"25","destinationPhone":"0241234567"}`, ErrPayoutInProgress, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockService{
				RequestPayoutFunc: func(ctx context.Context, driverID string, in PayoutInput, key string, meta idempotency.RequestMeta) (*PayoutResponse, error) {
					if tt.mockError != nil {
						return nil, tt.mockError
					}
					assert.Equal(t, "driver-1", driverID)
					assert.True(t, in.Amount.Equal(money.MustParse("25")))
					return &PayoutResponse{PayoutID: "p1", Status: "queued"}, nil
				},
			}
			mux := http.NewServeMux()
			NewHandler(svc, logger.NewNop()).RegisterRoutes(mux, "test-secret")

			req := httptest.NewRequest(http.MethodPost, "/v1/payouts", bytes.NewBufferString(tt.body))
			req.Header.Set("Authorization", token(t, "driver-1", tt.role))
			if tt.key != "" {
				req.Header.Set("Idempotency-Key", tt.key)
			}
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code, rr.Body.String())
		})
	}
}

func TestHandlerGetPayoutHidesOtherDrivers(t *testing.T) {
	svc := &MockService{
		GetPayoutFunc: func(ctx context.Context, id string) (*Payout, error) {
			return &Payout{ID: id, DriverID: "driver-2"}, nil
		},
	}
	mux := http.NewServeMux()
	NewHandler(svc, logger.NewNop()).RegisterRoutes(mux, "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/v1/payouts/p1", nil)
	req.Header.Set("Authorization", token(t, "driver-1", "driver"))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
