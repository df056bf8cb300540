package provider

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kmassidik/movegh/internal/common/money"
)

// MockProvider is deterministic and never leaves the process
type MockProvider struct {
	webhookSecret string
}

func NewMockProvider(webhookSecret string) *MockProvider {
	return &MockProvider{webhookSecret: webhookSecret}
}

func (m *MockProvider) Name() string { return NameMock }

func (m *MockProvider) InitiatePayment(ctx context.Context, rc RequestContext, in InitiateInput) (*InitiateResult, error) {
	return &InitiateResult{
		ProviderRef:          "mock_intent_" + in.IntentID,
		CheckoutInstructions: fmt.Sprintf("Dial *123# to approve %s %s.", in.Currency, money.String(in.Amount)),
		Status:               StatusCreated,
	}, nil
}

func (m *MockProvider) VerifyPayment(ctx context.Context, rc RequestContext, in VerifyInput) (*VerifyResult, error) {
	ref := in.ProviderRef
	if ref == "" {
		ref = "mock_capture_" + in.IntentID
	}
	return &VerifyResult{Status: StatusCaptured, ProviderRef: ref}, nil
}

func (m *MockProvider) Refund(ctx context.Context, rc RequestContext, in RefundInput) (*RefundResult, error) {
	return &RefundResult{Status: TransferSettled, ProviderRef: "mock_refund_" + in.IntentID}, nil
}

func (m *MockProvider) Payout(ctx context.Context, rc RequestContext, in PayoutInput) (*PayoutResult, error) {
	return &PayoutResult{Status: TransferQueued, ProviderRef: "mock_payout_" + in.PayoutID}, nil
}

func (m *MockProvider) WebhookHandler(headers http.Header, rawBody []byte) (*WebhookEvent, error) {
	sig := headers.Get("X-Mock-Signature")
	if m.webhookSecret == "" || !hmac.Equal([]byte(sig), []byte(m.webhookSecret)) {
		return nil, ErrInvalidSignature
	}

	body := map[string]interface{}{}
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return nil, ErrInvalidWebhookPayload
	}

	event := &WebhookEvent{
		EventID:     firstString(body, "eventId", "event_id", "id"),
		IntentID:    firstString(body, "intentId", "intent_id", "reference"),
		Status:      firstString(body, "status", "state"),
		ProviderRef: firstString(body, "providerRef", "reference", "transactionId"),
		Amount:      optionalAmount(body, "amount"),
		Currency:    firstString(body, "currency"),
		RiderID:     firstString(body, "riderId"),
		DriverID:    firstString(body, "driverId"),
		Timestamp:   firstString(body, "timestamp"),
	}
	if event.EventID == "" || event.IntentID == "" || event.Status == "" {
		return nil, ErrInvalidWebhookPayload
	}
	event.Status = MapVerifyStatus(event.Status)
	return event, nil
}

func (m *MockProvider) HealthCheck(ctx context.Context) string { return HealthOK }
