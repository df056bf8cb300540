package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/money"
)

var defaultInstructions = map[string]string{
	NameMTN:        "Approve payment on your MTN MoMo prompt.",
	NameVodafone:   "Approve payment on your Vodafone Cash prompt.",
	NameAirtelTigo: "Approve payment on your AirtelTigo Money prompt.",
}

// LiveProvider speaks the shared mobile-money HTTP contract for one provider
type LiveProvider struct {
	name   string
	cfg    *Config
	client *Client
	logger *logger.Logger
}

func NewLiveProvider(cfg *Config, log *logger.Logger) *LiveProvider {
	return &LiveProvider{
		name:   cfg.Name,
		cfg:    cfg,
		client: NewClient(cfg, log),
		logger: log,
	}
}

func (p *LiveProvider) Name() string { return p.name }

func (p *LiveProvider) InitiatePayment(ctx context.Context, rc RequestContext, in InitiateInput) (*InitiateResult, error) {
	resp, err := p.client.Do(ctx, "initiate", http.MethodPost, p.cfg.Endpoints.Initiate, rc, map[string]interface{}{
		"merchantId":  p.cfg.MerchantID,
		"intentId":    in.IntentID,
		"amount":      money.String(in.Amount),
		"currency":    in.Currency,
		"phoneNumber": in.PhoneNumber,
		"riderId":     in.RiderID,
		"tripId":      in.TripID,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &InitiateResult{Status: StatusFailed}, nil
	}

	instructions := firstString(resp.Body, "checkoutInstructions", "instruction")
	if instructions == "" {
		instructions = defaultInstructions[p.name]
	}
	return &InitiateResult{
		ProviderRef:          firstString(resp.Body, "providerRef", "reference", "transactionId"),
		CheckoutInstructions: instructions,
		Status:               MapInitiateStatus(firstString(resp.Body, "status", "state")),
	}, nil
}

func (p *LiveProvider) VerifyPayment(ctx context.Context, rc RequestContext, in VerifyInput) (*VerifyResult, error) {
	resp, err := p.client.Do(ctx, "verify", http.MethodPost, p.cfg.Endpoints.Verify, rc, map[string]interface{}{
		"merchantId":  p.cfg.MerchantID,
		"intentId":    in.IntentID,
		"providerRef": in.ProviderRef,
		"amount":      money.String(in.Amount),
		"currency":    in.Currency,
		"phoneNumber": in.PhoneNumber,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &VerifyResult{Status: StatusFailed, ProviderRef: in.ProviderRef}, nil
	}

	ref := firstString(resp.Body, "providerRef", "reference", "transactionId")
	if ref == "" {
		ref = in.ProviderRef
	}
	return &VerifyResult{
		Status:      MapVerifyStatus(firstString(resp.Body, "status", "state")),
		ProviderRef: ref,
	}, nil
}

func (p *LiveProvider) Refund(ctx context.Context, rc RequestContext, in RefundInput) (*RefundResult, error) {
	resp, err := p.client.Do(ctx, "refund", http.MethodPost, p.cfg.Endpoints.Refund, rc, map[string]interface{}{
		"merchantId":  p.cfg.MerchantID,
		"intentId":    in.IntentID,
		"providerRef": in.ProviderRef,
		"amount":      money.String(in.Amount),
		"currency":    in.Currency,
		"reason":      in.Reason,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &RefundResult{Status: TransferFailed}, nil
	}
	return &RefundResult{
		Status:      MapTransferStatus(firstString(resp.Body, "status", "state")),
		ProviderRef: firstString(resp.Body, "providerRef", "reference", "transactionId"),
	}, nil
}

func (p *LiveProvider) Payout(ctx context.Context, rc RequestContext, in PayoutInput) (*PayoutResult, error) {
	resp, err := p.client.Do(ctx, "payout", http.MethodPost, p.cfg.Endpoints.Payout, rc, map[string]interface{}{
		"merchantId":  p.cfg.MerchantID,
		"payoutId":    in.PayoutID,
		"driverId":    in.DriverID,
		"amount":      money.String(in.Amount),
		"currency":    in.Currency,
		"destination": in.Destination,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &PayoutResult{Status: TransferFailed}, nil
	}
	return &PayoutResult{
		Status:      MapTransferStatus(firstString(resp.Body, "status", "state")),
		ProviderRef: firstString(resp.Body, "providerRef", "reference", "transactionId"),
	}, nil
}

func (p *LiveProvider) WebhookHandler(headers http.Header, rawBody []byte) (*WebhookEvent, error) {
	timestamp := headers.Get("X-Timestamp")
	nonce := headers.Get("X-Nonce")
	signature := signatureFrom(headers, p.name, p.cfg.SignatureHeader)
	if !VerifySignature(p.cfg.WebhookSecret, timestamp, nonce, rawBody, signature) {
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
		RiderID:     firstString(body, "riderId", "rider_id"),
		DriverID:    firstString(body, "driverId", "driver_id"),
		Timestamp:   firstString(body, "timestamp"),
	}
	if event.Timestamp == "" {
		event.Timestamp = timestamp
	}
	if event.EventID == "" || event.IntentID == "" || event.Status == "" {
		return nil, ErrInvalidWebhookPayload
	}
	event.Status = MapVerifyStatus(event.Status)
	return event, nil
}

// HealthCheck reports down without a base URL and degraded while the breaker is open
func (p *LiveProvider) HealthCheck(ctx context.Context) string {
	if p.cfg.BaseURL == "" {
		return HealthDown
	}
	if p.client.CircuitOpen() {
		return HealthDegraded
	}
	return HealthOK
}

// IsUnavailable reports errors that mean the provider could not be reached
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrProviderRequestFailure)
}
