// Package provider adapts mobile-money providers behind one interface.
// Live adapters talk HTTP through Client; the mock adapter never leaves the process.
package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
)

// Provider names
const (
	NameMock       = "mock"
	NameMTN        = "mtn"
	NameVodafone   = "vodafone"
	NameAirtelTigo = "airteltigo"
)

// Shared payment status taxonomy
const (
	StatusCreated    = "created"
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusFailed     = "failed"
)

// Refund and payout statuses
const (
	TransferQueued  = "queued"
	TransferSent    = "sent"
	TransferSettled = "settled"
	TransferFailed  = "failed"
)

// Health values
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthDown     = "down"
)

var (
	ErrCircuitOpen            = errors.New("provider circuit breaker open")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrInvalidWebhookPayload  = errors.New("invalid webhook payload")
	ErrUnsupportedProvider    = errors.New("unsupported provider")
	ErrProviderNotConfigured  = errors.New("provider is not configured")
	ErrPlaceholderSecret      = errors.New("provider secrets are placeholders")
	ErrProviderRequestFailure = errors.New("provider request failed")
)

// RequestContext travels with every outbound provider call
type RequestContext struct {
	IdempotencyKey string
	CorrelationID  string
	RequestID      string
}

type InitiateInput struct {
	IntentID    string
	Amount      decimal.Decimal
	Currency    string
	PhoneNumber string
	RiderID     string
	TripID      string
}

type InitiateResult struct {
	ProviderRef          string
	CheckoutInstructions string
	Status               string
}

type VerifyInput struct {
	IntentID    string
	ProviderRef string
	Amount      decimal.Decimal
	Currency    string
	PhoneNumber string
	RiderID     string
}

type VerifyResult struct {
	Status      string
	ProviderRef string
}

type RefundInput struct {
	IntentID    string
	ProviderRef string
	Amount      decimal.Decimal
	Currency    string
	Reason      string
}

type RefundResult struct {
	Status      string
	ProviderRef string
}

type PayoutInput struct {
	PayoutID    string
	DriverID    string
	Amount      decimal.Decimal
	Currency    string
	Destination string
}

type PayoutResult struct {
	Status      string
	ProviderRef string
}

// WebhookEvent is a verified, parsed provider callback
type WebhookEvent struct {
	EventID     string
	IntentID    string
	Status      string
	ProviderRef string
	Amount      *decimal.Decimal
	Currency    string
	RiderID     string
	DriverID    string
	Timestamp   string
}

// Provider is implemented once per provider name
type Provider interface {
	Name() string
	InitiatePayment(ctx context.Context, rc RequestContext, in InitiateInput) (*InitiateResult, error)
	VerifyPayment(ctx context.Context, rc RequestContext, in VerifyInput) (*VerifyResult, error)
	Refund(ctx context.Context, rc RequestContext, in RefundInput) (*RefundResult, error)
	Payout(ctx context.Context, rc RequestContext, in PayoutInput) (*PayoutResult, error)
	// WebhookHandler verifies the signature over rawBody before parsing it
	WebhookHandler(headers http.Header, rawBody []byte) (*WebhookEvent, error)
	HealthCheck(ctx context.Context) string
}
