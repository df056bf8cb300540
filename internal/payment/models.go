package payment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Intent statuses
const (
	StatusCreated    = "created"
	StatusReview     = "review"
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusFailed     = "failed"
)

// DefaultDriverID receives the net when neither the confirm call nor the
// provider event names a driver
const DefaultDriverID = "driver_mock"

var (
	ErrIntentNotFound      = errors.New("payment intent not found")
	ErrUnsupportedProvider = errors.New("unsupported payment provider")
	ErrIllegalTransition   = errors.New("illegal payment intent transition")
	ErrIntentNotCaptured   = errors.New("payment intent is not captured")
	ErrRefundExceedsAmount = errors.New("refund exceeds captured amount")
)

// Intent is a payment_intents row
type Intent struct {
	ID          string          `json:"id"`
	RiderID     string          `json:"riderId"`
	TripID      string          `json:"tripId"`
	DriverID    *string         `json:"driverId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Provider    string          `json:"provider"`
	ProviderRef *string         `json:"providerRef"`
	Status      string          `json:"status"`
	RiskScore   int             `json:"riskScore"`
	RiskStatus  string          `json:"riskStatus"`
	RiskReason  *string         `json:"riskReason"`
	DeviceHash  *string         `json:"-"`
	PhoneHash   *string         `json:"-"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// CreateIntentInput is the body of POST /v1/payments/intents
type CreateIntentInput struct {
	TripID      string          `json:"tripId"`
	RiderID     string          `json:"riderId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Provider    string          `json:"provider"`
	PhoneNumber string          `json:"phoneNumber"`
	DeviceID    string          `json:"deviceId"`
	Country     string          `json:"country"`
	IP          string          `json:"-"`
}

// ConfirmIntentInput is the body of POST /v1/payments/intents/{id}/confirm
type ConfirmIntentInput struct {
	PhoneNumber string `json:"phoneNumber"`
	DriverID    string `json:"driverId"`
	// RiderID is the authenticated caller; an intent of another rider is not found
	RiderID string `json:"-"`
}

// RefundInput is the body of the ops refund endpoint. A nil amount refunds in full.
type RefundInput struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

// IntentResponse is stored verbatim as the replayable idempotent response
type IntentResponse struct {
	IntentID             string `json:"intentId,omitempty"`
	Status               string `json:"status"`
	RiskStatus           string `json:"riskStatus,omitempty"`
	CheckoutInstructions string `json:"checkoutInstructions,omitempty"`
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	IntentID string `json:"intentId,omitempty"`
	Status   string `json:"status"`
}

type RefundResponse struct {
	RefundID string `json:"refundId,omitempty"`
	Status   string `json:"status"`
}

// RiskCase is an intent held for review or blocked by the fraud assessor
type RiskCase struct {
	IntentID   string          `json:"intentId"`
	RiderID    string          `json:"riderId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"`
	RiskScore  int             `json:"riskScore"`
	RiskStatus string          `json:"riskStatus"`
	RiskReason *string         `json:"riskReason"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// ErrorResponse - Standard error response
type ErrorResponse struct {
	Error string `json:"error"`
}
