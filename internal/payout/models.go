package payout

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// LockTTL outlasts the provider client's full retry budget
const LockTTL = 60 * time.Second

var (
	ErrPayoutInProgress = errors.New("another payout for this driver is in progress")
	ErrPayoutNotFound   = errors.New("payout not found")
)

// Payout is a payouts row
type Payout struct {
	ID          string          `json:"id"`
	DriverID    string          `json:"driverId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Provider    string          `json:"provider"`
	Destination string          `json:"destination"`
	Status      string          `json:"status"`
	ProviderRef *string         `json:"providerRef"`
	TxnID       *string         `json:"txnId"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// PayoutInput is the body of POST /v1/payouts
type PayoutInput struct {
	Amount           decimal.Decimal `json:"amount"`
	Provider         string          `json:"provider"`
	DestinationPhone string          `json:"destinationPhone"`
}

// PayoutResponse is stored verbatim as the replayable idempotent response
type PayoutResponse struct {
	PayoutID string `json:"payoutId"`
	Status   string `json:"status"`
}

// ErrorResponse - Standard error response
type ErrorResponse struct {
	Error string `json:"error"`
}
