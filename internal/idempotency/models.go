// Package idempotency journals every money-moving request in the
// transactions table and replays the stored response for repeated keys.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// Transaction types
const (
	TypePayment    = "payment"
	TypeCommission = "commission"
	TypePayout     = "payout"
	TypeRefund     = "refund"
	TypeAdjustment = "adjustment"
)

// StatusDriftDetected marks adjustment rows written by reconciliation
const StatusDriftDetected = "drift_detected"

// ErrDuplicateKey is returned when another request already journaled the key
var ErrDuplicateKey = errors.New("idempotency key already used")

// ResponseTTL is how long replayable responses stay in the fast cache
const ResponseTTL = 24 * time.Hour

// Entry is one journaled request
type Entry struct {
	Type           string
	Status         string
	IdempotencyKey string
	Metadata       map[string]interface{}
}

// RequestMeta is the caller context copied into audit rows
type RequestMeta struct {
	RequestID string
	IP        string
	UserAgent string
}

// AuditEntry is one audit_logs row before hashing
type AuditEntry struct {
	Actor   string
	Action  string
	Target  string
	Meta    RequestMeta
	Payload interface{}
}

// ResponseCache is the redis fast path for replayed responses
type ResponseCache interface {
	CacheResponse(ctx context.Context, key string, response []byte, ttl time.Duration) error
	GetCachedResponse(ctx context.Context, key string) ([]byte, error)
}
