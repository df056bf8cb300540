package settlement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Settlement statuses
const (
	StatusPending  = "pending"
	StatusMatched  = "matched"
	StatusMismatch = "mismatch"
)

// Batch statuses
const (
	BatchOpen   = "open"
	BatchClosed = "closed"
)

// DateLayout is the period boundary format
const DateLayout = "2006-01-02"

var (
	ErrInvalidPeriod   = errors.New("period dates must be YYYY-MM-DD with start <= end")
	ErrBatchNotFound   = errors.New("settlement batch not found")
	ErrMissingProvider = errors.New("provider is required")
)

// Input describes one reconciliation run. A nil ProviderTotal records a
// pending settlement with no comparison.
type Input struct {
	Provider      string           `json:"provider"`
	Currency      string           `json:"currency"`
	ProviderTotal *decimal.Decimal `json:"providerTotal"`
	PeriodStart   string           `json:"periodStart"`
	PeriodEnd     string           `json:"periodEnd"`
}

// Report is the snapshot stored in reconciliation_reports and returned to callers
type Report struct {
	SettlementID  string           `json:"settlementId"`
	BatchID       string           `json:"batchId"`
	Provider      string           `json:"provider"`
	Currency      string           `json:"currency"`
	LedgerTotal   decimal.Decimal  `json:"ledgerTotal"`
	ProviderTotal *decimal.Decimal `json:"providerTotal"`
	Drift         *decimal.Decimal `json:"drift"`
	Status        string           `json:"status"`
	PeriodStart   string           `json:"periodStart"`
	PeriodEnd     string           `json:"periodEnd"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Settlement is a settlements row
type Settlement struct {
	ID            string           `json:"id"`
	BatchID       *string          `json:"batchId"`
	Provider      string           `json:"provider"`
	Currency      string           `json:"currency"`
	PeriodStart   string           `json:"periodStart"`
	PeriodEnd     string           `json:"periodEnd"`
	LedgerTotal   decimal.Decimal  `json:"ledgerTotal"`
	ProviderTotal *decimal.Decimal `json:"providerTotal"`
	Drift         *decimal.Decimal `json:"drift"`
	Status        string           `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Batch groups the runs of one provider, currency and period
type Batch struct {
	ID          string     `json:"id"`
	Provider    string     `json:"provider"`
	Currency    string     `json:"currency"`
	PeriodStart string     `json:"periodStart"`
	PeriodEnd   string     `json:"periodEnd"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	ClosedAt    *time.Time `json:"closedAt"`
}

// ReportMessage is a provider settlement report read from Kafka
type ReportMessage struct {
	Provider      string           `json:"provider"`
	Currency      string           `json:"currency"`
	ProviderTotal *decimal.Decimal `json:"providerTotal"`
	PeriodStart   string           `json:"periodStart"`
	PeriodEnd     string           `json:"periodEnd"`
}
