package ops

import (
	"errors"
	"time"

	"github.com/kmassidik/movegh/internal/governance"
	"github.com/kmassidik/movegh/internal/settlement"
)

// Overall statuses
const (
	StatusOK           = "ok"
	StatusDegraded     = "degraded"
	StatusNotRun       = "not_run"
	StatusLowLiquidity = "low_liquidity"
	StatusNoop         = "noop"
)

// Dependency states reported by the health check
const (
	DependencyUp       = "up"
	DependencyDown     = "down"
	DependencyDisabled = "disabled"
)

// ReportWindow is the lookback of the FinOS report
const ReportWindow = 24 * time.Hour

var ErrRiskCaseNotFound = errors.New("risk case not found")

type HealthReport struct {
	Status       string            `json:"status"`
	Env          string            `json:"env"`
	Dependencies map[string]string `json:"dependencies"`
	Timestamp    time.Time         `json:"timestamp"`
	RequestID    string            `json:"requestId,omitempty"`
}

type PaymentsStatus struct {
	ProviderMode     string                 `json:"providerMode"`
	Provider         string                 `json:"provider"`
	ProviderHealth   string                 `json:"providerHealth"`
	LatestSettlement *settlement.Settlement `json:"latestSettlement"`
	Timestamp        time.Time              `json:"timestamp"`
}

type SettlementStatus struct {
	Status string                 `json:"status"`
	Latest *settlement.Settlement `json:"latest,omitempty"`
}

type SettlementRunResponse struct {
	Status string             `json:"status"`
	Report *settlement.Report `json:"report"`
}

type TreasuryStatus struct {
	Currency          string                        `json:"currency"`
	TreasuryOwnerID   string                        `json:"treasuryOwnerId"`
	Balances          governance.Balances           `json:"balances"`
	MinReserve        string                        `json:"minReserve"`
	Status            string                        `json:"status"`
	FinancialAccounts []governance.FinancialAccount `json:"financialAccounts"`
}

type RebalanceResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Summary is a count and a 2-decimal total
type Summary struct {
	Count int    `json:"count"`
	Total string `json:"total"`
}

type CountSummary struct {
	Count int `json:"count"`
}

// FinOSReport summarizes money movement over ReportWindow
type FinOSReport struct {
	WindowHours int          `json:"windowHours"`
	Payments    Summary      `json:"payments"`
	Payouts     Summary      `json:"payouts"`
	Disputes    CountSummary `json:"disputes"`
	Timestamp   time.Time    `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
