package settlement

import (
	"strings"
	"time"

	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/shopspring/decimal"
)

// Classify compares the ledger total with the provider's. Drift is
// ledger - provider, nil when the provider reported nothing.
func Classify(ledgerTotal decimal.Decimal, providerTotal *decimal.Decimal) (*decimal.Decimal, string) {
	if providerTotal == nil {
		return nil, StatusPending
	}
	drift := money.Round2(money.Round2(ledgerTotal).Sub(money.Round2(*providerTotal)))
	if drift.IsZero() {
		return &drift, StatusMatched
	}
	return &drift, StatusMismatch
}

// Normalize fills defaults (currency, today's period) and validates dates
func Normalize(in *Input, defaultCurrency string, now time.Time) error {
	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	if in.Provider == "" {
		return ErrMissingProvider
	}

	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = defaultCurrency
	}

	today := now.UTC().Format(DateLayout)
	if in.PeriodStart == "" {
		in.PeriodStart = today
	}
	if in.PeriodEnd == "" {
		in.PeriodEnd = today
	}

	start, err := time.Parse(DateLayout, in.PeriodStart)
	if err != nil {
		return ErrInvalidPeriod
	}
	end, err := time.Parse(DateLayout, in.PeriodEnd)
	if err != nil || end.Before(start) {
		return ErrInvalidPeriod
	}

	if in.ProviderTotal != nil {
		total := money.Round2(*in.ProviderTotal)
		in.ProviderTotal = &total
	}
	return nil
}
