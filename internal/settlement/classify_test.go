package settlement

import (
	"testing"
	"time"

	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *decimal.Decimal {
	d := money.MustParse(s)
	return &d
}

// TEST: Drift is ledger minus provider, pending without a provider total
func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		ledger    string
		provider  *decimal.Decimal
		wantDrift string
		wantState string
	}{
		{"no provider total", "100.00", nil, "", StatusPending},
		{"matched", "100.00", ptr("100"), "0.00", StatusMatched},
		{"ledger ahead", "100.00", ptr("90.50"), "9.50", StatusMismatch},
		{"ledger behind", "10.00", ptr("12.25"), "-2.25", StatusMismatch},
		{"sub-cent noise rounds away", "10.001", ptr("10.004"), "0.00", StatusMatched},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drift, status := Classify(money.MustParse(tt.ledger), tt.provider)
			assert.Equal(t, tt.wantState, status)
			if tt.wantDrift == "" {
				assert.Nil(t, drift)
				return
			}
			require.NotNil(t, drift)
			assert.Equal(t, tt.wantDrift, money.String(*drift))
		})
	}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)

	in := Input{Provider: " MTN ", Currency: "ghs", ProviderTotal: ptr("10.129")}
	require.NoError(t, Normalize(&in, "GHS", now))
	assert.Equal(t, "mtn", in.Provider)
	assert.Equal(t, "GHS", in.Currency)
	assert.Equal(t, "2026-03-14", in.PeriodStart)
	assert.Equal(t, "2026-03-14", in.PeriodEnd)
	assert.Equal(t, "10.13", money.String(*in.ProviderTotal))

	defaulted := Input{Provider: "mock"}
	require.NoError(t, Normalize(&defaulted, "GHS", now))
	assert.Equal(t, "GHS", defaulted.Currency)

	tests := []struct {
		name    string
		in      Input
		wantErr error
	}{
		{"missing provider", Input{}, ErrMissingProvider},
		{"bad start", Input{Provider: "mock", PeriodStart: "14/03/2026"}, ErrInvalidPeriod},
		{"end before start", Input{Provider: "mock", PeriodStart: "2026-03-14", PeriodEnd: "2026-03-01"}, ErrInvalidPeriod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			assert.ErrorIs(t, Normalize(&in, "GHS", now), tt.wantErr)
		})
	}
}
