package payout

import (
	"testing"

	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePayoutInput(t *testing.T) {
	in := PayoutInput{Amount: money.MustParse("10"), Provider: " MTN ", DestinationPhone: " 0241234567 "}
	require.NoError(t, ValidatePayoutInput(&in))
	assert.Equal(t, "mtn", in.Provider)
	assert.Equal(t, "0241234567", in.DestinationPhone)

	tests := []struct {
		name   string
		amount string
		phone  string
	}{
		{"zero amount", "0", "0241234567"},
		{"negative amount", "-3", "0241234567"},
		{"amount rounds to zero", "0.004", "0241234567"},
		{"short phone", "5", "024"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := PayoutInput{Amount: decimal.RequireFromString(tt.amount), DestinationPhone: tt.phone}
			assert.Error(t, ValidatePayoutInput(&in))
		})
	}
}
