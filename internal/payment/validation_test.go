package payment

import (
	"testing"

	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCreateIntentInput(t *testing.T) {
	valid := func() CreateIntentInput {
		return CreateIntentInput{
			TripID:      "trip-1",
			Amount:      money.MustParse("25.50"),
			Currency:    "ghs",
			Provider:    "MTN",
			PhoneNumber: "0241234567",
			Country:     "gh",
		}
	}

	in := valid()
	require.NoError(t, ValidateCreateIntentInput(&in, "rider-1", "GHS"))
	assert.Equal(t, "rider-1", in.RiderID)
	assert.Equal(t, "GHS", in.Currency)
	assert.Equal(t, "mtn", in.Provider)
	assert.Equal(t, "GH", in.Country)

	tests := []struct {
		name   string
		mutate func(*CreateIntentInput)
	}{
		{"missing trip", func(in *CreateIntentInput) { in.TripID = " " }},
		{"zero amount", func(in *CreateIntentInput) { in.Amount = money.Zero }},
		{"negative amount", func(in *CreateIntentInput) { in.Amount = money.MustParse("-1") }},
		{"amount rounds to zero", func(in *CreateIntentInput) { in.Amount = decimal.RequireFromString("0.004") }},
		{"bad currency", func(in *CreateIntentInput) { in.Currency = "CEDI" }},
		{"unknown provider", func(in *CreateIntentInput) { in.Provider = "paypal" }},
		{"short phone", func(in *CreateIntentInput) { in.PhoneNumber = "024" }},
		{"rider mismatch", func(in *CreateIntentInput) { in.RiderID = "rider-2" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			assert.Error(t, ValidateCreateIntentInput(&in, "rider-1", "GHS"))
		})
	}
}

func TestValidateCreateIntentAcceptsAmountRoundingUp(t *testing.T) {
	in := CreateIntentInput{TripID: "t", Amount: decimal.RequireFromString("0.005"), PhoneNumber: "0241234567"}
	assert.NoError(t, ValidateCreateIntentInput(&in, "rider-1", "GHS"))
}

func TestValidateCreateIntentDefaultsCurrency(t *testing.T) {
	in := CreateIntentInput{TripID: "t", Amount: money.MustParse("1"), PhoneNumber: "0241234567"}
	require.NoError(t, ValidateCreateIntentInput(&in, "rider-1", "GHS"))
	assert.Equal(t, "GHS", in.Currency)
	assert.Empty(t, in.Provider)
}

func TestValidateRefundInput(t *testing.T) {
	assert.NoError(t, ValidateRefundInput(&RefundInput{}))

	zero := money.Zero
	assert.Error(t, ValidateRefundInput(&RefundInput{Amount: &zero}))

	dust := decimal.RequireFromString("0.004")
	assert.Error(t, ValidateRefundInput(&RefundInput{Amount: &dust}))

	partial := money.MustParse("5")
	assert.NoError(t, ValidateRefundInput(&RefundInput{Amount: &partial, Reason: " trip cancelled "}))
}

func TestNormalizeIdempotencyKey(t *testing.T) {
	assert.Equal(t, "", NormalizeIdempotencyKey("   "))
	assert.Equal(t, "abc", NormalizeIdempotencyKey(" abc "))
}

// TEST: Only the legal edges of the intent graph are allowed
func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusCreated, StatusReview, true},
		{StatusCreated, StatusAuthorized, true},
		{StatusCreated, StatusCaptured, true},
		{StatusCreated, StatusFailed, true},
		{StatusAuthorized, StatusCaptured, true},
		{StatusAuthorized, StatusFailed, true},
		{StatusAuthorized, StatusCreated, false},
		{StatusReview, StatusCaptured, false},
		{StatusCaptured, StatusFailed, false},
		{StatusFailed, StatusCaptured, false},
		{StatusCaptured, StatusCaptured, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

// TEST: Ops decisions add review exits on top of the normal graph
func TestCanResolve(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusReview, StatusCreated, true},
		{StatusReview, StatusFailed, true},
		{StatusReview, StatusCaptured, false},
		{StatusCreated, StatusFailed, true},
		{StatusAuthorized, StatusFailed, true},
		{StatusCaptured, StatusCaptured, true},
		{StatusFailed, StatusCreated, false},
		{StatusCaptured, StatusFailed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanResolve(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.False(t, CanTransition(StatusReview, StatusCreated), "review exits are ops only")
}
