package payment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/kmassidik/movegh/internal/provider"
)

var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// minPhoneLength is the shortest mobile money number accepted
const minPhoneLength = 8

var supportedProviders = map[string]bool{
	provider.NameMock:       true,
	provider.NameMTN:        true,
	provider.NameVodafone:   true,
	provider.NameAirtelTigo: true,
}

// NormalizeIdempotencyKey trims the header value; blank means absent
func NormalizeIdempotencyKey(value string) string {
	return strings.TrimSpace(value)
}

// ValidateCurrency normalizes to upper case and checks the ISO shape
func ValidateCurrency(currency string) (string, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if !currencyRegex.MatchString(currency) {
		return "", fmt.Errorf("currency must be a 3-letter code")
	}
	return currency, nil
}

// ValidatePhoneNumber checks the minimum length of a mobile money number
func ValidatePhoneNumber(phone string) error {
	if len(strings.TrimSpace(phone)) < minPhoneLength {
		return fmt.Errorf("phoneNumber must be at least %d characters", minPhoneLength)
	}
	return nil
}

// ValidateCreateIntentInput checks the body and fills the rider and currency
// defaults. callerID is the authenticated user.
func ValidateCreateIntentInput(in *CreateIntentInput, callerID, defaultCurrency string) error {
	in.TripID = strings.TrimSpace(in.TripID)
	if in.TripID == "" {
		return fmt.Errorf("tripId is required")
	}

	if in.RiderID == "" {
		in.RiderID = callerID
	}
	if in.RiderID == "" {
		return fmt.Errorf("riderId is required")
	}
	if callerID != "" && in.RiderID != callerID {
		return fmt.Errorf("riderId mismatch")
	}

	if !money.IsPositive(in.Amount) {
		return fmt.Errorf("amount must be greater than zero")
	}

	if in.Currency == "" {
		in.Currency = defaultCurrency
	}
	currency, err := ValidateCurrency(in.Currency)
	if err != nil {
		return err
	}
	in.Currency = currency

	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	if in.Provider != "" && !supportedProviders[in.Provider] {
		return fmt.Errorf("provider must be one of mock, mtn, vodafone, airteltigo")
	}

	in.Country = strings.ToUpper(strings.TrimSpace(in.Country))
	return ValidatePhoneNumber(in.PhoneNumber)
}

func ValidateConfirmIntentInput(in *ConfirmIntentInput) error {
	in.DriverID = strings.TrimSpace(in.DriverID)
	return ValidatePhoneNumber(in.PhoneNumber)
}

// ValidateRefundInput rejects a non-positive partial amount
func ValidateRefundInput(in *RefundInput) error {
	if in.Amount != nil && !money.IsPositive(*in.Amount) {
		return fmt.Errorf("amount must be greater than zero")
	}
	in.Reason = strings.TrimSpace(in.Reason)
	return nil
}
