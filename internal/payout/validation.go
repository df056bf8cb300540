package payout

import (
	"fmt"
	"strings"

	"github.com/kmassidik/movegh/internal/common/money"
)

const minPhoneLength = 8

// ValidatePayoutInput checks the amount and destination of a payout request
func ValidatePayoutInput(in *PayoutInput) error {
	if !money.IsPositive(in.Amount) {
		return fmt.Errorf("amount must be greater than zero")
	}

	in.Provider = strings.ToLower(strings.TrimSpace(in.Provider))

	in.DestinationPhone = strings.TrimSpace(in.DestinationPhone)
	if len(in.DestinationPhone) < minPhoneLength {
		return fmt.Errorf("destinationPhone must be at least %d characters", minPhoneLength)
	}
	return nil
}
