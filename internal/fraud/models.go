package fraud

import (
	"time"

	"github.com/shopspring/decimal"
)

// Verdicts
const (
	StatusClear   = "clear"
	StatusReview  = "review"
	StatusBlocked = "blocked"
)

// Signal names recorded as fraud_flags.flag_type
const (
	ReasonBlockedAccount    = "blocked_account"
	ReasonAmountThreshold   = "amount_threshold"
	ReasonVelocityRiderMin  = "velocity_rider_min"
	ReasonVelocityRiderDay  = "velocity_rider_day"
	ReasonVelocityDeviceDay = "velocity_device_day"
	ReasonVelocityPhoneDay  = "velocity_phone_day"
	ReasonGeoMismatch       = "geo_mismatch"
)

// Signal weights
const (
	weightAmount      = 40
	weightRiderMin    = 30
	weightRiderDay    = 20
	weightDeviceDay   = 15
	weightPhoneDay    = 15
	weightGeoMismatch = 20
)

// Field is a payment_intents column velocity is counted on
type Field string

const (
	FieldRider  Field = "rider_id"
	FieldDevice Field = "device_id"
	FieldPhone  Field = "phone_hash"
)

// Input describes the payment being assessed
type Input struct {
	RiderID     string
	Amount      decimal.Decimal
	Currency    string
	PhoneNumber string
	DeviceID    string
	IP          string
	Country     string
}

// Assessment is the verdict for one payment
type Assessment struct {
	Status     string   `json:"status"`
	Score      int      `json:"score"`
	Reasons    []string `json:"reasons"`
	PhoneHash  string   `json:"-"`
	DeviceHash string   `json:"-"`
}

// Flag is a fraud_flags row
type Flag struct {
	IntentID string
	RiderID  string
	FlagType string
	Score    int
	Details  map[string]interface{}
}

// Block is a blocked_accounts row. Any of owner, phone or device may match.
type Block struct {
	OwnerType    string
	OwnerID      string
	PhoneHash    string
	DeviceHash   string
	Reason       string
	BlockedUntil *time.Time
}
