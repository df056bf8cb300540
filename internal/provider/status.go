package provider

import (
	"fmt"
	"strings"

	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/shopspring/decimal"
)

var initiateStatuses = map[string]string{
	"success":    StatusCaptured,
	"captured":   StatusCaptured,
	"completed":  StatusCaptured,
	"authorized": StatusAuthorized,
	"pending":    StatusAuthorized,
	"queued":     StatusAuthorized,
	"processing": StatusAuthorized,
	"failed":     StatusFailed,
	"rejected":   StatusFailed,
	"error":      StatusFailed,
}

var verifyStatuses = map[string]string{
	"success":    StatusCaptured,
	"captured":   StatusCaptured,
	"completed":  StatusCaptured,
	"paid":       StatusCaptured,
	"authorized": StatusAuthorized,
	"pending":    StatusAuthorized,
	"queued":     StatusAuthorized,
	"processing": StatusAuthorized,
}

// MapInitiateStatus maps a raw initiate status; unknown values stay created
func MapInitiateStatus(raw string) string {
	if status, ok := initiateStatuses[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return StatusCreated
}

// MapVerifyStatus maps a raw verify or webhook status; unknown values fail
func MapVerifyStatus(raw string) string {
	if status, ok := verifyStatuses[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return StatusFailed
}

// MapTransferStatus maps refund and payout statuses by substring
func MapTransferStatus(raw string) string {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "failed"):
		return TransferFailed
	case strings.Contains(s, "settled"):
		return TransferSettled
	case strings.Contains(s, "sent"):
		return TransferSent
	default:
		return TransferQueued
	}
}

// firstString returns the first non-empty value among keys
func firstString(body map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		v, ok := body[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = decimal.NewFromFloat(t).String()
		default:
			s = fmt.Sprint(t)
		}
		if s != "" {
			return s
		}
	}
	return ""
}

// optionalAmount reads a numeric or string amount, nil when absent or invalid
func optionalAmount(body map[string]interface{}, key string) *decimal.Decimal {
	raw := firstString(body, key)
	if raw == "" {
		return nil
	}
	amount, err := money.Parse(raw)
	if err != nil {
		return nil
	}
	return &amount
}
