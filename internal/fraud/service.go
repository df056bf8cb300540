// Package fraud scores payment attempts against block lists, velocity
// limits and simple amount/geo signals.
package fraud

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/metrics"
	"github.com/shopspring/decimal"
)

type Service struct {
	cfg       config.FraudConfig
	maxAmount decimal.Decimal
	logger    *logger.Logger
}

func NewService(cfg config.FraudConfig, log *logger.Logger) *Service {
	return &Service{
		cfg:       cfg,
		maxAmount: decimal.NewFromFloat(cfg.MaxAmount),
		logger:    log,
	}
}

// AssessPaymentRisk scores a payment and upserts the rider's risk profile.
// A matching active block short-circuits every other signal.
func (s *Service) AssessPaymentRisk(ctx context.Context, store Store, in Input) (*Assessment, error) {
	assessment := &Assessment{Reasons: []string{}}
	if in.PhoneNumber != "" {
		assessment.PhoneHash = HashValue(in.PhoneNumber)
	}
	if in.DeviceID != "" {
		assessment.DeviceHash = HashValue(in.DeviceID)
	}

	blocked, err := store.IsBlocked(ctx, in.RiderID, assessment.PhoneHash, assessment.DeviceHash)
	if err != nil {
		return nil, err
	}
	if blocked {
		assessment.Status = StatusBlocked
		assessment.Score = s.cfg.BlockScore
		assessment.Reasons = append(assessment.Reasons, ReasonBlockedAccount)
		return s.finish(ctx, store, in.RiderID, assessment)
	}

	score := 0
	if in.Amount.GreaterThan(s.maxAmount) {
		score += weightAmount
		assessment.Reasons = append(assessment.Reasons, ReasonAmountThreshold)
	}

	checks := []struct {
		field  Field
		value  string
		window time.Duration
		limit  int
		weight int
		reason string
	}{
		{FieldRider, in.RiderID, time.Minute, s.cfg.RiderPerMin, weightRiderMin, ReasonVelocityRiderMin},
		{FieldRider, in.RiderID, 24 * time.Hour, s.cfg.RiderPerDay, weightRiderDay, ReasonVelocityRiderDay},
		{FieldDevice, assessment.DeviceHash, 24 * time.Hour, s.cfg.DevicePerDay, weightDeviceDay, ReasonVelocityDeviceDay},
		{FieldPhone, assessment.PhoneHash, 24 * time.Hour, s.cfg.PhonePerDay, weightPhoneDay, ReasonVelocityPhoneDay},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		count, err := store.CountRecent(ctx, c.field, c.value, c.window)
		if err != nil {
			return nil, err
		}
		if count >= c.limit {
			score += c.weight
			assessment.Reasons = append(assessment.Reasons, c.reason)
		}
	}

	if in.Country != "" && !strings.EqualFold(in.Country, s.cfg.HomeCountry) {
		score += weightGeoMismatch
		assessment.Reasons = append(assessment.Reasons, ReasonGeoMismatch)
	}

	assessment.Score = clamp(score, 0, 100)
	assessment.Status = s.verdict(assessment.Score)
	return s.finish(ctx, store, in.RiderID, assessment)
}

func (s *Service) finish(ctx context.Context, store Store, riderID string, a *Assessment) (*Assessment, error) {
	if err := store.UpsertRiskProfile(ctx, "rider", riderID, a.Status, a.Score, strings.Join(a.Reasons, ";")); err != nil {
		return nil, err
	}
	metrics.FraudAssessmentTotal.WithLabelValues(a.Status).Inc()
	if a.Status != StatusClear {
		s.logger.Warnf("Fraud verdict %s for rider %s: score=%d reasons=%v", a.Status, riderID, a.Score, a.Reasons)
	}
	return a, nil
}

func (s *Service) verdict(score int) string {
	switch {
	case score >= s.cfg.BlockScore:
		return StatusBlocked
	case score >= s.cfg.HoldScore:
		return StatusReview
	default:
		return StatusClear
	}
}

// RecordFlags writes one fraud_flags row per reason
func (s *Service) RecordFlags(ctx context.Context, store Store, intentID, riderID string, a *Assessment, details map[string]interface{}) error {
	for _, reason := range a.Reasons {
		if err := store.InsertFlag(ctx, Flag{
			IntentID: intentID,
			RiderID:  riderID,
			FlagType: reason,
			Score:    a.Score,
			Details:  details,
		}); err != nil {
			return err
		}
	}
	return nil
}

// BlockRider adds an open-ended block for the rider and marks the profile blocked
func (s *Service) BlockRider(ctx context.Context, store Store, riderID, reason string) error {
	if err := store.InsertBlock(ctx, Block{OwnerType: "rider", OwnerID: riderID, Reason: reason}); err != nil {
		return err
	}
	return store.UpsertRiskProfile(ctx, "rider", riderID, StatusBlocked, s.cfg.BlockScore, reason)
}

// HashValue is the sha256 hex digest used for phone numbers and device ids
func HashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
