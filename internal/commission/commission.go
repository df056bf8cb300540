// Package commission computes the platform's cut of a captured fare.
package commission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/shopspring/decimal"
)

// Rule scopes
const (
	AppliesToRide     = "ride"
	AppliesToDelivery = "delivery"
)

// Rule is a commission_rules row
type Rule struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Percent   decimal.Decimal `json:"percent"`
	FixedFee  decimal.Decimal `json:"fixed_fee"`
	AppliesTo string          `json:"applies_to"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
}

// Split is the commission/net division of an amount
type Split struct {
	Commission decimal.Decimal
	Net        decimal.Decimal
	Percent    decimal.Decimal
	FixedFee   decimal.Decimal
}

// ComputeSplit applies rule to amount. Commission is amount*percent+fee,
// rounded to 2 decimals and capped at amount. A nil rule takes nothing.
func ComputeSplit(amount decimal.Decimal, rule *Rule) Split {
	amount = money.Round2(amount)
	if rule == nil {
		return Split{Commission: money.Zero, Net: amount, Percent: money.Zero, FixedFee: money.Zero}
	}

	commission := money.Round2(amount.Mul(rule.Percent).Add(rule.FixedFee))
	if commission.GreaterThan(amount) {
		commission = amount
	}

	return Split{
		Commission: commission,
		Net:        money.Round2(amount.Sub(commission)),
		Percent:    rule.Percent,
		FixedFee:   rule.FixedFee,
	}
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// GetActiveRule returns the newest active rule for appliesTo, nil if none
func (r *Repository) GetActiveRule(ctx context.Context, q db.Querier, appliesTo string) (*Rule, error) {
	query := `
		SELECT id, name, percent::text, fixed_fee::text, applies_to, active, created_at
		FROM commission_rules
		WHERE applies_to = $1 AND active = true
		ORDER BY created_at DESC
		LIMIT 1
	`

	var rule Rule
	var percent, fee string
	err := q.QueryRowContext(ctx, query, appliesTo).Scan(
		&rule.ID, &rule.Name, &percent, &fee, &rule.AppliesTo, &rule.Active, &rule.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commission rule: %w", err)
	}

	if rule.Percent, err = decimal.NewFromString(percent); err != nil {
		return nil, fmt.Errorf("invalid commission percent %q: %w", percent, err)
	}
	if rule.FixedFee, err = money.Parse(fee); err != nil {
		return nil, err
	}
	return &rule, nil
}

// CreateRule inserts a rule; names are unique
func (r *Repository) CreateRule(ctx context.Context, q db.Querier, rule *Rule) error {
	if rule.AppliesTo != AppliesToRide && rule.AppliesTo != AppliesToDelivery {
		return fmt.Errorf("applies_to must be %s or %s", AppliesToRide, AppliesToDelivery)
	}
	if rule.Percent.IsNegative() || rule.Percent.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("percent must be between 0 and 1")
	}
	if rule.FixedFee.IsNegative() {
		return fmt.Errorf("fixed fee must not be negative")
	}

	query := `
		INSERT INTO commission_rules (name, percent, fixed_fee, applies_to, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := q.QueryRowContext(ctx, query,
		rule.Name, rule.Percent.String(), money.String(rule.FixedFee), rule.AppliesTo, rule.Active,
	).Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create commission rule: %w", err)
	}
	return nil
}
