package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/shopspring/decimal"
)

type Repository struct {
	db     *db.DB
	logger *logger.Logger
}

func NewRepository(database *db.DB, log *logger.Logger) *Repository {
	return &Repository{
		db:     database,
		logger: log,
	}
}

const intentColumns = `
	id, rider_id, trip_id, driver_id, amount::text, currency, provider, provider_ref,
	status, risk_score, risk_status, risk_reason, device_id, phone_hash, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIntent(row rowScanner) (*Intent, error) {
	var intent Intent
	var amount string
	err := row.Scan(
		&intent.ID,
		&intent.RiderID,
		&intent.TripID,
		&intent.DriverID,
		&amount,
		&intent.Currency,
		&intent.Provider,
		&intent.ProviderRef,
		&intent.Status,
		&intent.RiskScore,
		&intent.RiskStatus,
		&intent.RiskReason,
		&intent.DeviceHash,
		&intent.PhoneHash,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if intent.Amount, err = money.Parse(amount); err != nil {
		return nil, err
	}
	return &intent, nil
}

// CreateIntentTx inserts a new intent in the created state
func (r *Repository) CreateIntentTx(ctx context.Context, q db.Querier, intent *Intent) error {
	query := `
		INSERT INTO payment_intents (
			rider_id, trip_id, amount, currency, provider, status,
			risk_score, risk_status, risk_reason, device_id, phone_hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRowContext(ctx, query,
		intent.RiderID,
		intent.TripID,
		money.String(intent.Amount),
		intent.Currency,
		intent.Provider,
		intent.Status,
		intent.RiskScore,
		intent.RiskStatus,
		intent.RiskReason,
		intent.DeviceHash,
		intent.PhoneHash,
	).Scan(&intent.ID, &intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment intent: %w", err)
	}
	return nil
}

// LockIntentTx reads an intent and holds its row lock until q commits
func (r *Repository) LockIntentTx(ctx context.Context, q db.Querier, id string) (*Intent, error) {
	row := q.QueryRowContext(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE id = $1 FOR UPDATE`, id)
	intent, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		// malformed uuids never match a row
		if db.IsInvalidText(err) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("failed to lock payment intent: %w", err)
	}
	return intent, nil
}

// GetIntent reads an intent without locking it
func (r *Repository) GetIntent(ctx context.Context, id string) (*Intent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE id = $1`, id)
	intent, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) || db.IsInvalidText(err) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}
	return intent, nil
}

// UpdateStatusTx sets the status. An empty providerRef keeps the stored one.
func (r *Repository) UpdateStatusTx(ctx context.Context, q db.Querier, id, status, providerRef string) error {
	result, err := q.ExecContext(ctx, `
		UPDATE payment_intents
		SET status = $1, provider_ref = COALESCE(NULLIF($2, ''), provider_ref), updated_at = now()
		WHERE id = $3
	`, status, providerRef, id)
	if err != nil {
		return fmt.Errorf("failed to update payment intent: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrIntentNotFound
	}
	return nil
}

// SetDriverTx records which driver received the net of a capture
func (r *Repository) SetDriverTx(ctx context.Context, q db.Querier, id, driverID string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE payment_intents SET driver_id = $1, updated_at = now() WHERE id = $2`,
		driverID, id)
	if err != nil {
		return fmt.Errorf("failed to set driver on intent: %w", err)
	}
	return nil
}

// UpdateRiskStatusTx is used by ops when a risk case is resolved
func (r *Repository) UpdateRiskStatusTx(ctx context.Context, q db.Querier, id, riskStatus, status string) error {
	result, err := q.ExecContext(ctx, `
		UPDATE payment_intents
		SET risk_status = $1, status = $2, updated_at = now()
		WHERE id = $3
	`, riskStatus, status, id)
	if err != nil {
		if db.IsInvalidText(err) {
			return ErrIntentNotFound
		}
		return fmt.Errorf("failed to update risk status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrIntentNotFound
	}
	return nil
}

// ListRiskCases returns review and blocked intents, newest first
func (r *Repository) ListRiskCases(ctx context.Context, limit int) ([]RiskCase, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, rider_id, amount::text, currency, status, risk_score, risk_status, risk_reason, created_at
		FROM payment_intents
		WHERE risk_status IN ('review', 'blocked')
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk cases: %w", err)
	}
	defer rows.Close()

	cases := []RiskCase{}
	for rows.Next() {
		var c RiskCase
		var amount string
		if err := rows.Scan(&c.IntentID, &c.RiderID, &amount, &c.Currency, &c.Status,
			&c.RiskScore, &c.RiskStatus, &c.RiskReason, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan risk case: %w", err)
		}
		if c.Amount, err = money.Parse(amount); err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// CreateRefundTx inserts a refunds row and returns its id
func (r *Repository) CreateRefundTx(ctx context.Context, q db.Querier, intentID, txnID string, amount decimal.Decimal, currency, providerRef, status, reason string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `
		INSERT INTO refunds (intent_id, txn_id, amount, currency, provider_ref, status, reason)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''))
		RETURNING id
	`, intentID, txnID, money.String(amount), currency, providerRef, status, reason).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create refund: %w", err)
	}
	return id, nil
}

// RefundedTotalTx sums the non-failed refunds already issued for an intent
func (r *Repository) RefundedTotalTx(ctx context.Context, q db.Querier, intentID string) (decimal.Decimal, error) {
	var total string
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text FROM refunds WHERE intent_id = $1 AND status <> 'failed'`,
		intentID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum refunds: %w", err)
	}
	return money.Parse(total)
}
