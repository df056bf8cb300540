package payout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/money"
)

type Repository struct {
	db *db.DB
}

func NewRepository(database *db.DB) *Repository {
	return &Repository{db: database}
}

// CreatePayoutTx inserts the payout in the queued state
func (r *Repository) CreatePayoutTx(ctx context.Context, q db.Querier, p *Payout) error {
	query := `
		INSERT INTO payouts (driver_id, amount, currency, provider, destination, status, txn_id)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::uuid)
		RETURNING id, created_at, updated_at
	`

	txnID := ""
	if p.TxnID != nil {
		txnID = *p.TxnID
	}
	err := q.QueryRowContext(ctx, query,
		p.DriverID, money.String(p.Amount), p.Currency, p.Provider, p.Destination, p.Status, txnID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}
	return nil
}

// UpdateStatusTx writes back the provider's status and reference
func (r *Repository) UpdateStatusTx(ctx context.Context, q db.Querier, id, status, providerRef string) error {
	result, err := q.ExecContext(ctx, `
		UPDATE payouts
		SET status = $1, provider_ref = COALESCE(NULLIF($2, ''), provider_ref), updated_at = now()
		WHERE id = $3
	`, status, providerRef, id)
	if err != nil {
		return fmt.Errorf("failed to update payout: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrPayoutNotFound
	}
	return nil
}

func (r *Repository) GetPayout(ctx context.Context, id string) (*Payout, error) {
	query := `
		SELECT id, driver_id, amount::text, currency, provider, destination, status,
		       provider_ref, txn_id, created_at, updated_at
		FROM payouts
		WHERE id = $1
	`

	var p Payout
	var amount string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.DriverID, &amount, &p.Currency, &p.Provider, &p.Destination, &p.Status,
		&p.ProviderRef, &p.TxnID, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) || db.IsInvalidText(err) {
		return nil, ErrPayoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	if p.Amount, err = money.Parse(amount); err != nil {
		return nil, err
	}
	return &p, nil
}
