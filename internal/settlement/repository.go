package settlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/shopspring/decimal"
)

type Repository struct {
	db *db.DB
}

func NewRepository(database *db.DB) *Repository {
	return &Repository{db: database}
}

// EscrowTotalTx sums the escrow accounts of the treasury owner's platform wallets
func (r *Repository) EscrowTotalTx(ctx context.Context, q db.Querier, treasuryOwnerID, currency string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(la.balance), 0)
		FROM ledger_accounts la
		JOIN wallets w ON w.id = la.wallet_id
		WHERE w.owner_type = 'platform'
		  AND w.owner_id = $1
		  AND la.currency = $2
		  AND la.type = 'escrow'
	`

	var total decimal.Decimal
	if err := q.QueryRowContext(ctx, query, treasuryOwnerID, currency).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum escrow balances: %w", err)
	}
	return total, nil
}

// UpsertBatchTx returns the batch for the provider, currency and period,
// opening it on first reference
func (r *Repository) UpsertBatchTx(ctx context.Context, q db.Querier, in Input) (string, error) {
	query := `
		INSERT INTO settlement_batches (provider, currency, period_start, period_end, status)
		VALUES ($1, $2, $3, $4, 'open')
		ON CONFLICT (provider, currency, period_start, period_end) DO UPDATE SET provider = EXCLUDED.provider
		RETURNING id
	`

	var id string
	if err := q.QueryRowContext(ctx, query, in.Provider, in.Currency, in.PeriodStart, in.PeriodEnd).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to ensure settlement batch: %w", err)
	}
	return id, nil
}

func (r *Repository) InsertSettlementTx(ctx context.Context, q db.Querier, s *Settlement) error {
	query := `
		INSERT INTO settlements (batch_id, provider, currency, period_start, period_end, ledger_total, provider_total, drift, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := q.QueryRowContext(ctx, query,
		s.BatchID,
		s.Provider,
		s.Currency,
		s.PeriodStart,
		s.PeriodEnd,
		s.LedgerTotal.StringFixed(2),
		nullableDecimal(s.ProviderTotal),
		nullableDecimal(s.Drift),
		s.Status,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

func (r *Repository) InsertReportTx(ctx context.Context, q db.Querier, settlementID string, report *Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode reconciliation report: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO reconciliation_reports (settlement_id, report) VALUES ($1, $2)`,
		settlementID, string(payload),
	); err != nil {
		return fmt.Errorf("failed to insert reconciliation report: %w", err)
	}
	return nil
}

// LatestSettlement returns nil when reconciliation never ran
func (r *Repository) LatestSettlement(ctx context.Context) (*Settlement, error) {
	query := `
		SELECT id, batch_id, provider, currency, period_start::text, period_end::text,
		       ledger_total, provider_total, drift, status, created_at
		FROM settlements
		ORDER BY created_at DESC
		LIMIT 1
	`

	s, err := scanSettlement(r.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest settlement: %w", err)
	}
	return s, nil
}

func (r *Repository) ListSettlements(ctx context.Context, batchID string) ([]Settlement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, batch_id, provider, currency, period_start::text, period_end::text,
		       ledger_total, provider_total, drift, status, created_at
		FROM settlements
		WHERE batch_id = $1
		ORDER BY created_at DESC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var out []Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *Repository) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, provider, currency, period_start::text, period_end::text, status, created_at, closed_at
		FROM settlement_batches
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var b Batch
		var closedAt sql.NullTime
		if err := rows.Scan(&b.ID, &b.Provider, &b.Currency, &b.PeriodStart, &b.PeriodEnd, &b.Status, &b.CreatedAt, &closedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement batch: %w", err)
		}
		if closedAt.Valid {
			b.ClosedAt = &closedAt.Time
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CloseBatch marks an open batch closed; closing twice is a no-op
func (r *Repository) CloseBatch(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE settlement_batches
		SET status = 'closed', closed_at = COALESCE(closed_at, CURRENT_TIMESTAMP)
		WHERE id = $1
	`, id)
	if err != nil {
		if db.IsInvalidText(err) {
			return ErrBatchNotFound
		}
		return fmt.Errorf("failed to close settlement batch: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to close settlement batch: %w", err)
	}
	if n == 0 {
		return ErrBatchNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSettlement(row rowScanner) (*Settlement, error) {
	var s Settlement
	var batchID sql.NullString
	var providerTotal, drift decimal.NullDecimal
	if err := row.Scan(
		&s.ID,
		&batchID,
		&s.Provider,
		&s.Currency,
		&s.PeriodStart,
		&s.PeriodEnd,
		&s.LedgerTotal,
		&providerTotal,
		&drift,
		&s.Status,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	if batchID.Valid {
		s.BatchID = &batchID.String
	}
	if providerTotal.Valid {
		s.ProviderTotal = &providerTotal.Decimal
	}
	if drift.Valid {
		s.Drift = &drift.Decimal
	}
	return &s, nil
}

func nullableDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.StringFixed(2)
}
