package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/shopspring/decimal"
)

type Repository struct {
	db *db.DB
}

func NewRepository(database *db.DB) *Repository {
	return &Repository{db: database}
}

// Summary counts captured payments, non-failed payouts and disputes since the cutoff
func (r *Repository) Summary(ctx context.Context, since time.Time) (*FinOSReport, error) {
	report := &FinOSReport{}

	var paymentsTotal, payoutsTotal decimal.Decimal
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM payment_intents
		WHERE status = 'captured' AND updated_at >= $1
	`, since).Scan(&report.Payments.Count, &paymentsTotal)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize payments: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM payouts
		WHERE status <> 'failed' AND created_at >= $1
	`, since).Scan(&report.Payouts.Count, &payoutsTotal)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize payouts: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM disputes WHERE created_at >= $1`, since,
	).Scan(&report.Disputes.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to count disputes: %w", err)
	}

	report.Payments.Total = paymentsTotal.StringFixed(2)
	report.Payouts.Total = payoutsTotal.StringFixed(2)
	return report, nil
}
