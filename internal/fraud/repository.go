package fraud

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kmassidik/movegh/internal/common/db"
)

// Store is the persistence the assessor needs. Repository implements it
// over a transaction; tests substitute an in-memory version.
type Store interface {
	IsBlocked(ctx context.Context, riderID, phoneHash, deviceHash string) (bool, error)
	CountRecent(ctx context.Context, field Field, value string, window time.Duration) (int, error)
	UpsertRiskProfile(ctx context.Context, ownerType, ownerID, status string, score int, notes string) error
	InsertFlag(ctx context.Context, flag Flag) error
	InsertBlock(ctx context.Context, block Block) error
}

type Repository struct {
	q db.Querier
}

// NewRepository binds the store to q, usually the caller's *sql.Tx
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

func (r *Repository) IsBlocked(ctx context.Context, riderID, phoneHash, deviceHash string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM blocked_accounts
			WHERE (
				(owner_type = 'rider' AND owner_id = $1)
				OR (phone_hash IS NOT NULL AND phone_hash = NULLIF($2, ''))
				OR (device_hash IS NOT NULL AND device_hash = NULLIF($3, ''))
			)
			AND (blocked_until IS NULL OR blocked_until > now())
		)
	`

	var blocked bool
	if err := r.q.QueryRowContext(ctx, query, riderID, phoneHash, deviceHash).Scan(&blocked); err != nil {
		return false, fmt.Errorf("failed to check blocked accounts: %w", err)
	}
	return blocked, nil
}

func (r *Repository) CountRecent(ctx context.Context, field Field, value string, window time.Duration) (int, error) {
	var column string
	switch field {
	case FieldRider, FieldDevice, FieldPhone:
		column = string(field)
	default:
		return 0, fmt.Errorf("unknown velocity field %q", field)
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM payment_intents
		WHERE %s = $1 AND created_at > now() - ($2 * interval '1 second')
	`, column)

	var count int
	if err := r.q.QueryRowContext(ctx, query, value, int64(window.Seconds())).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent intents by %s: %w", column, err)
	}
	return count, nil
}

func (r *Repository) UpsertRiskProfile(ctx context.Context, ownerType, ownerID, status string, score int, notes string) error {
	query := `
		INSERT INTO risk_profiles (owner_type, owner_id, status, risk_score, notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_type, owner_id)
		DO UPDATE SET status = EXCLUDED.status, risk_score = EXCLUDED.risk_score,
			notes = EXCLUDED.notes, updated_at = now()
	`

	if _, err := r.q.ExecContext(ctx, query, ownerType, ownerID, status, score, notes); err != nil {
		return fmt.Errorf("failed to upsert risk profile: %w", err)
	}
	return nil
}

func (r *Repository) InsertFlag(ctx context.Context, flag Flag) error {
	details, err := json.Marshal(flag.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal flag details: %w", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO fraud_flags (intent_id, rider_id, flag_type, score, details) VALUES ($1, $2, $3, $4, $5)`,
		flag.IntentID, flag.RiderID, flag.FlagType, flag.Score, details)
	if err != nil {
		return fmt.Errorf("failed to insert fraud flag: %w", err)
	}
	return nil
}

func (r *Repository) InsertBlock(ctx context.Context, block Block) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO blocked_accounts (owner_type, owner_id, phone_hash, device_hash, reason, blocked_until)
		VALUES (NULLIF($1, ''), NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5, $6)
	`, block.OwnerType, block.OwnerID, block.PhoneHash, block.DeviceHash, block.Reason, block.BlockedUntil)
	if err != nil {
		return fmt.Errorf("failed to insert block: %w", err)
	}
	return nil
}
