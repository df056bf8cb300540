// Package escrow tracks per-trip holds on captured funds.
package escrow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/kmassidik/movegh/internal/common/metrics"
	"github.com/kmassidik/movegh/internal/common/money"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Hold states
const (
	StateHeld     = "held"
	StateReleased = "released"
	StateRefunded = "refunded"
	StateDisputed = "disputed"
)

// Actions ops can apply to a hold
const (
	ActionRelease = "release"
	ActionRefund  = "refund"
	ActionDispute = "dispute"
)

var (
	ErrHoldNotFound          = errors.New("escrow hold not found")
	ErrIllegalHoldTransition = errors.New("escrow hold cannot make this transition")
	ErrInvalidAction         = errors.New("action must be release, refund or dispute")
)

// sources lists the states each target state may be entered from.
// released and refunded are terminal.
var sources = map[string][]string{
	StateReleased: {StateHeld, StateDisputed},
	StateRefunded: {StateHeld, StateDisputed},
	StateDisputed: {StateHeld},
}

// Hold is an escrow_holds row
type Hold struct {
	ID        string          `json:"id"`
	TripID    string          `json:"tripId"`
	IntentID  *string         `json:"intentId"`
	TxnID     *string         `json:"txnId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Resolution is the outcome of an ops action on a hold
type Resolution struct {
	HoldID    string `json:"holdId"`
	Status    string `json:"status"`
	DisputeID string `json:"disputeId,omitempty"`
}

type HoldInput struct {
	TripID   string
	IntentID string
	TxnID    string
	Amount   decimal.Decimal
	Currency string
}

type Manager struct {
	db     *db.DB
	logger *logger.Logger
}

func NewManager(database *db.DB, log *logger.Logger) *Manager {
	return &Manager{
		db:     database,
		logger: log,
	}
}

// Hold opens a hold in the held state
func (m *Manager) Hold(ctx context.Context, q db.Querier, in HoldInput) (*Hold, error) {
	hold := &Hold{
		TripID:   in.TripID,
		Amount:   money.Round2(in.Amount),
		Currency: in.Currency,
		Status:   StateHeld,
	}
	if in.IntentID != "" {
		hold.IntentID = &in.IntentID
	}
	if in.TxnID != "" {
		hold.TxnID = &in.TxnID
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO escrow_holds (trip_id, intent_id, txn_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, hold.TripID, hold.IntentID, hold.TxnID, money.String(hold.Amount), hold.Currency, hold.Status,
	).Scan(&hold.ID, &hold.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create escrow hold: %w", err)
	}

	metrics.EscrowHoldTotal.WithLabelValues(StateHeld).Inc()
	m.logger.Infof("Escrow hold %s opened for trip %s: %s %s", hold.ID, hold.TripID, money.String(hold.Amount), hold.Currency)
	return hold, nil
}

func (m *Manager) Release(ctx context.Context, q db.Querier, holdID string) error {
	return m.transition(ctx, q, holdID, StateReleased)
}

func (m *Manager) Refund(ctx context.Context, q db.Querier, holdID string) error {
	return m.transition(ctx, q, holdID, StateRefunded)
}

// Dispute marks the hold disputed and opens a disputes row
func (m *Manager) Dispute(ctx context.Context, q db.Querier, holdID, reason string) (string, error) {
	if err := m.transition(ctx, q, holdID, StateDisputed); err != nil {
		return "", err
	}

	var disputeID string
	err := q.QueryRowContext(ctx, `
		INSERT INTO disputes (hold_id, intent_id, reason)
		SELECT id, intent_id, NULLIF($2, '') FROM escrow_holds WHERE id = $1
		RETURNING id
	`, holdID, reason).Scan(&disputeID)
	if err != nil {
		return "", fmt.Errorf("failed to open dispute: %w", err)
	}
	return disputeID, nil
}

// transition moves a hold only from one of its allowed source states.
// Leaving disputed closes the hold's open disputes.
func (m *Manager) transition(ctx context.Context, q db.Querier, holdID, state string) error {
	result, err := q.ExecContext(ctx, `
		UPDATE escrow_holds SET status = $1, updated_at = now()
		WHERE id = $2 AND status = ANY($3)
	`, state, holdID, pq.Array(sources[state]))
	if db.IsInvalidText(err) {
		return ErrHoldNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update escrow hold %s: %w", holdID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var current string
		err := q.QueryRowContext(ctx, `SELECT status FROM escrow_holds WHERE id = $1`, holdID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrHoldNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read escrow hold %s: %w", holdID, err)
		}
		return fmt.Errorf("%w: %s -> %s", ErrIllegalHoldTransition, current, state)
	}

	if state != StateDisputed {
		if _, err := q.ExecContext(ctx,
			`UPDATE disputes SET status = 'resolved' WHERE hold_id = $1 AND status = 'open'`,
			holdID); err != nil {
			return fmt.Errorf("failed to close disputes for hold %s: %w", holdID, err)
		}
	}

	metrics.EscrowHoldTotal.WithLabelValues(state).Inc()
	m.logger.Infof("Escrow hold %s is now %s", holdID, state)
	return nil
}

// Apply runs one ops action against a hold in its own transaction
func (m *Manager) Apply(ctx context.Context, holdID, action, reason string) (*Resolution, error) {
	res := &Resolution{HoldID: holdID}
	err := m.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		switch action {
		case ActionRelease:
			res.Status = StateReleased
			return m.Release(ctx, tx, holdID)
		case ActionRefund:
			res.Status = StateRefunded
			return m.Refund(ctx, tx, holdID)
		case ActionDispute:
			res.Status = StateDisputed
			id, err := m.Dispute(ctx, tx, holdID, reason)
			res.DisputeID = id
			return err
		default:
			return ErrInvalidAction
		}
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListOpenHolds returns held holds, newest first
func (m *Manager) ListOpenHolds(ctx context.Context) ([]Hold, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, trip_id, intent_id, txn_id, amount::text, currency, status, created_at
		FROM escrow_holds
		WHERE status = $1
		ORDER BY created_at DESC
	`, StateHeld)
	if err != nil {
		return nil, fmt.Errorf("failed to list open holds: %w", err)
	}
	defer rows.Close()

	holds := []Hold{}
	for rows.Next() {
		var h Hold
		var amount string
		if err := rows.Scan(&h.ID, &h.TripID, &h.IntentID, &h.TxnID, &amount, &h.Currency, &h.Status, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hold: %w", err)
		}
		if h.Amount, err = money.Parse(amount); err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}
