package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kmassidik/movegh/internal/common/logger"
)

const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusFailed    = "failed"

	// MaxAttempts before an event is parked as failed
	MaxAttempts = 5
)

// Topics published by the payments engine
const (
	TopicIntentCreated   = "payment.intent_created"
	TopicPaymentCaptured = "payment.captured"
	TopicPaymentFailed   = "payment.failed"
	TopicPayoutRequested = "payout.requested"
	TopicDriftDetected   = "settlement.drift_detected"
)

// OutboxEvent is written in the same transaction as the state change it describes
type OutboxEvent struct {
	ID          string                 `json:"id"`
	AggregateID string                 `json:"aggregate_id"`
	EventType   string                 `json:"event_type"`
	Topic       string                 `json:"topic"`
	Payload     map[string]interface{} `json:"payload"`
	Status      string                 `json:"status"`
	Attempts    int                    `json:"attempts"`
	LastError   sql.NullString         `json:"-"`
	CreatedAt   time.Time              `json:"created_at"`
	PublishedAt sql.NullTime           `json:"-"`
}

type Repository struct {
	db     *sql.DB
	logger *logger.Logger
}

func NewRepository(database *sql.DB, log *logger.Logger) *Repository {
	return &Repository{db: database, logger: log}
}

// SaveEvent inserts the event inside tx
// NOTE: must share the transaction of the business write, never call with a fresh connection
func (r *Repository) SaveEvent(ctx context.Context, tx *sql.Tx, event *OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	query := `
		INSERT INTO outbox_events (aggregate_id, event_type, topic, payload, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	event.Status = StatusPending
	err = tx.QueryRowContext(ctx, query,
		event.AggregateID,
		event.EventType,
		event.Topic,
		payload,
		event.Status,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}

// GetPendingEvents returns unpublished events under the attempt limit, oldest first
func (r *Repository) GetPendingEvents(ctx context.Context, limit int) ([]OutboxEvent, error) {
	query := `
		SELECT id, aggregate_id, event_type, topic, payload, status, attempts, last_error, created_at, published_at
		FROM outbox_events
		WHERE status = $1 AND attempts < $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, StatusPending, MaxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Topic, &payload,
			&e.Status, &e.Attempts, &e.LastError, &e.CreatedAt, &e.PublishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			r.logger.Warnf("Outbox event %s has unreadable payload: %v", e.ID, err)
			e.Payload = map[string]interface{}{}
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

func (r *Repository) MarkAsPublished(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = $1, published_at = now() WHERE id = $2`,
		StatusPublished, id)
	if err != nil {
		return fmt.Errorf("failed to mark event published: %w", err)
	}
	return nil
}

func (r *Repository) MarkAsFailed(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = $1, last_error = $2 WHERE id = $3`,
		StatusFailed, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}

func (r *Repository) IncrementAttempt(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = $1 WHERE id = $2`,
		reason, id)
	if err != nil {
		return fmt.Errorf("failed to increment attempt: %w", err)
	}
	return nil
}
