package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/logger"
)

var processingResponse = json.RawMessage(`{"status":"processing"}`)

type Journal struct {
	cache  ResponseCache
	logger *logger.Logger
}

// NewJournal accepts a nil cache; lookups then always hit postgres
func NewJournal(cache ResponseCache, log *logger.Logger) *Journal {
	return &Journal{
		cache:  cache,
		logger: log,
	}
}

// Claim serializes every transaction that carries the same key. A second
// request for the key waits here until the first one commits or rolls back,
// so its Lookup then sees the winner's response.
func (j *Journal) Claim(ctx context.Context, tx *sql.Tx, key string) error {
	if key == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return nil
}

// Lookup returns the stored response for key. A journaled key without a
// response yet replays as {"status":"processing"}.
func (j *Journal) Lookup(ctx context.Context, q db.Querier, key string) (json.RawMessage, bool, error) {
	if key == "" {
		return nil, false, nil
	}

	if j.cache != nil {
		cached, err := j.cache.GetCachedResponse(ctx, key)
		if err != nil {
			j.logger.Warnf("Idempotency cache read failed for %s: %v", key, err)
		} else if cached != nil {
			return json.RawMessage(cached), true, nil
		}
	}

	var response sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT metadata->'response' FROM transactions WHERE idempotency_key = $1`,
		key,
	).Scan(&response)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up idempotency key: %w", err)
	}

	if !response.Valid || response.String == "null" {
		return processingResponse, true, nil
	}
	return json.RawMessage(response.String), true, nil
}

// Record journals an entry and returns its transaction id. A key that is
// already journaled returns ErrDuplicateKey and writes nothing.
func (j *Journal) Record(ctx context.Context, q db.Querier, entry Entry) (string, error) {
	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return "", err
	}

	if entry.IdempotencyKey == "" {
		var id string
		err := q.QueryRowContext(ctx, `
			INSERT INTO transactions (type, status, metadata)
			VALUES ($1, $2, $3::jsonb)
			RETURNING id
		`, entry.Type, entry.Status, metadata).Scan(&id)
		if err != nil {
			return "", fmt.Errorf("failed to record transaction: %w", err)
		}
		return id, nil
	}

	var id string
	err = q.QueryRowContext(ctx, `
		INSERT INTO transactions (type, status, idempotency_key, metadata)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id
	`, entry.Type, entry.Status, entry.IdempotencyKey, metadata).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrDuplicateKey, entry.IdempotencyKey)
	}
	if err != nil {
		return "", fmt.Errorf("failed to record transaction: %w", err)
	}
	return id, nil
}

// AttachResponse stores the replayable response under metadata.response
func (j *Journal) AttachResponse(ctx context.Context, q db.Querier, key string, response interface{}) error {
	if key == "" {
		return nil
	}
	payload, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		UPDATE transactions
		SET metadata = jsonb_set(metadata, '{response}', $2::jsonb, true), updated_at = now()
		WHERE idempotency_key = $1
	`, key, string(payload))
	if err != nil {
		return fmt.Errorf("failed to attach response: %w", err)
	}
	return nil
}

// SetStatus moves a journal row to a new status
func (j *Journal) SetStatus(ctx context.Context, q db.Querier, txnID, status string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE transactions SET status = $1, updated_at = now() WHERE id = $2`,
		status, txnID)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	return nil
}

// RecordAdjustment journals a reconciliation drift
func (j *Journal) RecordAdjustment(ctx context.Context, q db.Querier, metadata map[string]interface{}) (string, error) {
	return j.Record(ctx, q, Entry{
		Type:     TypeAdjustment,
		Status:   StatusDriftDetected,
		Metadata: metadata,
	})
}

// CacheResponse fills the fast path after the journal row committed
func (j *Journal) CacheResponse(ctx context.Context, key string, response interface{}) {
	if j.cache == nil || key == "" {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		j.logger.Warnf("Failed to encode cached response for %s: %v", key, err)
		return
	}
	if err := j.cache.CacheResponse(ctx, key, payload, ResponseTTL); err != nil {
		j.logger.Warnf("Failed to cache response for %s: %v", key, err)
	}
}

func marshalMetadata(metadata map[string]interface{}) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(payload), nil
}
