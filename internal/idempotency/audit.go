package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/kmassidik/movegh/internal/common/db"
)

// AuditLog writes audit_logs rows. Only a hash of the payload is stored.
type AuditLog struct{}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) Write(ctx context.Context, q db.Querier, entry AuditEntry) error {
	hash, err := PayloadHash(entry.Payload)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO audit_logs (actor, action, target, request_id, ip, user_agent, payload_hash)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7)
	`, entry.Actor, entry.Action, entry.Target, entry.Meta.RequestID, entry.Meta.IP, entry.Meta.UserAgent, hash)
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// PayloadHash is the sha256 hex digest of the JSON encoding
func PayloadHash(payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode audit payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
