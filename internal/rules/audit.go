package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AuditEntry is an immutable record of a rule mutation.
type AuditEntry struct {
	ID             string          `json:"id"`
	OrganizerID    string          `json:"organizer_id"`
	Entity         string          `json:"entity"`
	EntityID       string          `json:"entity_id"`
	Action         string          `json:"action"`
	EventTypeScope []string        `json:"event_type_scope,omitempty"`
	CacheGen       int64           `json:"cache_generation"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Auditor records rule mutations.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry) error
	List(ctx context.Context, orgID string, limit int) ([]AuditEntry, error)
}

// AuditLog stores audit entries in Postgres through database/sql.
type AuditLog struct {
	db *sql.DB
}

// NewAuditLog creates an audit log.
func NewAuditLog(db *sql.DB) *AuditLog {
	return &AuditLog{db: db}
}

// Record inserts entry, filling in id and timestamp.
func (a *AuditLog) Record(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	payload := entry.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO rule_audit_events (
			id, organizer_id, entity, entity_id, action, event_type_scope, cache_generation, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.OrganizerID, entry.Entity, entry.EntityID, entry.Action,
		pq.Array(entry.EventTypeScope), entry.CacheGen, []byte(payload), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("rules: record audit event: %w", err)
	}
	return nil
}

// List returns the newest entries for an organizer.
func (a *AuditLog) List(ctx context.Context, orgID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, organizer_id, entity, entity_id, action, event_type_scope, cache_generation, payload, created_at
		FROM rule_audit_events
		WHERE organizer_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("rules: list audit events: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.OrganizerID, &e.Entity, &e.EntityID, &e.Action,
			pq.Array(&e.EventTypeScope), &e.CacheGen, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("rules: scan audit event: %w", err)
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}
