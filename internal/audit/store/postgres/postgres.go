package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"benefits/internal/audit"
	id "benefits/pkg/domain"
	txcontext "benefits/pkg/platform/tx"
)

// Store implements audit.Store on the audit_events table. Appends join the
// caller's transaction when one is carried in ctx so an audited change and its
// event commit together.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type eventRow struct {
	ID        uuid.UUID     `db:"id"`
	Timestamp time.Time     `db:"timestamp"`
	ActorID   uuid.NullUUID `db:"actor_id"`
	Action    string        `db:"action"`
	Subject   string        `db:"subject"`
	TenantID  sql.NullInt64 `db:"tenant_id"`
	Before    []byte        `db:"before"`
	After     []byte        `db:"after"`
	RequestID string        `db:"request_id"`
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	row := eventRow{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		Action:    string(event.Action),
		Subject:   event.Subject,
		Before:    nullableJSON(event.Before),
		After:     nullableJSON(event.After),
		RequestID: event.RequestID,
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if !event.ActorID.IsNil() {
		row.ActorID = uuid.NullUUID{UUID: uuid.UUID(event.ActorID), Valid: true}
	}
	if !event.TenantID.IsNil() {
		row.TenantID = sql.NullInt64{Int64: int64(event.TenantID), Valid: true}
	}

	query := `
		INSERT INTO audit_events (id, timestamp, actor_id, action, subject, tenant_id, before, after, request_id)
		VALUES (:id, :timestamp, :actor_id, :action, :subject, :tenant_id, :before, :after, :request_id)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := sqlx.NamedExecContext(ctx, txcontext.Pick(ctx, s.db), query, row); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	var rows []eventRow
	query := `
		SELECT id, timestamp, actor_id, action, subject, tenant_id, before, after, request_id
		FROM audit_events
		WHERE subject = $1
		ORDER BY timestamp DESC
	`
	if err := txcontext.Pick(ctx, s.db).SelectContext(ctx, &rows, query, subject); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	events := make([]audit.Event, 0, len(rows))
	for _, r := range rows {
		e := audit.Event{
			ID:        r.ID,
			Timestamp: r.Timestamp,
			Action:    audit.Action(r.Action),
			Subject:   r.Subject,
			Before:    json.RawMessage(r.Before),
			After:     json.RawMessage(r.After),
			RequestID: r.RequestID,
		}
		if r.ActorID.Valid {
			e.ActorID = id.UserID(r.ActorID.UUID)
		}
		if r.TenantID.Valid {
			e.TenantID = id.TenantID(r.TenantID.Int64)
		}
		events = append(events, e)
	}
	return events, nil
}

func nullableJSON(b json.RawMessage) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
