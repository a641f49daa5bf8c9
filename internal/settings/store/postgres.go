package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	id "benefits/pkg/domain"
	txcontext "benefits/pkg/platform/tx"
)

// PostgresStore reads and writes the settings table.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type settingRow struct {
	Key       string        `db:"key"`
	Value     string        `db:"value"`
	UpdatedBy uuid.NullUUID `db:"updated_by"`
	UpdatedAt time.Time     `db:"updated_at"`
}

func (s *PostgresStore) All(ctx context.Context) (map[string]string, error) {
	var rows []settingRow
	if err := txcontext.Pick(ctx, s.db).SelectContext(ctx, &rows,
		`SELECT key, value, updated_by, updated_at FROM settings`); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// Get returns the row for key, or nil when unset.
func (s *PostgresStore) Get(ctx context.Context, key string) (*Row, error) {
	var r settingRow
	err := txcontext.Pick(ctx, s.db).GetContext(ctx, &r,
		`SELECT key, value, updated_by, updated_at FROM settings WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get setting: %w", err)
	}
	row := &Row{Key: r.Key, Value: r.Value, UpdatedAt: r.UpdatedAt}
	if r.UpdatedBy.Valid {
		row.UpdatedBy = id.UserID(r.UpdatedBy.UUID)
	}
	return row, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string, by id.UserID, at time.Time) error {
	var updatedBy uuid.NullUUID
	if !by.IsNil() {
		updatedBy = uuid.NullUUID{UUID: uuid.UUID(by), Valid: true}
	}
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
	`, key, value, updatedBy, at)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}
