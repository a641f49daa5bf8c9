package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"benefits/internal/fraudcheck/models"
	txcontext "benefits/pkg/platform/tx"
)

// PostgresStore persists dead letters in fraud_check_dead_letters.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Record upserts by task ID; a redelivered task that dies again refreshes
// its row.
func (s *PostgresStore) Record(ctx context.Context, letter models.DeadLetter) error {
	_, err := sqlx.NamedExecContext(ctx, txcontext.Pick(ctx, s.db), `
		INSERT INTO fraud_check_dead_letters (task_id, claim_id, attempts, last_error, failed_at)
		VALUES (:task_id, :claim_id, :attempts, :last_error, :failed_at)
		ON CONFLICT (task_id) DO UPDATE
		SET attempts = EXCLUDED.attempts, last_error = EXCLUDED.last_error, failed_at = EXCLUDED.failed_at
	`, letter)
	if err != nil {
		return fmt.Errorf("record dead letter: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []models.DeadLetter
	if err := txcontext.Pick(ctx, s.db).SelectContext(ctx, &out, `
		SELECT task_id, claim_id, attempts, last_error, failed_at
		FROM fraud_check_dead_letters
		ORDER BY failed_at DESC
		LIMIT $1
	`, limit); err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return out, nil
}
