package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"benefits/internal/platform/postgres"
	"benefits/internal/whitelist/models"
	id "benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
	txcontext "benefits/pkg/platform/tx"
)

// PostgresStore persists adjudications in verified_distinct_pairs. The CHECK
// constraint and the partial unique index back the invariants that
// models.NewPairKey and CreateIfNoLivePair enforce in code.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pairColumns = `id, beneficiary_a_id, beneficiary_b_id, status, similarity_snapshot, justification,
	verified_by, verified_at, revoked_by, revoked_at, revocation_reason, deleted_at`

type pairRow struct {
	ID                 int64         `db:"id"`
	BeneficiaryAID     int64         `db:"beneficiary_a_id"`
	BeneficiaryBID     int64         `db:"beneficiary_b_id"`
	Status             string        `db:"status"`
	SimilaritySnapshot []byte        `db:"similarity_snapshot"`
	Justification      string        `db:"justification"`
	VerifiedBy         uuid.UUID     `db:"verified_by"`
	VerifiedAt         time.Time     `db:"verified_at"`
	RevokedBy          uuid.NullUUID `db:"revoked_by"`
	RevokedAt          sql.NullTime  `db:"revoked_at"`
	RevocationReason   string        `db:"revocation_reason"`
	DeletedAt          sql.NullTime  `db:"deleted_at"`
}

func (r pairRow) toModel() (*models.Pair, error) {
	key, err := models.NewPairKey(id.BeneficiaryID(r.BeneficiaryAID), id.BeneficiaryID(r.BeneficiaryBID))
	if err != nil {
		return nil, fmt.Errorf("pair %d: %w", r.ID, err)
	}
	p := &models.Pair{
		ID:               id.PairID(r.ID),
		Key:              key,
		Status:           models.Status(r.Status),
		Justification:    r.Justification,
		VerifiedBy:       id.UserID(r.VerifiedBy),
		VerifiedAt:       r.VerifiedAt,
		RevocationReason: r.RevocationReason,
	}
	if len(r.SimilaritySnapshot) > 0 {
		if err := json.Unmarshal(r.SimilaritySnapshot, &p.SimilaritySnapshot); err != nil {
			return nil, fmt.Errorf("decode similarity snapshot: %w", err)
		}
	}
	if r.RevokedBy.Valid {
		u := id.UserID(r.RevokedBy.UUID)
		p.RevokedBy = &u
	}
	if r.RevokedAt.Valid {
		t := r.RevokedAt.Time
		p.RevokedAt = &t
	}
	if r.DeletedAt.Valid {
		t := r.DeletedAt.Time
		p.DeletedAt = &t
	}
	return p, nil
}

// FindLive looks the pair up in its normalized order, served by the (a, b) index.
func (s *PostgresStore) FindLive(ctx context.Context, key models.PairKey) (*models.Pair, error) {
	return s.findOne(ctx, `SELECT `+pairColumns+` FROM verified_distinct_pairs
		WHERE beneficiary_a_id = $1 AND beneficiary_b_id = $2
		  AND status <> 'revoked' AND deleted_at IS NULL`, int64(key.A()), int64(key.B()))
}

func (s *PostgresStore) FindByID(ctx context.Context, pairID id.PairID) (*models.Pair, error) {
	return s.findOne(ctx, `SELECT `+pairColumns+` FROM verified_distinct_pairs
		WHERE id = $1 AND deleted_at IS NULL`, int64(pairID))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*models.Pair, error) {
	var row pairRow
	if err := txcontext.Pick(ctx, s.db).GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pair: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find pair: %w", err)
	}
	return row.toModel()
}

func (s *PostgresStore) CreateIfNoLivePair(ctx context.Context, p *models.Pair) error {
	snapshot, err := json.Marshal(p.SimilaritySnapshot)
	if err != nil {
		return fmt.Errorf("encode similarity snapshot: %w", err)
	}
	var pairID int64
	err = txcontext.Pick(ctx, s.db).QueryRowxContext(ctx, `
		INSERT INTO verified_distinct_pairs (beneficiary_a_id, beneficiary_b_id, status, similarity_snapshot,
			justification, verified_by, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, int64(p.Key.A()), int64(p.Key.B()), string(p.Status), snapshot,
		p.Justification, uuid.UUID(p.VerifiedBy), p.VerifiedAt).Scan(&pairID)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("pair %s: %w", p.Key, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert pair: %w", err)
	}
	p.ID = id.PairID(pairID)
	return nil
}

// Revoke is a guarded status transition. It reports false when the pair was
// already revoked.
func (s *PostgresStore) Revoke(ctx context.Context, pairID id.PairID, by id.UserID, at time.Time, reason string) (bool, error) {
	exec := txcontext.Pick(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE verified_distinct_pairs
		SET status = 'revoked', revoked_by = $2, revoked_at = $3, revocation_reason = $4
		WHERE id = $1 AND status <> 'revoked' AND deleted_at IS NULL
	`, int64(pairID), uuid.UUID(by), at, reason)
	if err != nil {
		return false, fmt.Errorf("revoke pair: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	if _, err := s.FindByID(ctx, pairID); err != nil {
		return false, err
	}
	return false, nil
}

// ListFor returns every adjudication naming beneficiaryID in either column.
func (s *PostgresStore) ListFor(ctx context.Context, beneficiaryID id.BeneficiaryID) ([]*models.Pair, error) {
	var rows []pairRow
	err := txcontext.Pick(ctx, s.db).SelectContext(ctx, &rows, `
		SELECT `+pairColumns+` FROM verified_distinct_pairs
		WHERE (beneficiary_a_id = $1 OR beneficiary_b_id = $1) AND deleted_at IS NULL
		ORDER BY id
	`, int64(beneficiaryID))
	if err != nil {
		return nil, fmt.Errorf("list pairs: %w", err)
	}
	out := make([]*models.Pair, 0, len(rows))
	for _, r := range rows {
		p, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
