package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"benefits/internal/identity/models"
	"benefits/internal/platform/postgres"
	id "benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
	pstrings "benefits/pkg/platform/strings"
	txcontext "benefits/pkg/platform/tx"
)

// PostgresStore persists the beneficiary pool.
type PostgresStore struct {
	db *sqlx.DB
	tx *postgres.TxRunner
}

func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, tx: postgres.NewTxRunner(db)}
}

const beneficiaryColumns = `id, first_name, middle_name, last_name, phonetic_key, birthdate, gender,
	contact_number, address, external_id, home_tenant_id, is_active, created_by, updated_by,
	created_at, updated_at, deleted_at`

type beneficiaryRow struct {
	ID            int64         `db:"id"`
	FirstName     string        `db:"first_name"`
	MiddleName    string        `db:"middle_name"`
	LastName      string        `db:"last_name"`
	PhoneticKey   string        `db:"phonetic_key"`
	Birthdate     time.Time     `db:"birthdate"`
	Gender        string        `db:"gender"`
	ContactNumber string        `db:"contact_number"`
	Address       string        `db:"address"`
	ExternalID    string        `db:"external_id"`
	HomeTenantID  int64         `db:"home_tenant_id"`
	IsActive      bool          `db:"is_active"`
	CreatedBy     uuid.NullUUID `db:"created_by"`
	UpdatedBy     uuid.NullUUID `db:"updated_by"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
	DeletedAt     sql.NullTime  `db:"deleted_at"`
}

func (r beneficiaryRow) toModel() *models.Beneficiary {
	b := &models.Beneficiary{
		ID:            id.BeneficiaryID(r.ID),
		FirstName:     r.FirstName,
		MiddleName:    r.MiddleName,
		LastName:      r.LastName,
		PhoneticKey:   r.PhoneticKey,
		Birthdate:     models.DateOnly(r.Birthdate),
		Gender:        r.Gender,
		ContactNumber: r.ContactNumber,
		Address:       r.Address,
		ExternalID:    r.ExternalID,
		HomeTenantID:  id.TenantID(r.HomeTenantID),
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.CreatedBy.Valid {
		b.CreatedBy = id.UserID(r.CreatedBy.UUID)
	}
	if r.UpdatedBy.Valid {
		b.UpdatedBy = id.UserID(r.UpdatedBy.UUID)
	}
	if r.DeletedAt.Valid {
		t := r.DeletedAt.Time
		b.DeletedAt = &t
	}
	return b
}

func nullUser(u id.UserID) uuid.NullUUID {
	if u.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(u), Valid: true}
}

// FindByPhoneticKey is the indexed pre-filter of similarity search.
func (s *PostgresStore) FindByPhoneticKey(ctx context.Context, key string, birthdate *time.Time) ([]*models.Beneficiary, error) {
	query := `SELECT ` + beneficiaryColumns + ` FROM beneficiaries
		WHERE phonetic_key = $1 AND deleted_at IS NULL AND is_active`
	args := []any{key}
	if birthdate != nil {
		query += ` AND birthdate = $2`
		args = append(args, models.DateOnly(*birthdate))
	}
	query += ` ORDER BY id`

	var rows []beneficiaryRow
	if err := txcontext.Pick(ctx, s.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("find by phonetic key: %w", err)
	}
	out := make([]*models.Beneficiary, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

const exactQuery = `SELECT ` + beneficiaryColumns + ` FROM beneficiaries
	WHERE lower(first_name) = $1 AND lower(last_name) = $2 AND birthdate = $3
	  AND deleted_at IS NULL AND is_active
	ORDER BY id
	LIMIT 1`

func (s *PostgresStore) FindExact(ctx context.Context, first, last string, birthdate time.Time) (*models.Beneficiary, error) {
	var row beneficiaryRow
	err := txcontext.Pick(ctx, s.db).GetContext(ctx, &row, exactQuery,
		pstrings.NormalizeName(first), pstrings.NormalizeName(last), models.DateOnly(birthdate))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("exact beneficiary: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find exact beneficiary: %w", err)
	}
	return row.toModel(), nil
}

// FindOrCreate returns the live row matching b's exact key, inserting b when
// none exists. The transaction-scoped advisory lock on the normalized key
// serializes concurrent registrations of the same person; the exact-match
// read runs FOR UPDATE under it. A unique violation on insert means the lock
// contract was broken and is returned as sentinel.ErrInvalidState.
func (s *PostgresStore) FindOrCreate(ctx context.Context, b *models.Beneficiary) (*models.Beneficiary, bool, error) {
	var (
		result  *models.Beneficiary
		created bool
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		exec := txcontext.Pick(txCtx, s.db)
		if _, err := exec.ExecContext(txCtx, `SELECT pg_advisory_xact_lock(hashtext($1))`, b.ExactKey()); err != nil {
			return fmt.Errorf("acquire registration lock: %w", err)
		}

		var row beneficiaryRow
		err := exec.GetContext(txCtx, &row, exactQuery+` FOR UPDATE`,
			pstrings.NormalizeName(b.FirstName), pstrings.NormalizeName(b.LastName), b.Birthdate)
		if err == nil {
			result = row.toModel()
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lock exact beneficiary: %w", err)
		}

		err = exec.QueryRowxContext(txCtx, `
			INSERT INTO beneficiaries (first_name, middle_name, last_name, phonetic_key, birthdate, gender,
				contact_number, address, external_id, home_tenant_id, is_active, created_by, updated_by,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12, $13, $13)
			RETURNING `+beneficiaryColumns,
			b.FirstName, b.MiddleName, b.LastName, b.PhoneticKey, b.Birthdate, b.Gender,
			b.ContactNumber, b.Address, b.ExternalID, int64(b.HomeTenantID), b.IsActive,
			nullUser(b.CreatedBy), b.CreatedAt,
		).StructScan(&row)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return fmt.Errorf("insert beneficiary under registration lock: %w", sentinel.ErrInvalidState)
			}
			return fmt.Errorf("insert beneficiary: %w", err)
		}
		result = row.toModel()
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, beneficiaryID id.BeneficiaryID) (*models.Beneficiary, error) {
	var row beneficiaryRow
	err := txcontext.Pick(ctx, s.db).GetContext(ctx, &row,
		`SELECT `+beneficiaryColumns+` FROM beneficiaries WHERE id = $1 AND deleted_at IS NULL`, int64(beneficiaryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("beneficiary %s: %w", beneficiaryID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find beneficiary: %w", err)
	}
	return row.toModel(), nil
}

// Update rewrites the editable fields of a live row. It takes the
// registration locks of both the stored and the new exact key, in key order,
// so a rename and a FindOrCreate of the target key never interleave.
func (s *PostgresStore) Update(ctx context.Context, b *models.Beneficiary) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		exec := txcontext.Pick(txCtx, s.db)

		var cur beneficiaryRow
		err := exec.GetContext(txCtx, &cur,
			`SELECT `+beneficiaryColumns+` FROM beneficiaries WHERE id = $1 AND deleted_at IS NULL`, int64(b.ID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("beneficiary %s: %w", b.ID, sentinel.ErrNotFound)
			}
			return fmt.Errorf("load beneficiary: %w", err)
		}
		for _, key := range registrationKeys(cur.toModel().ExactKey(), b.ExactKey()) {
			if _, err := exec.ExecContext(txCtx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
				return fmt.Errorf("acquire registration lock: %w", err)
			}
		}

		res, err := exec.ExecContext(txCtx, `
			UPDATE beneficiaries
			SET first_name = $2, middle_name = $3, last_name = $4, phonetic_key = $5, gender = $6,
				contact_number = $7, address = $8, external_id = $9, updated_by = $10, updated_at = $11
			WHERE id = $1 AND deleted_at IS NULL
		`, int64(b.ID), b.FirstName, b.MiddleName, b.LastName, b.PhoneticKey, b.Gender,
			b.ContactNumber, b.Address, b.ExternalID, nullUser(b.UpdatedBy), b.UpdatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return fmt.Errorf("beneficiary %s: %w", b.ID, sentinel.ErrAlreadyUsed)
			}
			return fmt.Errorf("update beneficiary: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("beneficiary %s: %w", b.ID, sentinel.ErrNotFound)
		}
		return nil
	})
}

// registrationKeys returns the distinct keys in lock order.
func registrationKeys(keys ...string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func (s *PostgresStore) Tombstone(ctx context.Context, beneficiaryID id.BeneficiaryID, by id.UserID, at time.Time) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		UPDATE beneficiaries SET deleted_at = $2, updated_by = $3, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, int64(beneficiaryID), at, nullUser(by))
	if err != nil {
		return fmt.Errorf("tombstone beneficiary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("beneficiary %s: %w", beneficiaryID, sentinel.ErrNotFound)
	}
	return nil
}
