package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"benefits/internal/platform/postgres"
	"benefits/internal/tenant/models"
	id "benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
	txcontext "benefits/pkg/platform/tx"
)

// PostgresStore persists tenants and their budget ledger.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tenantColumns = `id, code, name, is_active, allocated_budget, used_budget, created_at, updated_at`

func (s *PostgresStore) CreateIfCodeAvailable(ctx context.Context, t *models.Tenant) error {
	query := `
		INSERT INTO tenants (code, name, is_active, allocated_budget, used_budget, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := txcontext.Pick(ctx, s.db).QueryRowxContext(ctx, query,
		t.Code, t.Name, t.IsActive, t.AllocatedBudget, t.UsedBudget, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("tenant code %q: %w", t.Code, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	return s.findOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, int64(tenantID))
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*models.Tenant, error) {
	return s.findOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE upper(code) = upper($1)`, code)
}

// LockForUpdate reads the tenant row under FOR UPDATE. It must run inside a
// transaction carried by ctx; the lock is released at commit.
func (s *PostgresStore) LockForUpdate(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	if _, ok := txcontext.From(ctx); !ok {
		return nil, fmt.Errorf("lock tenant %s: no transaction in context", tenantID)
	}
	return s.findOne(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1 FOR UPDATE`, int64(tenantID))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Tenant, error) {
	var t models.Tenant
	if err := txcontext.Pick(ctx, s.db).GetContext(ctx, &t, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant %v: %w", arg, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find tenant: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) FindNames(ctx context.Context, ids []id.TenantID) (map[id.TenantID]string, error) {
	out := make(map[id.TenantID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]int64, len(ids))
	for i, tid := range ids {
		raw[i] = int64(tid)
	}
	var rows []struct {
		ID   id.TenantID `db:"id"`
		Name string      `db:"name"`
	}
	if err := txcontext.Pick(ctx, s.db).SelectContext(ctx, &rows,
		`SELECT id, name FROM tenants WHERE id = ANY($1)`, pq.Array(raw)); err != nil {
		return nil, fmt.Errorf("find tenant names: %w", err)
	}
	for _, r := range rows {
		out[r.ID] = r.Name
	}
	return out, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Tenant, error) {
	var tenants []*models.Tenant
	if err := txcontext.Pick(ctx, s.db).SelectContext(ctx, &tenants,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// IncrementUsedBudget adds amount in a single UPDATE and returns the new total.
func (s *PostgresStore) IncrementUsedBudget(ctx context.Context, tenantID id.TenantID, amount id.Money) (id.Money, error) {
	var used id.Money
	err := txcontext.Pick(ctx, s.db).QueryRowxContext(ctx, `
		UPDATE tenants
		SET used_budget = used_budget + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING used_budget
	`, int64(tenantID), int64(amount)).Scan(&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
		}
		return 0, fmt.Errorf("increment used budget: %w", err)
	}
	return used, nil
}

func (s *PostgresStore) SetAllocatedBudget(ctx context.Context, tenantID id.TenantID, amount id.Money) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`UPDATE tenants SET allocated_budget = $2, updated_at = NOW() WHERE id = $1`, int64(tenantID), int64(amount))
	if err != nil {
		return fmt.Errorf("set allocated budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
	}
	return nil
}
