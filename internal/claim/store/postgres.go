package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"benefits/internal/claim/models"
	riskmodels "benefits/internal/risk/models"
	"benefits/internal/tenant/policy"
	id "benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
	txcontext "benefits/pkg/platform/tx"
)

// PostgresStore persists claims. Status changes are conditional UPDATEs on
// the current status; no row locks are taken on claims.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const claimColumns = `id, beneficiary_id, tenant_id, category, amount, status, is_flagged, flag_reason,
	risk_assessment, rejection_reason, created_by, updated_by, created_at, updated_at, scored_at,
	reviewed_at, approved_at, disbursed_at, rejected_at, cancelled_at, deleted_at`

type claimRow struct {
	ID              int64         `db:"id"`
	BeneficiaryID   int64         `db:"beneficiary_id"`
	TenantID        int64         `db:"tenant_id"`
	Category        string        `db:"category"`
	Amount          int64         `db:"amount"`
	Status          string        `db:"status"`
	IsFlagged       bool          `db:"is_flagged"`
	FlagReason      string        `db:"flag_reason"`
	RiskAssessment  []byte        `db:"risk_assessment"`
	RejectionReason string        `db:"rejection_reason"`
	CreatedBy       uuid.NullUUID `db:"created_by"`
	UpdatedBy       uuid.NullUUID `db:"updated_by"`
	CreatedAt       time.Time     `db:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at"`
	ScoredAt        sql.NullTime  `db:"scored_at"`
	ReviewedAt      sql.NullTime  `db:"reviewed_at"`
	ApprovedAt      sql.NullTime  `db:"approved_at"`
	DisbursedAt     sql.NullTime  `db:"disbursed_at"`
	RejectedAt      sql.NullTime  `db:"rejected_at"`
	CancelledAt     sql.NullTime  `db:"cancelled_at"`
	DeletedAt       sql.NullTime  `db:"deleted_at"`
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r claimRow) toModel() (*models.Claim, error) {
	c := &models.Claim{
		ID:              id.ClaimID(r.ID),
		BeneficiaryID:   id.BeneficiaryID(r.BeneficiaryID),
		TenantID:        id.TenantID(r.TenantID),
		Category:        r.Category,
		Amount:          id.Money(r.Amount),
		Status:          models.Status(r.Status),
		IsFlagged:       r.IsFlagged,
		FlagReason:      r.FlagReason,
		RejectionReason: r.RejectionReason,
		CreatedBy:       id.UserID(r.CreatedBy.UUID),
		UpdatedBy:       id.UserID(r.UpdatedBy.UUID),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ScoredAt:        timePtr(r.ScoredAt),
		ReviewedAt:      timePtr(r.ReviewedAt),
		ApprovedAt:      timePtr(r.ApprovedAt),
		DisbursedAt:     timePtr(r.DisbursedAt),
		RejectedAt:      timePtr(r.RejectedAt),
		CancelledAt:     timePtr(r.CancelledAt),
		DeletedAt:       timePtr(r.DeletedAt),
	}
	if len(r.RiskAssessment) > 0 {
		var v riskmodels.Verdict
		if err := json.Unmarshal(r.RiskAssessment, &v); err != nil {
			return nil, fmt.Errorf("claim %d: decode risk assessment: %w", r.ID, err)
		}
		c.RiskAssessment = &v
	}
	return c, nil
}

func nullUser(u id.UserID) uuid.NullUUID {
	if u.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(u), Valid: true}
}

func encodeVerdict(v *riskmodels.Verdict) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (s *PostgresStore) Create(ctx context.Context, c *models.Claim) error {
	verdict, err := encodeVerdict(c.RiskAssessment)
	if err != nil {
		return fmt.Errorf("encode risk assessment: %w", err)
	}
	var claimID int64
	err = txcontext.Pick(ctx, s.db).QueryRowxContext(ctx, `
		INSERT INTO claims (beneficiary_id, tenant_id, category, amount, status, is_flagged, flag_reason,
			risk_assessment, created_by, updated_by, created_at, updated_at, scored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, $10, $10, $11)
		RETURNING id
	`, int64(c.BeneficiaryID), int64(c.TenantID), c.Category, int64(c.Amount), string(c.Status),
		c.IsFlagged, c.FlagReason, verdict, nullUser(c.CreatedBy), c.CreatedAt, c.ScoredAt).Scan(&claimID)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	c.ID = id.ClaimID(claimID)
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, claimID id.ClaimID) (*models.Claim, error) {
	var row claimRow
	err := txcontext.Pick(ctx, s.db).GetContext(ctx, &row,
		`SELECT `+claimColumns+` FROM claims WHERE id = $1 AND deleted_at IS NULL`, int64(claimID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("claim %s: %w", claimID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find claim: %w", err)
	}
	return row.toModel()
}

// ApplyFraudResult writes the verdict only while the claim is still waiting
// for it.
func (s *PostgresStore) ApplyFraudResult(ctx context.Context, claimID id.ClaimID, isRisky bool, reason string, verdict *riskmodels.Verdict, at time.Time) (bool, error) {
	encoded, err := encodeVerdict(verdict)
	if err != nil {
		return false, fmt.Errorf("encode risk assessment: %w", err)
	}
	exec := txcontext.Pick(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE claims
		SET status = $2, is_flagged = $3, flag_reason = $4, risk_assessment = $5, scored_at = $6, updated_at = $6
		WHERE id = $1 AND status = $7 AND deleted_at IS NULL
	`, int64(claimID), string(models.StatusPending), isRisky, reason, encoded, at, string(models.StatusPendingFraudCheck))
	if err != nil {
		return false, fmt.Errorf("apply fraud result: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	if _, err := s.FindByID(ctx, claimID); err != nil {
		return false, err
	}
	return false, nil
}

var stampColumns = map[models.Status]string{
	models.StatusUnderReview: "reviewed_at",
	models.StatusApproved:    "approved_at",
	models.StatusDisbursed:   "disbursed_at",
	models.StatusRejected:    "rejected_at",
	models.StatusCancelled:   "cancelled_at",
}

func (s *PostgresStore) Transition(ctx context.Context, claimID id.ClaimID, change models.Change) (*models.Claim, error) {
	column, ok := stampColumns[change.To]
	if !ok {
		return nil, fmt.Errorf("no manual transition into %s: %w", change.To, sentinel.ErrInvalidState)
	}
	set := fmt.Sprintf("status = $3, updated_at = $4, updated_by = $5, %s = $4", column)
	args := []any{int64(claimID), string(change.From), string(change.To), change.At, nullUser(change.By)}
	if change.To == models.StatusRejected {
		set += ", rejection_reason = $6"
		args = append(args, change.Reason)
	}

	var row claimRow
	err := txcontext.Pick(ctx, s.db).GetContext(ctx, &row, `
		UPDATE claims SET `+set+`
		WHERE id = $1 AND status = $2 AND deleted_at IS NULL
		RETURNING `+claimColumns, args...)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transition claim: %w", err)
		}
		current, findErr := s.FindByID(ctx, claimID)
		if findErr != nil {
			return nil, findErr
		}
		return nil, fmt.Errorf("claim %s is %s: %w", claimID, current.Status, sentinel.ErrInvalidState)
	}
	return row.toModel()
}

// List applies the caller's scope as a plain predicate alongside the filter.
func (s *PostgresStore) List(ctx context.Context, scope policy.Scope, filter models.ListFilter) ([]*models.Claim, error) {
	conds := []string{"deleted_at IS NULL"}
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.TenantID != 0 {
		add("tenant_id = $%d", int64(filter.TenantID))
	}
	if filter.BeneficiaryID != 0 {
		add("beneficiary_id = $%d", int64(filter.BeneficiaryID))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	pred, scopeArgs := scope.Where("tenant_id", len(args)+1)
	conds = append(conds, pred)
	args = append(args, scopeArgs...)
	args = append(args, filter.EffectiveLimit())

	query := `SELECT ` + claimColumns + ` FROM claims WHERE ` + strings.Join(conds, " AND ") +
		fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args))

	var rows []claimRow
	if err := txcontext.Pick(ctx, s.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	out := make([]*models.Claim, 0, len(rows))
	for _, r := range rows {
		c, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// RecentForBeneficiaries deliberately carries no tenant predicate: fraud
// scoring must see claims from every office.
func (s *PostgresStore) RecentForBeneficiaries(ctx context.Context, beneficiaryIDs []id.BeneficiaryID, since time.Time) ([]riskmodels.ClaimRecord, error) {
	if len(beneficiaryIDs) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(beneficiaryIDs))
	for i, b := range beneficiaryIDs {
		ids[i] = int64(b)
	}
	statuses := make([]string, len(models.CountedStatuses))
	for i, st := range models.CountedStatuses {
		statuses[i] = string(st)
	}

	var rows []struct {
		ID            int64     `db:"id"`
		BeneficiaryID int64     `db:"beneficiary_id"`
		TenantID      int64     `db:"tenant_id"`
		Category      string    `db:"category"`
		Status        string    `db:"status"`
		CreatedAt     time.Time `db:"created_at"`
	}
	err := txcontext.Pick(ctx, s.db).SelectContext(ctx, &rows, `
		SELECT id, beneficiary_id, tenant_id, category, status, created_at
		FROM claims
		WHERE beneficiary_id = ANY($1) AND status = ANY($2) AND created_at >= $3 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`, pq.Array(ids), pq.Array(statuses), since)
	if err != nil {
		return nil, fmt.Errorf("claim history: %w", err)
	}
	out := make([]riskmodels.ClaimRecord, len(rows))
	for i, r := range rows {
		out[i] = riskmodels.ClaimRecord{
			ClaimID:       id.ClaimID(r.ID),
			BeneficiaryID: id.BeneficiaryID(r.BeneficiaryID),
			TenantID:      id.TenantID(r.TenantID),
			Category:      r.Category,
			Status:        r.Status,
			CreatedAt:     r.CreatedAt,
		}
	}
	return out, nil
}

// CountStuck counts claims still waiting for a fraud check that were filed
// before the cutoff.
func (s *PostgresStore) CountStuck(ctx context.Context, before time.Time) (int, error) {
	var n int
	err := txcontext.Pick(ctx, s.db).GetContext(ctx, &n, `
		SELECT count(*) FROM claims
		WHERE status = $1 AND created_at < $2 AND deleted_at IS NULL
	`, string(models.StatusPendingFraudCheck), before)
	if err != nil {
		return 0, fmt.Errorf("count stuck claims: %w", err)
	}
	return n, nil
}
