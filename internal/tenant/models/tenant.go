package models

import (
	"strings"
	"time"

	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
)

// Tenant is a municipal office and the owner of its budget ledger.
//
// Invariants:
//   - Code is non-empty, at most 32 characters, stored upper-case
//   - Name is non-empty and at most 128 characters
//   - AllocatedBudget is never negative
//
// UsedBudget ≤ AllocatedBudget is an expectation, not a constraint. A
// disbursement that pushes UsedBudget past the allocation is recorded and
// surfaces through Overrun.
type Tenant struct {
	ID              id.TenantID `json:"id" db:"id"`
	Code            string      `json:"code" db:"code"`
	Name            string      `json:"name" db:"name"`
	IsActive        bool        `json:"is_active" db:"is_active"`
	AllocatedBudget id.Money    `json:"allocated_budget" db:"allocated_budget"`
	UsedBudget      id.Money    `json:"used_budget" db:"used_budget"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// Overrun returns how far UsedBudget exceeds the allocation, or zero.
func (t *Tenant) Overrun() id.Money {
	if t.UsedBudget > t.AllocatedBudget {
		return t.UsedBudget - t.AllocatedBudget
	}
	return 0
}

// Remaining returns the unspent allocation, or zero once overrun.
func (t *Tenant) Remaining() id.Money {
	if t.UsedBudget >= t.AllocatedBudget {
		return 0
	}
	return t.AllocatedBudget - t.UsedBudget
}

func NewTenant(code, name string, allocated id.Money, now time.Time) (*Tenant, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	name = strings.TrimSpace(name)
	if code == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant code cannot be empty")
	}
	if len(code) > 32 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant code must be 32 characters or less")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name must be 128 characters or less")
	}
	if allocated < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "allocated budget cannot be negative")
	}
	return &Tenant{
		Code:            code,
		Name:            name,
		IsActive:        true,
		AllocatedBudget: allocated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// BudgetReport is the ledger view of one tenant.
type BudgetReport struct {
	TenantID  id.TenantID `json:"tenant_id"`
	Code      string      `json:"code"`
	Allocated id.Money    `json:"allocated"`
	Used      id.Money    `json:"used"`
	Remaining id.Money    `json:"remaining"`
	Overrun   id.Money    `json:"overrun"`
}

func (t *Tenant) Report() BudgetReport {
	return BudgetReport{
		TenantID:  t.ID,
		Code:      t.Code,
		Allocated: t.AllocatedBudget,
		Used:      t.UsedBudget,
		Remaining: t.Remaining(),
		Overrun:   t.Overrun(),
	}
}
