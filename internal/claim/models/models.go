package models

import (
	"time"

	identitymodels "benefits/internal/identity/models"
	riskmodels "benefits/internal/risk/models"
	id "benefits/pkg/domain"
)

// MaxClaimAmount caps a single claim at one million pesos.
const MaxClaimAmount id.Money = 100_000_000

// Status is a claim's lifecycle state.
type Status string

const (
	StatusPendingFraudCheck Status = "PENDING_FRAUD_CHECK"
	StatusPending           Status = "PENDING"
	StatusUnderReview       Status = "UNDER_REVIEW"
	StatusApproved          Status = "APPROVED"
	StatusDisbursed         Status = "DISBURSED"
	StatusRejected          Status = "REJECTED"
	StatusCancelled         Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusPendingFraudCheck: {StatusPending, StatusUnderReview, StatusRejected},
	StatusPending:           {StatusUnderReview, StatusApproved, StatusRejected, StatusCancelled},
	StatusUnderReview:       {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:          {StatusDisbursed, StatusRejected},
}

// CanTransitionTo reports whether next is reachable from s in one step.
// PENDING_FRAUD_CHECK to PENDING is listed but only the fraud-check
// write-back takes it.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusDisbursed || s == StatusRejected || s == StatusCancelled
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPendingFraudCheck, StatusPending, StatusUnderReview, StatusApproved,
		StatusDisbursed, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// CountedStatuses are the statuses risk scoring aggregates over.
var CountedStatuses = []Status{StatusApproved, StatusDisbursed, StatusPending, StatusUnderReview}

// Claim is one request for assistance filed at an office.
type Claim struct {
	ID              id.ClaimID          `json:"id"`
	BeneficiaryID   id.BeneficiaryID    `json:"beneficiary_id"`
	TenantID        id.TenantID         `json:"tenant_id"`
	Category        string              `json:"category"`
	Amount          id.Money            `json:"amount"`
	Status          Status              `json:"status"`
	IsFlagged       bool                `json:"is_flagged"`
	FlagReason      string              `json:"flag_reason,omitempty"`
	RiskAssessment  *riskmodels.Verdict `json:"risk_assessment,omitempty"`
	RejectionReason string              `json:"rejection_reason,omitempty"`
	CreatedBy       id.UserID           `json:"created_by"`
	UpdatedBy       id.UserID           `json:"updated_by"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	ScoredAt        *time.Time          `json:"scored_at,omitempty"`
	ReviewedAt      *time.Time          `json:"reviewed_at,omitempty"`
	ApprovedAt      *time.Time          `json:"approved_at,omitempty"`
	DisbursedAt     *time.Time          `json:"disbursed_at,omitempty"`
	RejectedAt      *time.Time          `json:"rejected_at,omitempty"`
	CancelledAt     *time.Time          `json:"cancelled_at,omitempty"`
	DeletedAt       *time.Time          `json:"deleted_at,omitempty"`
}

// Score attaches a verdict and moves the claim out of the holding state.
func (c *Claim) Score(isRisky bool, reason string, verdict *riskmodels.Verdict, at time.Time) {
	c.Status = StatusPending
	c.IsFlagged = isRisky
	c.FlagReason = reason
	c.RiskAssessment = verdict
	c.ScoredAt = &at
	c.UpdatedAt = at
}

// Stamp applies the status change and sets the timestamp that belongs to it.
func (c *Claim) Stamp(change Change) {
	at := change.At
	c.Status = change.To
	c.UpdatedAt = at
	c.UpdatedBy = change.By
	switch change.To {
	case StatusUnderReview:
		c.ReviewedAt = &at
	case StatusApproved:
		c.ApprovedAt = &at
	case StatusDisbursed:
		c.DisbursedAt = &at
	case StatusRejected:
		c.RejectedAt = &at
		c.RejectionReason = change.Reason
	case StatusCancelled:
		c.CancelledAt = &at
	}
}

// Change is one guarded status transition: it applies only while the claim
// is still in From.
type Change struct {
	From   Status
	To     Status
	At     time.Time
	By     id.UserID
	Reason string
}

// SubmitRequest is the intake of a new claim. The beneficiary is resolved by
// find-or-create; an empty HomeTenantID defaults to the filing office.
type SubmitRequest struct {
	Beneficiary identitymodels.Candidate `json:"beneficiary"`
	TenantID    id.TenantID              `json:"tenant_id"`
	Category    string                   `json:"category" validate:"required,max=64"`
	Amount      id.Money                 `json:"amount" validate:"gt=0,lte=100000000"`
}

// ListFilter narrows a claim listing. Zero values mean "any".
type ListFilter struct {
	TenantID      id.TenantID      `json:"tenant_id"`
	BeneficiaryID id.BeneficiaryID `json:"beneficiary_id"`
	Status        Status           `json:"status"`
	Limit         int              `json:"limit"`
}

const DefaultListLimit = 100

func (f ListFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return DefaultListLimit
	}
	return f.Limit
}
