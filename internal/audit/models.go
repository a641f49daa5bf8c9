package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	id "benefits/pkg/domain"
)

// Action names an audited state change.
type Action string

const (
	ActionBeneficiaryCreated Action = "beneficiary_created"
	ActionBeneficiaryUpdated Action = "beneficiary_updated"
	ActionBeneficiaryDeleted Action = "beneficiary_deleted"

	ActionPairCreated Action = "pair_created"
	ActionPairRevoked Action = "pair_revoked"

	ActionClaimSubmitted   Action = "claim_submitted"
	ActionClaimScored      Action = "claim_scored"
	ActionClaimUnderReview Action = "claim_under_review"
	ActionClaimApproved    Action = "claim_approved"
	ActionClaimRejected    Action = "claim_rejected"
	ActionClaimCancelled   Action = "claim_cancelled"
	ActionClaimDisbursed   Action = "claim_disbursed"
	ActionFraudCheckDead   Action = "fraud_check_dead"
	ActionSettingChanged   Action = "setting_changed"
	ActionBudgetAllocated  Action = "budget_allocated"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	ActorID   id.UserID
	Action    Action
	Subject   string
	TenantID  id.TenantID
	Before    json.RawMessage
	After     json.RawMessage
	RequestID string
}

// Snapshot marshals v for the Before/After fields. A value that cannot be
// marshalled is recorded as null rather than failing the audited operation.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
