package models

import (
	"time"

	"github.com/google/uuid"

	id "benefits/pkg/domain"
)

// Task carries everything needed to re-run scoring for one claim, so the
// worker never depends on reading the intake request back.
type Task struct {
	ID         uuid.UUID  `json:"id"`
	ClaimID    id.ClaimID `json:"claim_id"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Birthdate  time.Time  `json:"birthdate"`
	Category   string     `json:"category"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}

// NewTask builds a task with a fresh ID.
func NewTask(claimID id.ClaimID, firstName, lastName string, birthdate time.Time, category string, now time.Time) Task {
	return Task{
		ID:         uuid.New(),
		ClaimID:    claimID,
		FirstName:  firstName,
		LastName:   lastName,
		Birthdate:  birthdate,
		Category:   category,
		EnqueuedAt: now,
	}
}

// State is the terminal outcome of processing a task.
type State string

const (
	// StateSucceeded means the verdict was written back to the claim.
	StateSucceeded State = "succeeded"
	// StateSkipped means the claim had already advanced; nothing was written.
	StateSkipped State = "skipped"
	// StateDead means retries ran out. The claim stays in PENDING_FRAUD_CHECK
	// until someone acts on it.
	StateDead State = "dead"
	// StateInterrupted means shutdown cut the retries short. The task is not
	// acknowledged and will be delivered again.
	StateInterrupted State = "interrupted"
)

// Result records how a task ended.
type Result struct {
	TaskID   uuid.UUID  `json:"task_id"`
	ClaimID  id.ClaimID `json:"claim_id"`
	State    State      `json:"state"`
	Attempts int        `json:"attempts"`
	Err      error      `json:"-"`
}

// DeadLetter is the durable record of a task that exhausted its retries.
type DeadLetter struct {
	TaskID    uuid.UUID  `json:"task_id" db:"task_id"`
	ClaimID   id.ClaimID `json:"claim_id" db:"claim_id"`
	Attempts  int        `json:"attempts" db:"attempts"`
	LastError string     `json:"last_error" db:"last_error"`
	FailedAt  time.Time  `json:"failed_at" db:"failed_at"`
}
