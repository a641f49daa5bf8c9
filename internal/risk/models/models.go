package models

import (
	"strings"
	"time"

	id "benefits/pkg/domain"
)

// Level grades a verdict.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// FlagKind names one fraud signal.
type FlagKind string

const (
	FlagMultiTenant   FlagKind = "multi_tenant"
	FlagDoubleDipping FlagKind = "double_dipping"
	FlagHighFrequency FlagKind = "high_frequency"
)

// Flag is one fired signal with its reviewer-facing wording.
type Flag struct {
	Kind    FlagKind `json:"kind"`
	Message string   `json:"message"`
}

// Verdict is the outcome of one risk assessment. It is stored verbatim on the
// claim as the scoring snapshot.
type Verdict struct {
	IsRisky     bool      `json:"is_risky"`
	Level       Level     `json:"level"`
	Explanation string    `json:"explanation"`
	Flags       []Flag    `json:"flags"`
	MatchCount  int       `json:"match_count"`
	ClaimCount  int       `json:"claim_count"`
	AssessedAt  time.Time `json:"assessed_at"`
}

// HasFlag reports whether kind fired.
func (v *Verdict) HasFlag(kind FlagKind) bool {
	for _, f := range v.Flags {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// AssessRequest identifies the person being scored. Category is optional and
// enables the double-dipping check.
type AssessRequest struct {
	FirstName string    `json:"first_name" validate:"required"`
	LastName  string    `json:"last_name" validate:"required"`
	Birthdate time.Time `json:"birthdate" validate:"required"`
	Category  string    `json:"category"`
}

// ClaimRecord is the slice of a claim the engine aggregates.
type ClaimRecord struct {
	ClaimID       id.ClaimID
	BeneficiaryID id.BeneficiaryID
	TenantID      id.TenantID
	Category      string
	Status        string
	CreatedAt     time.Time
}

// GradeLevel maps the fired flags and the aggregated claim count to a level.
func GradeLevel(flags, claims int) Level {
	switch {
	case flags == 0:
		return LevelLow
	case flags >= 3 || claims >= 5:
		return LevelHigh
	default:
		return LevelMedium
	}
}

// NewVerdict assembles a verdict from fired flags.
func NewVerdict(flags []Flag, matches, claims int, at time.Time) *Verdict {
	messages := make([]string, len(flags))
	for i, f := range flags {
		messages[i] = f.Message
	}
	if flags == nil {
		flags = []Flag{}
	}
	return &Verdict{
		IsRisky:     len(flags) > 0,
		Level:       GradeLevel(len(flags), claims),
		Explanation: strings.Join(messages, "; "),
		Flags:       flags,
		MatchCount:  matches,
		ClaimCount:  claims,
		AssessedAt:  at,
	}
}
