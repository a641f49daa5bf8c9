package models

import (
	"encoding/json"
	"time"

	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
)

// Status is the adjudication outcome of a pair.
type Status string

const (
	StatusConfirmedDistinct  Status = "confirmed_distinct"
	StatusConfirmedDuplicate Status = "confirmed_duplicate"
	StatusUnderReview        Status = "under_review"
	StatusRevoked            Status = "revoked"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusConfirmedDistinct, StatusConfirmedDuplicate, StatusUnderReview, StatusRevoked:
		return true
	}
	return false
}

// SuppressesRisk reports whether the adjudication removes the pair from risk
// scoring. Only an explicit confirmed-distinct decision does.
func (s Status) SuppressesRisk() bool {
	return s == StatusConfirmedDistinct
}

// PairKey is an unordered pair of distinct beneficiaries, stored with the
// smaller ID first. NewPairKey is the only way to build one.
type PairKey struct {
	a, b id.BeneficiaryID
}

// NewPairKey orders x and y. Equal or unset IDs are rejected.
func NewPairKey(x, y id.BeneficiaryID) (PairKey, error) {
	if x.IsNil() || y.IsNil() {
		return PairKey{}, dErrors.New(dErrors.CodeValidation, "both beneficiary ids are required")
	}
	if x == y {
		return PairKey{}, dErrors.New(dErrors.CodeValidation, "a beneficiary cannot be paired with itself")
	}
	if x > y {
		x, y = y, x
	}
	return PairKey{a: x, b: y}, nil
}

func (k PairKey) A() id.BeneficiaryID { return k.a }
func (k PairKey) B() id.BeneficiaryID { return k.b }

// Contains reports whether beneficiaryID is one side of the pair.
func (k PairKey) Contains(beneficiaryID id.BeneficiaryID) bool {
	return k.a == beneficiaryID || k.b == beneficiaryID
}

func (k PairKey) String() string { return k.a.String() + ":" + k.b.String() }

func (k PairKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		A id.BeneficiaryID `json:"beneficiary_a_id"`
		B id.BeneficiaryID `json:"beneficiary_b_id"`
	}{k.a, k.b})
}

// SimilaritySnapshot records the match metrics seen by the reviewer.
type SimilaritySnapshot struct {
	Distance       int    `json:"distance"`
	PhoneticKeyA   string `json:"phonetic_key_a"`
	PhoneticKeyB   string `json:"phonetic_key_b"`
	BirthdateMatch bool   `json:"birthdate_match"`
}

// Pair is one adjudication of a beneficiary pair.
type Pair struct {
	ID                 id.PairID          `json:"id"`
	Key                PairKey            `json:"pair"`
	Status             Status             `json:"status"`
	SimilaritySnapshot SimilaritySnapshot `json:"similarity_snapshot"`
	Justification      string             `json:"justification"`
	VerifiedBy         id.UserID          `json:"verified_by"`
	VerifiedAt         time.Time          `json:"verified_at"`
	RevokedBy          *id.UserID         `json:"revoked_by,omitempty"`
	RevokedAt          *time.Time         `json:"revoked_at,omitempty"`
	RevocationReason   string             `json:"revocation_reason,omitempty"`
	DeletedAt          *time.Time         `json:"deleted_at,omitempty"`
}

// IsLive reports whether the adjudication is current.
func (p *Pair) IsLive() bool {
	return p.Status != StatusRevoked && p.DeletedAt == nil
}

// CreatePairRequest is a reviewer's adjudication of two beneficiaries, in
// either order.
type CreatePairRequest struct {
	BeneficiaryA  id.BeneficiaryID `json:"beneficiary_a_id" validate:"gt=0"`
	BeneficiaryB  id.BeneficiaryID `json:"beneficiary_b_id" validate:"gt=0"`
	Status        Status           `json:"status" validate:"required,oneof=confirmed_distinct confirmed_duplicate under_review"`
	Justification string           `json:"justification" validate:"required,max=2000"`
}
