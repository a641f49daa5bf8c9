package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "benefits/pkg/domain-errors"
)

// Store-assigned identifiers are positive bigserial values. The ordering of
// BeneficiaryID is meaningful: verified pairs are stored smallest-first.
type (
	BeneficiaryID int64
	ClaimID       int64
	TenantID      int64
	PairID        int64
)

// UserID identifies an authenticated staff member. Users are issued by the
// external identity provider, so they are UUIDs rather than local sequences.
type UserID uuid.UUID

func (id BeneficiaryID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id ClaimID) String() string       { return strconv.FormatInt(int64(id), 10) }
func (id TenantID) String() string      { return strconv.FormatInt(int64(id), 10) }
func (id PairID) String() string        { return strconv.FormatInt(int64(id), 10) }

func (id BeneficiaryID) IsNil() bool { return id <= 0 }
func (id ClaimID) IsNil() bool       { return id <= 0 }
func (id TenantID) IsNil() bool      { return id <= 0 }
func (id PairID) IsNil() bool        { return id <= 0 }

func (id UserID) String() string { return uuid.UUID(id).String() }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// ParseBeneficiaryID parses a positive decimal identifier.
func ParseBeneficiaryID(s string) (BeneficiaryID, error) {
	v, err := parsePositive(s, "beneficiary")
	return BeneficiaryID(v), err
}

// ParseClaimID parses a positive decimal identifier.
func ParseClaimID(s string) (ClaimID, error) {
	v, err := parsePositive(s, "claim")
	return ClaimID(v), err
}

// ParseTenantID parses a positive decimal identifier.
func ParseTenantID(s string) (TenantID, error) {
	v, err := parsePositive(s, "tenant")
	return TenantID(v), err
}

// ParsePairID parses a positive decimal identifier.
func ParsePairID(s string) (PairID, error) {
	v, err := parsePositive(s, "pair")
	return PairID(v), err
}

// ParseUserID parses a non-nil UUID.
func ParseUserID(s string) (UserID, error) {
	if s == "" {
		return UserID{}, dErrors.New(dErrors.CodeInvalidInput, "user ID required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid user ID")
	}
	if parsed == uuid.Nil {
		return UserID{}, dErrors.New(dErrors.CodeInvalidInput, "user ID cannot be nil")
	}
	return UserID(parsed), nil
}

// maxIDLength bounds input before parsing; int64 never needs more than 19 digits.
const maxIDLength = 19

func parsePositive(s, kind string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "%s ID required", kind)
	}
	if len(s) > maxIDLength {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s ID", kind)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind+" ID")
	}
	if v <= 0 {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "%s ID must be positive", kind)
	}
	return v, nil
}
