package models

import (
	"strings"
	"time"

	id "benefits/pkg/domain"
	pstrings "benefits/pkg/platform/strings"
)

// Beneficiary is the Golden Record of one person in the provincial pool.
//
// Invariants:
//   - PhoneticKey always equals phonetic.Soundex(LastName)
//   - at most one active, untombstoned row per (first, last, birthdate, home tenant)
//   - rows are tombstoned through DeletedAt, never removed
type Beneficiary struct {
	ID            id.BeneficiaryID `json:"id"`
	FirstName     string           `json:"first_name"`
	MiddleName    string           `json:"middle_name,omitempty"`
	LastName      string           `json:"last_name"`
	PhoneticKey   string           `json:"phonetic_key"`
	Birthdate     time.Time        `json:"birthdate"`
	Gender        string           `json:"gender,omitempty"`
	ContactNumber string           `json:"contact_number,omitempty"`
	Address       string           `json:"address,omitempty"`
	ExternalID    string           `json:"external_id,omitempty"`
	HomeTenantID  id.TenantID      `json:"home_tenant_id"`
	IsActive      bool             `json:"is_active"`
	CreatedBy     id.UserID        `json:"created_by"`
	UpdatedBy     id.UserID        `json:"updated_by"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	DeletedAt     *time.Time       `json:"deleted_at,omitempty"`
}

// FullName is the comparison form used for distance ranking.
func (b *Beneficiary) FullName() string {
	return pstrings.FullName(b.FirstName, b.LastName)
}

// ExactKey identifies the exact-match lookup of find-or-create.
func (b *Beneficiary) ExactKey() string {
	return ExactKey(b.FirstName, b.LastName, b.Birthdate)
}

// Candidate is the intake data for find-or-create.
type Candidate struct {
	FirstName     string      `json:"first_name" validate:"required,max=100"`
	MiddleName    string      `json:"middle_name" validate:"max=100"`
	LastName      string      `json:"last_name" validate:"required,max=100"`
	Birthdate     time.Time   `json:"birthdate" validate:"required"`
	Gender        string      `json:"gender" validate:"omitempty,oneof=male female"`
	ContactNumber string      `json:"contact_number" validate:"max=32"`
	Address       string      `json:"address" validate:"max=500"`
	ExternalID    string      `json:"external_id" validate:"max=64"`
	HomeTenantID  id.TenantID `json:"home_tenant_id" validate:"gt=0"`
}

// Normalize trims and collapses free-text fields and truncates the birthdate
// to a calendar date.
func (c *Candidate) Normalize() {
	c.FirstName = pstrings.CollapseSpaces(c.FirstName)
	c.MiddleName = pstrings.CollapseSpaces(c.MiddleName)
	c.LastName = pstrings.CollapseSpaces(c.LastName)
	c.Gender = strings.ToLower(strings.TrimSpace(c.Gender))
	c.ContactNumber = strings.TrimSpace(c.ContactNumber)
	c.Address = pstrings.CollapseSpaces(c.Address)
	c.ExternalID = strings.TrimSpace(c.ExternalID)
	if !c.Birthdate.IsZero() {
		c.Birthdate = DateOnly(c.Birthdate)
	}
}

// UpdateRequest carries the editable fields of a beneficiary. Nil fields are
// left unchanged.
type UpdateRequest struct {
	FirstName     *string `json:"first_name,omitempty" validate:"omitempty,min=1,max=100"`
	MiddleName    *string `json:"middle_name,omitempty" validate:"omitempty,max=100"`
	LastName      *string `json:"last_name,omitempty" validate:"omitempty,min=1,max=100"`
	Gender        *string `json:"gender,omitempty" validate:"omitempty,oneof=male female"`
	ContactNumber *string `json:"contact_number,omitempty" validate:"omitempty,max=32"`
	Address       *string `json:"address,omitempty" validate:"omitempty,max=500"`
	ExternalID    *string `json:"external_id,omitempty" validate:"omitempty,max=64"`
}

// Normalize cleans every set field the way Candidate.Normalize does, so
// validation sees the stored form.
func (r *UpdateRequest) Normalize() {
	clean := func(v **string, fn func(string) string) {
		if *v != nil {
			cleaned := fn(**v)
			*v = &cleaned
		}
	}
	clean(&r.FirstName, pstrings.CollapseSpaces)
	clean(&r.MiddleName, pstrings.CollapseSpaces)
	clean(&r.LastName, pstrings.CollapseSpaces)
	clean(&r.Gender, func(s string) string { return strings.ToLower(strings.TrimSpace(s)) })
	clean(&r.ContactNumber, strings.TrimSpace)
	clean(&r.Address, pstrings.CollapseSpaces)
	clean(&r.ExternalID, strings.TrimSpace)
}

// BlankName reports whether a set first or last name is empty.
func (r *UpdateRequest) BlankName() bool {
	return (r.FirstName != nil && *r.FirstName == "") || (r.LastName != nil && *r.LastName == "")
}

// Apply copies the set fields onto b and reports whether the last name changed.
func (r *UpdateRequest) Apply(b *Beneficiary) (lastNameChanged bool) {
	set := func(dst *string, src *string, clean func(string) string) {
		if src != nil {
			*dst = clean(*src)
		}
	}
	set(&b.FirstName, r.FirstName, pstrings.CollapseSpaces)
	set(&b.MiddleName, r.MiddleName, pstrings.CollapseSpaces)
	if r.LastName != nil {
		last := pstrings.CollapseSpaces(*r.LastName)
		lastNameChanged = !strings.EqualFold(last, b.LastName)
		b.LastName = last
	}
	set(&b.Gender, r.Gender, func(s string) string { return strings.ToLower(strings.TrimSpace(s)) })
	set(&b.ContactNumber, r.ContactNumber, strings.TrimSpace)
	set(&b.Address, r.Address, pstrings.CollapseSpaces)
	set(&b.ExternalID, r.ExternalID, strings.TrimSpace)
	return lastNameChanged
}

// Match is a search hit ranked by edit distance.
type Match struct {
	Beneficiary *Beneficiary `json:"beneficiary"`
	Distance    int          `json:"distance"`
}

// ExactKey is the normalized (first, last, birthdate) key of the Golden Record
// lookup.
func ExactKey(first, last string, birthdate time.Time) string {
	return pstrings.NormalizeName(first) + "|" + pstrings.NormalizeName(last) + "|" + birthdate.Format(time.DateOnly)
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
