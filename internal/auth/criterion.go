// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// CriterionField names a column users can be looked up by.
type CriterionField int

// Lookup fields. The zero value is not a valid field.
const (
	criterionUnset CriterionField = iota
	CriterionEmail
	CriterionSessionID
	CriterionResetToken
	CriterionID
)

// String returns the column name of the field.
func (f CriterionField) String() string {
	switch f {
	case CriterionEmail:
		return "email"
	case CriterionSessionID:
		return "session_id"
	case CriterionResetToken:
		return "reset_token"
	case CriterionID:
		return "id"
	default:
		return "unknown"
	}
}

// Criterion selects a single user. Build one with ByEmail, BySessionID,
// ByResetToken or ByID; the zero value is rejected by every store.
type Criterion struct {
	field CriterionField
	value string
}

// ByEmail matches the user registered with email (case-sensitive).
func ByEmail(email string) Criterion {
	return Criterion{field: CriterionEmail, value: email}
}

// BySessionID matches the user holding the session token digest.
func BySessionID(digest string) Criterion {
	return Criterion{field: CriterionSessionID, value: digest}
}

// ByResetToken matches the user holding the reset token digest.
func ByResetToken(digest string) Criterion {
	return Criterion{field: CriterionResetToken, value: digest}
}

// ByID matches the user with the given id.
func ByID(id ulid.ULID) Criterion {
	return Criterion{field: CriterionID, value: id.String()}
}

// Field returns the field the criterion matches on.
func (c Criterion) Field() CriterionField { return c.field }

// Value returns the value to match. IDs are returned in canonical ULID form.
func (c Criterion) Value() string { return c.value }

// Validate returns ErrInvalidCriterion unless the criterion names a known field.
func (c Criterion) Validate() error {
	switch c.field {
	case CriterionEmail, CriterionSessionID, CriterionResetToken, CriterionID:
		return nil
	default:
		return oops.Code("IDENTITY_INVALID_CRITERION").
			With("field", c.field.String()).
			Wrap(ErrInvalidCriterion)
	}
}

// Field names a user column that can be updated.
type Field int

// Updatable fields. The zero value is not a valid field.
const (
	fieldUnset Field = iota
	FieldHashedPassword
	FieldSessionID
	FieldResetToken
)

// String returns the column name of the field.
func (f Field) String() string {
	switch f {
	case FieldHashedPassword:
		return "hashed_password"
	case FieldSessionID:
		return "session_id"
	case FieldResetToken:
		return "reset_token"
	default:
		return "unknown"
	}
}

// FieldChange is one update to a user column. Build one with the Set*, Clear*
// and ConsumeResetToken constructors; the zero value is rejected by every store.
type FieldChange struct {
	field  Field
	digest []byte
	token  *string
	// expect, when set, is the value the column must currently hold for the
	// update to apply.
	expect *string
}

// SetHashedPassword replaces the password digest.
func SetHashedPassword(digest []byte) FieldChange {
	return FieldChange{field: FieldHashedPassword, digest: bytes.Clone(digest)}
}

// SetSessionID stores a session token digest, replacing any previous one.
func SetSessionID(digest string) FieldChange {
	return FieldChange{field: FieldSessionID, token: &digest}
}

// ClearSessionID removes the session token.
func ClearSessionID() FieldChange {
	return FieldChange{field: FieldSessionID}
}

// SetResetToken stores a reset token digest, replacing any previous one.
func SetResetToken(digest string) FieldChange {
	return FieldChange{field: FieldResetToken, token: &digest}
}

// ClearResetToken removes the reset token unconditionally.
func ClearResetToken() FieldChange {
	return FieldChange{field: FieldResetToken}
}

// ConsumeResetToken clears the reset token only if it currently equals digest.
// If it does not, the whole update fails with ErrNotFound and nothing changes.
func ConsumeResetToken(digest string) FieldChange {
	return FieldChange{field: FieldResetToken, expect: &digest}
}

// Field returns the column the change applies to.
func (c FieldChange) Field() Field { return c.field }

// Value returns the new column value: []byte for the password digest, and a
// *string (nil meaning NULL) for token columns.
func (c FieldChange) Value() any {
	if c.field == FieldHashedPassword {
		return c.digest
	}
	return c.token
}

// Expect returns the value the column must hold for the change to apply.
func (c FieldChange) Expect() (string, bool) {
	if c.expect == nil {
		return "", false
	}
	return *c.expect, true
}

// Validate returns ErrInvalidField unless the change names a known field.
func (c FieldChange) Validate() error {
	switch c.field {
	case FieldHashedPassword, FieldSessionID, FieldResetToken:
		return nil
	default:
		return oops.Code("IDENTITY_INVALID_FIELD").
			With("field", c.field.String()).
			Wrap(ErrInvalidField)
	}
}

// Holds reports whether u satisfies the change's guard, if any.
func (c FieldChange) Holds(u *User) bool {
	if c.expect == nil {
		return true
	}
	var current *string
	switch c.field {
	case FieldSessionID:
		current = u.SessionID
	case FieldResetToken:
		current = u.ResetToken
	default:
		return false
	}
	return current != nil && *current == *c.expect
}

// Apply writes the change into u.
func (c FieldChange) Apply(u *User) {
	switch c.field {
	case FieldHashedPassword:
		u.HashedPassword = bytes.Clone(c.digest)
	case FieldSessionID:
		u.SessionID = cloneString(c.token)
	case FieldResetToken:
		u.ResetToken = cloneString(c.token)
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Assignment is one column assignment of an UpdatePlan.
type Assignment struct {
	Column string
	Value  any
}

// Guard is one precondition of an UpdatePlan.
type Guard struct {
	Column string
	Value  string
}

// UpdatePlan is a validated, de-duplicated set of field changes ready to be
// rendered as a single UPDATE statement.
type UpdatePlan struct {
	Changes     []FieldChange
	Assignments []Assignment
	Guards      []Guard
	UpdatedAt   time.Time
}

// PlanUpdate validates changes and collapses repeated fields (the last change
// to a field wins). Assignments are returned in column order.
func PlanUpdate(changes []FieldChange, now time.Time) (UpdatePlan, error) {
	latest := make(map[Field]FieldChange, len(changes))
	for _, c := range changes {
		if err := c.Validate(); err != nil {
			return UpdatePlan{}, err
		}
		latest[c.field] = c
	}

	plan := UpdatePlan{UpdatedAt: now}
	for _, f := range []Field{FieldHashedPassword, FieldSessionID, FieldResetToken} {
		c, ok := latest[f]
		if !ok {
			continue
		}
		plan.Changes = append(plan.Changes, c)
		plan.Assignments = append(plan.Assignments, Assignment{Column: f.String(), Value: c.Value()})
		if want, guarded := c.Expect(); guarded {
			plan.Guards = append(plan.Guards, Guard{Column: f.String(), Value: want})
		}
	}
	return plan, nil
}

// Guarded returns true if the plan carries any precondition.
func (p UpdatePlan) Guarded() bool {
	return len(p.Guards) > 0
}
