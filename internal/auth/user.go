// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// User is a registered identity.
//
// SessionID and ResetToken hold the SHA-256 digests of the tokens handed to
// the client, never the tokens themselves. A nil pointer means no active
// session or no outstanding reset request.
type User struct {
	ID             ulid.ULID
	Email          string
	HashedPassword []byte
	SessionID      *string
	ResetToken     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	c := *u
	c.HashedPassword = bytes.Clone(u.HashedPassword)
	if u.SessionID != nil {
		s := *u.SessionID
		c.SessionID = &s
	}
	if u.ResetToken != nil {
		r := *u.ResetToken
		c.ResetToken = &r
	}
	return &c
}

// IdentityStore persists users. Implementations must be safe for concurrent use.
type IdentityStore interface {
	// Add inserts a new user. The email existence check and the insert are a
	// single atomic step; a taken email yields ErrDuplicateIdentity.
	Add(ctx context.Context, email string, hashedPassword []byte) (*User, error)

	// FindBy returns the single user matching the criterion.
	// Returns ErrNotFound if none match and ErrInvalidCriterion for the zero Criterion.
	FindBy(ctx context.Context, criterion Criterion) (*User, error)

	// Update applies all changes to the user atomically.
	// Returns ErrNotFound for an unknown id (or a failed guard such as
	// ConsumeResetToken) and ErrInvalidField for a zero FieldChange.
	Update(ctx context.Context, id ulid.ULID, changes ...FieldChange) error
}
