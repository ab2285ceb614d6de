// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process auth.IdentityStore.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// Store keeps users in maps guarded by a single RWMutex. Each operation holds
// the lock for its whole duration, which makes Add and Update atomic.
type Store struct {
	mu        sync.RWMutex
	users     map[ulid.ULID]*auth.User
	byEmail   map[string]ulid.ULID
	bySession map[string]ulid.ULID
	byReset   map[string]ulid.ULID
	now       func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:     make(map[ulid.ULID]*auth.User),
		byEmail:   make(map[string]ulid.ULID),
		bySession: make(map[string]ulid.ULID),
		byReset:   make(map[string]ulid.ULID),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Add stores a new user.
func (s *Store) Add(ctx context.Context, email string, hashedPassword []byte) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("IDENTITY_ADD_FAILED").Wrap(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[email]; taken {
		return nil, oops.Code("IDENTITY_DUPLICATE").
			With("field", "email").
			Wrap(auth.ErrDuplicateIdentity)
	}

	now := s.now()
	user := &auth.User{
		ID:             ulid.Make(),
		Email:          email,
		HashedPassword: append([]byte(nil), hashedPassword...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.users[user.ID] = user
	s.byEmail[email] = user.ID

	return user.Clone(), nil
}

// FindBy returns a copy of the user matching the criterion.
func (s *Store) FindBy(ctx context.Context, criterion auth.Criterion) (*auth.User, error) {
	if err := criterion.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("IDENTITY_FIND_FAILED").Wrap(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.lookup(criterion)
	if !ok {
		return nil, oops.Code("IDENTITY_NOT_FOUND").
			With("criterion", criterion.Field().String()).
			Wrap(auth.ErrNotFound)
	}
	return user.Clone(), nil
}

func (s *Store) lookup(c auth.Criterion) (*auth.User, bool) {
	var (
		id ulid.ULID
		ok bool
	)
	switch c.Field() {
	case auth.CriterionEmail:
		id, ok = s.byEmail[c.Value()]
	case auth.CriterionSessionID:
		id, ok = s.bySession[c.Value()]
	case auth.CriterionResetToken:
		id, ok = s.byReset[c.Value()]
	case auth.CriterionID:
		parsed, err := ulid.Parse(c.Value())
		if err != nil {
			return nil, false
		}
		id, ok = parsed, true
	}
	if !ok {
		return nil, false
	}
	user, ok := s.users[id]
	return user, ok
}

// Update applies changes to the user atomically.
func (s *Store) Update(ctx context.Context, id ulid.ULID, changes ...auth.FieldChange) error {
	plan, err := auth.PlanUpdate(changes, s.now())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return oops.Code("IDENTITY_UPDATE_FAILED").Wrap(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[id]
	if !ok {
		return oops.Code("IDENTITY_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}

	for _, c := range plan.Changes {
		if !c.Holds(current) {
			return oops.Code("IDENTITY_PRECONDITION_FAILED").
				With("id", id.String()).
				With("field", c.Field().String()).
				Wrap(auth.ErrNotFound)
		}
	}

	next := current.Clone()
	for _, c := range plan.Changes {
		c.Apply(next)
	}
	next.UpdatedAt = plan.UpdatedAt

	if err := s.checkUnique(s.bySession, id, next.SessionID, auth.FieldSessionID); err != nil {
		return err
	}
	if err := s.checkUnique(s.byReset, id, next.ResetToken, auth.FieldResetToken); err != nil {
		return err
	}

	reindex(s.bySession, id, current.SessionID, next.SessionID)
	reindex(s.byReset, id, current.ResetToken, next.ResetToken)
	s.users[id] = next
	return nil
}

func (s *Store) checkUnique(index map[string]ulid.ULID, id ulid.ULID, value *string, field auth.Field) error {
	if value == nil {
		return nil
	}
	if owner, taken := index[*value]; taken && owner != id {
		return oops.Code("IDENTITY_DUPLICATE").
			With("field", field.String()).
			Wrap(auth.ErrDuplicateIdentity)
	}
	return nil
}

func reindex(index map[string]ulid.ULID, id ulid.ULID, before, after *string) {
	if before != nil {
		delete(index, *before)
	}
	if after != nil {
		index[*after] = id
	}
}

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Compile-time interface check.
var _ auth.IdentityStore = (*Store)(nil)
