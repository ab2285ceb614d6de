// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides a behavioral test suite shared by every
// auth.IdentityStore implementation.
package authtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/warden/internal/auth"
)

// StoreFactory returns an empty store. It is called once per subtest.
type StoreFactory func(t *testing.T) auth.IdentityStore

// RunStoreContract runs the IdentityStore behavior suite against stores made by newStore.
func RunStoreContract(t *testing.T, newStore StoreFactory) {
	t.Helper()

	t.Run("Add assigns identity", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		user, err := store.Add(ctx, "a@example.com", []byte("digest"))
		require.NoError(t, err)
		assert.False(t, user.ID.IsZero())
		assert.Equal(t, "a@example.com", user.Email)
		assert.Equal(t, []byte("digest"), user.HashedPassword)
		assert.Nil(t, user.SessionID)
		assert.Nil(t, user.ResetToken)
		assert.False(t, user.CreatedAt.IsZero())

		other, err := store.Add(ctx, "b@example.com", []byte("digest"))
		require.NoError(t, err)
		assert.NotEqual(t, user.ID, other.ID)
	})

	t.Run("Add rejects taken email", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Add(ctx, "a@example.com", []byte("one"))
		require.NoError(t, err)

		_, err = store.Add(ctx, "a@example.com", []byte("two"))
		require.ErrorIs(t, err, auth.ErrDuplicateIdentity)

		found, err := store.FindBy(ctx, auth.ByEmail("a@example.com"))
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), found.HashedPassword, "first registration is kept")
	})

	t.Run("email match is case-sensitive", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Add(ctx, "a@example.com", []byte("digest"))
		require.NoError(t, err)

		_, err = store.FindBy(ctx, auth.ByEmail("A@example.com"))
		require.ErrorIs(t, err, auth.ErrNotFound)

		_, err = store.Add(ctx, "A@example.com", []byte("digest"))
		require.NoError(t, err)
	})

	t.Run("FindBy every criterion", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		user, err := store.Add(ctx, "a@example.com", []byte("digest"))
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, user.ID,
			auth.SetSessionID("session-digest"),
			auth.SetResetToken("reset-digest")))

		for _, c := range []auth.Criterion{
			auth.ByEmail("a@example.com"),
			auth.ByID(user.ID),
			auth.BySessionID("session-digest"),
			auth.ByResetToken("reset-digest"),
		} {
			found, err := store.FindBy(ctx, c)
			require.NoError(t, err, c.Field().String())
			assert.Equal(t, user.ID, found.ID, c.Field().String())
			require.NotNil(t, found.SessionID)
			assert.Equal(t, "session-digest", *found.SessionID)
			require.NotNil(t, found.ResetToken)
			assert.Equal(t, "reset-digest", *found.ResetToken)
		}
	})

	t.Run("FindBy no match", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, c := range []auth.Criterion{
			auth.ByEmail("nobody@example.com"),
			auth.ByID(ulid.Make()),
			auth.BySessionID("missing"),
			auth.ByResetToken("missing"),
		} {
			_, err := store.FindBy(ctx, c)
			require.ErrorIs(t, err, auth.ErrNotFound, c.Field().String())
		}
	})

	t.Run("FindBy rejects zero criterion", func(t *testing.T) {
		store := newStore(t)

		_, err := store.FindBy(context.Background(), auth.Criterion{})
		require.ErrorIs(t, err, auth.ErrInvalidCriterion)
	})

	t.Run("FindBy returns a copy", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		user, err := store.Add(ctx, "a@example.com", []byte("digest"))
		require.NoError(t, err)

		found, err := store.FindBy(ctx, auth.ByID(user.ID))
		require.NoError(t, err)
		found.Email = "changed@example.com"
		found.HashedPassword[0] = 'X'

		again, err := store.FindBy(ctx, auth.ByID(user.ID))
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", again.Email)
		assert.Equal(t, []byte("digest"), again.HashedPassword)
	})

	t.Run("Update applies all changes", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		user, err := store.Add(ctx, "a@example.com", []byte("old"))
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, user.ID, auth.SetResetToken("reset-digest")))

		err = store.Update(ctx, user.ID,
			auth.SetHashedPassword([]byte("new")),
			auth.SetSessionID("session-digest"),
			auth.ClearResetToken())
		require.NoError(t, err)

		found, err := store.FindBy(ctx, auth.ByID(user.ID))
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), found.HashedPassword)
		require.NotNil(t, found.SessionID)
		assert.Equal(t, "session-digest", *found.SessionID)
		assert.Nil(t, found.ResetToken)
		assert.False(t, found.UpdatedAt.Before(found.CreatedAt))

		_, err = store.FindBy(ctx, auth.ByResetToken("reset-digest"))
		require.ErrorIs(t, err, auth.ErrNotFound, "cleared token no longer resolves")
	})

	t.Run("Update replaces session", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		user, err := store.Add(ctx, "a@example.com", []byte("digest"))
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, user.ID, auth.SetSessionID("first")))
		require.NoError(t, store.Update(ctx, user.ID, auth.SetSessionID("second")))

		_, err = store.FindBy(ctx, auth.BySessionID("first"))
		require.ErrorIs(t, err, auth.ErrNotFound)

		found, err := store.FindBy(ctx, auth.BySessionID("second"))
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)

		require.NoError(t, store.Update(ctx, user.ID, auth.ClearSessionID()))
		_, err = store.FindBy(ctx, auth.BySessionID("second"))
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("Update last change to a field wins", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		user, err := store.Add(ctx, "a@example.com", []byte("digest"))
		require.NoError(t, err)

		err = store.Update(ctx, user.ID, auth.SetSessionID("first"), auth.SetSessionID("second"))
		require.NoError(t, err)

		found, err := store.FindBy(ctx, auth.ByID(user.ID))
		require.NoError(t, err)
		require.NotNil(t, found.SessionID)
		assert.Equal(t, "second", *found.SessionID)
	})

	t.Run("Update unknown id", func(t *testing.T) {
		store := newStore(t)

		err := store.Update(context.Background(), ulid.Make(), auth.ClearSessionID())
		require.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("Update rejects zero change and applies nothing", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		user, err := store.Add(ctx, "a@example.com", []byte("digest"))
		require.NoError(t, err)

		err = store.Update(ctx, user.ID, auth.SetSessionID("session-digest"), auth.FieldChange{})
		require.ErrorIs(t, err, auth.ErrInvalidField)

		found, err := store.FindBy(ctx, auth.ByID(user.ID))
		require.NoError(t, err)
		assert.Nil(t, found.SessionID)
	})

	t.Run("Update rejects session held by another user", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		a, err := store.Add(ctx, "a@example.com", []byte("digest"))
		require.NoError(t, err)
		b, err := store.Add(ctx, "b@example.com", []byte("digest"))
		require.NoError(t, err)

		require.NoError(t, store.Update(ctx, a.ID, auth.SetSessionID("shared")))
		err = store.Update(ctx, b.ID, auth.SetSessionID("shared"))
		require.ErrorIs(t, err, auth.ErrDuplicateIdentity)
	})

	t.Run("ConsumeResetToken", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		user, err := store.Add(ctx, "a@example.com", []byte("old"))
		require.NoError(t, err)
		require.NoError(t, store.Update(ctx, user.ID, auth.SetResetToken("reset-digest")))

		err = store.Update(ctx, user.ID, auth.SetHashedPassword([]byte("wrong")), auth.ConsumeResetToken("other-digest"))
		require.ErrorIs(t, err, auth.ErrNotFound, "guard mismatch")

		found, err := store.FindBy(ctx, auth.ByID(user.ID))
		require.NoError(t, err)
		assert.Equal(t, []byte("old"), found.HashedPassword, "failed guard applies nothing")

		err = store.Update(ctx, user.ID, auth.SetHashedPassword([]byte("new")), auth.ConsumeResetToken("reset-digest"))
		require.NoError(t, err)

		found, err = store.FindBy(ctx, auth.ByID(user.ID))
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), found.HashedPassword)
		assert.Nil(t, found.ResetToken)

		err = store.Update(ctx, user.ID, auth.SetHashedPassword([]byte("again")), auth.ConsumeResetToken("reset-digest"))
		require.ErrorIs(t, err, auth.ErrNotFound, "token is single-use")
	})

	t.Run("concurrent Add of one email has one winner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const writers = 8
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			wins     int
			dupes    int
			failures []error
		)
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Add(ctx, "race@example.com", fmt.Appendf(nil, "digest-%d", i))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case auth.IsRejection(err):
					dupes++
				default:
					failures = append(failures, err)
				}
			}()
		}
		wg.Wait()

		require.Empty(t, failures)
		assert.Equal(t, 1, wins)
		assert.Equal(t, writers-1, dupes)
	})
}
