// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/pkg/errutil"
)

func TestCriterion(t *testing.T) {
	id := ulid.Make()

	tests := []struct {
		criterion auth.Criterion
		field     auth.CriterionField
		column    string
		value     string
	}{
		{auth.ByEmail("a@example.com"), auth.CriterionEmail, "email", "a@example.com"},
		{auth.BySessionID("s"), auth.CriterionSessionID, "session_id", "s"},
		{auth.ByResetToken("r"), auth.CriterionResetToken, "reset_token", "r"},
		{auth.ByID(id), auth.CriterionID, "id", id.String()},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			require.NoError(t, tt.criterion.Validate())
			assert.Equal(t, tt.field, tt.criterion.Field())
			assert.Equal(t, tt.column, tt.criterion.Field().String())
			assert.Equal(t, tt.value, tt.criterion.Value())
		})
	}

	t.Run("zero value is invalid", func(t *testing.T) {
		err := auth.Criterion{}.Validate()
		require.ErrorIs(t, err, auth.ErrInvalidCriterion)
		errutil.AssertErrorCode(t, err, "IDENTITY_INVALID_CRITERION")
	})
}

func TestFieldChange(t *testing.T) {
	t.Run("zero value is invalid", func(t *testing.T) {
		err := auth.FieldChange{}.Validate()
		require.ErrorIs(t, err, auth.ErrInvalidField)
		errutil.AssertErrorCode(t, err, "IDENTITY_INVALID_FIELD")
	})

	t.Run("apply", func(t *testing.T) {
		user := &auth.User{HashedPassword: []byte("old")}

		auth.SetHashedPassword([]byte("new")).Apply(user)
		auth.SetSessionID("s").Apply(user)
		auth.SetResetToken("r").Apply(user)
		assert.Equal(t, []byte("new"), user.HashedPassword)
		require.NotNil(t, user.SessionID)
		assert.Equal(t, "s", *user.SessionID)
		require.NotNil(t, user.ResetToken)
		assert.Equal(t, "r", *user.ResetToken)

		auth.ClearSessionID().Apply(user)
		auth.ConsumeResetToken("r").Apply(user)
		assert.Nil(t, user.SessionID)
		assert.Nil(t, user.ResetToken)
	})

	t.Run("set copies the digest", func(t *testing.T) {
		digest := []byte("new")
		change := auth.SetHashedPassword(digest)
		digest[0] = 'X'
		assert.Equal(t, []byte("new"), change.Value())
	})

	t.Run("guard", func(t *testing.T) {
		token := "r"
		consume := auth.ConsumeResetToken("r")

		assert.True(t, consume.Holds(&auth.User{ResetToken: &token}))
		assert.False(t, consume.Holds(&auth.User{}))
		other := "other"
		assert.False(t, consume.Holds(&auth.User{ResetToken: &other}))
		assert.True(t, auth.ClearResetToken().Holds(&auth.User{}), "unguarded change always holds")

		want, ok := consume.Expect()
		assert.True(t, ok)
		assert.Equal(t, "r", want)
		_, ok = auth.ClearResetToken().Expect()
		assert.False(t, ok)
	})
}

func TestPlanUpdate(t *testing.T) {
	now := time.Now()

	t.Run("column order and guards", func(t *testing.T) {
		plan, err := auth.PlanUpdate([]auth.FieldChange{
			auth.ConsumeResetToken("r"),
			auth.SetSessionID("s"),
			auth.SetHashedPassword([]byte("h")),
		}, now)
		require.NoError(t, err)

		require.Len(t, plan.Assignments, 3)
		assert.Equal(t, "hashed_password", plan.Assignments[0].Column)
		assert.Equal(t, []byte("h"), plan.Assignments[0].Value)
		assert.Equal(t, "session_id", plan.Assignments[1].Column)
		assert.Equal(t, "reset_token", plan.Assignments[2].Column)
		assert.Nil(t, plan.Assignments[2].Value)

		assert.True(t, plan.Guarded())
		assert.Equal(t, []auth.Guard{{Column: "reset_token", Value: "r"}}, plan.Guards)
		assert.Equal(t, now, plan.UpdatedAt)
	})

	t.Run("last change to a field wins", func(t *testing.T) {
		plan, err := auth.PlanUpdate([]auth.FieldChange{
			auth.SetSessionID("first"),
			auth.ClearSessionID(),
			auth.SetSessionID("last"),
		}, now)
		require.NoError(t, err)

		require.Len(t, plan.Changes, 1)
		require.Len(t, plan.Assignments, 1)
		value, ok := plan.Assignments[0].Value.(*string)
		require.True(t, ok)
		assert.Equal(t, "last", *value)
		assert.False(t, plan.Guarded())
	})

	t.Run("a later unguarded change drops the guard", func(t *testing.T) {
		plan, err := auth.PlanUpdate([]auth.FieldChange{
			auth.ConsumeResetToken("r"),
			auth.ClearResetToken(),
		}, now)
		require.NoError(t, err)
		assert.False(t, plan.Guarded())
	})

	t.Run("rejects zero change", func(t *testing.T) {
		_, err := auth.PlanUpdate([]auth.FieldChange{auth.ClearSessionID(), {}}, now)
		require.ErrorIs(t, err, auth.ErrInvalidField)
	})

	t.Run("empty change set only touches updated_at", func(t *testing.T) {
		plan, err := auth.PlanUpdate(nil, now)
		require.NoError(t, err)
		assert.Empty(t, plan.Assignments)
		assert.False(t, plan.Guarded())
	})
}

func TestUser_Clone(t *testing.T) {
	session, reset := "s", "r"
	user := &auth.User{
		ID:             ulid.Make(),
		Email:          "a@example.com",
		HashedPassword: []byte("digest"),
		SessionID:      &session,
		ResetToken:     &reset,
	}

	clone := user.Clone()
	require.Equal(t, user, clone)

	clone.HashedPassword[0] = 'X'
	*clone.SessionID = "changed"
	*clone.ResetToken = "changed"
	assert.Equal(t, []byte("digest"), user.HashedPassword)
	assert.Equal(t, "s", *user.SessionID)
	assert.Equal(t, "r", *user.ResetToken)
}

func TestIsRejection(t *testing.T) {
	assert.True(t, auth.IsRejection(auth.ErrNotFound))
	assert.True(t, auth.IsRejection(auth.Criterion{}.Validate()))
	assert.False(t, auth.IsRejection(nil))
	assert.False(t, auth.IsRejection(assert.AnError))
}
