// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/pkg/errutil"
)

var userColumns = []string{"id", "email", "hashed_password", "session_id", "reset_token", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*UserStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return NewUserStore(mock), mock
}

func TestUserStore_Add(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		wantCode  string
	}{
		{
			name: "inserts user",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), "a@example.com", []byte("digest"), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "taken email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), "a@example.com", []byte("digest"), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "users_email_key"})
			},
			wantErr:  auth.ErrDuplicateIdentity,
			wantCode: "IDENTITY_DUPLICATE",
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(pgxmock.AnyArg(), "a@example.com", []byte("digest"), pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnError(errors.New("connection reset"))
			},
			wantCode: "IDENTITY_ADD_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			tt.setupMock(mock)

			user, err := store.Add(context.Background(), "a@example.com", []byte("digest"))
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.False(t, user.ID.IsZero())
				assert.Equal(t, "a@example.com", user.Email)
				assert.Equal(t, user.CreatedAt, user.UpdatedAt)
				return
			}
			require.Error(t, err)
			assert.Nil(t, user)
			errutil.AssertErrorCode(t, err, tt.wantCode)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.False(t, auth.IsRejection(err), "storage failure is not a rejection")
			}
		})
	}
}

func TestUserStore_FindBy(t *testing.T) {
	id := ulid.Make()
	session := "session-digest"
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("found by session", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE session_id = $1`)).
			WithArgs(session).
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow(id.String(), "a@example.com", []byte("digest"), &session, nil, now, now))

		user, err := store.FindBy(context.Background(), auth.BySessionID(session))
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, "a@example.com", user.Email)
		require.NotNil(t, user.SessionID)
		assert.Equal(t, session, *user.SessionID)
		assert.Nil(t, user.ResetToken)
		assert.Equal(t, now, user.CreatedAt)
	})

	t.Run("id lookup uses canonical form", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $1`)).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow(id.String(), "a@example.com", []byte("digest"), nil, nil, now, now))

		user, err := store.FindBy(context.Background(), auth.ByID(id))
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
	})

	t.Run("no rows", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE email = $1`)).
			WithArgs("nobody@example.com").
			WillReturnRows(pgxmock.NewRows(userColumns))

		_, err := store.FindBy(context.Background(), auth.ByEmail("nobody@example.com"))
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "IDENTITY_NOT_FOUND")
		errutil.AssertErrorContext(t, err, "criterion", "email")
	})

	t.Run("query error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE email = $1`)).
			WithArgs("a@example.com").
			WillReturnError(errors.New("connection reset"))

		_, err := store.FindBy(context.Background(), auth.ByEmail("a@example.com"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("corrupt id", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE email = $1`)).
			WithArgs("a@example.com").
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow("not-a-ulid", "a@example.com", []byte("digest"), nil, nil, now, now))

		_, err := store.FindBy(context.Background(), auth.ByEmail("a@example.com"))
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "IDENTITY_INVALID_ID")
	})

	t.Run("zero criterion never reaches the database", func(t *testing.T) {
		store, _ := newMockStore(t)

		_, err := store.FindBy(context.Background(), auth.Criterion{})
		require.ErrorIs(t, err, auth.ErrInvalidCriterion)
	})
}

func TestUserStore_Update(t *testing.T) {
	id := ulid.Make()

	t.Run("single statement for all changes", func(t *testing.T) {
		store, mock := newMockStore(t)
		digest := "session-digest"
		mock.ExpectExec(regexp.QuoteMeta(
			`UPDATE users SET hashed_password = $3, session_id = $4, updated_at = $2 WHERE id = $1`)).
			WithArgs(id.String(), pgxmock.AnyArg(), []byte("new"), &digest).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := store.Update(context.Background(), id, auth.SetSessionID(digest), auth.SetHashedPassword([]byte("new")))
		require.NoError(t, err)
	})

	t.Run("consume guard is part of the WHERE clause", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta(
			`UPDATE users SET hashed_password = $3, reset_token = $4, updated_at = $2 WHERE id = $1 AND reset_token = $5`)).
			WithArgs(id.String(), pgxmock.AnyArg(), []byte("new"), pgxmock.AnyArg(), "reset-digest").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := store.Update(context.Background(), id,
			auth.SetHashedPassword([]byte("new")), auth.ConsumeResetToken("reset-digest"))
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorContext(t, err, "guarded", true)
	})

	t.Run("unknown id", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE users SET`).
			WithArgs(id.String(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := store.Update(context.Background(), id, auth.ClearSessionID())
		require.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "IDENTITY_NOT_FOUND")
	})

	t.Run("unique violation", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE users SET`).
			WithArgs(id.String(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err := store.Update(context.Background(), id, auth.SetSessionID("taken"))
		require.ErrorIs(t, err, auth.ErrDuplicateIdentity)
	})

	t.Run("database error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE users SET`).
			WithArgs(id.String(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection reset"))

		err := store.Update(context.Background(), id, auth.ClearSessionID())
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "IDENTITY_UPDATE_FAILED")
	})

	t.Run("invalid change never reaches the database", func(t *testing.T) {
		store, _ := newMockStore(t)

		err := store.Update(context.Background(), id, auth.FieldChange{})
		require.ErrorIs(t, err, auth.ErrInvalidField)
	})
}

func TestRenderUpdate(t *testing.T) {
	id := ulid.Make()
	now := time.Now()

	plan, err := auth.PlanUpdate([]auth.FieldChange{
		auth.ConsumeResetToken("reset-digest"),
		auth.SetHashedPassword([]byte("new")),
	}, now)
	require.NoError(t, err)

	sql, args := renderUpdate(id, plan)
	assert.Equal(t,
		"UPDATE users SET hashed_password = $3, reset_token = $4, updated_at = $2 WHERE id = $1 AND reset_token = $5",
		sql)
	require.Len(t, args, 5)
	assert.Equal(t, id.String(), args[0])
	assert.Equal(t, now, args[1])
	assert.Equal(t, []byte("new"), args[2])
	assert.Nil(t, args[3])
	assert.Equal(t, "reset-digest", args[4])
}
