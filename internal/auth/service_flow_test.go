// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/auth/memory"
)

func newFlowService(t *testing.T) (*auth.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	svc, err := auth.NewService(store, newTestHasher(t))
	require.NoError(t, err)
	return svc, store
}

func TestFlow_LoginAndSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFlowService(t)

	_, err := svc.Register(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	ok, err := svc.ValidLogin(ctx, "a@x.com", "pw2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.ValidLogin(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	assert.True(t, ok)

	token, err := svc.CreateSession(ctx, "a@x.com")
	require.NoError(t, err)

	user, err := svc.ResolveSession(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "a@x.com", user.Email)

	require.NoError(t, svc.DestroySession(ctx, user.ID))

	user, err = svc.ResolveSession(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestFlow_RegisterTwice(t *testing.T) {
	ctx := context.Background()
	svc, store := newFlowService(t)

	_, err := svc.Register(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "a@x.com", "pw2")
	require.ErrorIs(t, err, auth.ErrAlreadyRegistered)
	assert.Equal(t, 1, store.Len())

	ok, err := svc.ValidLogin(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	assert.True(t, ok, "second registration must not overwrite the password")
}

func TestFlow_SecondSessionInvalidatesFirst(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFlowService(t)

	_, err := svc.Register(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	first, err := svc.CreateSession(ctx, "a@x.com")
	require.NoError(t, err)
	second, err := svc.CreateSession(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	user, err := svc.ResolveSession(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = svc.ResolveSession(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, user)
}

func TestFlow_SessionTokenIsNotStored(t *testing.T) {
	ctx := context.Background()
	svc, store := newFlowService(t)

	_, err := svc.Register(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	token, err := svc.CreateSession(ctx, "a@x.com")
	require.NoError(t, err)

	_, err = store.FindBy(ctx, auth.BySessionID(token))
	require.ErrorIs(t, err, auth.ErrNotFound, "plaintext token must not match")

	user, err := store.FindBy(ctx, auth.BySessionID(auth.HashToken(token)))
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)
}

func TestFlow_PasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFlowService(t)

	_, err := svc.Register(ctx, "a@x.com", "old-pw")
	require.NoError(t, err)

	stale, err := svc.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err)
	token, err := svc.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err)

	err = svc.UpdatePassword(ctx, stale, "new-pw")
	require.ErrorIs(t, err, auth.ErrInvalidResetToken, "a newer request invalidates the older token")

	require.NoError(t, svc.UpdatePassword(ctx, token, "new-pw"))

	err = svc.UpdatePassword(ctx, token, "other-pw")
	require.ErrorIs(t, err, auth.ErrInvalidResetToken, "token is single-use")

	ok, err := svc.ValidLogin(ctx, "a@x.com", "old-pw")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.ValidLogin(ctx, "a@x.com", "new-pw")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFlow_ResetDoesNotTouchSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFlowService(t)

	_, err := svc.Register(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	session, err := svc.CreateSession(ctx, "a@x.com")
	require.NoError(t, err)

	token, err := svc.RequestPasswordReset(ctx, "a@x.com")
	require.NoError(t, err)
	require.NoError(t, svc.UpdatePassword(ctx, token, "pw2"))

	user, err := svc.ResolveSession(ctx, session)
	require.NoError(t, err)
	require.NotNil(t, user, "session and reset state are independent")
}

func TestFlow_UnknownEmail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFlowService(t)

	ok, err := svc.ValidLogin(ctx, "nobody@x.com", "pw")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.CreateSession(ctx, "nobody@x.com")
	require.ErrorIs(t, err, auth.ErrNotFound)

	_, err = svc.RequestPasswordReset(ctx, "nobody@x.com")
	require.ErrorIs(t, err, auth.ErrResetRequest)
}
