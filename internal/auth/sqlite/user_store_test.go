// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/auth/authtest"
	"github.com/holomush/warden/internal/auth/sqlite"
	"github.com/holomush/warden/pkg/errutil"
)

func openStore(t *testing.T) *sqlite.UserStore {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "warden.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUserStore_Contract(t *testing.T) {
	authtest.RunStoreContract(t, func(t *testing.T) auth.IdentityStore {
		return openStore(t)
	})
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqlite.Open(context.Background(), "")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SQLITE_OPEN_FAILED")
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "warden.db")

	store, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	user, err := store.Add(ctx, "a@example.com", []byte("digest"))
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, user.ID, auth.SetSessionID("session-digest")))
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(ctx, path)
	require.NoError(t, err, "schema is applied idempotently")
	defer func() { _ = reopened.Close() }()

	found, err := reopened.FindBy(ctx, auth.BySessionID("session-digest"))
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, "a@example.com", found.Email)
	assert.WithinDuration(t, user.CreatedAt, found.CreatedAt, time.Millisecond)
}

func TestUserStore_Ping(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.Ping(context.Background()))
}

func TestUserStore_ErrorCodes(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "a@example.com", nil)
	require.NoError(t, err, "nil digest is stored as empty")

	_, err = store.Add(ctx, "a@example.com", []byte("digest"))
	errutil.AssertErrorCode(t, err, "IDENTITY_DUPLICATE")

	_, err = store.FindBy(ctx, auth.ByEmail("nobody@example.com"))
	errutil.AssertErrorCode(t, err, "IDENTITY_NOT_FOUND")
}
