// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/warden/internal/auth"
)

func TestService_ConcurrentRegistration(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	svc, store := newFlowService(t)

	const callers = 16
	var (
		wg      sync.WaitGroup
		created atomic.Int32
		taken   atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(ctx, "race@example.com", "pw")
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, auth.ErrAlreadyRegistered):
				taken.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(callers-1), taken.Load())
	assert.Equal(t, 1, store.Len())
}

func TestService_ConcurrentSessionsAreIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	svc, _ := newFlowService(t)

	const users = 12
	emails := make([]string, users)
	for i := range emails {
		emails[i] = fmt.Sprintf("user%d@example.com", i)
		_, err := svc.Register(ctx, emails[i], "pw")
		require.NoError(t, err)
	}

	tokens := make([]string, users)
	errs := make([]error, users)
	var wg sync.WaitGroup
	for i := range emails {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = svc.CreateSession(ctx, emails[i])
		}()
	}
	wg.Wait()

	for i, email := range emails {
		require.NoError(t, errs[i])
		user, err := svc.ResolveSession(ctx, tokens[i])
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, email, user.Email)
	}
}

func TestService_ConcurrentResetIsSingleUse(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	svc, _ := newFlowService(t)

	_, err := svc.Register(ctx, "a@example.com", "old")
	require.NoError(t, err)
	token, err := svc.RequestPasswordReset(ctx, "a@example.com")
	require.NoError(t, err)

	const callers = 8
	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		rejected atomic.Int32
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.UpdatePassword(ctx, token, fmt.Sprintf("new-%d", i))
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, auth.ErrInvalidResetToken):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(callers-1), rejected.Load())
}
