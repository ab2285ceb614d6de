// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err is an oops error with the given code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, oopsErr.Code())
}

// AssertErrorContext asserts that err is an oops error with the given context key/value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	ctx := oopsErr.Context()
	assert.Contains(t, ctx, key)
	assert.Equal(t, value, ctx[key])
}

// AssertErrorOmits asserts that neither the message nor any context value of
// err contains one of the given secrets, such as a password or a plaintext token.
func AssertErrorOmits(t testing.TB, err error, secrets ...string) {
	t.Helper()
	require.Error(t, err)
	msg := err.Error()
	var ctx map[string]any
	if oopsErr, ok := oops.AsOops(err); ok {
		ctx = oopsErr.Context()
	}
	for _, secret := range secrets {
		require.NotEmpty(t, secret, "empty secret matches everything")
		assert.NotContains(t, msg, secret, "error message leaks a secret")
		for key, value := range ctx {
			assert.False(t, strings.Contains(fmt.Sprint(value), secret),
				"error context %q leaks a secret", key)
		}
	}
}
