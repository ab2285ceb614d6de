// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err, "should read embedded migrations directory")

	fileNames := make(map[string]bool)
	for _, entry := range entries {
		fileNames[entry.Name()] = true
	}
	assert.True(t, fileNames["000001_create_users.up.sql"])
	assert.True(t, fileNames["000001_create_users.down.sql"])

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	ups, downs := 0, 0
	for _, entry := range entries {
		name := entry.Name()
		assert.True(t, pattern.MatchString(name),
			"file %s should match pattern NNNNNN_name.(up|down).sql", name)
		if strings.HasSuffix(name, ".up.sql") {
			ups++
		} else {
			downs++
		}
	}
	assert.Equal(t, ups, downs, "every up migration needs a down migration")
}

func TestMigrationsFS_UsersSchema(t *testing.T) {
	up, err := migrationsFS.ReadFile("migrations/000001_create_users.up.sql")
	require.NoError(t, err)

	schema := string(up)
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS users",
		"users_email_key UNIQUE (email)",
		"users_session_id_key ON users (session_id)",
		"users_reset_token_key ON users (reset_token)",
	} {
		assert.Contains(t, schema, want)
	}
}
