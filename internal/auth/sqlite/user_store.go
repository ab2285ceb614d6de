// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sqlite provides a SQLite auth.IdentityStore for single-process
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

//go:embed schema.sql
var schemaSQL string

// UserStore implements auth.IdentityStore on SQLite. It uses a single
// connection, so statements are serialized and every UPDATE is atomic.
type UserStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*UserStore, error) {
	if path == "" {
		return nil, oops.Code("SQLITE_OPEN_FAILED").Errorf("database path is required")
	}

	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	params.Set("_journal_mode", "WAL")
	params.Set("_foreign_keys", "on")

	db, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	db.SetMaxOpenConns(1)

	store := New(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // init error takes precedence
		return nil, err
	}
	return store, nil
}

// New wraps an open database. The caller must have applied the schema, or call Migrate.
func New(db *sql.DB) *UserStore {
	return &UserStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Migrate applies the embedded schema. It is idempotent.
func (r *UserStore) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return oops.Code("SQLITE_MIGRATE_FAILED").With("operation", "apply schema").Wrap(err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (r *UserStore) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return oops.Code("SQLITE_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close closes the underlying database.
func (r *UserStore) Close() error {
	if err := r.db.Close(); err != nil {
		return oops.Code("SQLITE_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

const selectUser = `
	SELECT id, email, hashed_password, session_id, reset_token, created_at, updated_at
	FROM users
`

// Add inserts a new user. A taken email violates users_email_key.
func (r *UserStore) Add(ctx context.Context, email string, hashedPassword []byte) (*auth.User, error) {
	now := r.now()
	user := &auth.User{
		ID:             ulid.Make(),
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if user.HashedPassword == nil {
		user.HashedPassword = []byte{}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, hashed_password, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID.String(), user.Email, user.HashedPassword, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, oops.Code("IDENTITY_DUPLICATE").
				With("field", "email").
				Wrap(errors.Join(auth.ErrDuplicateIdentity, err))
		}
		return nil, oops.Code("IDENTITY_ADD_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return user, nil
}

// FindBy retrieves the user matching criterion.
func (r *UserStore) FindBy(ctx context.Context, criterion auth.Criterion) (*auth.User, error) {
	if err := criterion.Validate(); err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx,
		selectUser+`WHERE `+criterion.Field().String()+` = ?`,
		criterion.Value())

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").
			With("criterion", criterion.Field().String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_FIND_FAILED").
			With("operation", "find user").
			With("criterion", criterion.Field().String()).
			Wrap(err)
	}
	return user, nil
}

// Update applies changes in a single UPDATE statement.
func (r *UserStore) Update(ctx context.Context, id ulid.ULID, changes ...auth.FieldChange) error {
	plan, err := auth.PlanUpdate(changes, r.now())
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(plan.Assignments)+1)
	args := make([]any, 0, len(plan.Assignments)+len(plan.Guards)+2)
	for _, a := range plan.Assignments {
		sets = append(sets, a.Column+" = ?")
		args = append(args, a.Value)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, plan.UpdatedAt, id.String())

	query := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	for _, g := range plan.Guards {
		query += " AND " + g.Column + " = ?"
		args = append(args, g.Value)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("IDENTITY_DUPLICATE").
				With("id", id.String()).
				Wrap(errors.Join(auth.ErrDuplicateIdentity, err))
		}
		return oops.Code("IDENTITY_UPDATE_FAILED").
			With("operation", "update user").
			With("id", id.String()).
			Wrap(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return oops.Code("IDENTITY_UPDATE_FAILED").
			With("operation", "rows affected").
			With("id", id.String()).
			Wrap(err)
	}
	if affected == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").
			With("id", id.String()).
			With("guarded", plan.Guarded()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func scanUser(row *sql.Row) (*auth.User, error) {
	var (
		idStr          string
		email          string
		hashedPassword []byte
		sessionID      sql.NullString
		resetToken     sql.NullString
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(&idStr, &email, &hashedPassword, &sessionID, &resetToken, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("IDENTITY_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("IDENTITY_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:             id,
		Email:          email,
		HashedPassword: hashedPassword,
		SessionID:      nullable(sessionID),
		ResetToken:     nullable(resetToken),
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

// Compile-time interface check.
var _ auth.IdentityStore = (*UserStore)(nil)
