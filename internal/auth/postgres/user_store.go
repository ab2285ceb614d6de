// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides a PostgreSQL auth.IdentityStore.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool the store uses; pgxmock satisfies it.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserStore implements auth.IdentityStore using PostgreSQL.
// Uniqueness of email, session_id and reset_token is enforced by the schema
// (see internal/store/migrations), so concurrent writers cannot both succeed.
type UserStore struct {
	pool poolIface
	now  func() time.Time
}

// NewUserStore creates a new UserStore. The pool is owned by the caller.
func NewUserStore(pool poolIface) *UserStore {
	return &UserStore{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
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

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, hashed_password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		user.ID.String(),
		user.Email,
		user.HashedPassword,
		user.CreatedAt,
		user.UpdatedAt,
	)
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

	// The column comes from the closed CriterionField enumeration, never from input.
	row := r.pool.QueryRow(ctx,
		selectUser+`WHERE `+criterion.Field().String()+` = $1`,
		criterion.Value())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
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

// Update applies changes in a single UPDATE statement, so they land together
// or not at all. A failed guard is reported the same way as a missing row.
func (r *UserStore) Update(ctx context.Context, id ulid.ULID, changes ...auth.FieldChange) error {
	plan, err := auth.PlanUpdate(changes, r.now())
	if err != nil {
		return err
	}

	sql, args := renderUpdate(id, plan)
	result, err := r.pool.Exec(ctx, sql, args...)
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
	if result.RowsAffected() == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").
			With("id", id.String()).
			With("guarded", plan.Guarded()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// renderUpdate builds: UPDATE users SET col = $3, ..., updated_at = $2
// WHERE id = $1 [AND guard = $n ...]
func renderUpdate(id ulid.ULID, plan auth.UpdatePlan) (string, []any) {
	args := []any{id.String(), plan.UpdatedAt}
	sets := make([]string, 0, len(plan.Assignments)+1)
	for _, a := range plan.Assignments {
		args = append(args, a.Value)
		sets = append(sets, fmt.Sprintf("%s = $%d", a.Column, len(args)))
	}
	sets = append(sets, "updated_at = $2")

	var b strings.Builder
	b.WriteString("UPDATE users SET ")
	b.WriteString(strings.Join(sets, ", "))
	b.WriteString(" WHERE id = $1")
	for _, g := range plan.Guards {
		args = append(args, g.Value)
		fmt.Fprintf(&b, " AND %s = $%d", g.Column, len(args))
	}
	return b.String(), args
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr          string
		email          string
		hashedPassword []byte
		sessionID      *string
		resetToken     *string
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(&idStr, &email, &hashedPassword, &sessionID, &resetToken, &createdAt, &updatedAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
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
		SessionID:      sessionID,
		ResetToken:     resetToken,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.IdentityStore = (*UserStore)(nil)
