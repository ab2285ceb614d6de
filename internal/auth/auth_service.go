// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Operation outcomes reported to a Recorder.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder receives one observation per completed Service operation.
type Recorder interface {
	RecordOperation(operation, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordOperation(string, string) {}

// Service orchestrates registration, login, sessions and password reset.
type Service struct {
	store    IdentityStore
	hasher   PasswordHasher
	logger   *slog.Logger
	random   io.Reader
	recorder Recorder

	dummyMu sync.Mutex
	dummy   []byte
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTokenSource sets the random source for session and reset tokens.
func WithTokenSource(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

// WithRecorder sets the operation recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService creates a new Service.
func NewService(store IdentityStore, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("identity store is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}

	s := &Service{
		store:    store,
		hasher:   hasher,
		logger:   slog.Default(),
		random:   rand.Reader,
		recorder: noopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("logger cannot be nil")
	}
	if s.random == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("token source cannot be nil")
	}
	if s.recorder == nil {
		s.recorder = noopRecorder{}
	}
	return s, nil
}

// dummyPassword is hashed once per Service to give unknown emails a digest
// to verify against.
//
//nolint:gosec // G101: not a credential
const dummyPassword = "warden-unregistered-email"

// dummyDigest returns a digest produced by the configured hasher, so an
// unknown email costs the same verification as a wrong password.
// It never matches: the verify result is discarded for unknown users.
func (s *Service) dummyDigest() ([]byte, error) {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()
	if s.dummy != nil {
		return s.dummy, nil
	}
	digest, err := s.hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}
	s.dummy = digest
	return digest, nil
}

func (s *Service) record(operation string, err error) {
	outcome := OutcomeOK
	switch {
	case err == nil:
	case IsRejection(err):
		outcome = OutcomeRejected
	default:
		outcome = OutcomeError
	}
	s.recorder.RecordOperation(operation, outcome)
}

// Register creates a user with the given email and password.
// Returns ErrAlreadyRegistered if the email is taken, including when a
// concurrent registration wins the race.
func (s *Service) Register(ctx context.Context, email, password string) (user *User, err error) {
	defer func() { s.record("register", err) }()

	// Fast path: skip the expensive hash when the email is obviously taken.
	// The store's atomic insert remains the authority.
	_, lookupErr := s.store.FindBy(ctx, ByEmail(email))
	if lookupErr == nil {
		return nil, alreadyRegistered(email)
	}
	if !errors.Is(lookupErr, ErrNotFound) {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "find user by email").
			Wrap(lookupErr)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err = s.store.Add(ctx, email, digest)
	if err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			return nil, alreadyRegistered(email)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "add user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user, nil
}

func alreadyRegistered(email string) error {
	return oops.Code("AUTH_ALREADY_REGISTERED").
		With("email", email).
		Wrap(ErrAlreadyRegistered)
}

// ValidLogin reports whether password is correct for email.
// An unknown email yields (false, nil), indistinguishable from a wrong password.
// Uses constant-time operations to prevent timing-based email enumeration.
func (s *Service) ValidLogin(ctx context.Context, email, password string) (valid bool, err error) {
	defer func() {
		if err == nil && !valid {
			s.recorder.RecordOperation("login", OutcomeRejected)
			return
		}
		s.record("login", err)
	}()

	user, lookupErr := s.store.FindBy(ctx, ByEmail(email))

	var target []byte
	var userExists bool
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return false, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "find user by email").
				Wrap(lookupErr)
		}
		target, err = s.dummyDigest()
		if err != nil {
			return false, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "hash dummy password").
				Wrap(err)
		}
	} else {
		target = user.HashedPassword
		userExists = true
	}

	// Always verify, even for unknown users.
	ok, verifyErr := s.hasher.Verify(password, target)
	if verifyErr != nil {
		if !userExists {
			return false, nil
		}
		return false, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}
	if !userExists || !ok {
		return false, nil
	}

	if s.hasher.NeedsUpgrade(user.HashedPassword) {
		s.upgradeHash(ctx, user, password)
	}
	return true, nil
}

// upgradeHash re-hashes a legacy digest. Login succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort hash upgrade failed",
			"operation", "upgrade_hash",
			"user_id", user.ID.String(),
			"error", err.Error())
		return
	}
	if err := s.store.Update(ctx, user.ID, SetHashedPassword(digest)); err != nil {
		s.logger.WarnContext(ctx, "best-effort hash upgrade failed",
			"operation", "upgrade_hash",
			"user_id", user.ID.String(),
			"error", err.Error())
	}
}

// CreateSession issues a new session token for the user with email, replacing
// any previous session. Returns ErrNotFound if the email is unknown.
func (s *Service) CreateSession(ctx context.Context, email string) (token string, err error) {
	defer func() { s.record("create_session", err) }()

	user, err := s.store.FindBy(ctx, ByEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("AUTH_USER_NOT_FOUND").
				With("operation", "create session").
				Wrap(err)
		}
		return "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	token, digest, err := GenerateToken(s.random)
	if err != nil {
		return "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	if err := s.store.Update(ctx, user.ID, SetSessionID(digest)); err != nil {
		return "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return token, nil
}

// ResolveSession returns the user owning the session token.
// Returns (nil, nil) if the token is empty or matches no session.
func (s *Service) ResolveSession(ctx context.Context, token string) (user *User, err error) {
	defer func() { s.record("resolve_session", err) }()

	if token == "" {
		return nil, nil
	}

	user, err = s.store.FindBy(ctx, BySessionID(HashToken(token)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("AUTH_SESSION_RESOLVE_FAILED").
			With("operation", "find user by session").
			Wrap(err)
	}
	return user, nil
}

// DestroySession clears the session of the user. A zero id is a no-op.
func (s *Service) DestroySession(ctx context.Context, userID ulid.ULID) (err error) {
	defer func() { s.record("destroy_session", err) }()

	if userID.IsZero() {
		return nil
	}

	if err := s.store.Update(ctx, userID, ClearSessionID()); err != nil {
		return oops.Code("AUTH_SESSION_DESTROY_FAILED").
			With("operation", "clear session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}
