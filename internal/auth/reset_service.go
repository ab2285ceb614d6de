// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// RequestPasswordReset issues a reset token for the user with email.
// Each call replaces any outstanding token. Returns an error wrapping both
// ErrResetRequest and ErrNotFound if the email is unknown.
// Delivering the token to the user is not this service's job.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (token string, err error) {
	defer func() { s.record("request_reset", err) }()

	user, err := s.store.FindBy(ctx, ByEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("RESET_UNKNOWN_EMAIL").
				With("operation", "find user by email").
				Wrap(errors.Join(ErrResetRequest, err))
		}
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	token, digest, err := GenerateToken(s.random)
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	if err := s.store.Update(ctx, user.ID, SetResetToken(digest)); err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "persist reset token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return token, nil
}

// UpdatePassword sets a new password for the user holding resetToken and
// consumes the token in the same atomic update, so a token works once.
// Returns ErrInvalidResetToken if no user holds the token.
func (s *Service) UpdatePassword(ctx context.Context, resetToken, newPassword string) (err error) {
	defer func() { s.record("update_password", err) }()

	if resetToken == "" {
		return invalidResetToken()
	}
	digest := HashToken(resetToken)

	user, err := s.store.FindBy(ctx, ByResetToken(digest))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidResetToken()
		}
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "find user by reset token").
			Wrap(err)
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	// ConsumeResetToken fails the update if a concurrent call already used the token.
	err = s.store.Update(ctx, user.ID, SetHashedPassword(hashed), ConsumeResetToken(digest))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidResetToken()
		}
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password updated", "user_id", user.ID.String())
	return nil
}

func invalidResetToken() error {
	return oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidResetToken)
}
