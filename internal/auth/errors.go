// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// Error kinds. Every error returned by this package and its stores is an oops
// error wrapping one of these, so callers match with errors.Is and read the
// oops code for logging.
var (
	// ErrNotFound is returned when no user matches a lookup or update.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateIdentity is returned by a store when an insert or update
	// would break a uniqueness constraint (email, session token, reset token).
	ErrDuplicateIdentity = errors.New("duplicate identity")

	// ErrInvalidCriterion is returned when a lookup names no recognized field.
	ErrInvalidCriterion = errors.New("invalid lookup criterion")

	// ErrInvalidField is returned when an update names no recognized field.
	ErrInvalidField = errors.New("invalid field")

	// ErrAlreadyRegistered is returned by Register when the email is taken.
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrInvalidResetToken is returned when no user holds a reset token.
	ErrInvalidResetToken = errors.New("invalid reset token")

	// ErrResetRequest is returned when a reset is requested for an unknown
	// email. It is always joined with ErrNotFound.
	ErrResetRequest = errors.New("reset request rejected")

	// ErrHashFormat is returned when a stored password digest cannot be parsed.
	ErrHashFormat = errors.New("malformed password hash")
)

// IsRejection reports whether err is one of the caller-recoverable kinds
// above, as opposed to a storage or randomness failure.
func IsRejection(err error) bool {
	for _, kind := range []error{
		ErrNotFound,
		ErrDuplicateIdentity,
		ErrInvalidCriterion,
		ErrInvalidField,
		ErrAlreadyRegistered,
		ErrInvalidResetToken,
		ErrResetRequest,
		ErrHashFormat,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
