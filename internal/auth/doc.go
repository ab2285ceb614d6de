// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides the credential and session core of warden.
//
// # Domain Types
//
// User is the only entity. Lookups go through a Criterion built with
// ByEmail, BySessionID, ByResetToken or ByID, and updates through FieldChange
// values built with SetHashedPassword, SetSessionID, ClearSessionID,
// SetResetToken, ClearResetToken or ConsumeResetToken. The zero value of
// either type is rejected, so an unknown field can only be expressed by
// omission.
//
// # Stores
//
// IdentityStore implementations live in subpackages:
//   - memory - in-process maps, for tests and single-process development
//   - postgres - PostgreSQL over a pgx pool
//   - sqlite - SQLite over database/sql
//
// # Services
//
// Service coordinates the state machine over User.SessionID and
// User.ResetToken: Register, ValidLogin, CreateSession, ResolveSession,
// DestroySession, RequestPasswordReset and UpdatePassword. Session and reset
// tokens are handed out in plaintext and stored as SHA-256 digests.
package auth
