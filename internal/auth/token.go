// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/samber/oops"
)

// TokenBytes is the entropy of session and reset tokens (32 bytes = 64 hex chars).
const TokenBytes = 32

// GenerateToken reads TokenBytes from r and returns the hex token and its digest.
// The plaintext token is handed to the client; only the digest is stored.
func GenerateToken(r io.Reader) (token, digest string, err error) {
	raw := make([]byte, TokenBytes)
	if _, err = io.ReadFull(r, raw); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "read random bytes").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(raw)
	return token, HashToken(token), nil
}

// HashToken computes the hex SHA-256 digest of a token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

