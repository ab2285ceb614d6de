// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2idParams are the cost parameters used when hashing.
// Verification always uses the parameters embedded in the digest.
type Argon2idParams struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2idParams returns the OWASP-recommended argon2id parameters.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// Validate checks the parameters are usable by argon2.IDKey.
func (p Argon2idParams) Validate() error {
	switch {
	case p.Time == 0:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 time must be positive")
	case p.Threads == 0:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 threads must be positive")
	case p.Memory < 8*uint32(p.Threads):
		return oops.Code("AUTH_INVALID_HASH_PARAMS").
			With("memory", p.Memory).
			With("threads", p.Threads).
			Errorf("argon2 memory must be at least 8 KiB per thread")
	case p.SaltLen < 8:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 salt must be at least 8 bytes")
	case p.KeyLen < 16:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 key must be at least 16 bytes")
	}
	return nil
}

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted digest of the password. Each call uses a fresh salt.
	Hash(password string) ([]byte, error)

	// Verify checks if the password matches the digest.
	// Returns (true, nil) on match, (false, nil) on mismatch, or an error
	// wrapping ErrHashFormat if the digest cannot be parsed.
	Verify(password string, digest []byte) (bool, error)

	// NeedsUpgrade returns true if the digest should be re-hashed with the
	// current algorithm.
	NeedsUpgrade(digest []byte) bool
}

// Argon2idHasher implements PasswordHasher using argon2id, and verifies
// legacy bcrypt digests.
type Argon2idHasher struct {
	params Argon2idParams
	random io.Reader
}

// NewArgon2idHasher creates an Argon2idHasher with the default parameters.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2idParams(), random: rand.Reader}
}

// NewArgon2idHasherWithParams creates an Argon2idHasher with custom parameters.
func NewArgon2idHasherWithParams(params Argon2idParams) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params, random: rand.Reader}, nil
}

const argon2idPrefix = "$argon2id$"

// Hash produces an argon2id digest in PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
func (h *Argon2idHasher) Hash(password string) ([]byte, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := io.ReadFull(h.random, salt); err != nil {
		return nil, oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return []byte(encoded), nil
}

// Verify checks if the password matches the digest.
func (h *Argon2idHasher) Verify(password string, digest []byte) (bool, error) {
	if isBcrypt(digest) {
		return verifyBcrypt(password, digest)
	}
	return verifyArgon2id(password, digest)
}

// NeedsUpgrade returns true if the digest is not argon2id (e.g., bcrypt).
func (h *Argon2idHasher) NeedsUpgrade(digest []byte) bool {
	return !bytes.HasPrefix(digest, []byte(argon2idPrefix))
}

func hashFormatError(format string, args ...any) error {
	return oops.Code("AUTH_INVALID_HASH").Wrapf(ErrHashFormat, format, args...)
}

func verifyArgon2id(password string, digest []byte) (bool, error) {
	parts := strings.Split(string(digest), "$")
	if len(parts) != 6 {
		return false, hashFormatError("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return false, hashFormatError("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, hashFormatError("invalid version segment")
	}
	if version != argon2.Version {
		return false, hashFormatError("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, hashFormatError("invalid parameter segment")
	}

	// Validate threads fits in uint8 to prevent silent truncation
	if threads == 0 || threads > 255 {
		return false, hashFormatError("threads value %d out of range", threads)
	}
	if time == 0 {
		return false, hashFormatError("time value must be positive")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, hashFormatError("invalid salt encoding")
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, hashFormatError("invalid key encoding")
	}

	keyLen := len(expected)
	if keyLen == 0 || keyLen > 1<<10 {
		return false, hashFormatError("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func isBcrypt(digest []byte) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if bytes.HasPrefix(digest, []byte(prefix)) {
			return true
		}
	}
	return false
}

// verifyBcrypt relies on bcrypt.CompareHashAndPassword, which compares in constant time.
func verifyBcrypt(password string, digest []byte) (bool, error) {
	err := bcrypt.CompareHashAndPassword(digest, []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, hashFormatError("invalid bcrypt hash: %v", err)
	}
}

// Compile-time interface check.
var _ PasswordHasher = (*Argon2idHasher)(nil)
