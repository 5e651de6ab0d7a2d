// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// Argon2Params tunes the argon2id key derivation.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen int
	KeyLen  uint32
}

// DefaultArgon2Params returns the OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// PasswordHasher turns plaintext passwords into one-way digests and checks them.
type PasswordHasher interface {
	// Hash produces a salted digest of the password.
	Hash(password string) (string, error)

	// Verify reports whether password matches digest. Malformed or foreign
	// digests never match.
	Verify(password, digest string) bool

	// NeedsUpgrade returns true if the digest should be re-hashed.
	NeedsUpgrade(digest string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id.
// Legacy bcrypt and Werkzeug pbkdf2:sha256 and scrypt digests are accepted by
// Verify and reported by NeedsUpgrade.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates an Argon2idHasher with the default parameters.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params()}
}

// NewArgon2idHasherWithParams creates an Argon2idHasher with custom parameters.
func NewArgon2idHasherWithParams(params Argon2Params) *Argon2idHasher {
	return &Argon2idHasher{params: params}
}

// Hash produces an argon2id digest in PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ValidationError("password", "required")
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against an argon2id, bcrypt, pbkdf2 or scrypt digest.
func (h *Argon2idHasher) Verify(password, digest string) bool {
	var (
		ok  bool
		err error
	)
	switch {
	case isBcrypt(digest):
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
	case strings.HasPrefix(digest, "pbkdf2:"):
		ok, err = verifyPBKDF2(password, digest)
	case strings.HasPrefix(digest, "scrypt:"):
		ok, err = verifyScrypt(password, digest)
	default:
		ok, err = verifyArgon2id(password, digest)
	}
	return err == nil && ok
}

// NeedsUpgrade returns true if the digest is not argon2id or uses weaker
// parameters than the hasher is configured with.
func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	if !strings.HasPrefix(digest, "$argon2id$") {
		return true
	}
	var memory, time, threads uint32
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return true
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return true
	}
	return memory < h.params.Memory || time < h.params.Time
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

func verifyArgon2id(password, digest string) (bool, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	// Bounded so a corrupt digest cannot demand unbounded memory or time.
	if threads == 0 || threads > 255 || time == 0 || time > 64 || memory == 0 || memory > 1<<20 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid argon2 parameters")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	keyLen := len(expected)
	if keyLen == 0 || keyLen > 1024 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(keyLen))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// splitWerkzeug splits a Werkzeug digest "<method>$<salt>$<hex>" into the
// colon-separated method parts, the salt and the decoded key.
func splitWerkzeug(digest string) (method []string, salt string, key []byte, err error) {
	m, rest, found := strings.Cut(digest, "$")
	if !found {
		return nil, "", nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid werkzeug digest format")
	}
	salt, hexKey, found := strings.Cut(rest, "$")
	if !found || salt == "" {
		return nil, "", nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid werkzeug digest format")
	}
	key, err = hex.DecodeString(hexKey)
	if err != nil || len(key) == 0 || len(key) > 1024 {
		return nil, "", nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid werkzeug digest key")
	}
	return strings.Split(m, ":"), salt, key, nil
}

// verifyPBKDF2 checks a Werkzeug digest: pbkdf2:sha256:<iterations>$<salt>$<hex>.
func verifyPBKDF2(password, digest string) (bool, error) {
	method, salt, expected, err := splitWerkzeug(digest)
	if err != nil {
		return false, err
	}
	if len(method) != 3 || method[1] != "sha256" {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported pbkdf2 method: %s", strings.Join(method, ":"))
	}
	iterations, err := strconv.Atoi(method[2])
	if err != nil || iterations < 1 || iterations > 10_000_000 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid pbkdf2 iterations: %s", method[2])
	}

	computed := pbkdf2.Key([]byte(password), []byte(salt), iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// verifyScrypt checks a Werkzeug digest: scrypt:<n>:<r>:<p>$<salt>$<hex>,
// the default format of Werkzeug 3.
func verifyScrypt(password, digest string) (bool, error) {
	method, salt, expected, err := splitWerkzeug(digest)
	if err != nil {
		return false, err
	}
	if len(method) != 4 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid scrypt method: %s", strings.Join(method, ":"))
	}
	var params [3]int
	for i, v := range method[1:] {
		params[i], err = strconv.Atoi(v)
		if err != nil || params[i] < 1 {
			return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid scrypt parameter: %s", v)
		}
	}
	n, r, p := params[0], params[1], params[2]
	// Bounded so a corrupt digest cannot demand unbounded memory or time.
	if n < 2 || n > 1<<20 || n&(n-1) != 0 || r > 32 || p > 16 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid scrypt parameters")
	}

	computed, err := scrypt.Key([]byte(password), []byte(salt), n, r, p, len(expected))
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
