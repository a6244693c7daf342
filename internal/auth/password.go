package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id cost parameters, per the OWASP 2025 guidance.
const (
	argonIterations = 3
	argonMemoryKiB  = 64 * 1024
	argonThreads    = 1
	argonKeyLen     = 32
	argonSaltLen    = 16
)

// ErrMalformedHash is returned when a stored hash does not parse as an
// Argon2id PHC string.
var ErrMalformedHash = errors.New("malformed password hash")

// HashPassword hashes a plaintext password with Argon2id and encodes
// the result as a PHC string:
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argonIterations, argonMemoryKiB, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemoryKiB, argonIterations, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks a plaintext password against a stored PHC
// string. The cost parameters come from the hash itself, so old
// hashes keep verifying after the constants above change.
func VerifyPassword(password, encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), parsed.salt,
		parsed.iterations, parsed.memoryKiB, parsed.threads,
		uint32(len(parsed.key))) //nolint:gosec // G115: key length always fits uint32

	return subtle.ConstantTimeCompare(parsed.key, candidate) == 1, nil
}

// phcHash is a decoded $argon2id$... string.
type phcHash struct {
	iterations uint32
	memoryKiB  uint32
	threads    uint8
	salt       []byte
	key        []byte
}

func parsePHC(encoded string) (*phcHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, ErrMalformedHash
	}
	if parts[1] != "argon2id" {
		return nil, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("parsing version: %w", err)
	}

	var h phcHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memoryKiB, &h.iterations, &h.threads); err != nil {
		return nil, fmt.Errorf("parsing parameters: %w", err)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("decoding salt: %w", err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("decoding hash: %w", err)
	}
	return &h, nil
}
