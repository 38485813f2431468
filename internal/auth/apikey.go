// internal/auth/apikey.go
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

// Argon2id cost for the operator API key. The key is hashed once at startup
// and checked per content-refresh request, so the cost can sit above an
// interactive-login budget.
const (
	keyHashMemory      uint32 = 64 * 1024
	keyHashIterations  uint32 = 3
	keyHashParallelism uint8  = 2
	keyHashSaltLen            = 16
	keyHashLen         uint32 = 32
)

// ErrMalformedKeyHash is returned when a stored key hash cannot be parsed.
var ErrMalformedKeyHash = errors.New("malformed api key hash")

// HashAPIKey derives an Argon2id hash of the operator API key in the
// standard encoded form, so the plaintext never rests in process state
// past startup.
func HashAPIKey(key string) (string, error) {
	salt := make([]byte, keyHashSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	sum := argon2.IDKey([]byte(key), salt, keyHashIterations, keyHashMemory, keyHashParallelism, keyHashLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, keyHashMemory, keyHashIterations, keyHashParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum)), nil
}

// VerifyAPIKey reports whether presented matches the encoded hash in
// constant time. Cost parameters come from the hash itself, so raising the
// constants above does not invalidate hashes already in circulation.
func VerifyAPIKey(presented, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrMalformedKeyHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrMalformedKeyHash
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, ErrMalformedKeyHash
	}
	salt, err := base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil {
		return false, ErrMalformedKeyHash
	}
	want, err := base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil {
		return false, ErrMalformedKeyHash
	}

	got := argon2.IDKey([]byte(presented), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
