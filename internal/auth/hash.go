package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Changing these invalidates stored hashes, so they are
// fixed rather than configurable.
const (
	keyIterations = 1
	keyMemoryKiB  = 64 * 1024
	keyThreads    = 4
	keyLength     = 32
	keySaltLength = 16
)

func deriveKey(apiKey string, salt []byte) []byte {
	return argon2.IDKey([]byte(apiKey), salt, keyIterations, keyMemoryKiB, keyThreads, keyLength)
}

// HashAPIKey derives an Argon2id hash for an API key, encoded as
// base64(salt)$base64(hash).
func HashAPIKey(apiKey string) (string, error) {
	salt := make([]byte, keySaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}

	return base64.StdEncoding.EncodeToString(salt) + "$" +
		base64.StdEncoding.EncodeToString(deriveKey(apiKey, salt)), nil
}

// VerifyAPIKey checks an API key against a stored hash in constant time.
func VerifyAPIKey(apiKey, encoded string) (bool, error) {
	saltPart, hashPart, ok := strings.Cut(encoded, "$")
	if !ok {
		return false, fmt.Errorf("auth: malformed key hash")
	}

	salt, err := base64.StdEncoding.DecodeString(saltPart)
	if err != nil {
		return false, fmt.Errorf("auth: decode salt: %w", err)
	}
	stored, err := base64.StdEncoding.DecodeString(hashPart)
	if err != nil {
		return false, fmt.Errorf("auth: decode hash: %w", err)
	}

	return subtle.ConstantTimeCompare(stored, deriveKey(apiKey, salt)) == 1, nil
}

// DummyVerify burns the same Argon2id cost as a real verification. Called on
// auth failure paths where no stored hash was checked, so response timing
// does not reveal whether an agent id exists.
func DummyVerify() {
	deriveKey("dummy", make([]byte, keySaltLength))
}
