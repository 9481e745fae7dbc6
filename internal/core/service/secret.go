package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for the SHARE secret digest.
const (
	argonTime    = 2
	argonMemory  = 16384
	argonThreads = 2
	argonKeyLen  = 32
	argonSaltLen = 16
)

// SecretVerifier checks the SHARE secret. Only an Argon2id digest of the
// secret is kept in memory.
type SecretVerifier struct {
	hash string
}

// NewSecretVerifier accepts either a plaintext secret, which is hashed, or
// an Argon2id digest in the $argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>
// format.
func NewSecretVerifier(secret string) (*SecretVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("secret must not be empty")
	}
	if strings.HasPrefix(secret, "$argon2id$") {
		if _, err := parseArgon2Hash(secret); err != nil {
			return nil, err
		}
		return &SecretVerifier{hash: secret}, nil
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return nil, err
	}
	return &SecretVerifier{hash: hash}, nil
}

// Verify reports whether secret matches, in constant time.
func (v *SecretVerifier) Verify(secret string) bool {
	return verifyArgon2Hash(secret, v.hash)
}

// HashSecret returns the Argon2id digest of secret with a random salt.
func HashSecret(secret string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// GenerateSecret returns a random 128-bit secret rendered as hex.
func GenerateSecret() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// argon2Digest is a parsed $argon2id$ digest.
type argon2Digest struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func parseArgon2Hash(hash string) (*argon2Digest, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, fmt.Errorf("invalid argon2id digest")
	}
	d := &argon2Digest{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &d.memory, &d.time, &d.threads); err != nil {
		return nil, fmt.Errorf("invalid argon2id parameters: %w", err)
	}
	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("invalid argon2id salt: %w", err)
	}
	if d.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("invalid argon2id hash: %w", err)
	}
	return d, nil
}

// verifyArgon2Hash verifies a secret against an Argon2id hash.
// Hash format: $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>
func verifyArgon2Hash(secret, hash string) bool {
	d, err := parseArgon2Hash(hash)
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(secret), d.salt, d.time, d.memory, d.threads, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(computed, d.key) == 1
}
