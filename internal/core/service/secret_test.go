package service

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"
)

func TestSecretVerifier(t *testing.T) {
	v, err := NewSecretVerifier("s3cret")
	if err != nil {
		t.Fatalf("NewSecretVerifier error = %v", err)
	}
	if !v.Verify("s3cret") {
		t.Error("Verify should accept the configured secret")
	}
	if v.Verify("S3CRET") || v.Verify("") {
		t.Error("Verify should reject other secrets")
	}
	if strings.Contains(v.hash, "s3cret") {
		t.Error("plaintext secret kept in memory")
	}
}

func TestNewSecretVerifier_Digest(t *testing.T) {
	hash, err := HashSecret("s3cret")
	if err != nil {
		t.Fatalf("HashSecret error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=16384,t=2,p=2$") {
		t.Errorf("unexpected digest format: %s", hash)
	}

	v, err := NewSecretVerifier(hash)
	if err != nil {
		t.Fatalf("NewSecretVerifier(digest) error = %v", err)
	}
	if !v.Verify("s3cret") {
		t.Error("Verify should accept the secret behind the digest")
	}
}

func TestNewSecretVerifier_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"empty", ""},
		{"short digest", "$argon2id$v=19$m=16384"},
		{"bad salt", "$argon2id$v=19$m=16384,t=2,p=2$!!!$AAAA"},
		{"bad hash", "$argon2id$v=19$m=16384,t=2,p=2$AAAA$!!!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSecretVerifier(tt.secret); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHashSecret_Salted(t *testing.T) {
	h1, _ := HashSecret("same")
	h2, _ := HashSecret("same")
	if h1 == h2 {
		t.Error("two digests of one secret should differ")
	}
}

func TestGenerateSecret(t *testing.T) {
	s1, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret error = %v", err)
	}
	s2, _ := GenerateSecret()
	if len(s1) != 32 {
		t.Errorf("len = %d, want 32", len(s1))
	}
	if s1 == s2 {
		t.Error("generated secrets should differ")
	}
}

func TestNewSecretVerifier_DigestParameters(t *testing.T) {
	salt := []byte("0123456789abcdef")
	key := argon2.IDKey([]byte("s3cret"), salt, 1, 8192, 1, 32)
	digest := fmt.Sprintf("$argon2id$v=%d$m=8192,t=1,p=1$%s$%s", argon2.Version,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))

	v, err := NewSecretVerifier(digest)
	if err != nil {
		t.Fatalf("NewSecretVerifier error = %v", err)
	}
	if !v.Verify("s3cret") {
		t.Error("Verify should use the parameters of the digest")
	}
	if v.Verify("other") {
		t.Error("Verify accepted a wrong secret")
	}
}
