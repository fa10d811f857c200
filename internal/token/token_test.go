package token

import (
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/agrifin/auth-service/internal/model"
)

func testPayload(now time.Time) Payload {
	return Payload{
		Sub:       42,
		Email:     "alice@example.com",
		Role:      model.RoleFarmer,
		IssuedAt:  now,
		ExpiresAt: now.Add(15 * time.Minute),
	}
}

func TestSignVerifyRoundTrip_HS256(t *testing.T) {
	s := NewHS256Signer("test-secret")
	now := time.Now().UTC().Truncate(time.Second)

	raw, err := s.SignAccess(testPayload(now))
	if err != nil {
		t.Fatalf("SignAccess() error = %v", err)
	}

	p, err := s.VerifyAccess(raw)
	if err != nil {
		t.Fatalf("VerifyAccess() error = %v", err)
	}
	if p.Sub != 42 {
		t.Errorf("Sub = %d, want 42", p.Sub)
	}
	if p.Email != "alice@example.com" {
		t.Errorf("Email = %q", p.Email)
	}
	if p.Role != model.RoleFarmer {
		t.Errorf("Role = %q, want farmer", p.Role)
	}
	if !p.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want %v", p.ExpiresAt, now.Add(15*time.Minute))
	}
}

func TestSignVerifyRoundTrip_RS256(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s := NewRS256Signer(priv)
	now := time.Now().UTC().Truncate(time.Second)

	raw, err := s.SignAccess(testPayload(now))
	if err != nil {
		t.Fatalf("SignAccess() error = %v", err)
	}

	// A verify-only signer holding just the public key must accept it.
	v := NewVerifier(&priv.PublicKey)
	p, err := v.VerifyAccess(raw)
	if err != nil {
		t.Fatalf("VerifyAccess() error = %v", err)
	}
	if p.Sub != 42 || p.Role != model.RoleFarmer {
		t.Errorf("payload = %+v", p)
	}

	if _, err := v.SignAccess(testPayload(now)); err == nil {
		t.Error("verify-only signer should refuse to sign")
	}
}

func TestVerifyAccess_Expired(t *testing.T) {
	s := NewHS256Signer("test-secret")
	now := time.Now().UTC()

	raw, err := s.SignAccess(Payload{
		Sub:       1,
		Email:     "a@b.c",
		Role:      model.RoleFarmer,
		IssuedAt:  now.Add(-time.Hour),
		ExpiresAt: now.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("SignAccess() error = %v", err)
	}
	if _, err := s.VerifyAccess(raw); err != ErrExpiredToken {
		t.Errorf("err = %v, want ErrExpiredToken", err)
	}
}

func TestVerifyAccess_BadSignature(t *testing.T) {
	s := NewHS256Signer("test-secret")
	raw, err := s.SignAccess(testPayload(time.Now().UTC()))
	if err != nil {
		t.Fatalf("SignAccess() error = %v", err)
	}

	other := NewHS256Signer("different-secret")
	if _, err := other.VerifyAccess(raw); err != ErrInvalidToken {
		t.Errorf("wrong secret: err = %v, want ErrInvalidToken", err)
	}

	if _, err := s.VerifyAccess(raw + "x"); err != ErrInvalidToken {
		t.Errorf("tampered token: err = %v, want ErrInvalidToken", err)
	}
	if _, err := s.VerifyAccess("not.a.jwt"); err != ErrInvalidToken {
		t.Errorf("garbage token: err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyAccess_AlgorithmConfusion(t *testing.T) {
	// A token signed HS256 must be rejected by an RS256 verifier even
	// if an attacker picked the secret cleverly; only the configured
	// algorithm is acceptable.
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hs := NewHS256Signer("secret")
	raw, err := hs.SignAccess(testPayload(time.Now().UTC()))
	if err != nil {
		t.Fatalf("SignAccess() error = %v", err)
	}
	rs := NewRS256Signer(priv)
	if _, err := rs.VerifyAccess(raw); err != ErrInvalidToken {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyAccess_UnknownRole(t *testing.T) {
	s := NewHS256Signer("test-secret")
	p := testPayload(time.Now().UTC())
	p.Role = "superuser"
	raw, err := s.SignAccess(p)
	if err != nil {
		t.Fatalf("SignAccess() error = %v", err)
	}
	if _, err := s.VerifyAccess(raw); err != ErrInvalidToken {
		t.Errorf("err = %v, want ErrInvalidToken for out-of-enum role", err)
	}
}

func TestOpaqueToken(t *testing.T) {
	raw, err := NewOpaqueToken("session-123")
	if err != nil {
		t.Fatalf("NewOpaqueToken() error = %v", err)
	}
	if !strings.HasPrefix(raw, "session-123.") {
		t.Errorf("token %q should carry the id prefix", raw)
	}

	id, ok := SplitOpaqueToken(raw)
	if !ok || id != "session-123" {
		t.Errorf("SplitOpaqueToken() = %q, %v", id, ok)
	}

	for _, bad := range []string{"", "no-dot", ".secret", "id."} {
		if _, ok := SplitOpaqueToken(bad); ok {
			t.Errorf("SplitOpaqueToken(%q) should fail", bad)
		}
	}

	if len(HashOpaqueToken(raw)) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(HashOpaqueToken(raw)))
	}
	if HashOpaqueToken(raw) == HashOpaqueToken(raw+"x") {
		t.Error("different tokens should hash differently")
	}
}

func TestNewOpaqueToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		raw, err := NewOpaqueToken("s")
		if err != nil {
			t.Fatalf("NewOpaqueToken() error = %v", err)
		}
		if seen[raw] {
			t.Fatalf("duplicate token generated: %s", raw)
		}
		seen[raw] = true
	}
}
