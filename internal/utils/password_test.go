package utils

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple", 4)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !VerifyPassword(hash, "correct horse battery staple") {
		t.Error("correct password should verify")
	}
	if VerifyPassword(hash, "wrong password") {
		t.Error("wrong password should not verify")
	}
}

func TestHashPassword_Salted(t *testing.T) {
	h1, err := HashPassword("same-input", 4)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	h2, err := HashPassword("same-input", 4)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password should differ (salt)")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	// Malformed stored hashes must verify false, never panic or
	// surface an error to callers.
	for _, malformed := range []string{"", "not-a-bcrypt-hash", "$2a$xx$garbage"} {
		if VerifyPassword(malformed, "anything") {
			t.Errorf("malformed hash %q should not verify", malformed)
		}
	}
}
