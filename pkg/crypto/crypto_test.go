package crypto

import (
	"bytes"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	hash := HashPassword("hunter2", salt)

	if !VerifyPassword("hunter2", salt, hash) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("hunter3", salt, hash) {
		t.Error("wrong password accepted")
	}
	if VerifyPassword("", salt, hash) {
		t.Error("empty password accepted")
	}
}

func TestSaltMatters(t *testing.T) {
	s1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	s2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	if bytes.Equal(s1, s2) {
		t.Fatal("two generated salts are identical")
	}
	if bytes.Equal(HashPassword("pw", s1), HashPassword("pw", s2)) {
		t.Error("same password hashes identically under different salts")
	}
	if VerifyPassword("pw", s2, HashPassword("pw", s1)) {
		t.Error("hash verified against the wrong salt")
	}
}

func TestSaltLength(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	if len(salt) != SaltLength {
		t.Errorf("salt length = %d, want %d", len(salt), SaltLength)
	}
}

func TestHashIsDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	if !bytes.Equal(HashPassword("pw", salt), HashPassword("pw", salt)) {
		t.Error("same password and salt produced different hashes")
	}
}
