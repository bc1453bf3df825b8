package application

import (
	"errors"
	"testing"
)

var testArgon2idParams = Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func TestHashAndVerifyAPIKey(t *testing.T) {
	t.Parallel()

	encoded, err := HashAPIKey("s3cret-key", testArgon2idParams)
	if err != nil {
		t.Fatalf("HashAPIKey returned error: %v", err)
	}
	if err := VerifyAPIKey(encoded, "s3cret-key"); err != nil {
		t.Fatalf("expected key to verify, got %v", err)
	}
	if err := VerifyAPIKey(encoded, "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong key, got %v", err)
	}
	if err := VerifyAPIKey("not-a-hash", "s3cret-key"); !errors.Is(err, ErrInvalidKeyHash) {
		t.Fatalf("expected ErrInvalidKeyHash, got %v", err)
	}
	if _, err := HashAPIKey("  ", testArgon2idParams); err == nil {
		t.Fatalf("expected blank key to be rejected")
	}
}

func TestAPIKeyAuthenticator(t *testing.T) {
	t.Parallel()

	t.Run("plaintext key", func(t *testing.T) {
		auth := NewAPIKeyAuthenticator("plain-key", "")
		if err := auth.Authenticate("plain-key"); err != nil {
			t.Fatalf("expected plaintext key to authenticate, got %v", err)
		}
		if err := auth.Authenticate("other"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if err := auth.Authenticate(""); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected empty key to be rejected, got %v", err)
		}
	})

	t.Run("hashed key", func(t *testing.T) {
		encoded, err := HashAPIKey("hashed-key", testArgon2idParams)
		if err != nil {
			t.Fatalf("HashAPIKey returned error: %v", err)
		}
		auth := NewAPIKeyAuthenticator("ignored", encoded)
		for i := 0; i < 2; i++ {
			if err := auth.Authenticate("hashed-key"); err != nil {
				t.Fatalf("attempt %d: expected hashed key to authenticate, got %v", i, err)
			}
		}
		if err := auth.Authenticate("ignored"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected plaintext to be ignored when a hash is set, got %v", err)
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		if err := NewAPIKeyAuthenticator("", "").Authenticate("anything"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}
