package application

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidKeyHash         = errors.New("invalid api key hash format")
	ErrIncompatibleKeyVersion = errors.New("incompatible api key hash version")
)

type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// HashAPIKey derives an encoded argon2id hash suitable for INTERVIEW_ADMIN_KEY_HASH.
func HashAPIKey(key string, params Argon2idParams) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("api key must not be empty")
	}
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(key), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	// $argon2id$v=19$m=...,t=...,p=...$salt$hash
	format := "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"
	return fmt.Sprintf(format, argon2.Version, params.Memory, params.Iterations, params.Parallelism, b64Salt, b64Hash), nil
}

// VerifyAPIKey compares key against an encoded hash in constant time.
func VerifyAPIKey(encoded, key string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return ErrInvalidKeyHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return ErrInvalidKeyHash
	}
	if version != argon2.Version {
		return ErrIncompatibleKeyVersion
	}

	var params Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return ErrInvalidKeyHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return ErrInvalidKeyHash
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return ErrInvalidKeyHash
	}
	params.KeyLength = uint32(len(decodedHash))

	comparison := argon2.IDKey([]byte(key), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	if subtle.ConstantTimeCompare(decodedHash, comparison) == 1 {
		return nil
	}
	return ErrUnauthorized
}

// APIKeyAuthenticator checks the admin key presented on API requests against
// either a plaintext key or an argon2id hash. Keys that verified once are
// remembered by digest so the hash is not recomputed per request.
type APIKeyAuthenticator struct {
	plain    string
	hash     string
	verified sync.Map
}

// NewAPIKeyAuthenticator prefers the hash when both are set.
func NewAPIKeyAuthenticator(plain, hash string) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{plain: strings.TrimSpace(plain), hash: strings.TrimSpace(hash)}
}

// Authenticate returns ErrUnauthorized unless key matches.
func (a *APIKeyAuthenticator) Authenticate(key string) error {
	if a == nil || key == "" {
		return ErrUnauthorized
	}
	if a.hash == "" {
		if a.plain != "" && subtle.ConstantTimeCompare([]byte(a.plain), []byte(key)) == 1 {
			return nil
		}
		return ErrUnauthorized
	}

	digest := sha256.Sum256([]byte(key))
	if _, ok := a.verified.Load(digest); ok {
		return nil
	}
	if err := VerifyAPIKey(a.hash, key); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	a.verified.Store(digest, struct{}{})
	return nil
}
