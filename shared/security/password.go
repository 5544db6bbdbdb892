package security

import (
	"context"
	"errors"
	"runtime"
	"strings"

	"github.com/matthewhartstonge/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

var (
	ErrEmptyPassword   = errors.New("password cannot be empty")
	ErrUnsupportedHash = errors.New("unsupported password hash format")
)

const argon2Prefix = "$argon2id$"

var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// PasswordHasher hashes and verifies user passwords.
type PasswordHasher interface {
	// HashPassword produces an argon2id encoded hash of the password.
	HashPassword(ctx context.Context, password string) (string, error)

	// VerifyPassword reports whether password matches the encoded hash.
	// A mismatch is (false, nil); an unreadable hash is an error.
	VerifyPassword(ctx context.Context, password, encodedHash string) (bool, error)

	// NeedsRehash reports whether the hash was produced by a legacy algorithm.
	NeedsRehash(encodedHash string) bool
}

// Argon2Hasher hashes with argon2id and still accepts bcrypt hashes created
// by earlier deployments. Concurrent hashing is bounded so that a burst of
// logins cannot starve request handling of CPU.
type Argon2Hasher struct {
	config argon2.Config
	sem    *semaphore.Weighted
}

// NewArgon2Hasher creates a hasher that runs at most concurrency hashing
// operations at once. Zero or negative means GOMAXPROCS.
func NewArgon2Hasher(concurrency int) *Argon2Hasher {
	return NewArgon2HasherWithConfig(argon2.DefaultConfig(), concurrency)
}

// NewArgon2HasherWithConfig is NewArgon2Hasher with explicit argon2 parameters.
func NewArgon2HasherWithConfig(cfg argon2.Config, concurrency int) *Argon2Hasher {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	return &Argon2Hasher{
		config: cfg,
		sem:    semaphore.NewWeighted(int64(concurrency)),
	}
}

func (h *Argon2Hasher) HashPassword(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	encoded, err := h.config.HashEncoded([]byte(password))
	if err != nil {
		return "", err
	}

	return string(encoded), nil
}

func (h *Argon2Hasher) VerifyPassword(ctx context.Context, password, encodedHash string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	switch {
	case strings.HasPrefix(encodedHash, argon2Prefix):
		return argon2.VerifyEncoded([]byte(password), []byte(encodedHash))
	case isBcrypt(encodedHash):
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, ErrUnsupportedHash
	}
}

func (h *Argon2Hasher) NeedsRehash(encodedHash string) bool {
	return !strings.HasPrefix(encodedHash, argon2Prefix)
}

func isBcrypt(encodedHash string) bool {
	for _, prefix := range bcryptPrefixes {
		if strings.HasPrefix(encodedHash, prefix) {
			return true
		}
	}
	return false
}
