package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenDenylist records revoked session token IDs until they would have
// expired anyway.
type TokenDenylist interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

var ErrEmptyTokenID = errors.New("token id is empty")

type memoryTokenDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryTokenDenylist returns a process-local denylist. Expired entries
// are dropped whenever a new token is revoked.
func NewMemoryTokenDenylist(now func() time.Time) TokenDenylist {
	if now == nil {
		now = time.Now
	}
	return &memoryTokenDenylist{
		revoked: make(map[string]time.Time),
		now:     now,
	}
}

func (d *memoryTokenDenylist) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return ErrEmptyTokenID
	}

	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for id, exp := range d.revoked {
		if !now.Before(exp) {
			delete(d.revoked, id)
		}
	}
	if now.Before(expiresAt) {
		d.revoked[jti] = expiresAt
	}
	return nil
}

func (d *memoryTokenDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	exp, ok := d.revoked[jti]
	return ok && d.now().Before(exp), nil
}

const denylistKeyPrefix = "journal:revoked:"

type redisTokenDenylist struct {
	client *redis.Client
}

// NewRedisTokenDenylist stores revocations as keys whose TTL matches the
// token's remaining lifetime.
func NewRedisTokenDenylist(client *redis.Client) TokenDenylist {
	return &redisTokenDenylist{client: client}
}

func (d *redisTokenDenylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return ErrEmptyTokenID
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, denylistKeyPrefix+jti, 1, ttl).Err()
}

func (d *redisTokenDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, denylistKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
