package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix is the Redis key prefix for session-bound vault keys.
const keyPrefix = "vaultkey:"

// KeyStore binds a derived vault key to a session token for the lifetime of
// the session. Put is called once per successful login, Remove on logout.
// A missing key for an otherwise-authenticated session means the session is
// stale relative to vault access -- callers must force a re-login, never
// fall through with an empty key.
type KeyStore interface {
	Put(ctx context.Context, sessionToken, key string) error
	Get(ctx context.Context, sessionToken string) (key string, ok bool, err error)
	Remove(ctx context.Context, sessionToken string) error
}

// SessionKeyStore implements KeyStore on Redis. The entry shares the
// session TTL so key material can never outlive the session that owns it.
// It also carries the KDF so the auth plugin can derive-and-bind through a
// single dependency without importing this package's internals.
type SessionKeyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionKeyStore creates a key store with the given session TTL.
func NewSessionKeyStore(rdb *redis.Client, ttl time.Duration) *SessionKeyStore {
	return &SessionKeyStore{rdb: rdb, ttl: ttl}
}

// Derive derives the vault key for a login password and per-user salt.
// Exposed on the store so auth can depend on one small interface.
func (s *SessionKeyStore) Derive(password string, salt []byte) string {
	return DeriveKey(password, salt)
}

// Put stores the key under the session token with the session TTL.
func (s *SessionKeyStore) Put(ctx context.Context, sessionToken, key string) error {
	if err := s.rdb.Set(ctx, keyPrefix+sessionToken, key, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing vault key: %w", err)
	}
	return nil
}

// Get returns the key bound to the session token. ok is false when the
// entry is absent or expired.
func (s *SessionKeyStore) Get(ctx context.Context, sessionToken string) (string, bool, error) {
	key, err := s.rdb.Get(ctx, keyPrefix+sessionToken).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading vault key: %w", err)
	}
	return key, true, nil
}

// Remove deletes the key. Called on logout; expiry covers session timeout.
func (s *SessionKeyStore) Remove(ctx context.Context, sessionToken string) error {
	if err := s.rdb.Del(ctx, keyPrefix+sessionToken).Err(); err != nil {
		return fmt.Errorf("deleting vault key: %w", err)
	}
	return nil
}
