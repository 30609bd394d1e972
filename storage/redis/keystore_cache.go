package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeystoreCache stores serialized JWKS documents in Redis so that every
// gate instance shares one upstream download per TTL window.
type KeystoreCache struct {
	rdb   redis.Cmdable
	keyNS string
	ttl   time.Duration
}

func NewKeystoreCache(rdb redis.Cmdable, keyPrefix string, ttl time.Duration) *KeystoreCache {
	if keyPrefix == "" {
		keyPrefix = "oidcgate:jwks:"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &KeystoreCache{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (s *KeystoreCache) key(k string) string { return s.keyNS + k }

func (s *KeystoreCache) Put(ctx context.Context, key string, jwks []byte) error {
	return s.rdb.Set(ctx, s.key(key), jwks, s.ttl).Err()
}

func (s *KeystoreCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *KeystoreCache) Del(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}
