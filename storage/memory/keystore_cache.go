package memorystore

import (
	"context"
	"sync"
	"time"
)

// KeystoreCache is an in-memory jwtkit.KeystoreCache with TTL. It is meant
// for single-instance deployments and tests; use the redis store to share
// one JWKS download across a fleet.
type KeystoreCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	data   map[string]item
	closed chan struct{}
	once   sync.Once
}

type item struct {
	v   []byte
	exp time.Time
}

// NewKeystoreCache creates a new in-memory keystore cache with the given TTL.
// If ttl <= 0, a default of 5 minutes is used.
// Starts a background goroutine to clean up expired entries every minute.
func NewKeystoreCache(ttl time.Duration) *KeystoreCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &KeystoreCache{ttl: ttl, data: make(map[string]item), closed: make(chan struct{})}
	go c.cleanupLoop()
	return c
}

func (s *KeystoreCache) Put(ctx context.Context, key string, jwks []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = item{v: append([]byte(nil), jwks...), exp: time.Now().Add(s.ttl)}
	return nil
}

func (s *KeystoreCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	if !time.Now().Before(it.exp) {
		delete(s.data, key)
		return nil, false, nil
	}
	return append([]byte(nil), it.v...), true, nil
}

func (s *KeystoreCache) Del(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *KeystoreCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.closed:
			return
		}
	}
}

func (s *KeystoreCache) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, v := range s.data {
		if !now.Before(v.exp) {
			delete(s.data, k)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call more than once.
func (s *KeystoreCache) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
