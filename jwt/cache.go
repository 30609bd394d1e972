package jwtkit

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// KeystoreCache stores serialized JWKS documents. Implementations own the TTL.
type KeystoreCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, jwks []byte) error
}

// CachedSource wraps fetch with a read-through cache so that a fleet of
// instances can share one upstream JWKS download per TTL window. Cache errors
// degrade to a direct fetch.
func CachedSource(cache KeystoreCache, key string, fetch FetchFunc, log logrus.FieldLogger) FetchFunc {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("tag", "keystore-cache")
	return func(ctx context.Context) (*Keystore, error) {
		if b, ok, err := cache.Get(ctx, key); err != nil {
			log.WithError(err).Warn("keystore cache read failed")
		} else if ok {
			ks, err := ParseKeystore(b)
			if err == nil {
				return ks, nil
			}
			log.WithError(err).Warn("discarding unparseable cached keystore")
		}

		ks, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		b, err := ks.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("serialize keystore: %w", err)
		}
		if err := cache.Put(ctx, key, b); err != nil {
			log.WithError(err).Warn("keystore cache write failed")
		}
		return ks, nil
	}
}
