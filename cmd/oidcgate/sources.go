package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/PaulFidika/oidcgate/config"
	jwtkit "github.com/PaulFidika/oidcgate/jwt"
	oidckit "github.com/PaulFidika/oidcgate/oidc"
	redisstore "github.com/PaulFidika/oidcgate/storage/redis"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// keystoreSource picks the keystore source from cfg and, when an issuer is
// configured, fills in the token endpoint and its auth style from discovery. A nil FetchFunc
// means dev mode must supply the keys.
func keystoreSource(ctx context.Context, cfg *config.Config, rdb redis.Cmdable, client *http.Client, log logrus.FieldLogger) (jwtkit.FetchFunc, error) {
	if cfg.KeystoreFile != "" {
		return jwtkit.FileSource(cfg.KeystoreFile), nil
	}

	jwksURL := cfg.JWKSURL
	if cfg.Issuer != "" && (jwksURL == "" || cfg.TokenEndpoint == "") {
		d, err := oidckit.Discover(ctx, cfg.Issuer, client)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"issuer": d.Issuer, "jwks_uri": d.JWKSURL, "token_endpoint": d.TokenEndpoint()}).
			Info("discovered issuer configuration")
		if jwksURL == "" {
			jwksURL = d.JWKSURL
		}
		if cfg.TokenEndpoint == "" && cfg.Clients != "" {
			cfg.TokenEndpoint = d.TokenEndpoint()
			if cfg.TokenAuthStyle == "" && d.Endpoint.AuthStyle == oauth2.AuthStyleInParams {
				cfg.TokenAuthStyle = "params"
			}
		}
	}
	if jwksURL == "" {
		return nil, nil
	}

	fetch := jwtkit.JWKSURLSource(jwksURL, client)
	if rdb != nil {
		cache := redisstore.NewKeystoreCache(rdb, "", cfg.KeystoreCacheTTL)
		fetch = jwtkit.CachedSource(cache, jwksURL, fetch, log)
	}
	return fetch, nil
}

func redisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("OIDCGATE_REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}
