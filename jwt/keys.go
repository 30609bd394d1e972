package jwtkit

import (
	"context"
	"crypto/rsa"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

var (
	// ErrKeystoreSourceRequired is returned when no fetch source is configured outside dev mode.
	ErrKeystoreSourceRequired = errors.New("jwtkit: fetch keystore source required when not operating in dev mode")
	// ErrDevKeystoreInProduction is returned when dev mode is requested in a production environment.
	ErrDevKeystoreInProduction = errors.New("jwtkit: dev keystore is disabled in production")
)

// FetchFunc supplies a keystore snapshot. It is called once at startup and
// again on every refresh.
type FetchFunc func(ctx context.Context) (*Keystore, error)

// LoadKeystore resolves the startup keystore. A configured fetch function
// always wins and its failure is returned as-is; the bundled development
// keystore is only used when dev is set and no fetch function exists.
func LoadKeystore(ctx context.Context, fetch FetchFunc, dev bool) (*Keystore, error) {
	if fetch != nil {
		ks, err := fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch keystore: %w", err)
		}
		if ks == nil || ks.Len() == 0 {
			return nil, fmt.Errorf("fetch keystore: %w", ErrEmptyKeystore)
		}
		return ks, nil
	}
	if !dev {
		return nil, ErrKeystoreSourceRequired
	}
	// The dev private key ships with the module, so accepting it in
	// production would accept tokens anyone can mint.
	if isProdEnv() {
		return nil, ErrDevKeystoreInProduction
	}
	return DevKeystore()
}

// StaticSource always returns ks.
func StaticSource(ks *Keystore) FetchFunc {
	return func(context.Context) (*Keystore, error) {
		if ks == nil {
			return nil, ErrEmptyKeystore
		}
		return ks, nil
	}
}

// JWKSURLSource fetches a JWKS document over HTTP on each call.
func JWKSURLSource(url string, client *http.Client) FetchFunc {
	return func(ctx context.Context) (*Keystore, error) {
		if url == "" {
			return nil, errors.New("jwtkit: jwks url is empty")
		}
		opts := []jwk.FetchOption{}
		if client != nil {
			opts = append(opts, jwk.WithHTTPClient(client))
		}
		set, err := jwk.Fetch(ctx, url, opts...)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		return NewKeystore(set)
	}
}

// FileSource reads a keystore file on each call. Files ending in .pem hold a
// single RSA public key whose kid is the file name without extension; any
// other file is parsed as a JWKS document.
func FileSource(path string) FetchFunc {
	return func(context.Context) (*Keystore, error) {
		return loadKeystoreFile(path)
	}
}

func loadKeystoreFile(path string) (*Keystore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}
	if !strings.EqualFold(filepath.Ext(path), ".pem") {
		return ParseKeystore(data)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	kid := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return KeystoreFromRSA(map[string]*rsa.PublicKey{kid: pub})
}

//go:embed devkeys/dev_private.pem devkeys/kid
var devKeys embed.FS

// DevSigner returns a signer for the bundled development key. Tokens it mints
// verify against DevKeystore.
func DevSigner() (*RSASigner, error) {
	pemBytes, err := devKeys.ReadFile("devkeys/dev_private.pem")
	if err != nil {
		return nil, fmt.Errorf("read dev key: %w", err)
	}
	kid := "dev"
	if kidBytes, err := devKeys.ReadFile("devkeys/kid"); err == nil {
		if k := strings.TrimSpace(string(kidBytes)); k != "" {
			kid = k
		}
	}
	return NewRSASignerFromPEM(kid, pemBytes)
}

// DevKeystore returns the bundled development keystore.
func DevKeystore() (*Keystore, error) {
	signer, err := DevSigner()
	if err != nil {
		return nil, err
	}
	return signer.Keystore()
}

// isProdEnv returns true if the current process appears to be running in a
// production environment based on common environment variables.
// It mirrors the ENV detection commonly used by services:
//
//	ENV, APP_ENV, or ENVIRONMENT (case-insensitive).
func isProdEnv() bool {
	env := strings.TrimSpace(os.Getenv("ENV"))
	if env == "" {
		env = strings.TrimSpace(os.Getenv("APP_ENV"))
	}
	if env == "" {
		env = strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	}
	env = strings.ToLower(env)
	return env == "production" || env == "prod"
}
