// Package config loads oidcgate's process configuration from the
// environment, an optional .env file, and an optional YAML strategies file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	oidckit "github.com/PaulFidika/oidcgate/oidc"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is read from OIDCGATE_* environment variables.
type Config struct {
	Addr string `env:"OIDCGATE_ADDR,default=:8080"`
	Dev  bool   `env:"OIDCGATE_DEV,default=false"`

	// Keystore source, first match wins: KeystoreFile, JWKSURL, then the
	// jwks_uri discovered from Issuer.
	Issuer       string `env:"OIDCGATE_ISSUER"`
	JWKSURL      string `env:"OIDCGATE_JWKS_URL"`
	KeystoreFile string `env:"OIDCGATE_KEYSTORE_FILE"`

	TokenEndpoint string `env:"OIDCGATE_TOKEN_ENDPOINT"`
	// Clients is "id=secret,id2=secret2".
	Clients string `env:"OIDCGATE_CLIENTS"`

	// TokenAuthStyle is header, params, or empty to follow discovery.
	TokenAuthStyle string `env:"OIDCGATE_TOKEN_AUTH_STYLE"`

	OmitCheckExp    bool          `env:"OIDCGATE_OMIT_CHECK_EXP,default=false"`
	StrategiesFile  string        `env:"OIDCGATE_STRATEGIES_FILE"`
	RefreshSchedule string        `env:"OIDCGATE_REFRESH_SCHEDULE,default=@every 1h"`
	ExchangeTimeout time.Duration `env:"OIDCGATE_EXCHANGE_TIMEOUT,default=10s"`

	RedisURL         string        `env:"OIDCGATE_REDIS_URL"`
	KeystoreCacheTTL time.Duration `env:"OIDCGATE_KEYSTORE_CACHE_TTL,default=5m"`
	TokenRateLimit   int           `env:"OIDCGATE_TOKEN_RATE_LIMIT,default=30"`

	LogLevel  string `env:"OIDCGATE_LOG_LEVEL,default=info"`
	LogFormat string `env:"OIDCGATE_LOG_FORMAT,default=text"`
}

// Load reads envFile (or ./.env when envFile is empty and the file exists)
// into the process environment without overriding variables already set,
// then decodes Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("OIDCGATE_LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	if _, err := oidckit.ParseAuthStyle(cfg.TokenAuthStyle); err != nil {
		return nil, fmt.Errorf("OIDCGATE_TOKEN_AUTH_STYLE: %w", err)
	}
	if cfg.TokenEndpoint != "" && cfg.Clients == "" {
		return nil, errors.New("OIDCGATE_TOKEN_ENDPOINT is set but OIDCGATE_CLIENTS is empty")
	}
	return &cfg, nil
}

// ClientSecrets parses Clients.
func (c *Config) ClientSecrets() (oidckit.ClientSecrets, error) {
	return ParseClients(c.Clients)
}

// ParseClients parses "id=secret,id2=secret2". Secrets may contain '='.
func ParseClients(s string) (oidckit.ClientSecrets, error) {
	out := oidckit.ClientSecrets{}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, secret, ok := strings.Cut(entry, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("client entry %q: want id=secret", entry)
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("client %q listed twice", id)
		}
		out[id] = secret
	}
	return out, nil
}
