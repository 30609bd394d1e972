package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	oidckit "github.com/PaulFidika/oidcgate/oidc"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OIDCGATE_JWKS_URL", "https://idp.example/jwks")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.RefreshSchedule != "@every 1h" || cfg.ExchangeTimeout != 10*time.Second {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.KeystoreCacheTTL != 5*time.Minute || cfg.TokenRateLimit != 30 || cfg.LogFormat != "text" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.JWKSURL != "https://idp.example/jwks" {
		t.Fatalf("jwks url: %q", cfg.JWKSURL)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gate.env")
	body := "OIDCGATE_TOKEN_ENDPOINT=https://idp.example/token\nOIDCGATE_CLIENTS=web=s3cret\nOIDCGATE_EXCHANGE_TIMEOUT=3s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	// godotenv leaves the variables in the process environment.
	for _, k := range []string{"OIDCGATE_TOKEN_ENDPOINT", "OIDCGATE_CLIENTS", "OIDCGATE_EXCHANGE_TIMEOUT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TokenEndpoint != "https://idp.example/token" || cfg.ExchangeTimeout != 3*time.Second {
		t.Fatalf("cfg: %+v", cfg)
	}
	clients, err := cfg.ClientSecrets()
	if err != nil || clients["web"] != "s3cret" {
		t.Fatalf("clients: %v %v", clients, err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OIDCGATE_LOG_FORMAT", "xml")
	if _, err := Load(""); err == nil {
		t.Fatal("bad log format should fail")
	}
	t.Setenv("OIDCGATE_LOG_FORMAT", "json")
	t.Setenv("OIDCGATE_TOKEN_AUTH_STYLE", "jwt")
	if _, err := Load(""); err == nil {
		t.Fatal("unknown token auth style should fail")
	}
	t.Setenv("OIDCGATE_TOKEN_AUTH_STYLE", "params")
	t.Setenv("OIDCGATE_TOKEN_ENDPOINT", "https://idp.example/token")
	if _, err := Load(""); err == nil {
		t.Fatal("token endpoint without clients should fail")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("explicit missing env file should fail")
	}
}

func TestParseClients(t *testing.T) {
	got, err := ParseClients(" web=s3cret , cli=a=b,,")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 || got["web"] != "s3cret" || got["cli"] != "a=b" {
		t.Fatalf("clients: %v", got)
	}
	for _, bad := range []string{"novalue", "=secret", "a=1,a=2"} {
		if _, err := ParseClients(bad); err == nil {
			t.Fatalf("%q should fail", bad)
		}
	}
}

func TestParseStrategies(t *testing.T) {
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"isValid":true,"credentials":{"tenant":"acme"}}`))
	}))
	defer hook.Close()

	doc := `
strategies:
  - name: open
  - name: ops
    require:
      groups: ops
      level: 2
  - name: partner
    require:
      iss: https://idp.example
    webhook: ` + hook.URL + `
`
	got, err := ParseStrategies([]byte(doc), hook.Client())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 3 || got[0].Name != "open" || got[0].Validate != nil {
		t.Fatalf("strategies: %+v", got)
	}
	ctx := context.Background()

	d, err := got[1].Validate(ctx, oidckit.Claims{"groups": []any{"ops"}, "level": float64(2)})
	if err != nil || !d.IsValid {
		t.Fatalf("ops accept: %+v %v", d, err)
	}
	if d, _ := got[1].Validate(ctx, oidckit.Claims{"groups": []any{"dev"}, "level": float64(2)}); d.IsValid {
		t.Fatal("ops should reject dev")
	}

	d, err = got[2].Validate(ctx, oidckit.Claims{"iss": "https://idp.example"})
	if err != nil || !d.IsValid {
		t.Fatalf("partner accept: %+v %v", d, err)
	}
	if creds, _ := d.Credentials.(map[string]any); creds["tenant"] != "acme" {
		t.Fatalf("webhook credentials should win: %#v", d.Credentials)
	}
	if d, _ := got[2].Validate(ctx, oidckit.Claims{"iss": "https://other"}); d.IsValid {
		t.Fatal("require should short-circuit before the webhook")
	}
}

func TestParseStrategies_BadYAML(t *testing.T) {
	if _, err := ParseStrategies([]byte("strategies: [unterminated"), nil); err == nil {
		t.Fatal("expected parse error")
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+): it changes the working directory
// for the duration of the test and restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
