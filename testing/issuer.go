// Package testing provides a mock identity provider for applications that
// mount oidcgate. It serves discovery, JWKS, and a token endpoint, and it
// signs tokens that verify against its own JWKS, enabling integration tests
// without a real identity provider.
//
// Example usage:
//
//	issuer := testing.NewTestIssuer()
//	defer issuer.Close()
//	issuer.AddClient("web", "s3cret")
//	issuer.AddUser("alice", "hunter2")
//
//	gate, _ := oidckit.New(ctx, oidckit.Options{
//		FetchKeystore: issuer.KeystoreSource(),
//		TokenEndpoint: issuer.TokenURL(),
//		Clients:       oidckit.ClientSecrets{"web": "s3cret"},
//	})
//	token := issuer.CreateToken("user-123", nil)
package testing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	jwtkit "github.com/PaulFidika/oidcgate/jwt"
	jwt "github.com/golang-jwt/jwt/v5"
)

// TestIssuer runs an HTTP server exposing
// /.well-known/openid-configuration, /.well-known/jwks.json and /token.
type TestIssuer struct {
	server   *httptest.Server
	signer   *jwtkit.RSASigner
	keystore *jwtkit.Keystore
	audience string

	mu       sync.Mutex
	clients  map[string]string
	users    map[string]string
	requests int
}

// NewTestIssuer creates a new test issuer. It generates a fresh RSA key pair.
// Call Close() when done to shut down the test server.
func NewTestIssuer() *TestIssuer {
	return NewTestIssuerWithAudience("test-app")
}

// NewTestIssuerWithAudience creates a test issuer with a specific audience claim.
func NewTestIssuerWithAudience(audience string) *TestIssuer {
	signer, err := jwtkit.NewRSASigner(2048, "test-key-1")
	if err != nil {
		panic("failed to create RSA signer: " + err.Error())
	}
	ks, err := signer.Keystore()
	if err != nil {
		panic("failed to build keystore: " + err.Error())
	}

	ti := &TestIssuer{
		signer:   signer,
		keystore: ks,
		audience: audience,
		clients:  map[string]string{},
		users:    map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", ti.handleDiscovery)
	mux.HandleFunc("/.well-known/jwks.json", ti.handleJWKS)
	mux.HandleFunc("/token", ti.handleToken)

	ti.server = httptest.NewServer(mux)
	return ti
}

// URL returns the base URL of the test issuer, which is also its iss.
func (ti *TestIssuer) URL() string { return ti.server.URL }

// TokenURL returns the token endpoint.
func (ti *TestIssuer) TokenURL() string { return ti.server.URL + "/token" }

// JWKSURL returns the JWKS endpoint.
func (ti *TestIssuer) JWKSURL() string { return ti.server.URL + "/.well-known/jwks.json" }

// Audience returns the audience configured for this test issuer.
func (ti *TestIssuer) Audience() string { return ti.audience }

// Keystore returns the public keystore matching issued tokens.
func (ti *TestIssuer) Keystore() *jwtkit.Keystore { return ti.keystore }

// KeystoreSource fetches the issuer's JWKS over HTTP.
func (ti *TestIssuer) KeystoreSource() jwtkit.FetchFunc {
	return jwtkit.JWKSURLSource(ti.JWKSURL(), ti.server.Client())
}

// Client returns an HTTP client for talking to the issuer.
func (ti *TestIssuer) Client() *http.Client { return ti.server.Client() }

// Close shuts down the test server.
func (ti *TestIssuer) Close() {
	if ti.server != nil {
		ti.server.Close()
	}
}

// AddClient registers an OAuth client accepted by the token endpoint.
func (ti *TestIssuer) AddClient(id, secret string) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.clients[id] = secret
}

// AddUser registers a resource owner for the password grant.
func (ti *TestIssuer) AddUser(username, password string) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.users[username] = password
}

// TokenRequests returns how many requests reached the token endpoint.
func (ti *TestIssuer) TokenRequests() int {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.requests
}

func (ti *TestIssuer) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"issuer":                 ti.URL(),
		"authorization_endpoint": ti.URL() + "/authorize",
		"token_endpoint":         ti.TokenURL(),
		"jwks_uri":               ti.JWKSURL(),
	})
}

func (ti *TestIssuer) handleJWKS(w http.ResponseWriter, r *http.Request) {
	jwtkit.ServeJWKS(w, r, ti.keystore)
}

func (ti *TestIssuer) handleToken(w http.ResponseWriter, r *http.Request) {
	ti.mu.Lock()
	ti.requests++
	ti.mu.Unlock()

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, secret, ok := r.BasicAuth()
	ti.mu.Lock()
	want, known := ti.clients[id]
	ti.mu.Unlock()
	if !ok || !known || want != secret {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "Invalid client credentials")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Malformed form body")
		return
	}
	if r.PostForm.Has("client_id") {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "client_id must not be sent in the body with Basic auth")
		return
	}
	if gt := r.PostForm.Get("grant_type"); gt != "password" {
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "Unsupported grant type: "+gt)
		return
	}
	user := r.PostForm.Get("username")
	ti.mu.Lock()
	pw, exists := ti.users[user]
	ti.mu.Unlock()
	if !exists || pw != r.PostForm.Get("password") {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "Invalid user credentials")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": ti.CreateToken(user, map[string]any{"azp": id}),
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func writeOAuthError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "error_description": desc})
}

// CreateToken creates a signed token for sub. The extra claims are merged
// over the standard ones (sub, iss, aud, exp, iat).
func (ti *TestIssuer) CreateToken(sub string, extraClaims map[string]any) string {
	now := time.Now()

	claims := jwt.MapClaims{
		"sub": sub,
		"iss": ti.URL(),
		"aud": ti.audience,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
	for k, v := range extraClaims {
		claims[k] = v
	}

	token, err := ti.signer.Sign(context.Background(), claims)
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}

// CreateTokenWithExpiry creates a signed token with a custom expiry time.
func (ti *TestIssuer) CreateTokenWithExpiry(sub string, expiry time.Time) string {
	return ti.CreateToken(sub, map[string]any{"exp": expiry.Unix()})
}

// CreateExpiredToken creates a token that has already expired.
func (ti *TestIssuer) CreateExpiredToken(sub string) string {
	return ti.CreateTokenWithExpiry(sub, time.Now().Add(-time.Hour))
}

// CreateForeignToken creates a token with this issuer's kid but signed by an
// unrelated key, as a forger would.
func (ti *TestIssuer) CreateForeignToken(sub string) string {
	other, err := jwtkit.NewRSASigner(2048, ti.signer.KID())
	if err != nil {
		panic("failed to create RSA signer: " + err.Error())
	}
	now := time.Now()
	token, err := other.Sign(context.Background(), jwt.MapClaims{
		"sub": sub,
		"iss": ti.URL(),
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	})
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}
