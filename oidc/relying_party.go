package oidckit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	jwtkit "github.com/PaulFidika/oidcgate/jwt"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Discovery is the subset of an issuer's OpenID configuration the gate needs.
type Discovery struct {
	Issuer   string
	Endpoint oauth2.Endpoint
	JWKSURL  string
}

var knownIssuers = map[string]string{
	"google": "https://accounts.google.com",
	"apple":  "https://appleid.apple.com",
}

// KnownIssuer maps a short provider name to its issuer URL.
func KnownIssuer(name string) (string, bool) {
	iss, ok := knownIssuers[strings.ToLower(name)]
	return iss, ok
}

// Discover fetches the issuer's discovery document. A nil client uses
// http.DefaultClient. The issuer in the document must match.
func Discover(ctx context.Context, issuer string, client *http.Client) (*Discovery, error) {
	if iss, ok := KnownIssuer(issuer); ok {
		issuer = iss
	}
	issuer = strings.TrimRight(issuer, "/")
	if issuer == "" {
		return nil, errors.New("oidc: issuer is empty")
	}
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc: discovery failed: %w", err)
	}
	var doc struct {
		Issuer      string   `json:"issuer"`
		JWKSURI     string   `json:"jwks_uri"`
		AuthMethods []string `json:"token_endpoint_auth_methods_supported"`
	}
	if err := provider.Claims(&doc); err != nil {
		return nil, fmt.Errorf("oidc: decode discovery: %w", err)
	}
	ep := provider.Endpoint()
	if ep.TokenURL == "" || doc.JWKSURI == "" {
		return nil, errors.New("oidc: discovery missing endpoints")
	}
	ep.AuthStyle = authStyleFor(doc.AuthMethods)
	return &Discovery{
		Issuer:   doc.Issuer,
		Endpoint: ep,
		JWKSURL:  doc.JWKSURI,
	}, nil
}

// authStyleFor picks header auth unless the issuer only advertises
// client_secret_post. An empty list means client_secret_basic (RFC 8414).
func authStyleFor(methods []string) oauth2.AuthStyle {
	post := false
	for _, m := range methods {
		switch m {
		case "client_secret_basic":
			return oauth2.AuthStyleInHeader
		case "client_secret_post":
			post = true
		}
	}
	if post {
		return oauth2.AuthStyleInParams
	}
	return oauth2.AuthStyleInHeader
}

// ParseAuthStyle maps a configured credential placement to an oauth2
// AuthStyle: "" (auto), "header" or client_secret_basic, "params" or
// client_secret_post.
func ParseAuthStyle(s string) (oauth2.AuthStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return oauth2.AuthStyleAutoDetect, nil
	case "header", "client_secret_basic":
		return oauth2.AuthStyleInHeader, nil
	case "params", "client_secret_post":
		return oauth2.AuthStyleInParams, nil
	}
	return 0, fmt.Errorf("%w: unknown token auth style %q", ErrConfiguration, s)
}

// TokenEndpoint returns the discovered token URL.
func (d *Discovery) TokenEndpoint() string { return d.Endpoint.TokenURL }

// KeystoreSource fetches the discovered JWKS on each call.
func (d *Discovery) KeystoreSource(client *http.Client) jwtkit.FetchFunc {
	return jwtkit.JWKSURLSource(d.JWKSURL, client)
}
