package oidckit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Claims is the decoded payload of a bearer token. Registered claims have
// typed accessors; everything else is read directly from the map.
type Claims map[string]any

// Subject returns the sub claim.
func (c Claims) Subject() string { return c.str("sub") }

// Issuer returns the iss claim.
func (c Claims) Issuer() string { return c.str("iss") }

// ID returns the jti claim.
func (c Claims) ID() string { return c.str("jti") }

// Expiry returns the exp claim. ok is false when the claim is absent; err is
// set when it is present but not a NumericDate.
func (c Claims) Expiry() (t time.Time, ok bool, err error) { return c.date("exp") }

// NotBefore returns the nbf claim.
func (c Claims) NotBefore() (t time.Time, ok bool, err error) { return c.date("nbf") }

// IssuedAt returns the iat claim.
func (c Claims) IssuedAt() (t time.Time, ok bool, err error) { return c.date("iat") }

// Strings returns a claim that may be a single string or an array of strings
// (aud, groups, roles).
func (c Claims) Strings(name string) []string {
	switch v := c[name].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (c Claims) str(name string) string {
	s, _ := c[name].(string)
	return s
}

func (c Claims) date(name string) (time.Time, bool, error) {
	v, ok := c[name]
	if !ok || v == nil {
		return time.Time{}, false, nil
	}
	secs, err := numericDate(v)
	if err != nil {
		return time.Time{}, true, fmt.Errorf("claim %s: %w", name, err)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)), true, nil
}

// numericDate accepts the number shapes a JSON decoder or a Go caller can
// produce for an RFC 7519 NumericDate (seconds since the epoch).
func numericDate(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("not a numeric date: %T", v)
}

// Decision is the outcome of evaluating a token. Credentials are whatever the
// validator attached on acceptance.
type Decision struct {
	IsValid     bool `json:"isValid"`
	Credentials any  `json:"credentials,omitempty"`
}

// Validator is caller-supplied claim policy. Returning a nil decision with a
// nil error is a configuration error.
type Validator func(ctx context.Context, claims Claims) (*Decision, error)

// StrategyConfig names one verification policy.
type StrategyConfig struct {
	Name     string
	Validate Validator
}

// ClientSecrets maps OAuth client IDs to their shared secrets.
type ClientSecrets map[string]string
