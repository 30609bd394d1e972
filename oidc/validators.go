package oidckit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
)

// DefaultValidator accepts every authentic, unexpired token and passes the
// claims through as credentials.
func DefaultValidator(_ context.Context, claims Claims) (*Decision, error) {
	return &Decision{IsValid: true, Credentials: claims}, nil
}

// RequireClaims accepts a token when every listed claim matches. A scalar
// claim must equal the wanted value; an array claim, or the space-delimited
// scope claim, must contain it. A wanted list requires every element.
func RequireClaims(required map[string]any) Validator {
	return func(_ context.Context, claims Claims) (*Decision, error) {
		for name, want := range required {
			got, ok := claims[name]
			if !ok {
				return &Decision{}, nil
			}
			if !claimMatches(name, got, want) {
				return &Decision{}, nil
			}
		}
		return &Decision{IsValid: true, Credentials: claims}, nil
	}
}

func claimMatches(name string, got, want any) bool {
	if wants, ok := want.([]any); ok {
		for _, w := range wants {
			if !claimMatches(name, got, w) {
				return false
			}
		}
		return true
	}
	switch g := got.(type) {
	case []any:
		for _, e := range g {
			if valuesEqual(e, want) {
				return true
			}
		}
		return false
	case []string:
		for _, e := range g {
			if valuesEqual(e, want) {
				return true
			}
		}
		return false
	case string:
		if name == "scope" {
			w, ok := want.(string)
			if !ok {
				return false
			}
			for _, s := range strings.Fields(g) {
				if s == w {
					return true
				}
			}
			return false
		}
	}
	return valuesEqual(got, want)
}

// valuesEqual compares numbers by value so that YAML integers match JSON
// floats.
func valuesEqual(a, b any) bool {
	if x, err := numericDate(a); err == nil {
		if y, err := numericDate(b); err == nil {
			return x == y
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// DecisionFrom checks an untyped validator result. It must be an object with
// a boolean isValid; anything else is ErrInvalidValidatorResult.
func DecisionFrom(v any) (*Decision, error) {
	switch r := v.(type) {
	case nil:
		return nil, ErrInvalidValidatorResult
	case *Decision:
		if r == nil {
			return nil, ErrInvalidValidatorResult
		}
		return r, nil
	case Decision:
		return &r, nil
	case map[string]any:
		ok, isBool := r["isValid"].(bool)
		if !isBool {
			return nil, fmt.Errorf("%w: isValid is %T", ErrInvalidValidatorResult, r["isValid"])
		}
		return &Decision{IsValid: ok, Credentials: r["credentials"]}, nil
	case []byte:
		return decisionFromJSON(r)
	case json.RawMessage:
		return decisionFromJSON(r)
	case string:
		return decisionFromJSON([]byte(r))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidValidatorResult, err)
	}
	return decisionFromJSON(b)
}

func decisionFromJSON(b []byte) (*Decision, error) {
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidValidatorResult, err)
	}
	if obj == nil {
		return nil, ErrInvalidValidatorResult
	}
	return DecisionFrom(obj)
}

// WebhookValidator delegates the decision to a remote service. The claims are
// POSTed as JSON and the response body must be a decision object. Transport
// failures and non-2xx answers are validator faults.
func WebhookValidator(url string, client *http.Client) Validator {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, claims Claims) (*Decision, error) {
		body, err := json.Marshal(claims)
		if err != nil {
			return nil, fmt.Errorf("encode claims: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("call validator webhook: %w", err)
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("read validator webhook response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("validator webhook: %s", resp.Status)
		}
		return DecisionFrom(b)
	}
}
