package authhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	oidckit "github.com/PaulFidika/oidcgate/oidc"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ctxKey int

const (
	credentialsKey ctxKey = iota
	claimsKey
	strategyKey
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-Id"

// RateLimiter is satisfied by ratelimit/memory and ratelimit/redis.
type RateLimiter interface {
	Allow(ctx context.Context, bucket, key string) (bool, error)
}

type options struct {
	rl  RateLimiter
	log logrus.FieldLogger
}

// Option configures handlers.
type Option func(*options)

func WithRateLimiter(rl RateLimiter) Option { return func(o *options) { o.rl = rl } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func newOptions(opts []Option) options {
	o := options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Middleware requires a bearer token accepted by the named strategy.
func Middleware(gate *oidckit.Gate, strategy string, opts ...Option) func(http.Handler) http.Handler {
	o := newOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := requestLog(w, r, o.log)
			tok, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeUnauthorized(w)
				return
			}
			d, claims, err := gate.Verify(r.Context(), strategy, tok)
			if err != nil {
				log = log.WithFields(logrus.Fields{"tag": "oidc-policy", "strategy": strategy})
				if errors.Is(err, oidckit.ErrValidatorFault) {
					log.WithError(err).Error("validator fault")
				} else {
					log.WithError(err).Error("strategy misconfigured")
				}
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal_error"})
				return
			}
			if !d.IsValid {
				writeUnauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), credentialsKey, d.Credentials)
			ctx = context.WithValue(ctx, claimsKey, claims)
			ctx = context.WithValue(ctx, strategyKey, strategy)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Credentials returns what the validator attached, if Middleware accepted
// the request.
func Credentials(ctx context.Context) (any, bool) {
	v := ctx.Value(credentialsKey)
	return v, v != nil
}

// ClaimsFrom returns the verified claims.
func ClaimsFrom(ctx context.Context) (oidckit.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(oidckit.Claims)
	return c, ok
}

// StrategyFrom returns the strategy that accepted the request.
func StrategyFrom(ctx context.Context) string {
	s, _ := ctx.Value(strategyKey).(string)
	return s
}

func bearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

func requestLog(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger) logrus.FieldLogger {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	return log.WithField("request_id", id)
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="oidcgate"`)
	writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
