package authgin

import (
	"errors"
	"strings"

	oidckit "github.com/PaulFidika/oidcgate/oidc"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Context keys set by Authenticate.
const (
	CredentialsKey = "auth.credentials"
	ClaimsKey      = "auth.claims"
	StrategyKey    = "auth.strategy"
)

// Authenticate requires a bearer token accepted by the named strategy.
// Missing or rejected tokens get 401; configuration errors and validator
// faults get 500.
func Authenticate(gate *oidckit.Gate, strategy string, opts ...Option) gin.HandlerFunc {
	o := newOptions(opts)
	return func(c *gin.Context) {
		tok, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c)
			return
		}
		d, claims, err := gate.Verify(c.Request.Context(), strategy, tok)
		if err != nil {
			log := requestLog(c, o.log).WithFields(logrus.Fields{"tag": "oidc-policy", "strategy": strategy})
			if errors.Is(err, oidckit.ErrValidatorFault) {
				log.WithError(err).Error("validator fault")
			} else {
				log.WithError(err).Error("strategy misconfigured")
			}
			serverErr(c)
			return
		}
		if !d.IsValid {
			unauthorized(c)
			return
		}
		c.Set(CredentialsKey, d.Credentials)
		c.Set(ClaimsKey, claims)
		c.Set(StrategyKey, strategy)
		c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// CredentialsFromGin returns the credentials attached by Authenticate.
func CredentialsFromGin(c *gin.Context) (any, bool) {
	return c.Get(CredentialsKey)
}

// ClaimsFromGin returns the verified claims attached by Authenticate.
func ClaimsFromGin(c *gin.Context) (oidckit.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	cl, ok := v.(oidckit.Claims)
	return cl, ok
}
