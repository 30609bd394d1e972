package authgin

import (
	"io"
	"net/http"

	jwtkit "github.com/PaulFidika/oidcgate/jwt"
	oidckit "github.com/PaulFidika/oidcgate/oidc"
	"github.com/elnormous/contenttype"
	"github.com/gin-gonic/gin"
)

var (
	formMediaType = contenttype.NewMediaType("application/x-www-form-urlencoded")
	jsonMediaType = contenttype.NewMediaType("application/json")
)

const maxTokenRequestBytes = 64 << 10

// RegisterRoutes mounts POST /token when the gate has an exchange proxy.
// Without one the route does not exist.
func RegisterRoutes(r gin.IRoutes, gate *oidckit.Gate, opts ...Option) {
	if gate == nil || gate.Exchange == nil {
		return
	}
	r.POST("/token", tokenHandler(gate.Exchange, newOptions(opts)))
}

// JWKSRoute serves the current public keystore at /.well-known/jwks.json.
func JWKSRoute(r gin.IRoutes, holder *jwtkit.KeystoreHolder) {
	r.GET("/.well-known/jwks.json", func(c *gin.Context) {
		jwtkit.ServeJWKS(c.Writer, c.Request, holder.Keystore())
	})
}

func tokenHandler(proxy *oidckit.TokenProxy, o options) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := requestLog(c, o.log).WithField("tag", "oidc-exchange")
		if o.rl != nil {
			ok, err := o.rl.Allow(c.Request.Context(), TokenBucket, c.ClientIP())
			if err != nil {
				log.WithError(err).Warn("rate limiter unavailable; allowing request")
			} else if !ok {
				tooMany(c)
				return
			}
		}

		mt, err := contenttype.GetMediaType(c.Request)
		if err != nil {
			unsupportedMedia(c)
			return
		}
		var payload oidckit.TokenPayload
		switch {
		case mt.Matches(formMediaType):
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxTokenRequestBytes)
			if err := c.Request.ParseForm(); err != nil {
				badRequest(c, "invalid form body")
				return
			}
			payload = oidckit.PayloadFromValues(c.Request.PostForm)
		case mt.Matches(jsonMediaType):
			b, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTokenRequestBytes))
			if err != nil {
				badRequest(c, "unreadable body")
				return
			}
			if payload, err = oidckit.PayloadFromJSON(b); err != nil {
				badRequest(c, "invalid JSON body")
				return
			}
		default:
			unsupportedMedia(c)
			return
		}

		resp, err := proxy.IssueToken(c.Request.Context(), payload)
		if err != nil {
			status, body := oidckit.ErrorEnvelope(err)
			log.WithError(err).WithField("status", status).Info("token exchange failed")
			c.AbortWithStatusJSON(status, body)
			return
		}
		ct := resp.ContentType
		if ct == "" {
			ct = "application/json"
		}
		c.Header("Cache-Control", "no-store")
		c.Data(resp.StatusCode, ct, resp.Body)
	}
}
