package authhttp

import (
	"io"
	"net"
	"net/http"

	oidckit "github.com/PaulFidika/oidcgate/oidc"
	"github.com/elnormous/contenttype"
)

var (
	formMediaType = contenttype.NewMediaType("application/x-www-form-urlencoded")
	jsonMediaType = contenttype.NewMediaType("application/json")
)

const maxTokenRequestBytes = 64 << 10

// TokenHandler returns the POST /token handler, or nil when the gate has no
// exchange proxy; callers must not mount a nil handler.
func TokenHandler(gate *oidckit.Gate, opts ...Option) http.Handler {
	if gate == nil || gate.Exchange == nil {
		return nil
	}
	o := newOptions(opts)
	proxy := gate.Exchange
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := requestLog(w, r, o.log).WithField("tag", "oidc-exchange")
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeEnvelope(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if o.rl != nil {
			ok, err := o.rl.Allow(r.Context(), "token", clientIP(r))
			if err != nil {
				log.WithError(err).Warn("rate limiter unavailable; allowing request")
			} else if !ok {
				writeEnvelope(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}

		mt, err := contenttype.GetMediaType(r)
		if err != nil {
			writeEnvelope(w, http.StatusUnsupportedMediaType, "content-type must be application/x-www-form-urlencoded or application/json")
			return
		}
		var payload oidckit.TokenPayload
		switch {
		case mt.Matches(formMediaType):
			r.Body = http.MaxBytesReader(w, r.Body, maxTokenRequestBytes)
			if err := r.ParseForm(); err != nil {
				writeEnvelope(w, http.StatusBadRequest, "invalid form body")
				return
			}
			payload = oidckit.PayloadFromValues(r.PostForm)
		case mt.Matches(jsonMediaType):
			b, err := io.ReadAll(io.LimitReader(r.Body, maxTokenRequestBytes))
			if err != nil {
				writeEnvelope(w, http.StatusBadRequest, "unreadable body")
				return
			}
			if payload, err = oidckit.PayloadFromJSON(b); err != nil {
				writeEnvelope(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
		default:
			writeEnvelope(w, http.StatusUnsupportedMediaType, "content-type must be application/x-www-form-urlencoded or application/json")
			return
		}

		resp, err := proxy.IssueToken(r.Context(), payload)
		if err != nil {
			status, body := oidckit.ErrorEnvelope(err)
			log.WithError(err).WithField("status", status).Info("token exchange failed")
			writeJSON(w, status, body)
			return
		}
		ct := resp.ContentType
		if ct == "" {
			ct = "application/json"
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
	})
}

func writeEnvelope(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"statusCode": status,
		"error":      http.StatusText(status),
		"message":    msg,
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
