package oidckit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const maxTokenResponseBytes = 1 << 20

// TokenPayload is an exchange request. ClientID selects the Basic credential
// and is never forwarded in the form body.
type TokenPayload struct {
	ClientID string
	Fields   url.Values
}

// AuthorizationGrant builds a payload carrying a client ID and any extra
// form fields (code, redirect_uri, grant_type) the caller supplies.
func AuthorizationGrant(clientID string, fields url.Values) TokenPayload {
	p := PayloadFromValues(fields)
	p.ClientID = clientID
	return p
}

// PasswordGrant builds a resource-owner password payload.
func PasswordGrant(clientID, username, password string) TokenPayload {
	return TokenPayload{
		ClientID: clientID,
		Fields: url.Values{
			"grant_type": {"password"},
			"username":   {username},
			"password":   {password},
		},
	}
}

// PayloadFromValues splits an inbound form into a payload, moving client_id
// out of the forwarded fields.
func PayloadFromValues(v url.Values) TokenPayload {
	fields := make(url.Values, len(v))
	for k, vs := range v {
		fields[k] = append([]string(nil), vs...)
	}
	clientID := fields.Get("client_id")
	fields.Del("client_id")
	return TokenPayload{ClientID: clientID, Fields: fields}
}

// TokenResponse is a successful upstream answer, forwarded verbatim.
type TokenResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// UpstreamGrantError is returned when the token endpoint answers with a
// non-2xx status. OIDCError holds the decoded upstream JSON body as sent
// (usually an object), or nil when the body was not JSON.
type UpstreamGrantError struct {
	StatusCode int
	Message    string
	OIDCError  any
	Body       []byte
}

func (e *UpstreamGrantError) Error() string {
	obj, _ := e.OIDCError.(map[string]any)
	if code, ok := obj["error"].(string); ok {
		return fmt.Sprintf("oidckit: %s (%s)", e.Message, code)
	}
	return "oidckit: " + e.Message
}

// Envelope renders the caller-facing error body.
func (e *UpstreamGrantError) Envelope() map[string]any {
	env := map[string]any{
		"statusCode": e.StatusCode,
		"error":      http.StatusText(e.StatusCode),
		"message":    e.Message,
	}
	if e.OIDCError != nil {
		env["oidc_error"] = e.OIDCError
	}
	return env
}

// TransportError is returned when the token endpoint could not be reached or
// did not answer in time. It never carries an upstream body.
type TransportError struct {
	Err     error
	Timeout bool
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("oidckit: token endpoint timed out: %v", e.Err)
	}
	return fmt.Sprintf("oidckit: token endpoint unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProxyOption configures a TokenProxy.
type ProxyOption func(*TokenProxy)

// WithHTTPClient sets the client used for upstream calls. Its Timeout is the
// only deadline besides the request context.
func WithHTTPClient(c *http.Client) ProxyOption {
	return func(p *TokenProxy) {
		if c != nil {
			p.client = c
		}
	}
}

// WithAuthStyle selects where client credentials are sent.
// oauth2.AuthStyleInParams moves them into the form body as client_id and
// client_secret; any other value uses the Authorization header.
func WithAuthStyle(style oauth2.AuthStyle) ProxyOption {
	return func(p *TokenProxy) { p.authStyle = style }
}

// WithProxyLogger sets the logger.
func WithProxyLogger(l logrus.FieldLogger) ProxyOption {
	return func(p *TokenProxy) {
		if l != nil {
			p.log = l
		}
	}
}

// TokenProxy forwards credential exchanges to an upstream token endpoint.
type TokenProxy struct {
	endpoint  string
	authStyle oauth2.AuthStyle
	clients   ClientSecrets
	client    *http.Client
	log       logrus.FieldLogger
}

// NewTokenProxy forwards to endpoint with Basic client authentication. The
// default client does not follow redirects, so a 3xx answer is reported as
// an upstream rejection instead of being replayed.
func NewTokenProxy(endpoint string, clients ClientSecrets, opts ...ProxyOption) *TokenProxy {
	p := &TokenProxy{
		endpoint: endpoint,
		clients:  clients,
		client:   noRedirectClient(0),
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithField("tag", "oidc-exchange")
	return p
}

// NewEndpointProxy forwards to ep.TokenURL, sending client credentials the
// way ep.AuthStyle says. AuthStyleAutoDetect means the header.
func NewEndpointProxy(ep oauth2.Endpoint, clients ClientSecrets, opts ...ProxyOption) *TokenProxy {
	return NewTokenProxy(ep.TokenURL, clients, append([]ProxyOption{WithAuthStyle(ep.AuthStyle)}, opts...)...)
}

// Endpoint returns the upstream token endpoint and credential placement.
func (p *TokenProxy) Endpoint() oauth2.Endpoint {
	style := p.authStyle
	if style != oauth2.AuthStyleInParams {
		style = oauth2.AuthStyleInHeader
	}
	return oauth2.Endpoint{TokenURL: p.endpoint, AuthStyle: style}
}

func noRedirectClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// IssueToken performs one POST to the token endpoint. An unknown client ID is
// sent with an empty secret; the upstream decides whether it is valid.
func (p *TokenProxy) IssueToken(ctx context.Context, payload TokenPayload) (*TokenResponse, error) {
	form := url.Values{}
	for k, vs := range payload.Fields {
		if k == "client_id" {
			continue
		}
		form[k] = vs
	}
	secret := p.clients[payload.ClientID]
	if p.authStyle == oauth2.AuthStyleInParams {
		form.Set("client_id", payload.ClientID)
		form.Set("client_secret", secret)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	if p.authStyle != oauth2.AuthStyleInParams {
		req.SetBasicAuth(payload.ClientID, secret)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	log := p.log.WithFields(logrus.Fields{"client_id": payload.ClientID, "grant_type": form.Get("grant_type")})
	resp, err := p.client.Do(req)
	if err != nil {
		te := &TransportError{Err: err, Timeout: isTimeout(err)}
		log.WithError(err).Error("token endpoint call failed")
		return nil, te
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		log.WithError(err).Error("token endpoint response unreadable")
		return nil, &TransportError{Err: err, Timeout: isTimeout(err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ge := &UpstreamGrantError{
			StatusCode: resp.StatusCode,
			Message:    "Response Error: " + statusLine(resp),
			Body:       body,
		}
		var decoded any
		if json.Unmarshal(body, &decoded) == nil {
			ge.OIDCError = decoded
		}
		log.WithField("status", resp.StatusCode).Warn("token endpoint rejected grant")
		return nil, ge
	}
	log.WithField("status", resp.StatusCode).Debug("token issued")
	return &TokenResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func statusLine(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return strconv.Itoa(resp.StatusCode) + " " + http.StatusText(resp.StatusCode)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// PayloadFromJSON reads a flat JSON object into a payload. Numbers and
// booleans are forwarded in their JSON text form; nested values are rejected.
func PayloadFromJSON(b []byte) (TokenPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return TokenPayload{}, fmt.Errorf("decode token request: %w", err)
	}
	v := make(url.Values, len(obj))
	for k, raw := range obj {
		switch x := raw.(type) {
		case string:
			v.Set(k, x)
		case json.Number:
			v.Set(k, x.String())
		case bool:
			v.Set(k, strconv.FormatBool(x))
		case nil:
		default:
			return TokenPayload{}, fmt.Errorf("decode token request: field %q is not a scalar", k)
		}
	}
	return PayloadFromValues(v), nil
}

// ErrorEnvelope maps an IssueToken error to an HTTP status and body.
func ErrorEnvelope(err error) (int, map[string]any) {
	var ge *UpstreamGrantError
	if errors.As(err, &ge) {
		return ge.StatusCode, ge.Envelope()
	}
	status, msg := http.StatusInternalServerError, "An internal server error occurred"
	var te *TransportError
	if errors.As(err, &te) {
		status, msg = http.StatusBadGateway, "token endpoint unreachable"
		if te.Timeout {
			status, msg = http.StatusGatewayTimeout, "token endpoint timed out"
		}
	}
	return status, map[string]any{
		"statusCode": status,
		"error":      http.StatusText(status),
		"message":    msg,
	}
}
