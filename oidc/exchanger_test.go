package oidckit

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

type capturedRequest struct {
	auth        string
	contentType string
	form        url.Values
}

func tokenServer(t *testing.T, status int, contentType, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.auth = r.Header.Get("Authorization")
		got.contentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		got.form, _ = url.ParseQuery(string(b))
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func basic(id, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(id+":"+secret))
}

func TestIssueToken_PasswordGrant(t *testing.T) {
	srv, got := tokenServer(t, http.StatusOK, "application/json", `{"access_token":"at","token_type":"Bearer"}`)
	log, _ := quietLogger()
	p := NewTokenProxy(srv.URL, ClientSecrets{"clientId": "ASECRET"}, WithHTTPClient(srv.Client()), WithProxyLogger(log))

	resp, err := p.IssueToken(context.Background(), PasswordGrant("clientId", "alice", "hunter2"))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got.auth != basic("clientId", "ASECRET") {
		t.Fatalf("authorization: %q", got.auth)
	}
	if got.contentType != "application/x-www-form-urlencoded" {
		t.Fatalf("content type: %q", got.contentType)
	}
	if got.form.Has("client_id") {
		t.Fatal("client_id must not be forwarded")
	}
	if got.form.Get("grant_type") != "password" || got.form.Get("username") != "alice" || got.form.Get("password") != "hunter2" {
		t.Fatalf("form: %v", got.form)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != `{"access_token":"at","token_type":"Bearer"}` {
		t.Fatalf("response: %d %s", resp.StatusCode, resp.Body)
	}
	if resp.ContentType != "application/json" {
		t.Fatalf("content type: %q", resp.ContentType)
	}
}

func TestIssueToken_UnknownClientSendsEmptySecret(t *testing.T) {
	srv, got := tokenServer(t, http.StatusOK, "application/json", `{}`)
	p := NewTokenProxy(srv.URL, ClientSecrets{"known": "s"}, WithHTTPClient(srv.Client()))
	if _, err := p.IssueToken(context.Background(), AuthorizationGrant("stranger", nil)); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got.auth != basic("stranger", "") {
		t.Fatalf("authorization: %q", got.auth)
	}
	if len(got.form) != 0 {
		t.Fatalf("form should be empty: %v", got.form)
	}
}

func TestIssueToken_UpstreamRejection(t *testing.T) {
	srv, _ := tokenServer(t, http.StatusBadRequest, "application/json",
		`{"error":"invalid_grant","error_description":"Invalid user credentials"}`)
	p := NewTokenProxy(srv.URL, ClientSecrets{"clientId": "ASECRET"}, WithHTTPClient(srv.Client()))

	_, err := p.IssueToken(context.Background(), PasswordGrant("clientId", "alice", "wrong"))
	var ge *UpstreamGrantError
	if !errors.As(err, &ge) {
		t.Fatalf("want UpstreamGrantError, got %v", err)
	}
	if ge.StatusCode != http.StatusBadRequest || ge.Message != "Response Error: 400 Bad Request" {
		t.Fatalf("status/message: %d %q", ge.StatusCode, ge.Message)
	}
	oe, _ := ge.OIDCError.(map[string]any)
	if oe["error"] != "invalid_grant" || oe["error_description"] != "Invalid user credentials" {
		t.Fatalf("oidc_error: %#v", ge.OIDCError)
	}
	env := ge.Envelope()
	if env["statusCode"] != http.StatusBadRequest || env["error"] != "Bad Request" || env["oidc_error"] == nil {
		t.Fatalf("envelope: %#v", env)
	}
	var te *TransportError
	if errors.As(err, &te) {
		t.Fatal("upstream rejection must not look like a transport failure")
	}
}

func TestIssueToken_NonJSONRejection(t *testing.T) {
	srv, _ := tokenServer(t, http.StatusBadGateway, "text/html", "<html>bad gateway</html>")
	p := NewTokenProxy(srv.URL, ClientSecrets{"c": "s"}, WithHTTPClient(srv.Client()))

	_, err := p.IssueToken(context.Background(), PasswordGrant("c", "u", "p"))
	var ge *UpstreamGrantError
	if !errors.As(err, &ge) {
		t.Fatalf("want UpstreamGrantError, got %v", err)
	}
	if ge.OIDCError != nil {
		t.Fatalf("oidc_error should be absent: %#v", ge.OIDCError)
	}
	if _, ok := ge.Envelope()["oidc_error"]; ok {
		t.Fatal("envelope should omit oidc_error")
	}
	if string(ge.Body) != "<html>bad gateway</html>" {
		t.Fatalf("raw body: %q", ge.Body)
	}
}

func TestIssueToken_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	p := NewTokenProxy(endpoint, ClientSecrets{"c": "s"})
	_, err := p.IssueToken(context.Background(), PasswordGrant("c", "u", "p"))
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("want TransportError, got %v", err)
	}
	if te.Timeout {
		t.Fatal("connection refused is not a timeout")
	}
}

func TestIssueToken_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := srv.Client()
	client.Timeout = 50 * time.Millisecond
	p := NewTokenProxy(srv.URL, ClientSecrets{"c": "s"}, WithHTTPClient(client))

	_, err := p.IssueToken(context.Background(), PasswordGrant("c", "u", "p"))
	var te *TransportError
	if !errors.As(err, &te) || !te.Timeout {
		t.Fatalf("want timeout TransportError, got %v", err)
	}
}

func TestPayloadFromValues(t *testing.T) {
	in := url.Values{"client_id": {"web"}, "grant_type": {"authorization_code"}, "code": {"xyz"}}
	p := PayloadFromValues(in)
	if p.ClientID != "web" || p.Fields.Has("client_id") || p.Fields.Get("code") != "xyz" {
		t.Fatalf("payload: %+v", p)
	}
	if !in.Has("client_id") {
		t.Fatal("input must not be modified")
	}
}

func TestPayloadFromJSON(t *testing.T) {
	p, err := PayloadFromJSON([]byte(`{"client_id":"web","grant_type":"password","username":"a","password":"b","ttl":300,"offline":true,"skip":null}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ClientID != "web" || p.Fields.Has("client_id") {
		t.Fatalf("client id: %+v", p)
	}
	if p.Fields.Get("ttl") != "300" || p.Fields.Get("offline") != "true" || p.Fields.Has("skip") {
		t.Fatalf("fields: %v", p.Fields)
	}
	if _, err := PayloadFromJSON([]byte(`{"nested":{"a":1}}`)); err == nil {
		t.Fatal("nested value should be rejected")
	}
	if _, err := PayloadFromJSON([]byte(`[1]`)); err == nil {
		t.Fatal("array body should be rejected")
	}
}

func TestErrorEnvelope(t *testing.T) {
	status, body := ErrorEnvelope(&UpstreamGrantError{StatusCode: 401, Message: "Response Error: 401 Unauthorized", OIDCError: map[string]any{"error": "invalid_client"}})
	if status != 401 || body["oidc_error"] == nil {
		t.Fatalf("upstream: %d %#v", status, body)
	}
	status, body = ErrorEnvelope(&TransportError{Err: errors.New("refused")})
	if status != http.StatusBadGateway || body["oidc_error"] != nil {
		t.Fatalf("transport: %d %#v", status, body)
	}
	if status, _ = ErrorEnvelope(&TransportError{Err: context.DeadlineExceeded, Timeout: true}); status != http.StatusGatewayTimeout {
		t.Fatalf("timeout: %d", status)
	}
	if status, _ = ErrorEnvelope(errors.New("other")); status != http.StatusInternalServerError {
		t.Fatalf("other: %d", status)
	}
}

func TestIssueToken_NonObjectJSONRejection(t *testing.T) {
	srv, _ := tokenServer(t, http.StatusBadRequest, "application/json", `["invalid_request"]`)
	p := NewTokenProxy(srv.URL, ClientSecrets{"c": "s"}, WithHTTPClient(srv.Client()))

	_, err := p.IssueToken(context.Background(), PasswordGrant("c", "u", "p"))
	var ge *UpstreamGrantError
	if !errors.As(err, &ge) {
		t.Fatalf("want UpstreamGrantError, got %v", err)
	}
	arr, ok := ge.Envelope()["oidc_error"].([]any)
	if !ok || len(arr) != 1 || arr[0] != "invalid_request" {
		t.Fatalf("oidc_error: %#v", ge.Envelope()["oidc_error"])
	}
}

func TestIssueToken_ParamsAuthStyle(t *testing.T) {
	srv, got := tokenServer(t, http.StatusOK, "application/json", `{}`)
	ep := oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams}
	p := NewEndpointProxy(ep, ClientSecrets{"clientId": "ASECRET"}, WithHTTPClient(srv.Client()))

	payload := PasswordGrant("clientId", "alice", "hunter2")
	payload.Fields.Set("client_secret", "smuggled")
	if _, err := p.IssueToken(context.Background(), payload); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got.auth != "" {
		t.Fatalf("authorization header should be empty: %q", got.auth)
	}
	if got.form.Get("client_id") != "clientId" || got.form.Get("client_secret") != "ASECRET" {
		t.Fatalf("form credentials: %v", got.form)
	}
	if p.Endpoint().AuthStyle != oauth2.AuthStyleInParams {
		t.Fatalf("endpoint: %+v", p.Endpoint())
	}
}

func TestIssueToken_AutoDetectUsesHeader(t *testing.T) {
	srv, got := tokenServer(t, http.StatusOK, "application/json", `{}`)
	p := NewEndpointProxy(oauth2.Endpoint{TokenURL: srv.URL}, ClientSecrets{"c": "s"}, WithHTTPClient(srv.Client()))
	if _, err := p.IssueToken(context.Background(), PasswordGrant("c", "u", "p")); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got.auth != basic("c", "s") || got.form.Has("client_id") {
		t.Fatalf("want header credentials only: auth=%q form=%v", got.auth, got.form)
	}
	if p.Endpoint().AuthStyle != oauth2.AuthStyleInHeader {
		t.Fatalf("endpoint: %+v", p.Endpoint())
	}
}

func TestIssueToken_DoesNotFollowRedirects(t *testing.T) {
	var followed atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	})
	mux.HandleFunc("/elsewhere", func(w http.ResponseWriter, r *http.Request) {
		followed.Store(true)
		_, _ = io.WriteString(w, `{"access_token":"replayed"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewTokenProxy(srv.URL+"/token", ClientSecrets{"c": "s"})
	_, err := p.IssueToken(context.Background(), PasswordGrant("c", "u", "p"))
	var ge *UpstreamGrantError
	if !errors.As(err, &ge) || ge.StatusCode != http.StatusFound {
		t.Fatalf("want 302 rejection, got %v", err)
	}
	if followed.Load() {
		t.Fatal("redirect was followed")
	}
}
