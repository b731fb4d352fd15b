// ABOUTME: Delegated-login flow: consent, upstream redirect, callback exchange
// ABOUTME: The pending downstream request rides through upstream state as an opaque descriptor

package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pursuitworks/pursuit-gateway/internal/access"
	"github.com/pursuitworks/pursuit-gateway/internal/approval"
	"github.com/pursuitworks/pursuit-gateway/internal/config"
	"github.com/pursuitworks/pursuit-gateway/internal/provider"
)

var loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pursuit_logins_total",
	Help: "Completed login attempts by outcome.",
}, []string{"outcome"})

// Flow drives the delegated-login handshake between downstream MCP
// clients and the upstream identity provider.
type Flow struct {
	upstream  config.UpstreamConfig
	callback  string
	provider  *provider.Provider
	registry  *access.Registry
	approvals *approval.Codec
	client    *http.Client
	logger    *slog.Logger
}

func New(cfg *config.Config, prov *provider.Provider, reg *access.Registry, approvals *approval.Codec) *Flow {
	return &Flow{
		upstream:  cfg.Upstream,
		callback:  strings.TrimRight(cfg.Server.ExternalURL, "/") + "/callback",
		provider:  prov,
		registry:  reg,
		approvals: approvals,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    slog.Default().With("component", "authflow"),
	}
}

// HandleAuthorize serves the consent page (GET) and records approval (POST).
func (f *Flow) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		f.handleAuthorizeGet(w, r)
	case http.MethodPost:
		f.handleAuthorizePost(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *Flow) handleAuthorizeGet(w http.ResponseWriter, r *http.Request) {
	req, err := provider.ParseAuthRequest(r)
	if err != nil {
		http.Error(w, "invalid authorization request: "+err.Error(), http.StatusBadRequest)
		return
	}

	// A previously approved client skips straight to the upstream login.
	if f.approvals.IsApproved(r, req.ClientID) {
		f.redirectUpstream(w, r, req)
		return
	}

	data := consentData{
		ClientID:   req.ClientID,
		ClientName: req.ClientID,
		Scope:      req.Scope,
	}
	if client, err := f.provider.LookupClient(r.Context(), req.ClientID); err == nil {
		data.ClientName = client.Name
		data.LogoURI = client.LogoURI
	}

	state, err := req.Encode()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	data.State = state

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := consentTemplate.Execute(w, data); err != nil {
		f.logger.Error("failed to render consent page", "error", err)
	}
}

func (f *Flow) handleAuthorizePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	req, err := provider.DecodeAuthRequest(r.PostFormValue("state"))
	if err != nil || req.ClientID == "" {
		http.Error(w, "missing or invalid authorization state", http.StatusBadRequest)
		return
	}

	if err := f.approvals.Approve(w, r, req.ClientID); err != nil {
		f.logger.Error("failed to set approval cookie", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	f.redirectUpstream(w, r, req)
}

// redirectUpstream sends the browser to the identity provider with the
// pending request encoded as the opaque state parameter.
func (f *Flow) redirectUpstream(w http.ResponseWriter, r *http.Request, req *provider.AuthRequest) {
	state, err := req.Encode()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	q := url.Values{}
	q.Set("client_id", f.upstream.ClientID)
	q.Set("redirect_uri", f.callback)
	q.Set("response_type", "code")
	q.Set("scope", "email profile")
	q.Set("state", state)
	if f.upstream.HostedDomain != "" {
		q.Set("hd", f.upstream.HostedDomain)
	}

	http.Redirect(w, r, f.upstream.AuthURL+"?"+q.Encode(), http.StatusFound)
}

// profile is the subset of the upstream userinfo response we use.
type profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// upstreamError carries a failed upstream token response so the
// callback handler can relay it to the browser verbatim.
type upstreamError struct {
	status int
	body   []byte
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("upstream token endpoint returned %d: %s", e.status, e.body)
}

// HandleCallback completes the upstream exchange and hands the browser
// back to the downstream client with an authorization code.
func (f *Flow) HandleCallback(w http.ResponseWriter, r *http.Request) {
	req, err := provider.DecodeAuthRequest(r.URL.Query().Get("state"))
	if err != nil || req.ClientID == "" {
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	accessToken, err := f.exchangeCode(r.Context(), code)
	if err != nil {
		f.logger.Error("upstream code exchange failed", "error", err)
		loginsTotal.WithLabelValues("upstream_error").Inc()
		var upErr *upstreamError
		if errors.As(err, &upErr) {
			// Mirror the upstream response; it names the actual problem.
			w.WriteHeader(upErr.status)
			w.Write(upErr.body)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	prof, err := f.fetchProfile(r.Context(), accessToken)
	if err != nil {
		f.logger.Error("upstream profile fetch failed", "error", err)
		loginsTotal.WithLabelValues("upstream_error").Inc()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	user, err := f.registry.Resolve(r.Context(), prof.ID, prof.Email)
	if errors.Is(err, access.ErrNoAccess) {
		f.logger.Warn("login denied", "email", prof.Email)
		loginsTotal.WithLabelValues("denied").Inc()
		http.Error(w, "Access denied: your account is not enabled for this service. Contact your administrator.", http.StatusForbidden)
		return
	}
	if err != nil {
		f.logger.Error("access resolution failed", "error", err)
		loginsTotal.WithLabelValues("error").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	f.registry.TouchLogin(r.Context(), user.ID)

	// The grant is minted against the upstream identity: subject is the
	// provider's id and the label is the profile display name. Only the
	// permission map comes from the access record.
	redirect, err := f.provider.CompleteAuthorization(req, prof.ID, prof.Name, provider.Props{
		AccessToken: accessToken,
		Email:       prof.Email,
		Name:        prof.Name,
		Permissions: user.Permissions,
	})
	if err != nil {
		f.logger.Error("failed to complete authorization", "error", err)
		loginsTotal.WithLabelValues("error").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	f.logger.Info("login completed", "email", user.Email, "client_id", req.ClientID)
	loginsTotal.WithLabelValues("ok").Inc()
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (f *Flow) exchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", f.upstream.ClientID)
	form.Set("client_secret", f.upstream.ClientSecret)
	form.Set("redirect_uri", f.callback)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.upstream.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("exchanging code: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &upstreamError{status: resp.StatusCode, body: body}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("upstream token response missing access_token")
	}
	return payload.AccessToken, nil
}

func (f *Flow) fetchProfile(ctx context.Context, accessToken string) (*profile, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.upstream.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building profile request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading profile response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream userinfo endpoint returned %d: %s", resp.StatusCode, body)
	}

	var prof profile
	if err := json.Unmarshal(body, &prof); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	return &prof, nil
}

type consentData struct {
	ClientID   string
	ClientName string
	LogoURI    string
	Scope      string
	State      string
}

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Authorize access</title>
  <style>
    body { font-family: system-ui, sans-serif; max-width: 28rem; margin: 4rem auto; padding: 0 1rem; color: #1a1a1a; }
    .card { border: 1px solid #ddd; border-radius: 8px; padding: 2rem; }
    img.logo { max-height: 48px; margin-bottom: 1rem; }
    button { background: #1a56db; color: white; border: none; border-radius: 6px; padding: 0.6rem 1.5rem; font-size: 1rem; cursor: pointer; }
    .scope { color: #555; font-size: 0.9rem; }
  </style>
</head>
<body>
  <div class="card">
    {{if .LogoURI}}<img class="logo" src="{{.LogoURI}}" alt="">{{end}}
    <h1>{{.ClientName}}</h1>
    <p>This application is requesting access to the opportunity pipeline on your behalf.</p>
    {{if .Scope}}<p class="scope">Requested scope: {{.Scope}}</p>{{end}}
    <form method="POST" action="/authorize">
      <input type="hidden" name="state" value="{{.State}}">
      <button type="submit">Approve and continue</button>
    </form>
  </div>
</body>
</html>
`))
