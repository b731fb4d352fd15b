// ABOUTME: Downstream OAuth provider: authorization codes, token minting, client registry
// ABOUTME: Grants are HS256 JWTs carrying the identity and permissions resolved at login

package provider

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pursuitworks/pursuit-gateway/internal/store"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// AuthRequest is the pending downstream authorization request. It
// travels through the consent form and the upstream state parameter
// as an opaque base64 descriptor and must survive the round trip
// unchanged.
type AuthRequest struct {
	ClientID     string `json:"client_id"`
	RedirectURI  string `json:"redirect_uri"`
	Scope        string `json:"scope"`
	State        string `json:"state"`
	ResponseType string `json:"response_type"`
}

// ParseAuthRequest extracts the authorization parameters from an
// /authorize request.
func ParseAuthRequest(r *http.Request) (*AuthRequest, error) {
	q := r.URL.Query()
	req := &AuthRequest{
		ClientID:     q.Get("client_id"),
		RedirectURI:  q.Get("redirect_uri"),
		Scope:        q.Get("scope"),
		State:        q.Get("state"),
		ResponseType: q.Get("response_type"),
	}
	if req.ClientID == "" {
		return nil, errors.New("missing client_id")
	}
	return req, nil
}

// Encode renders the request as an opaque base64 descriptor.
func (a *AuthRequest) Encode() (string, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeAuthRequest reverses Encode.
func DecodeAuthRequest(encoded string) (*AuthRequest, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding auth request: %w", err)
	}
	var req AuthRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decoding auth request: %w", err)
	}
	return &req, nil
}

// Props is the per-grant bundle captured at login time and baked into
// the minted token.
type Props struct {
	AccessToken string            `json:"access_token"`
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Permissions store.Permissions `json:"permissions"`
}

// Grant is a verified bearer token's payload.
type Grant struct {
	UserID string
	Name   string
	Email  string
	Scope  string
	Props  Props
}

type pendingCode struct {
	req       *AuthRequest
	userID    string
	label     string
	props     Props
	expiresAt time.Time
}

// Provider issues authorization codes and bearer tokens to downstream
// MCP clients.
type Provider struct {
	store       store.Store
	tokenSecret []byte
	tokenTTL    time.Duration
	codeTTL     time.Duration
	logger      *slog.Logger

	mu    sync.Mutex
	codes map[string]pendingCode
}

func New(st store.Store, tokenSecret string, tokenTTL, codeTTL time.Duration) *Provider {
	return &Provider{
		store:       st,
		tokenSecret: []byte(tokenSecret),
		tokenTTL:    tokenTTL,
		codeTTL:     codeTTL,
		logger:      slog.Default().With("component", "provider"),
		codes:       make(map[string]pendingCode),
	}
}

// LookupClient returns the registered client's metadata.
func (p *Provider) LookupClient(ctx context.Context, id string) (*store.Client, error) {
	return p.store.GetClient(ctx, id)
}

// CompleteAuthorization issues a one-time authorization code for an
// approved request and returns the redirect URL that delivers it to
// the client along with the client's original state.
func (p *Provider) CompleteAuthorization(req *AuthRequest, userID, label string, props Props) (string, error) {
	code, err := randomCode()
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}

	p.mu.Lock()
	p.purgeExpiredLocked()
	p.codes[code] = pendingCode{
		req:       req,
		userID:    userID,
		label:     label,
		props:     props,
		expiresAt: time.Now().Add(p.codeTTL),
	}
	p.mu.Unlock()

	redirect, err := url.Parse(req.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("parsing redirect uri: %w", err)
	}
	q := redirect.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	redirect.RawQuery = q.Encode()

	p.logger.Info("authorization completed", "client_id", req.ClientID, "user_id", userID)
	return redirect.String(), nil
}

func randomCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (p *Provider) purgeExpiredLocked() {
	now := time.Now()
	for code, pending := range p.codes {
		if now.After(pending.expiresAt) {
			delete(p.codes, code)
		}
	}
}

// redeemCode consumes a one-time code. A second redemption fails.
func (p *Provider) redeemCode(code string) (pendingCode, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending, ok := p.codes[code]
	if !ok {
		return pendingCode{}, false
	}
	delete(p.codes, code)
	if time.Now().After(pending.expiresAt) {
		return pendingCode{}, false
	}
	return pending, true
}

// MintToken signs a grant for the given identity.
func (p *Provider) MintToken(userID, label, scope string, props Props) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"name":  label,
		"email": props.Email,
		"scope": scope,
		"props": props,
		"iat":   now.Unix(),
		"exp":   now.Add(p.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.tokenSecret)
}

// VerifyToken validates a bearer token and extracts the grant.
func (p *Provider) VerifyToken(tokenString string) (*Grant, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.tokenSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	grant := &Grant{UserID: sub}
	if name, ok := claims["name"].(string); ok {
		grant.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		grant.Email = email
	}
	if scope, ok := claims["scope"].(string); ok {
		grant.Scope = scope
	}
	if rawProps, ok := claims["props"]; ok {
		encoded, err := json.Marshal(rawProps)
		if err != nil {
			return nil, fmt.Errorf("%w: props", ErrMissingClaim)
		}
		if err := json.Unmarshal(encoded, &grant.Props); err != nil {
			return nil, fmt.Errorf("%w: props", ErrMissingClaim)
		}
	}
	return grant, nil
}

// HandleToken implements POST /token: authorization-code exchange.
func (p *Provider) HandleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		oauthError(w, http.StatusMethodNotAllowed, "invalid_request", "POST required")
		return
	}
	if err := r.ParseForm(); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	if grantType := r.PostFormValue("grant_type"); grantType != "authorization_code" {
		oauthError(w, http.StatusBadRequest, "unsupported_grant_type", "only authorization_code is supported")
		return
	}

	code := r.PostFormValue("code")
	if code == "" {
		oauthError(w, http.StatusBadRequest, "invalid_request", "missing code")
		return
	}

	pending, ok := p.redeemCode(code)
	if !ok {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "code is invalid or expired")
		return
	}

	if clientID := r.PostFormValue("client_id"); clientID != pending.req.ClientID {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "client_id mismatch")
		return
	}
	if redirectURI := r.PostFormValue("redirect_uri"); redirectURI != "" && redirectURI != pending.req.RedirectURI {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
		return
	}

	token, err := p.MintToken(pending.userID, pending.label, pending.req.Scope, pending.props)
	if err != nil {
		p.logger.Error("failed to mint token", "error", err)
		oauthError(w, http.StatusInternalServerError, "server_error", "failed to issue token")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(p.tokenTTL.Seconds()),
		"scope":        pending.req.Scope,
	})
}

// registrationRequest is the RFC 7591 subset we accept.
type registrationRequest struct {
	ClientName   string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris"`
	LogoURI      string   `json:"logo_uri"`
}

// HandleRegister implements POST /register: dynamic client registration.
func (p *Provider) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		oauthError(w, http.StatusMethodNotAllowed, "invalid_request", "POST required")
		return
	}

	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_client_metadata", "malformed JSON body")
		return
	}
	if len(req.RedirectURIs) == 0 {
		oauthError(w, http.StatusBadRequest, "invalid_client_metadata", "redirect_uris is required")
		return
	}
	if req.ClientName == "" {
		req.ClientName = "Unnamed client"
	}

	client := &store.Client{
		ID:           uuid.New().String(),
		Name:         req.ClientName,
		RedirectURIs: req.RedirectURIs,
		LogoURI:      req.LogoURI,
	}
	if err := p.store.CreateClient(r.Context(), client); err != nil {
		p.logger.Error("failed to register client", "error", err)
		oauthError(w, http.StatusInternalServerError, "server_error", "failed to register client")
		return
	}

	p.logger.Info("client registered", "client_id", client.ID, "name", client.Name)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"client_id":     client.ID,
		"client_name":   client.Name,
		"redirect_uris": client.RedirectURIs,
		"logo_uri":      client.LogoURI,
	})
}

func oauthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}
