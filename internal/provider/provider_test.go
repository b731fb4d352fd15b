// ABOUTME: Tests for authorization-code exchange and grant verification
// ABOUTME: Uses a real SQLite store for the client registry

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pursuitworks/pursuit-gateway/internal/store"
)

func newProvider(t *testing.T) (*Provider, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "provider.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, "token-secret", time.Hour, 10*time.Minute), st
}

func testAuthRequest() *AuthRequest {
	return &AuthRequest{
		ClientID:     "client-1",
		RedirectURI:  "https://client.example.com/callback",
		Scope:        "email profile",
		State:        "client-state-xyz",
		ResponseType: "code",
	}
}

func testProps() Props {
	perms := store.DefaultPermissions()
	perms.CreateOpportunity = true
	return Props{
		AccessToken: "upstream-access-token",
		Email:       "a@example.com",
		Name:        "Alice",
		Permissions: perms,
	}
}

func TestParseAuthRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet,
		"/authorize?client_id=c1&redirect_uri=https%3A%2F%2Fx%2Fcb&scope=email&state=s1&response_type=code", nil)
	req, err := ParseAuthRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "c1", req.ClientID)
	assert.Equal(t, "https://x/cb", req.RedirectURI)
	assert.Equal(t, "s1", req.State)

	_, err = ParseAuthRequest(httptest.NewRequest(http.MethodGet, "/authorize", nil))
	assert.Error(t, err)
}

func TestAuthRequestDescriptorRoundTrip(t *testing.T) {
	req := testAuthRequest()
	encoded, err := req.Encode()
	require.NoError(t, err)

	decoded, err := DecodeAuthRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)

	_, err = DecodeAuthRequest("%%% not base64")
	assert.Error(t, err)
}

func exchange(t *testing.T, p *Provider, form url.Values) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	p.HandleToken(rec, r)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec, body
}

func TestCodeExchangeAndVerify(t *testing.T) {
	p, _ := newProvider(t)
	req := testAuthRequest()

	redirect, err := p.CompleteAuthorization(req, "user-1", "Alice", testProps())
	require.NoError(t, err)

	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "client.example.com", parsed.Host)
	assert.Equal(t, "client-state-xyz", parsed.Query().Get("state"))
	code := parsed.Query().Get("code")
	require.NotEmpty(t, code)

	rec, body := exchange(t, p, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"client_id":    {"client-1"},
		"redirect_uri": {"https://client.example.com/callback"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bearer", body["token_type"])

	grant, err := p.VerifyToken(body["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "user-1", grant.UserID)
	assert.Equal(t, "Alice", grant.Name)
	assert.Equal(t, "a@example.com", grant.Email)
	assert.Equal(t, "upstream-access-token", grant.Props.AccessToken)
	assert.True(t, grant.Props.Permissions.CreateOpportunity)
	assert.False(t, grant.Props.Permissions.DeleteOpportunity)
}

func TestCodeIsSingleUse(t *testing.T) {
	p, _ := newProvider(t)

	redirect, err := p.CompleteAuthorization(testAuthRequest(), "user-1", "Alice", testProps())
	require.NoError(t, err)
	parsed, _ := url.Parse(redirect)
	code := parsed.Query().Get("code")

	form := url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
		"client_id":  {"client-1"},
	}
	rec, _ := exchange(t, p, form)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := exchange(t, p, form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_grant", body["error"])
}

func TestCodeClientMismatch(t *testing.T) {
	p, _ := newProvider(t)

	redirect, err := p.CompleteAuthorization(testAuthRequest(), "user-1", "Alice", testProps())
	require.NoError(t, err)
	parsed, _ := url.Parse(redirect)

	rec, body := exchange(t, p, url.Values{
		"grant_type": {"authorization_code"},
		"code":       {parsed.Query().Get("code")},
		"client_id":  {"attacker"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_grant", body["error"])
}

func TestExpiredCode(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "provider.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	p := New(st, "token-secret", time.Hour, -time.Minute)

	redirect, err := p.CompleteAuthorization(testAuthRequest(), "user-1", "Alice", testProps())
	require.NoError(t, err)
	parsed, _ := url.Parse(redirect)

	rec, body := exchange(t, p, url.Values{
		"grant_type": {"authorization_code"},
		"code":       {parsed.Query().Get("code")},
		"client_id":  {"client-1"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_grant", body["error"])
}

func TestUnsupportedGrantType(t *testing.T) {
	p, _ := newProvider(t)
	rec, body := exchange(t, p, url.Values{"grant_type": {"password"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_grant_type", body["error"])
}

func TestVerifyTokenRejectsBadSignature(t *testing.T) {
	p, _ := newProvider(t)
	other, _ := newProvider(t)
	other.tokenSecret = []byte("different-secret")

	token, err := other.MintToken("user-1", "Alice", "email", testProps())
	require.NoError(t, err)

	_, err = p.VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpiredToken(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "provider.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	p := New(st, "token-secret", -time.Minute, time.Minute)

	token, err := p.MintToken("user-1", "Alice", "email", testProps())
	require.NoError(t, err)

	_, err = p.VerifyToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRegisterClient(t *testing.T) {
	p, st := newProvider(t)

	body := `{"client_name":"Inspector","redirect_uris":["https://inspector.example.com/cb"]}`
	r := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	p.HandleRegister(rec, r)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	clientID := resp["client_id"].(string)
	require.NotEmpty(t, clientID)

	client, err := st.GetClient(context.Background(), clientID)
	require.NoError(t, err)
	assert.Equal(t, "Inspector", client.Name)
	assert.Equal(t, []string{"https://inspector.example.com/cb"}, client.RedirectURIs)
}

func TestRegisterClientRequiresRedirectURIs(t *testing.T) {
	p, _ := newProvider(t)

	r := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"client_name":"x"}`))
	rec := httptest.NewRecorder()
	p.HandleRegister(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
