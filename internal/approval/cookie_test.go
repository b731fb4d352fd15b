// ABOUTME: Tests for the sealed approval cookie
// ABOUTME: Tampering or a key change must degrade to "nothing approved"

package approval

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approve(t *testing.T, c *Codec, prior *http.Cookie, clientID string) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/authorize", nil)
	if prior != nil {
		req.AddCookie(prior)
	}
	rec := httptest.NewRecorder()
	require.NoError(t, c.Approve(rec, req, clientID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func requestWith(cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/authorize", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func TestApproveRoundTrip(t *testing.T) {
	c := NewCodec("cookie-secret")

	cookie := approve(t, c, nil, "client-a")
	assert.True(t, c.IsApproved(requestWith(cookie), "client-a"))
	assert.False(t, c.IsApproved(requestWith(cookie), "client-b"))

	cookie = approve(t, c, cookie, "client-b")
	req := requestWith(cookie)
	assert.True(t, c.IsApproved(req, "client-a"))
	assert.True(t, c.IsApproved(req, "client-b"))
}

func TestApproveIdempotent(t *testing.T) {
	c := NewCodec("cookie-secret")

	cookie := approve(t, c, nil, "client-a")
	cookie = approve(t, c, cookie, "client-a")
	assert.Len(t, c.Approved(requestWith(cookie)), 1)
}

func TestNoCookie(t *testing.T) {
	c := NewCodec("cookie-secret")
	assert.Empty(t, c.Approved(requestWith(nil)))
	assert.False(t, c.IsApproved(requestWith(nil), "client-a"))
}

func TestTamperedCookie(t *testing.T) {
	c := NewCodec("cookie-secret")

	cookie := approve(t, c, nil, "client-a")
	tampered := *cookie
	tampered.Value = tampered.Value[:len(tampered.Value)-2] + "xx"
	assert.Empty(t, c.Approved(requestWith(&tampered)))
}

func TestGarbageCookie(t *testing.T) {
	c := NewCodec("cookie-secret")
	garbage := &http.Cookie{Name: CookieName, Value: "not base64 !!!"}
	assert.Empty(t, c.Approved(requestWith(garbage)))
}

func TestWrongKey(t *testing.T) {
	cookie := approve(t, NewCodec("old-secret"), nil, "client-a")
	assert.Empty(t, NewCodec("new-secret").Approved(requestWith(cookie)))
}
