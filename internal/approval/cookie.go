// ABOUTME: Client-held record of which OAuth clients the user has approved
// ABOUTME: Sealed with secretbox so the browser cannot forge or tamper with it

package approval

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
)

// CookieName holds the sealed list of approved client ids.
const CookieName = "approved_clients"

const (
	nonceSize = 24
	maxAge    = 30 * 24 * time.Hour
)

// Codec seals and opens the approval cookie. The sealing key is
// derived from the configured cookie secret.
type Codec struct {
	key    [32]byte
	logger *slog.Logger
}

func NewCodec(secret string) *Codec {
	return &Codec{
		key:    sha256.Sum256([]byte(secret)),
		logger: slog.Default().With("component", "approval"),
	}
}

// Approved reports the client ids the user has previously approved.
// Any decode failure means "nothing approved": a stale or tampered
// cookie re-prompts for consent rather than erroring.
func (c *Codec) Approved(r *http.Request) []string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil || len(raw) < nonceSize {
		c.logger.Debug("discarding malformed approval cookie")
		return nil
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		c.logger.Debug("discarding unopenable approval cookie")
		return nil
	}

	var ids []string
	if err := json.Unmarshal(plaintext, &ids); err != nil {
		return nil
	}
	return ids
}

// IsApproved reports whether the user has previously approved the client.
func (c *Codec) IsApproved(r *http.Request, clientID string) bool {
	for _, id := range c.Approved(r) {
		if id == clientID {
			return true
		}
	}
	return false
}

// Approve adds a client id to the approved set and writes the sealed
// cookie back to the browser.
func (c *Codec) Approve(w http.ResponseWriter, r *http.Request, clientID string) error {
	ids := c.Approved(r)
	for _, id := range ids {
		if id == clientID {
			return c.write(w, r, ids)
		}
	}
	return c.write(w, r, append(ids, clientID))
}

func (c *Codec) write(w http.ResponseWriter, r *http.Request, ids []string) error {
	plaintext, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}

	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &c.key)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    base64.RawURLEncoding.EncodeToString(sealed),
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
