package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// Cookie names for the OAuth handshake.
const (
	StateCookieName    = "sb_oauth_state"
	OperatorCookieName = "sb_oauth_operator"
)

// StatePayload is what the signed state cookie carries between the install
// start and the callback.
type StatePayload struct {
	Shop  string `json:"shop"`
	Nonce string `json:"nonce"`
}

// CookieCodec signs (and optionally encrypts) the short-lived OAuth cookies.
// The state cookie is the CSRF anchor of the whole handshake: the callback
// only proceeds when its nonce byte-equals the returned state parameter.
type CookieCodec struct {
	stateSC     *securecookie.SecureCookie
	operatorSC  *securecookie.SecureCookie
	stateTTL    time.Duration
	operatorTTL time.Duration
	secure      bool
}

// NewCookieCodec creates a codec. blockKey may be empty, in which case the
// cookies are signed but not encrypted. Each cookie gets its own codec so
// the signed timestamp check enforces the same TTL the browser sees.
func NewCookieCodec(hashKey, blockKey string, stateTTL, operatorTTL time.Duration, secure bool) *CookieCodec {
	var block []byte
	if blockKey != "" {
		block = []byte(blockKey)
	}
	stateSC := securecookie.New([]byte(hashKey), block)
	stateSC.MaxAge(int(stateTTL.Seconds()))
	operatorSC := securecookie.New([]byte(hashKey), block)
	operatorSC.MaxAge(int(operatorTTL.Seconds()))
	return &CookieCodec{
		stateSC:     stateSC,
		operatorSC:  operatorSC,
		stateTTL:    stateTTL,
		operatorTTL: operatorTTL,
		secure:      secure,
	}
}

// SetState writes the signed state cookie for the shop/nonce pair.
func (c *CookieCodec) SetState(w http.ResponseWriter, payload StatePayload) error {
	encoded, err := c.stateSC.Encode(StateCookieName, payload)
	if err != nil {
		return fmt.Errorf("failed to encode state cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(c.stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// State reads and verifies the state cookie.
func (c *CookieCodec) State(r *http.Request) (*StatePayload, error) {
	cookie, err := r.Cookie(StateCookieName)
	if err != nil {
		return nil, fmt.Errorf("state cookie missing: %w", err)
	}
	var payload StatePayload
	if err := c.stateSC.Decode(StateCookieName, cookie.Value, &payload); err != nil {
		return nil, fmt.Errorf("state cookie invalid: %w", err)
	}
	return &payload, nil
}

// SetOperator writes the signed operator cookie so an authenticated install
// can link the shop in the same handshake.
func (c *CookieCodec) SetOperator(w http.ResponseWriter, operatorID string) error {
	encoded, err := c.operatorSC.Encode(OperatorCookieName, operatorID)
	if err != nil {
		return fmt.Errorf("failed to encode operator cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     OperatorCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(c.operatorTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Operator reads the operator cookie, returning "" when no valid cookie is
// present. Installs without a logged-in operator are expected.
func (c *CookieCodec) Operator(r *http.Request) string {
	cookie, err := r.Cookie(OperatorCookieName)
	if err != nil {
		return ""
	}
	var operatorID string
	if err := c.operatorSC.Decode(OperatorCookieName, cookie.Value, &operatorID); err != nil {
		return ""
	}
	return operatorID
}

// Clear expires both handshake cookies after the callback completes.
func (c *CookieCodec) Clear(w http.ResponseWriter) {
	for _, name := range []string{StateCookieName, OperatorCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   c.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
