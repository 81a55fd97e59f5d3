package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec() *CookieCodec {
	return NewCookieCodec("0123456789abcdef0123456789abcdef", "", 15*time.Minute, time.Hour, false)
}

func requestWithCookies(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/install/callback", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestStateCookieRoundTrip(t *testing.T) {
	codec := newTestCodec()
	rec := httptest.NewRecorder()

	require.NoError(t, codec.SetState(rec, StatePayload{Shop: "acme.myshopify.com", Nonce: "n1"}))

	payload, err := codec.State(requestWithCookies(rec))
	require.NoError(t, err)
	assert.Equal(t, "acme.myshopify.com", payload.Shop)
	assert.Equal(t, "n1", payload.Nonce)
}

func TestStateCookieTamperRejected(t *testing.T) {
	codec := newTestCodec()
	rec := httptest.NewRecorder()
	require.NoError(t, codec.SetState(rec, StatePayload{Shop: "acme.myshopify.com", Nonce: "n1"}))

	req := httptest.NewRequest(http.MethodGet, "/install/callback", nil)
	for _, c := range rec.Result().Cookies() {
		c.Value = c.Value + "x"
		req.AddCookie(c)
	}
	_, err := codec.State(req)
	assert.Error(t, err)
}

func TestStateCookieExpiryEnforcedServerSide(t *testing.T) {
	// The state window must hold even when the browser keeps sending the
	// cookie past its Max-Age, so the check is the signed timestamp, not
	// the cookie attribute. The operator cookie keeps its longer window.
	codec := NewCookieCodec("0123456789abcdef0123456789abcdef", "", time.Second, time.Hour, false)
	rec := httptest.NewRecorder()
	require.NoError(t, codec.SetState(rec, StatePayload{Shop: "acme.myshopify.com", Nonce: "n1"}))
	require.NoError(t, codec.SetOperator(rec, "op-1"))

	time.Sleep(2 * time.Second)

	req := requestWithCookies(rec)
	_, err := codec.State(req)
	assert.Error(t, err, "stale state cookie must not decode")
	assert.Equal(t, "op-1", codec.Operator(req))
}

func TestStateCookieMissing(t *testing.T) {
	codec := newTestCodec()
	req := httptest.NewRequest(http.MethodGet, "/install/callback", nil)
	_, err := codec.State(req)
	assert.Error(t, err)
}

func TestOperatorCookieRoundTrip(t *testing.T) {
	codec := newTestCodec()
	rec := httptest.NewRecorder()
	require.NoError(t, codec.SetOperator(rec, "op-1"))

	assert.Equal(t, "op-1", codec.Operator(requestWithCookies(rec)))
}

func TestOperatorCookieAbsentIsEmpty(t *testing.T) {
	codec := newTestCodec()
	req := httptest.NewRequest(http.MethodGet, "/install/callback", nil)
	assert.Equal(t, "", codec.Operator(req))
}

func TestCodecsWithDifferentKeysDisagree(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, newTestCodec().SetOperator(rec, "op-1"))

	other := NewCookieCodec("ffffffffffffffffffffffffffffffff", "", 15*time.Minute, time.Hour, false)
	assert.Equal(t, "", other.Operator(requestWithCookies(rec)))
}

func TestClearExpiresBothCookies(t *testing.T) {
	codec := newTestCodec()
	rec := httptest.NewRecorder()
	codec.Clear(rec)

	names := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		names[c.Name] = true
		assert.Less(t, c.MaxAge, 0)
	}
	assert.True(t, names[StateCookieName])
	assert.True(t, names[OperatorCookieName])
}

func TestCookieAttributes(t *testing.T) {
	codec := NewCookieCodec("0123456789abcdef0123456789abcdef", "", 15*time.Minute, time.Hour, true)
	rec := httptest.NewRecorder()
	require.NoError(t, codec.SetState(rec, StatePayload{Shop: "acme.myshopify.com", Nonce: "n1"}))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int((15 * time.Minute).Seconds()), c.MaxAge)
}
