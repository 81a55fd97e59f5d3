package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Verifier checks HMAC-SHA256 signatures for the two upstream protocols:
// OAuth callback queries (hex digest over the sorted raw query) and webhook
// deliveries (base64 digest over the exact body bytes). All comparisons are
// constant-time and every parse problem fails closed. The secret is held
// here and never logged.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier bound to the shared app secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyCallback validates an OAuth callback over the raw, still-encoded
// query text. Signature-bearing parameters (hmac, signature) are removed
// from the raw text, the remaining key=value substrings are sorted
// lexicographically and joined with '&', and the hex HMAC-SHA256 of that
// message is compared against the claimed signature.
func (v *Verifier) VerifyCallback(rawQuery, claimed string) bool {
	if rawQuery == "" || claimed == "" {
		return false
	}

	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, p := range parts {
		key := p
		if i := strings.IndexByte(p, '='); i >= 0 {
			key = p[:i]
		}
		if key == "hmac" || key == "signature" {
			continue
		}
		kept = append(kept, p)
	}
	sort.Strings(kept)
	message := strings.Join(kept, "&")

	return v.compareHex(message, claimed)
}

// VerifyCallbackParams is the fallback for callers that no longer hold the
// raw query text. The message is rebuilt from decoded parameters with manual
// escaping of '%', '&' and '=' only, which is not guaranteed byte-identical
// to the original raw text for array or punctuation edge cases. Callers
// should log when they take this path.
func (v *Verifier) VerifyCallbackParams(params url.Values, claimed string) bool {
	if len(params) == 0 || claimed == "" {
		return false
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, val := range params[k] {
			pairs = append(pairs, escapeParam(k)+"="+escapeParam(val))
		}
	}
	message := strings.Join(pairs, "&")

	return v.compareHex(message, claimed)
}

// VerifyWebhook validates a webhook delivery: base64 HMAC-SHA256 over the
// exact raw body bytes. An empty or undecodable header verifies false.
func (v *Verifier) VerifyWebhook(body []byte, header string) bool {
	if header == "" {
		return false
	}
	claimed, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	if len(claimed) != len(expected) {
		return false
	}
	return hmac.Equal(expected, claimed)
}

func (v *Verifier) compareHex(message, claimed string) bool {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(message))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(claimed)))
}

// escapeParam percent-encodes only the characters that are structural in the
// signed message.
func escapeParam(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "&", "%26")
	s = strings.ReplaceAll(s, "=", "%3D")
	return s
}
