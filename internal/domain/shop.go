package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// PlatformDomainSuffix is the upstream platform's shop domain suffix.
const PlatformDomainSuffix = ".myshopify.com"

// SanitizeShopDomain normalizes an arbitrary shop handle or URL to the
// canonical `<handle>.myshopify.com` form. The function is pure and
// idempotent: feeding its own output back returns the same value.
//
// Injection attempts are rejected rather than silently accepted: anything
// after the platform suffix fails, as does a handle containing characters
// outside [a-z0-9-].
func SanitizeShopDomain(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimSuffix(s, "/")
	if s == "" {
		return "", &ValidationError{Field: "shop", Reason: "shop is required"}
	}

	handle := s
	if idx := strings.Index(s, PlatformDomainSuffix); idx >= 0 {
		if idx+len(PlatformDomainSuffix) != len(s) {
			// Trailing text after the platform suffix, e.g.
			// foo.myshopify.com.evil.com.
			return "", &ValidationError{Field: "shop", Reason: "invalid shop domain"}
		}
		handle = s[:idx]
		if i := strings.LastIndex(handle, "/"); i >= 0 {
			handle = handle[i+1:]
		}
	}

	if !validShopHandle(handle) {
		return "", &ValidationError{Field: "shop", Reason: "invalid shop domain"}
	}
	return handle + PlatformDomainSuffix, nil
}

func validShopHandle(handle string) bool {
	if handle == "" || handle[0] == '-' {
		return false
	}
	for i := 0; i < len(handle); i++ {
		c := handle[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return false
		}
	}
	return true
}

// AuthorizeURL builds the upstream OAuth authorization URL for a sanitized
// shop domain.
func AuthorizeURL(shopDomain, clientID, scopes, redirectURI, state string) string {
	return fmt.Sprintf(
		"https://%s/admin/oauth/authorize?client_id=%s&scope=%s&redirect_uri=%s&state=%s",
		shopDomain, clientID, url.QueryEscape(scopes), url.QueryEscape(redirectURI), url.QueryEscape(state),
	)
}
