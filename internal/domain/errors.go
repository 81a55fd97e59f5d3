package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors converted to idempotent or conflict responses by callers.
var (
	// ErrDuplicateDelivery marks a (shop, dedupe key) collision on the
	// idempotency ledger. Not a failure: the delivery was already handled.
	ErrDuplicateDelivery = errors.New("duplicate webhook delivery")

	// ErrSyncInProgress means another sync holds the per-(shop,resource)
	// lock. The caller retries later from the unchanged watermark.
	ErrSyncInProgress = errors.New("sync already in progress for this shop and resource")
)

// Handshake signature failures. Distinct values so the callback handler can
// render 403 for a CSRF-state mismatch and 400 for a bad upstream signature.
var (
	ErrStateMismatch     = &SignatureError{Reason: "oauth state mismatch"}
	ErrCallbackSignature = &SignatureError{Reason: "callback signature verification failed"}
	ErrWebhookSignature  = &SignatureError{Reason: "webhook signature verification failed"}
)

// ValidationError reports malformed or missing caller input. Maps to 400
// and is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// SignatureError reports an HMAC or OAuth-state mismatch. Maps to 401/403;
// the flow must restart, there is no auto-retry.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string { return e.Reason }

// NotInstalledError reports that no active installation exists for the shop,
// optionally scoped to the requesting operator.
type NotInstalledError struct {
	Shop string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("app is not installed for shop %s", e.Shop)
}

// UpstreamError carries the upstream platform's real response so callers can
// forward status and body verbatim instead of flattening to a generic
// failure. StatusCode 0 means the upstream was unreachable (timeout or
// transport fault).
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream %s: unreachable: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("upstream %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Unavailable reports whether the upstream could not be reached at all.
func (e *UpstreamError) Unavailable() bool { return e.StatusCode == 0 }
