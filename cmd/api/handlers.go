package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shelfmerch/shopify-bridge/internal/application"
	"github.com/shelfmerch/shopify-bridge/internal/domain"
	"github.com/shelfmerch/shopify-bridge/internal/infrastructure/auth"
	"github.com/shelfmerch/shopify-bridge/internal/infrastructure/session"
)

const maxWebhookBody = 1 << 20 // 1 MiB

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Upstream failures keep
// their original status and body so callers see the real refusal.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var ve *domain.ValidationError
	var ne *domain.NotInstalledError
	var ue *domain.UpstreamError

	switch {
	case errors.Is(err, domain.ErrStateMismatch):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "oauth state mismatch"})
	case errors.Is(err, domain.ErrCallbackSignature):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid callback signature"})
	case errors.Is(err, domain.ErrWebhookSignature):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid webhook signature"})
	case errors.Is(err, domain.ErrSyncInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "sync already in progress"})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error()})
	case errors.As(err, &ne):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ne.Error()})
	case errors.As(err, &ue):
		// Forward the upstream's status and body so the caller sees the
		// real reason, not a flattened 502.
		logger.Error().Err(err).Msg("Upstream request failed")
		if ue.Unavailable() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "upstream unavailable"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ue.StatusCode)
		w.Write(ue.Body)
	default:
		logger.Error().Err(err).Msg("Internal error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// writeOAuthError is the plain-text variant for the browser-facing install
// endpoints, where a JSON body would just be pasted into a support ticket.
func writeOAuthError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var ve *domain.ValidationError

	switch {
	case errors.Is(err, domain.ErrStateMismatch):
		http.Error(w, "OAuth state mismatch, restart the install", http.StatusForbidden)
	case errors.Is(err, domain.ErrCallbackSignature):
		http.Error(w, "Invalid callback signature", http.StatusBadRequest)
	case errors.As(err, &ve):
		http.Error(w, ve.Error(), http.StatusBadRequest)
	default:
		logger.Error().Err(err).Msg("Install failed")
		http.Error(w, "Failed to complete installation", http.StatusInternalServerError)
	}
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// installStartHandler begins the OAuth handshake: sanitize the shop, pin the
// CSRF nonce in a signed cookie, redirect to the authorize page. A valid
// bearer token, when present, is remembered in the operator cookie so the
// callback can link the store in the same flow.
func installStartHandler(
	handshake *application.HandshakeService,
	cookies *session.CookieCodec,
	tokens *auth.TokenVerifier,
	logger zerolog.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := r.URL.Query().Get("shop")
		if shop == "" {
			http.Error(w, "shop parameter is required", http.StatusBadRequest)
			return
		}

		begin, err := handshake.Begin(r.Context(), shop)
		if err != nil {
			writeOAuthError(w, logger, err)
			return
		}

		if err := cookies.SetState(w, session.StatePayload{Shop: begin.Shop, Nonce: begin.Nonce}); err != nil {
			logger.Error().Err(err).Msg("Failed to set state cookie")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		// Anonymous installs are allowed; the operator cookie is optional.
		// The token rides a query parameter because this endpoint is a
		// browser navigation, not an API call.
		token := r.URL.Query().Get("token")
		if token == "" {
			token = r.Header.Get("Authorization")
		}
		if token != "" {
			if operatorID, err := tokens.OperatorID(token); err == nil {
				if err := cookies.SetOperator(w, operatorID); err != nil {
					logger.Warn().Err(err).Msg("Failed to set operator cookie")
				}
			}
		}

		http.Redirect(w, r, begin.AuthURL, http.StatusFound)
	}
}

// installCallbackHandler completes the handshake. The raw query string is
// passed through untouched for signature verification.
func installCallbackHandler(
	handshake *application.HandshakeService,
	cookies *session.CookieCodec,
	embeddedAppURL string,
	logger zerolog.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		in := application.CallbackInput{
			Shop:       q.Get("shop"),
			Code:       q.Get("code"),
			State:      q.Get("state"),
			Claimed:    q.Get("hmac"),
			RawQuery:   r.URL.RawQuery,
			Params:     q,
			OperatorID: cookies.Operator(r),
		}
		if state, err := cookies.State(r); err == nil {
			in.CookieNonce = state.Nonce
			in.CookieShop = state.Shop
		}

		store, err := handshake.CompleteInstall(r.Context(), in)
		cookies.Clear(w)
		if err != nil {
			writeOAuthError(w, logger, err)
			return
		}

		target := embeddedAppURL + "?installed=1&shop=" + url.QueryEscape(store.Domain)
		if host := q.Get("host"); host != "" {
			target += "&host=" + url.QueryEscape(host)
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

func statusHandler(handshake *application.HandshakeService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := r.URL.Query().Get("shop")
		if shop == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "shop parameter is required"})
			return
		}

		status, err := handshake.InstallStatus(r.Context(), shop)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// webhookReceiveHandler accepts one upstream webhook delivery. It answers
// 200 for everything the upstream should not retry, including duplicates and
// deliveries for shops this deployment does not know.
func webhookReceiveHandler(receiver *application.WebhookReceiver, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topic := chi.URLParam(r, "*")
		if topic == "" {
			topic = r.Header.Get("X-Shopify-Topic")
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
			return
		}
		defer r.Body.Close()

		in := application.InboundDelivery{
			Topic:      topic,
			Shop:       r.Header.Get("X-Shopify-Shop-Domain"),
			DeliveryID: r.Header.Get("X-Shopify-Webhook-Id"),
			OrderID:    r.Header.Get("X-Shopify-Order-Id"),
			Signature:  r.Header.Get("X-Shopify-Hmac-SHA256"),
			Body:       body,
		}

		if err := receiver.Process(r.Context(), in); err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

// bearerMiddleware authenticates operator routes and stashes the operator id
// in the request context.
func bearerMiddleware(tokens *auth.TokenVerifier, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			operatorID, err := tokens.OperatorID(r.Header.Get("Authorization"))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing bearer token"})
				return
			}
			ctx := domain.WithOperatorID(r.Context(), operatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func linkAccountHandler(handshake *application.HandshakeService, logger zerolog.Logger) http.HandlerFunc {
	type request struct {
		Shop string `json:"shop"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		operatorID := domain.OperatorIDFromContext(r.Context())
		shop, err := handshake.LinkAccount(r.Context(), req.Shop, operatorID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"shop": shop, "linked": true})
	}
}

func listStoresHandler(handshake *application.HandshakeService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operatorID := domain.OperatorIDFromContext(r.Context())
		stores, err := handshake.ListStores(r.Context(), operatorID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if stores == nil {
			stores = []*domain.Store{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"stores": stores})
	}
}

func syncHandler(syncService *application.SyncService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := r.URL.Query().Get("shop")
		if shop == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "shop parameter is required"})
			return
		}
		mode := r.URL.Query().Get("mode")
		if mode == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode parameter is required: orders or products"})
			return
		}

		operatorID := domain.OperatorIDFromContext(r.Context())
		result, err := syncService.Sync(r.Context(), shop, operatorID, domain.ResourceKind(mode))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func deliveriesHandler(receiver *application.WebhookReceiver, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := r.URL.Query().Get("shop")
		if shop == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "shop parameter is required"})
			return
		}
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}

		deliveries, err := receiver.Deliveries(r.Context(), shop, limit)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if deliveries == nil {
			deliveries = []*domain.WebhookDelivery{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"deliveries": deliveries})
	}
}
