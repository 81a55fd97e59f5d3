package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfmerch/shopify-bridge/internal/domain"
	"github.com/shelfmerch/shopify-bridge/internal/infrastructure/metrics"
	"github.com/shelfmerch/shopify-bridge/internal/ports"
)

// HandshakeService drives the OAuth install flow: begin, callback, and the
// post-install link action. A shop may be installed before any operator is
// linked; linking later never creates a second store record.
type HandshakeService struct {
	stores   ports.StoreRepository
	upstream ports.UpstreamClient
	subs     ports.SubscriptionManager
	verifier ports.CallbackVerifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	apiKey      string
	scopes      string
	redirectURI string
}

// NewHandshakeService creates the handshake controller.
func NewHandshakeService(
	stores ports.StoreRepository,
	upstream ports.UpstreamClient,
	subs ports.SubscriptionManager,
	verifier ports.CallbackVerifier,
	m *metrics.Metrics,
	logger zerolog.Logger,
	apiKey, scopes, appURL string,
) *HandshakeService {
	return &HandshakeService{
		stores:      stores,
		upstream:    upstream,
		subs:        subs,
		verifier:    verifier,
		metrics:     m,
		logger:      logger,
		apiKey:      apiKey,
		scopes:      scopes,
		redirectURI: appURL + "/install/callback",
	}
}

// BeginResult is what the install-start handler needs: the sanitized shop,
// the CSRF nonce to pin in the state cookie, and the authorize redirect.
type BeginResult struct {
	Shop    string
	Nonce   string
	AuthURL string
}

// Begin sanitizes the shop and prepares the authorize redirect. The caller
// stores the nonce in a signed short-TTL cookie; the upstream echoes it back
// as the state parameter.
func (s *HandshakeService) Begin(ctx context.Context, rawShop string) (*BeginResult, error) {
	shop, err := domain.SanitizeShopDomain(rawShop)
	if err != nil {
		return nil, err
	}

	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("failed to generate state nonce: %w", err)
	}
	nonce := hex.EncodeToString(nonceBytes)

	return &BeginResult{
		Shop:    shop,
		Nonce:   nonce,
		AuthURL: domain.AuthorizeURL(shop, s.apiKey, s.scopes, s.redirectURI, nonce),
	}, nil
}

// CallbackInput carries everything the callback handler extracted from the
// redirect request. RawQuery is the exact, still-encoded query text; Params
// is the decoded fallback used only when RawQuery is unavailable.
type CallbackInput struct {
	Shop        string
	Code        string
	State       string
	CookieNonce string
	CookieShop  string
	Claimed     string
	RawQuery    string
	Params      url.Values

	// OperatorID is set when a valid operator cookie accompanied the
	// callback. It is a claim, not an assignment: the store only lands in
	// the linked state when it is unlinked or already this operator's.
	OperatorID string
}

// CompleteInstall validates the callback and upserts the store. State-cookie
// mismatch and signature failure are terminal for this attempt; the flow
// must restart from Begin.
func (s *HandshakeService) CompleteInstall(ctx context.Context, in CallbackInput) (*domain.Store, error) {
	shop, err := domain.SanitizeShopDomain(in.Shop)
	if err != nil {
		return nil, err
	}
	if in.Code == "" || in.State == "" {
		return nil, &domain.ValidationError{Reason: "missing required oauth parameters"}
	}

	// The state cookie must exist and byte-equal the returned state, and it
	// must have been minted for this shop.
	if in.CookieNonce == "" || in.CookieNonce != in.State || in.CookieShop != shop {
		s.logger.Warn().Str("shop", shop).Msg("OAuth state mismatch on callback")
		return nil, domain.ErrStateMismatch
	}

	if !s.verifyCallback(in) {
		s.logger.Warn().Str("shop", shop).Msg("OAuth callback signature verification failed")
		return nil, domain.ErrCallbackSignature
	}

	grant, err := s.upstream.ExchangeCode(ctx, shop, in.Code)
	if err != nil {
		return nil, err
	}

	// Webhook registration failure is tolerated: the store is still
	// installed and subscriptions can be repaired on the next install.
	webhookIDs, err := s.subs.Subscribe(ctx, shop, grant.Token)
	if err != nil {
		s.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to register webhook subscriptions")
	}

	store := &domain.Store{
		Domain:      shop,
		AccessToken: grant.Token,
		Scopes:      grant.Scopes,
		Active:      true,
		WebhookIDs:  webhookIDs,
		InstalledAt: time.Now().UTC(),
	}
	// Upsert by shop domain only: one shop maps to one store regardless of
	// who installed it, and a reinstall overwrites the old credential.
	if err := s.stores.Upsert(ctx, store); err != nil {
		return nil, fmt.Errorf("failed to save store: %w", err)
	}

	// The operator cookie is only a claim, so it goes through the same
	// guarded link action as POST /link-account. A reinstall refreshes the
	// credential but cannot move the store to a different operator.
	if in.OperatorID != "" {
		switch err := s.stores.LinkOperator(ctx, shop, in.OperatorID); {
		case err == nil:
			store.OperatorID = in.OperatorID
		case errors.As(err, new(*domain.NotInstalledError)):
			s.logger.Warn().Str("shop", shop).Msg("Operator claim on install callback rejected, store keeps its owner")
		default:
			return nil, fmt.Errorf("failed to link operator: %w", err)
		}
	}

	s.metrics.ObserveInstall()
	s.logger.Info().
		Str("shop", shop).
		Bool("linked", store.Linked()).
		Strs("scopes", grant.Scopes).
		Msg("Shop installed")

	return store, nil
}

func (s *HandshakeService) verifyCallback(in CallbackInput) bool {
	if in.RawQuery != "" {
		return s.verifier.VerifyCallback(in.RawQuery, in.Claimed)
	}
	// Rebuilding from decoded parameters is not guaranteed byte-identical
	// to the original query text; log that the fallback was taken.
	s.logger.Warn().Str("shop", in.Shop).Msg("Raw query unavailable, using decoded-params signature fallback")
	return s.verifier.VerifyCallbackParams(in.Params, in.Claimed)
}

// LinkAccount lets an authenticated operator claim an installed, active
// store that is unlinked or already their own. Anything else is rejected as
// not installed for this merchant.
func (s *HandshakeService) LinkAccount(ctx context.Context, rawShop, operatorID string) (string, error) {
	shop, err := domain.SanitizeShopDomain(rawShop)
	if err != nil {
		return "", err
	}
	if operatorID == "" {
		return "", &domain.ValidationError{Field: "operator", Reason: "operator identity is required"}
	}

	if err := s.stores.LinkOperator(ctx, shop, operatorID); err != nil {
		return "", err
	}

	s.logger.Info().Str("shop", shop).Str("operatorId", operatorID).Msg("Store linked to operator")
	return shop, nil
}

// Status reports whether a shop is installed and linked. AuthURL is only
// populated for shops that are not installed, so a UI can offer the install
// entry point.
type Status struct {
	Shop      string `json:"shop"`
	Installed bool   `json:"installed"`
	Linked    bool   `json:"linked"`
	AuthURL   string `json:"authUrl,omitempty"`
}

// InstallStatus returns the public install/link status for a shop.
func (s *HandshakeService) InstallStatus(ctx context.Context, rawShop string) (*Status, error) {
	shop, err := domain.SanitizeShopDomain(rawShop)
	if err != nil {
		return nil, err
	}

	store, err := s.stores.Get(ctx, shop)
	if err != nil {
		return nil, err
	}

	st := &Status{Shop: shop}
	if store != nil && store.Installed() {
		st.Installed = true
		st.Linked = store.Linked()
		return st, nil
	}

	// Not installed: the status response doubles as the install entry
	// point, but without a nonce; Begin mints the real one.
	st.AuthURL = domain.AuthorizeURL(shop, s.apiKey, s.scopes, s.redirectURI, "")
	return st, nil
}

// ListStores returns every store linked to the operator, for the bearer
// /stores listing. Credential fields never leave the domain struct's json
// boundary.
func (s *HandshakeService) ListStores(ctx context.Context, operatorID string) ([]*domain.Store, error) {
	return s.stores.ListByOperator(ctx, operatorID)
}
