package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfmerch/shopify-bridge/internal/domain"
	"github.com/shelfmerch/shopify-bridge/internal/ports"
)

// Client is a thin wrapper over the upstream admin REST API. Every call
// carries the per-shop access token header and the configured, fixed API
// version; any non-2xx response becomes a *domain.UpstreamError with the
// numeric status and the upstream body, so callers can forward the real
// reason upstream gave.
type Client struct {
	apiKey     string
	apiSecret  string
	apiVersion string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates an upstream client. The timeout bounds every outbound
// call; a timeout surfaces as an unavailable (status 0) UpstreamError and
// never advances any sync watermark.
func NewClient(apiKey, apiSecret, apiVersion string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

var _ ports.UpstreamClient = (*Client)(nil)

// ExchangeCode trades an OAuth authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, shopDomain, code string) (*ports.AccessGrant, error) {
	const op = "exchange_code"

	tokenURL := fmt.Sprintf("https://%s/admin/oauth/access_token", shopDomain)
	form := url.Values{}
	form.Set("client_id", c.apiKey)
	form.Set("client_secret", c.apiSecret)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req, op)
	if err != nil {
		return nil, err
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
	}
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return nil, &domain.UpstreamError{Op: op, Body: body, Err: fmt.Errorf("invalid token response")}
	}

	grant := &ports.AccessGrant{Token: tok.AccessToken}
	if tok.Scope != "" {
		grant.Scopes = strings.Split(tok.Scope, ",")
	}
	return grant, nil
}

// ListOrders fetches one bounded page of orders updated at or after
// updatedAtMin, oldest-updated-first. Full backfill is repeated invocation;
// one call does bounded, cheaply retryable work.
func (c *Client) ListOrders(ctx context.Context, shopDomain, accessToken string, updatedAtMin time.Time, limit int) ([]ports.UpstreamOrder, error) {
	const op = "list_orders"

	body, err := c.get(ctx, shopDomain, accessToken, "orders.json", op, url.Values{
		"updated_at_min": {updatedAtMin.UTC().Format(time.RFC3339)},
		"limit":          {fmt.Sprintf("%d", limit)},
		"status":         {"any"},
		"order":          {"updated_at asc"},
	})
	if err != nil {
		return nil, err
	}

	var page struct {
		Orders []json.RawMessage `json:"orders"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &domain.UpstreamError{Op: op, Body: body, Err: fmt.Errorf("undecodable orders page: %w", err)}
	}

	orders := make([]ports.UpstreamOrder, 0, len(page.Orders))
	for _, raw := range page.Orders {
		var o struct {
			ID              int64  `json:"id"`
			Name            string `json:"name"`
			Email           string `json:"email"`
			TotalPrice      string `json:"total_price"`
			Currency        string `json:"currency"`
			FinancialStatus string `json:"financial_status"`
			ProcessedAt     string `json:"processed_at"`
			UpdatedAt       string `json:"updated_at"`
		}
		if err := json.Unmarshal(raw, &o); err != nil {
			c.logger.Warn().Err(err).Str("shop", shopDomain).Msg("Skipping undecodable order in page")
			continue
		}
		orders = append(orders, ports.UpstreamOrder{
			ID:              o.ID,
			Name:            o.Name,
			Email:           o.Email,
			TotalPrice:      o.TotalPrice,
			Currency:        o.Currency,
			FinancialStatus: o.FinancialStatus,
			ProcessedAt:     parseTime(o.ProcessedAt),
			UpdatedAt:       parseTime(o.UpdatedAt),
			Raw:             raw,
		})
	}
	return orders, nil
}

// ListProducts fetches one bounded page of products updated at or after
// updatedAtMin, oldest-updated-first.
func (c *Client) ListProducts(ctx context.Context, shopDomain, accessToken string, updatedAtMin time.Time, limit int) ([]ports.UpstreamProduct, error) {
	const op = "list_products"

	body, err := c.get(ctx, shopDomain, accessToken, "products.json", op, url.Values{
		"updated_at_min": {updatedAtMin.UTC().Format(time.RFC3339)},
		"limit":          {fmt.Sprintf("%d", limit)},
		"order":          {"updated_at asc"},
	})
	if err != nil {
		return nil, err
	}

	var page struct {
		Products []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &domain.UpstreamError{Op: op, Body: body, Err: fmt.Errorf("undecodable products page: %w", err)}
	}

	products := make([]ports.UpstreamProduct, 0, len(page.Products))
	for _, raw := range page.Products {
		var p struct {
			ID        int64  `json:"id"`
			Title     string `json:"title"`
			Handle    string `json:"handle"`
			Vendor    string `json:"vendor"`
			Status    string `json:"status"`
			UpdatedAt string `json:"updated_at"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			c.logger.Warn().Err(err).Str("shop", shopDomain).Msg("Skipping undecodable product in page")
			continue
		}
		products = append(products, ports.UpstreamProduct{
			ID:        p.ID,
			Title:     p.Title,
			Handle:    p.Handle,
			Vendor:    p.Vendor,
			Status:    p.Status,
			UpdatedAt: parseTime(p.UpdatedAt),
			Raw:       raw,
		})
	}
	return products, nil
}

func (c *Client) get(ctx context.Context, shopDomain, accessToken, resource, op string, query url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("https://%s/admin/api/%s/%s?%s", shopDomain, c.apiVersion, resource, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("X-Shopify-Access-Token", accessToken)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, op)
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.logger.Warn().Str("op", op).Msg("Upstream call timed out")
		}
		return nil, &domain.UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.UpstreamError{Op: op, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.UpstreamError{Op: op, StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
