// Package shopify is a thin client for the page resource of the Shopify REST
// Admin API. Every call issues exactly one HTTP request and never retries.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"

	"go.uber.org/zap"
)

// DefaultAPIVersion is the Admin API version the page payloads were written against.
const DefaultAPIVersion = "2023-10"

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

// Client is the remote content API used by the synchronization service.
type Client interface {
	Create(ctx context.Context, shop, token string, in domain.NewPageInput) (*domain.Page, error)
	List(ctx context.Context, shop, token string) ([]*domain.Page, error)
	Get(ctx context.Context, shop, token, id string) (*domain.Page, error)
	Update(ctx context.Context, shop, token, id string, u domain.PageUpdate) (*domain.Page, error)
	Delete(ctx context.Context, shop, token, id string) error
}

// Config configures the REST client.
type Config struct {
	APIVersion string
	// BaseURL replaces https://<shop> when set. Used against local fakes.
	BaseURL    string
	HTTPClient *http.Client
}

// RESTClient implements Client over net/http.
type RESTClient struct {
	httpClient *http.Client
	apiVersion string
	baseURL    string
	logger     *zap.Logger
}

// NewRESTClient creates a REST Admin API client.
func NewRESTClient(cfg Config, logger *zap.Logger) *RESTClient {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTClient{
		httpClient: cfg.HTTPClient,
		apiVersion: cfg.APIVersion,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		logger:     logger.Named("shopify"),
	}
}

// wirePage is the page resource as exchanged with the Admin API.
type wirePage struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Handle      string     `json:"handle"`
	BodyHTML    string     `json:"body_html"`
	Published   *bool      `json:"published,omitempty"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type pageEnvelope struct {
	Page json.RawMessage `json:"page"`
}

type pagesEnvelope struct {
	Pages []json.RawMessage `json:"pages"`
}

// Create creates a page.
func (c *RESTClient) Create(ctx context.Context, shop, token string, in domain.NewPageInput) (*domain.Page, error) {
	payload := map[string]interface{}{
		"page": map[string]interface{}{
			"title":     in.Title,
			"body_html": in.Body,
			"handle":    in.Handle,
			"published": in.Published,
		},
	}

	var env pageEnvelope
	if err := c.do(ctx, "create", http.MethodPost, shop, token, "/pages.json", payload, &env); err != nil {
		return nil, err
	}
	return decodePage(shop, env.Page)
}

// List returns every page of the shop.
func (c *RESTClient) List(ctx context.Context, shop, token string) ([]*domain.Page, error) {
	var env pagesEnvelope
	if err := c.do(ctx, "list", http.MethodGet, shop, token, "/pages.json", nil, &env); err != nil {
		return nil, err
	}

	pages := make([]*domain.Page, 0, len(env.Pages))
	for _, raw := range env.Pages {
		p, err := decodePage(shop, raw)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// Get returns a single page.
func (c *RESTClient) Get(ctx context.Context, shop, token, id string) (*domain.Page, error) {
	var env pageEnvelope
	if err := c.do(ctx, "get", http.MethodGet, shop, token, pagePath(id), nil, &env); err != nil {
		return nil, err
	}
	return decodePage(shop, env.Page)
}

// Update sends only the fields present in u.
func (c *RESTClient) Update(ctx context.Context, shop, token, id string, u domain.PageUpdate) (*domain.Page, error) {
	fields := map[string]interface{}{"id": wireID(id)}
	if u.Title != nil {
		fields["title"] = *u.Title
	}
	if u.Body != nil {
		fields["body_html"] = *u.Body
	}
	if u.Handle != nil {
		fields["handle"] = *u.Handle
	}
	if u.Published != nil {
		fields["published"] = *u.Published
	}

	var env pageEnvelope
	if err := c.do(ctx, "update", http.MethodPut, shop, token, pagePath(id), map[string]interface{}{"page": fields}, &env); err != nil {
		return nil, err
	}
	return decodePage(shop, env.Page)
}

// Delete removes a page.
func (c *RESTClient) Delete(ctx context.Context, shop, token, id string) error {
	return c.do(ctx, "delete", http.MethodDelete, shop, token, pagePath(id), nil, nil)
}

// endpoint builds the request URL. Without a BaseURL the shop becomes the
// host, so it must be a myshopify.com domain.
func (c *RESTClient) endpoint(shop, path string) (string, error) {
	base := c.baseURL
	if base == "" {
		if !shopDomainPattern.MatchString(shop) {
			return "", fmt.Errorf("%w: %q", ErrInvalidShopDomain, shop)
		}
		base = "https://" + shop
	}
	return fmt.Sprintf("%s/admin/api/%s%s", base, c.apiVersion, path), nil
}

func (c *RESTClient) do(ctx context.Context, op, method, shop, token, path string, payload, out interface{}) error {
	if token == "" {
		return ErrMissingCredential
	}
	target, err := c.endpoint(shop, path)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("shopify: marshal %s payload: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("shopify: build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", token)

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("admin api request failed",
			zap.String("operation", op),
			zap.String("shop", shop),
			zap.Error(err),
		)
		return &RemoteUnavailableError{Op: op, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return &RemoteUnavailableError{Op: op, Err: err}
	}

	c.logger.Debug("admin api request",
		zap.String("operation", op),
		zap.String("shop", shop),
		zap.Int("status", res.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &RemoteAPIError{Method: method, Path: path, StatusCode: res.StatusCode, Body: string(raw)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("shopify: decode %s response: %w", op, err)
	}
	return nil
}

func decodePage(shop string, raw json.RawMessage) (*domain.Page, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("shopify: response carried no page")
	}

	var w wirePage
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("shopify: decode page: %w", err)
	}

	published := w.PublishedAt != nil
	if w.Published != nil {
		published = *w.Published
	}

	p := &domain.Page{
		ID:             strconv.FormatInt(w.ID, 10),
		Tenant:         shop,
		Handle:         w.Handle,
		Title:          w.Title,
		Body:           w.BodyHTML,
		Published:      published,
		Status:         domain.StatusFor(published),
		Source:         domain.SourceRemote,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
		RemoteSnapshot: append(json.RawMessage(nil), raw...),
	}
	if published {
		at := w.UpdatedAt
		if w.PublishedAt != nil {
			at = *w.PublishedAt
		}
		p.PublishedAt = &at
	}
	return p, nil
}

func pagePath(id string) string {
	return fmt.Sprintf("/pages/%s.json", url.PathEscape(id))
}

// wireID sends numeric ids as numbers, which is what the Admin API expects.
func wireID(id string) interface{} {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
