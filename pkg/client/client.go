// Package client provides the HTTP client for the upstream catalog provider.
//
// The provider serves one page of one catalog level per call:
//
//	GET /categories/
//	GET /products/{categoryId}[/{offset}/{limit}]
//	GET /products/{categoryId}/count/
//	GET /offers/{productId}[/{offset}/{limit}]
//	GET /offers/{productId}/count/
//
// The client does not retry; wrap it in Retrying for that.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-cache/pkg/catalog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream calls.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Endpoint templates, used as metric labels and in errors.
const (
	endpointCategories   = "/categories/"
	endpointProducts     = "/products/{categoryId}"
	endpointProductCount = "/products/{categoryId}/count/"
	endpointOffers       = "/offers/{productId}"
	endpointOfferCount   = "/offers/{productId}/count/"
)

// maxErrorBody bounds how much of a failed response body is kept.
const maxErrorBody = 64 << 10

// Client is the upstream catalog client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the provider, e.g. "http://provider:5000".
	BaseURL string

	// UserAgent sent with every request.
	UserAgent string

	// Timeout per request.
	Timeout time.Duration
}

// DefaultConfig returns a default configuration for the given provider.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "catalog-cache/0.1.0",
		Timeout:   30 * time.Second,
	}
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}

	logger := log.With().Str("component", "upstream-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		config:  cfg,
		logger:  logger,
	}, nil
}

// FetchCategories returns every category with base fields only.
func (c *Client) FetchCategories(ctx context.Context) ([]catalog.Category, error) {
	var categories []catalog.Category
	if err := c.get(ctx, endpointCategories, "/categories/", &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// FetchProducts returns base products of a category in [offset, offset+limit).
// A limit of 0 requests the provider's unpaginated listing.
func (c *Client) FetchProducts(ctx context.Context, categoryID, offset, limit int) ([]catalog.Product, error) {
	var products []catalog.Product
	path := pagedPath("/products/"+strconv.Itoa(categoryID), offset, limit)
	if err := c.get(ctx, endpointProducts, path, &products); err != nil {
		return nil, err
	}

	// The path is authoritative for the parent, and MinPrice starts unbounded.
	for i := range products {
		products[i].CategoryID = categoryID
		products[i].MinPrice = catalog.NoLowerBound
	}
	return products, nil
}

// FetchProductCount returns the number of products in a category.
func (c *Client) FetchProductCount(ctx context.Context, categoryID int) (int, error) {
	return c.count(ctx, endpointProductCount, "/products/"+strconv.Itoa(categoryID)+"/count/")
}

// FetchOffers returns the offers of a product in [offset, offset+limit).
// A limit of 0 requests the provider's unpaginated listing.
func (c *Client) FetchOffers(ctx context.Context, productID, offset, limit int) ([]catalog.Offer, error) {
	var offers []catalog.Offer
	path := pagedPath("/offers/"+strconv.Itoa(productID), offset, limit)
	if err := c.get(ctx, endpointOffers, path, &offers); err != nil {
		return nil, err
	}

	for i := range offers {
		offers[i].ProductID = productID
	}
	return offers, nil
}

// FetchOfferCount returns the number of offers of a product.
func (c *Client) FetchOfferCount(ctx context.Context, productID int) (int, error) {
	return c.count(ctx, endpointOfferCount, "/offers/"+strconv.Itoa(productID)+"/count/")
}

func pagedPath(base string, offset, limit int) string {
	if limit <= 0 {
		return base
	}
	return base + "/" + strconv.Itoa(offset) + "/" + strconv.Itoa(limit)
}

type countResponse struct {
	Count int `json:"count"`
}

func (c *Client) count(ctx context.Context, endpoint, path string) (int, error) {
	var resp countResponse
	if err := c.get(ctx, endpoint, path, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// get performs one GET and decodes a 2xx JSON body into out.
func (c *Client) get(ctx context.Context, endpoint, path string, out any) error {
	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &TransportError{Endpoint: path, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("path", path).Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("Upstream request failed")
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		upstreamRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return &TransportError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Body:       body,
		}
		upstreamErrorsTotal.WithLabelValues(string(statusErr.Class())).Inc()

		c.logger.Warn().
			Str("path", path).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(statusErr.Class())).
			Msg("Upstream responded with error status")
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return &TransportError{Endpoint: path, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
