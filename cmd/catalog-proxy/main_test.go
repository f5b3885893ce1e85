package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-cache/internal/testutil"
	"github.com/Sternrassler/catalog-cache/pkg/aggregator"
	"github.com/Sternrassler/catalog-cache/pkg/cache"
	"github.com/Sternrassler/catalog-cache/pkg/catalog"
	"github.com/Sternrassler/catalog-cache/pkg/client"
	"github.com/Sternrassler/catalog-cache/pkg/repository"
	"github.com/Sternrassler/catalog-cache/pkg/server"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Redis container not available: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		redisC.Terminate(ctx)
	}

	return redisClient, cleanup
}

// newTestProxy wires the full stack over a memory store and a mock upstream.
func newTestProxy(t *testing.T) (*httptest.Server, *testutil.MockUpstream) {
	t.Helper()

	mock := testutil.NewMockUpstream()
	t.Cleanup(mock.Close)

	upstream, err := client.New(client.DefaultConfig(mock.URL()))
	if err != nil {
		t.Fatalf("Failed to create upstream client: %v", err)
	}

	store := cache.NewMemoryStore()
	repo := repository.New(store, zerolog.Nop())
	agg := aggregator.New(upstream, repo, aggregator.DefaultOptions(), zerolog.Nop())
	pages := server.New(repo, upstream, agg, server.DefaultConfig(), zerolog.Nop())

	proxy := httptest.NewServer(newHandler(pages, store, 10*time.Second))
	t.Cleanup(proxy.Close)
	t.Cleanup(pages.Wait)

	return proxy, mock
}

func seed(mock *testutil.MockUpstream) {
	mock.AddCategory(1, "Books")
	for i := 1; i <= 7; i++ {
		productID := 100 + i
		mock.AddProduct(1, productID, "book")
		mock.AddOffer(catalog.Offer{
			OfferID:     productID*10 + 1,
			ProductID:   productID,
			Title:       "offer",
			Description: "a book",
			ImgURL:      "book.png",
			Price:       testutil.Price(float64(i)),
		})
	}
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()

	noRedirect := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := noRedirect.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		handler := newHandler(nil, cache.NewMemoryStore(), time.Second)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("not_ready", func(t *testing.T) {
		handler := newHandler(nil, failingPinger{}, time.Second)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})
}

func TestReadyEndpoint_Redis(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	handler := newHandler(nil, cache.NewRedisStore(redisClient, "catalog:"), time.Second)

	t.Run("ready", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		redisClient.Close()

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})
}

func TestRootRedirectsToCategories(t *testing.T) {
	proxy, _ := newTestProxy(t)

	resp, _ := get(t, proxy.URL+"/")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected status 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/categories" {
		t.Errorf("Expected redirect to /categories, got %q", loc)
	}
}

func TestCategoriesEndpoint(t *testing.T) {
	proxy, mock := newTestProxy(t)
	seed(mock)

	resp, body := get(t, proxy.URL+"/categories")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}

	var categories []catalog.Category
	if err := json.Unmarshal(body, &categories); err != nil {
		t.Fatalf("Failed to decode categories: %v", err)
	}
	if len(categories) != 1 {
		t.Fatalf("Expected 1 category, got %d", len(categories))
	}
	if categories[0].ProductCount != 7 {
		t.Errorf("Expected productCount 7, got %d", categories[0].ProductCount)
	}
	if categories[0].ImgURL != "book.png" {
		t.Errorf("Expected img_url book.png, got %q", categories[0].ImgURL)
	}
}

func TestProductsEndpoint(t *testing.T) {
	proxy, mock := newTestProxy(t)
	seed(mock)

	resp, body := get(t, proxy.URL+"/categories/1/2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}

	var products []catalog.Product
	if err := json.Unmarshal(body, &products); err != nil {
		t.Fatalf("Failed to decode products: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("Expected 2 products on the last page, got %d", len(products))
	}
	if products[0].ProductID != 106 || products[1].ProductID != 107 {
		t.Errorf("Unexpected products %+v", products)
	}
}

func TestProductDetailEndpoint(t *testing.T) {
	proxy, mock := newTestProxy(t)
	seed(mock)

	if resp, body := get(t, proxy.URL+"/categories"); resp.StatusCode != http.StatusOK {
		t.Fatalf("Warm-up failed: %d %s", resp.StatusCode, body)
	}

	resp, body := get(t, proxy.URL+"/products/102")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(body, &pair); err != nil || len(pair) != 2 {
		t.Fatalf("Expected [product, offers] pair, got %s", body)
	}

	var detail catalog.ProductDetail
	if err := json.Unmarshal(pair[0], &detail); err != nil {
		t.Fatalf("Failed to decode product: %v", err)
	}
	if detail.ProductID != 102 || detail.CategoryTitle != "Books" {
		t.Errorf("Unexpected product %+v", detail)
	}

	var offers []catalog.Offer
	if err := json.Unmarshal(pair[1], &offers); err != nil {
		t.Fatalf("Failed to decode offers: %v", err)
	}
	if len(offers) != 1 || offers[0].OfferID != 1021 {
		t.Errorf("Unexpected offers %+v", offers)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		setup      func(*testutil.MockUpstream)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "unmatched route",
			path:       "/nothing/here",
			wantStatus: http.StatusNotFound,
			wantBody:   `"status":404`,
		},
		{
			name:       "non-numeric category",
			path:       "/categories/books/1",
			wantStatus: http.StatusBadRequest,
			wantBody:   "categoryId",
		},
		{
			name:       "page zero",
			path:       "/categories/1/0",
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid page",
		},
		{
			name:       "unknown category",
			path:       "/categories/9/1",
			setup:      seed,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "uncached product",
			path:       "/products/555",
			wantStatus: http.StatusNotFound,
		},
		{
			name: "upstream status passed through",
			path: "/categories",
			setup: func(m *testutil.MockUpstream) {
				m.SetResponse("/categories/", testutil.MockResponse{
					StatusCode: http.StatusTeapot,
					Body:       `{"error":"short and stout"}`,
				})
			},
			wantStatus: http.StatusTeapot,
			wantBody:   `{"error":"short and stout"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proxy, mock := newTestProxy(t)
			if tt.setup != nil {
				tt.setup(mock)
			}

			resp, body := get(t, proxy.URL+tt.path)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, resp.StatusCode, body)
			}
			if tt.wantBody != "" && !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("Expected body to contain %q, got %s", tt.wantBody, body)
			}
		})
	}
}

func TestUpstreamUnreachable(t *testing.T) {
	upstream, err := client.New(client.Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	if err != nil {
		t.Fatalf("Failed to create upstream client: %v", err)
	}

	store := cache.NewMemoryStore()
	repo := repository.New(store, zerolog.Nop())
	agg := aggregator.New(upstream, repo, aggregator.DefaultOptions(), zerolog.Nop())
	pages := server.New(repo, upstream, agg, server.DefaultConfig(), zerolog.Nop())

	w := httptest.NewRecorder()
	newHandler(pages, store, 5*time.Second).ServeHTTP(w, httptest.NewRequest("GET", "/categories", nil))

	if w.Code != http.StatusBadGateway {
		t.Fatalf("Expected status 502, got %d", w.Code)
	}

	var payload errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("Expected JSON error body: %v", err)
	}
	if payload.Status != http.StatusBadGateway || payload.Message == "" {
		t.Errorf("Unexpected error body %+v", payload)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	proxy, mock := newTestProxy(t)
	seed(mock)

	// Exercise the stack so labelled series exist.
	get(t, proxy.URL+"/categories")

	resp, body := get(t, proxy.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	for _, name := range []string{
		"catalog_upstream_requests_total",
		"catalog_extensions_total",
		"catalog_page_requests_total",
		"catalog_repository_merges_total",
	} {
		if !strings.Contains(bodyStr, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}
