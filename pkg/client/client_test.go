package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-cache/internal/testutil"
	"github.com/Sternrassler/catalog-cache/pkg/catalog"
)

func newTestClient(t *testing.T, mock *testutil.MockUpstream) *Client {
	t.Helper()
	c, err := New(DefaultConfig(mock.URL()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("http://provider:5000"),
			expectError: false,
		},
		{
			name:        "empty base url",
			config:      Config{Timeout: time.Second},
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "unsupported scheme",
			config:      Config{BaseURL: "ftp://provider", Timeout: time.Second},
			expectError: true,
			errorMsg:    `base url must be http or https (got "ftp://provider")`,
		},
		{
			name:        "zero timeout",
			config:      Config{BaseURL: "http://provider:5000"},
			expectError: true,
			errorMsg:    "timeout must be positive (got 0s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
					return
				}
				if client == nil {
					t.Error("Client is nil")
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("http://provider:5000")

	if cfg.BaseURL != "http://provider:5000" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		t.Error("UserAgent should have a default")
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
}

func TestClient_FetchCategories(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.AddCategory(1, "Books")
	mock.AddCategory(2, "Music")

	c := newTestClient(t, mock)

	categories, err := c.FetchCategories(context.Background())
	if err != nil {
		t.Fatalf("FetchCategories() error = %v", err)
	}
	if len(categories) != 2 {
		t.Fatalf("len = %d, want 2", len(categories))
	}
	if categories[0].CategoryID != 1 || categories[0].Title != "Books" {
		t.Errorf("categories[0] = %+v", categories[0])
	}
	if mock.RequestCount("/categories/") != 1 {
		t.Errorf("requests = %v", mock.Requests())
	}
}

func TestClient_FetchProducts_Paged(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	for id := 1; id <= 7; id++ {
		mock.AddProduct(3, id, "p")
	}

	c := newTestClient(t, mock)

	products, err := c.FetchProducts(context.Background(), 3, 5, 5)
	if err != nil {
		t.Fatalf("FetchProducts() error = %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("len = %d, want 2", len(products))
	}
	if products[0].ProductID != 6 || products[0].CategoryID != 3 {
		t.Errorf("products[0] = %+v", products[0])
	}
	if products[0].MinPrice.IsBounded() {
		t.Error("base products must start with no lower bound")
	}
	if mock.RequestCount("/products/3/5/5") != 1 {
		t.Errorf("requests = %v", mock.Requests())
	}
}

func TestClient_FetchProducts_Unpaged(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.AddProduct(3, 1, "p")

	c := newTestClient(t, mock)

	if _, err := c.FetchProducts(context.Background(), 3, 0, 0); err != nil {
		t.Fatalf("FetchProducts() error = %v", err)
	}
	if mock.RequestCount("/products/3") != 1 {
		t.Errorf("requests = %v", mock.Requests())
	}
}

func TestClient_Counts(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	for id := 1; id <= 12; id++ {
		mock.AddProduct(1, id, "p")
	}
	mock.AddOffer(catalog.Offer{OfferID: 1, ProductID: 4, Price: testutil.Price(3)})
	mock.AddOffer(catalog.Offer{OfferID: 2, ProductID: 4})

	c := newTestClient(t, mock)
	ctx := context.Background()

	productCount, err := c.FetchProductCount(ctx, 1)
	if err != nil {
		t.Fatalf("FetchProductCount() error = %v", err)
	}
	if productCount != 12 {
		t.Errorf("productCount = %d, want 12", productCount)
	}

	offerCount, err := c.FetchOfferCount(ctx, 4)
	if err != nil {
		t.Fatalf("FetchOfferCount() error = %v", err)
	}
	if offerCount != 2 {
		t.Errorf("offerCount = %d, want 2", offerCount)
	}
}

func TestClient_FetchOffers(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.AddOffer(catalog.Offer{OfferID: 1, ProductID: 4, Title: "a", ImgURL: "a.png", Price: testutil.Price(30), URL: "http://shop/a"})
	mock.AddOffer(catalog.Offer{OfferID: 2, ProductID: 4, Title: "b"})

	c := newTestClient(t, mock)

	offers, err := c.FetchOffers(context.Background(), 4, 0, 5)
	if err != nil {
		t.Fatalf("FetchOffers() error = %v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("len = %d, want 2", len(offers))
	}
	if offers[0].Price == nil || *offers[0].Price != 30 {
		t.Errorf("offers[0].Price = %v", offers[0].Price)
	}
	if offers[0].ImgURL != "a.png" || offers[0].URL != "http://shop/a" {
		t.Errorf("offers[0] = %+v", offers[0])
	}
	if offers[1].Price != nil {
		t.Errorf("missing price should decode as nil, got %v", *offers[1].Price)
	}
}

func TestClient_StatusError(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/products/9/count/", testutil.NewServerErrorResponse())

	c := newTestClient(t, mock)

	_, err := c.FetchProductCount(context.Background(), 9)
	if err == nil {
		t.Fatal("expected error")
	}

	status, body, ok := AsFetchFailed(err)
	if !ok {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", status)
	}
	if string(body) != `{"error": "Internal server error"}` {
		t.Errorf("body = %s", body)
	}
}

func TestClient_TransportError(t *testing.T) {
	mock := testutil.NewMockUpstream()
	c := newTestClient(t, mock)
	mock.Close() // nothing listens anymore

	_, err := c.FetchCategories(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransport(err) {
		t.Errorf("expected TransportError, got %T: %v", err, err)
	}
	if _, _, ok := AsFetchFailed(err); ok {
		t.Error("transport failures carry no status")
	}
}

func TestClient_DecodeErrorIsTransport(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/categories/", testutil.MockResponse{StatusCode: http.StatusOK, Body: "not json"})

	c := newTestClient(t, mock)

	_, err := c.FetchCategories(context.Background())
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/categories/", testutil.MockResponse{StatusCode: http.StatusOK, Body: "[]", Delay: 200 * time.Millisecond})

	c := newTestClient(t, mock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchCategories(ctx)
	if !IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded in chain, got %v", err)
	}
}
