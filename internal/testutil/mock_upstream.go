// Package testutil provides testing utilities for the catalog proxy.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-cache/pkg/catalog"
)

// MockResponse defines a canned response for a mock upstream path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable mock catalog provider for testing.
// It serves the categories, products and offers it was seeded with,
// honouring the /{offset}/{limit} suffix and the /count/ endpoints.
type MockUpstream struct {
	server *httptest.Server

	mu         sync.RWMutex
	categories []catalog.Category
	products   map[int][]catalog.Product
	offers     map[int][]catalog.Offer
	overrides  map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	requests []string
}

// NewMockUpstream creates and starts a mock provider.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		products:  make(map[int][]catalog.Product),
		offers:    make(map[int][]catalog.Offer),
		overrides: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests = append(mock.requests, r.URL.Path)
		handler, exists := mock.overrides[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// AddCategory seeds a category (base fields only are served).
func (m *MockUpstream) AddCategory(categoryID int, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories = append(m.categories, catalog.Category{CategoryID: categoryID, Title: title})
}

// AddProduct seeds a product of a category.
func (m *MockUpstream) AddProduct(categoryID, productID int, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[categoryID] = append(m.products[categoryID], catalog.Product{
		ProductID:  productID,
		CategoryID: categoryID,
		Title:      title,
	})
}

// AddOffer seeds an offer of a product.
func (m *MockUpstream) AddOffer(offer catalog.Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[offer.ProductID] = append(m.offers[offer.ProductID], offer)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockUpstream) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// Requests returns a copy of every requested path, in arrival order.
func (m *MockUpstream) Requests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.requests...)
}

// RequestCount returns how many times path was requested.
func (m *MockUpstream) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.requests {
		if p == path {
			n++
		}
	}
	return n
}

// TotalRequests returns the number of requests served.
func (m *MockUpstream) TotalRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Reset clears request tracking.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// defaultHandler serves the seeded catalog.
func (m *MockUpstream) defaultHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case len(parts) == 1 && parts[0] == "categories":
		writeJSON(w, m.categories)

	case len(parts) >= 2 && parts[0] == "products":
		categoryID, err := strconv.Atoi(parts[1])
		if err != nil {
			notFound(w)
			return
		}
		serveCollection(w, parts[2:], m.products[categoryID])

	case len(parts) >= 2 && parts[0] == "offers":
		productID, err := strconv.Atoi(parts[1])
		if err != nil {
			notFound(w)
			return
		}
		serveCollection(w, parts[2:], m.offers[productID])

	default:
		notFound(w)
	}
}

func serveCollection[T any](w http.ResponseWriter, rest []string, items []T) {
	switch {
	case len(rest) == 0:
		writeJSON(w, nonNil(items))

	case len(rest) == 1 && rest[0] == "count":
		writeJSON(w, map[string]int{"count": len(items)})

	case len(rest) == 2:
		offset, err1 := strconv.Atoi(rest[0])
		limit, err2 := strconv.Atoi(rest[1])
		if err1 != nil || err2 != nil || offset < 0 || limit < 0 {
			notFound(w)
			return
		}
		lo := min(offset, len(items))
		hi := min(offset+limit, len(items))
		writeJSON(w, nonNil(items[lo:hi]))

	default:
		notFound(w)
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error": "not found"}`))
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "Not found"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// Price returns a pointer to p, for seeding offers.
func Price(p float64) *float64 {
	return &p
}
