package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/catalog-cache/pkg/catalog"
	"github.com/Sternrassler/catalog-cache/pkg/client"
	"github.com/Sternrassler/catalog-cache/pkg/logging"
	"github.com/Sternrassler/catalog-cache/pkg/metrics"
	"github.com/Sternrassler/catalog-cache/pkg/server"
	"github.com/rs/zerolog"
)

// pageService is the page server as seen by the HTTP layer.
type pageService interface {
	GetCategoriesPage(ctx context.Context) ([]catalog.Category, error)
	GetProductsPage(ctx context.Context, categoryID, page int) ([]catalog.Product, error)
	GetProductDetail(ctx context.Context, productID int) (catalog.ProductDetail, []catalog.Offer, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// errorBody is the JSON error payload of the proxy itself.
type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type api struct {
	pages   pageService
	store   pinger
	timeout time.Duration
	logger  zerolog.Logger
}

func newHandler(pages pageService, store pinger, requestTimeout time.Duration) http.Handler {
	a := &api{
		pages:   pages,
		store:   store,
		timeout: requestTimeout,
		logger:  logging.NewLogger("http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/categories", http.StatusFound)
	})
	mux.HandleFunc("GET /categories", a.categoriesHandler)
	mux.HandleFunc("GET /categories/{categoryId}/{page}", a.productsHandler)
	mux.HandleFunc("GET /products/{productId}", a.productDetailHandler)
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", a.readyHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
	})
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (a *api) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.store.Ping(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Store not ready")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "Store not ready")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (a *api) categoriesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	categories, err := a.pages.GetCategoriesPage(ctx)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (a *api) productsHandler(w http.ResponseWriter, r *http.Request) {
	categoryID, err := pathInt(r, "categoryId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := pathInt(r, "page")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	products, err := a.pages.GetProductsPage(ctx, categoryID, page)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *api) productDetailHandler(w http.ResponseWriter, r *http.Request) {
	productID, err := pathInt(r, "productId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	detail, offers, err := a.pages.GetProductDetail(ctx, productID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, []any{detail, offers})
}

// fail maps err to a response. Upstream status failures are passed through
// with the upstream body.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, body, ok := client.AsFetchFailed(err); ok {
		a.logger.Warn().Err(err).Str("path", r.URL.Path).Int("status_code", status).Msg("Upstream failure passed through")
		if json.Valid(body) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		w.WriteHeader(status)
		w.Write(body)
		return
	}

	switch {
	case errors.Is(err, server.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, server.ErrInvalidPage):
		writeError(w, http.StatusBadRequest, err.Error())
	case client.IsTransport(err):
		a.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Upstream unreachable")
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		a.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func pathInt(r *http.Request, name string) (int, error) {
	raw := r.PathValue(name)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", name, raw)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Status: status, Message: message})
}
