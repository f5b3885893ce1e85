// Package server answers page requests from the catalog cache.
//
// A page request is served from the cache when the cached collection covers
// it. Otherwise the missing range is fetched from the upstream provider,
// extended, merged and then served from the cache. After a products page
// has been computed, the next page and the offers of the served products are
// prefetched in the background.
//
// A products collection only grows as a prefix of the upstream listing. A
// page further than MaxFill products past the cached prefix is served from
// an uncached window while the prefix fills in the background.
package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-cache/pkg/aggregator"
	"github.com/Sternrassler/catalog-cache/pkg/cache"
	"github.com/Sternrassler/catalog-cache/pkg/catalog"
	"github.com/Sternrassler/catalog-cache/pkg/client"
	"github.com/Sternrassler/catalog-cache/pkg/pagination"
	"github.com/Sternrassler/catalog-cache/pkg/repository"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound is returned when a requested id is not cached.
	ErrNotFound = repository.ErrNotFound

	// ErrInvalidPage is returned for page numbers below pagination.FirstPage.
	ErrInvalidPage = pagination.ErrInvalidPage
)

// Repository is the cache access the server needs.
type Repository interface {
	HasFullCollection(ctx context.Context, key cache.CollectionKey) (bool, error)
	Len(ctx context.Context, key cache.CollectionKey) (int, error)
	Categories(ctx context.Context) ([]catalog.Category, error)
	Category(ctx context.Context, categoryID int) (catalog.Category, error)
	ProductSlice(ctx context.Context, categoryID, offset, limit int) ([]catalog.Product, error)
	FindProduct(ctx context.Context, productID int) (catalog.Product, error)
	Offers(ctx context.Context, productID int) ([]catalog.Offer, error)
	MergeOffers(ctx context.Context, offers ...catalog.Offer) (int, error)
}

// Extender extends and merges batches of base entities.
type Extender interface {
	ExtendCategories(ctx context.Context, categories []catalog.Category) ([]catalog.Category, error)
	ExtendProducts(ctx context.Context, products []catalog.Product) ([]catalog.Product, error)
	PreviewProducts(ctx context.Context, products []catalog.Product) ([]catalog.Product, error)
}

// Config holds the page server configuration.
type Config struct {
	// PageSize is the number of products per page.
	PageSize int

	// PrefetchConcurrency bounds the prefetch tasks running at once.
	PrefetchConcurrency int64

	// PrefetchTimeout bounds the wait of a prefetch task for a free slot, and
	// separately the run of the task.
	PrefetchTimeout time.Duration

	// FetchTimeout bounds an upstream fetch shared by concurrent callers.
	FetchTimeout time.Duration

	// MaxFill is the most products one fetch appends to a collection.
	MaxFill int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:            pagination.PageSize,
		PrefetchConcurrency: 8,
		PrefetchTimeout:     30 * time.Second,
		FetchTimeout:        90 * time.Second,
		MaxFill:             10 * pagination.PageSize,
	}
}

// Server is the request-facing orchestrator over repository, upstream and
// aggregator.
type Server struct {
	repo     Repository
	upstream client.Upstream
	extender Extender
	config   Config
	logger   zerolog.Logger

	flights  singleflight.Group
	prefetch *semaphore.Weighted
	inFlight sync.WaitGroup
}

// New creates a page server.
func New(repo Repository, upstream client.Upstream, extender Extender, config Config, logger zerolog.Logger) *Server {
	if config.PageSize <= 0 {
		config.PageSize = pagination.PageSize
	}
	if config.PrefetchConcurrency <= 0 {
		config.PrefetchConcurrency = 1
	}
	if config.PrefetchTimeout <= 0 {
		config.PrefetchTimeout = DefaultConfig().PrefetchTimeout
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultConfig().FetchTimeout
	}
	if config.MaxFill < config.PageSize {
		config.MaxFill = max(DefaultConfig().MaxFill, config.PageSize)
	}

	return &Server{
		repo:     repo,
		upstream: upstream,
		extender: extender,
		config:   config,
		logger:   logger.With().Str("component", "page-server").Logger(),
		prefetch: semaphore.NewWeighted(config.PrefetchConcurrency),
	}
}

// GetCategoriesPage returns every category. On the first call the categories
// are fetched and extended; categories whose extension fails are skipped.
// The call fails only when no category could be extended.
func (s *Server) GetCategoriesPage(ctx context.Context) ([]catalog.Category, error) {
	if err := s.ensureCategories(ctx); err != nil {
		return nil, err
	}
	return s.repo.Categories(ctx)
}

func (s *Server) ensureCategories(ctx context.Context) error {
	full, err := s.repo.HasFullCollection(ctx, cache.CategoriesKey())
	if err != nil {
		return err
	}
	if full {
		pageRequestsTotal.WithLabelValues("categories", "hit").Inc()
		return nil
	}
	pageRequestsTotal.WithLabelValues("categories", "miss").Inc()

	_, _, err = s.share(ctx, cache.CategoriesKey().String(), func(ctx context.Context) (any, error) {
		return nil, s.loadCategories(ctx)
	})
	return err
}

// share runs fn once for all concurrent callers of key. fn runs without the
// caller's cancellation, bounded by FetchTimeout; a caller whose ctx ends
// stops waiting and gets ctx.Err().
func (s *Server) share(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, bool, error) {
	ch := s.flights.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.FetchTimeout)
		defer cancel()
		return fn(fctx)
	})

	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (s *Server) loadCategories(ctx context.Context) error {
	base, err := s.upstream.FetchCategories(ctx)
	if err != nil {
		return fmt.Errorf("fetch categories: %w", err)
	}

	extended, err := s.extender.ExtendCategories(ctx, base)
	if err != nil {
		var batchErr *aggregator.BatchError
		if !errors.As(err, &batchErr) || batchErr.AllFailed() {
			return err
		}
		for _, f := range batchErr.Failures {
			s.logger.Warn().
				Err(f.Err).
				Int("category_id", f.ID).
				Msg("Skipped category whose extension failed")
		}
	}

	s.logger.Info().
		Int("fetched", len(base)).
		Int("extended", len(extended)).
		Msg("Loaded categories")
	return nil
}

// GetProductsPage returns the products of page (1-indexed) of a category.
// The category must be listed upstream; ErrNotFound otherwise.
func (s *Server) GetProductsPage(ctx context.Context, categoryID, page int) ([]catalog.Product, error) {
	if err := pagination.ValidatePage(page); err != nil {
		return nil, err
	}

	if err := s.ensureCategories(ctx); err != nil {
		return nil, err
	}
	category, err := s.repo.Category(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	offset := pagination.Offset(page, s.config.PageSize)
	products, err := s.productsPage(ctx, category, offset, s.config.PageSize)
	if err != nil {
		return nil, err
	}

	if next := offset + s.config.PageSize; next < category.ProductCount {
		s.spawn("products_page", func(ctx context.Context) error {
			return s.fill(ctx, category, next+s.config.PageSize)
		})
	}
	for _, p := range products {
		s.spawn("offers", func(ctx context.Context) error {
			return s.prefetchOffers(ctx, p)
		})
	}

	return products, nil
}

// productsPage serves [offset, offset+limit) of a category's products,
// fetching the uncovered part first.
func (s *Server) productsPage(ctx context.Context, category catalog.Category, offset, limit int) ([]catalog.Product, error) {
	key := cache.ProductsKey(category.CategoryID)

	cachedLen, err := s.repo.Len(ctx, key)
	if err != nil {
		return nil, err
	}

	if category.ProductCount <= cachedLen || repository.Covers(cachedLen, offset, limit) {
		pageRequestsTotal.WithLabelValues("products", "hit").Inc()
		return s.repo.ProductSlice(ctx, category.CategoryID, offset, limit)
	}
	pageRequestsTotal.WithLabelValues("products", "miss").Inc()

	end := offset + limit
	if min(end, category.ProductCount)-cachedLen > s.config.MaxFill {
		s.logger.Debug().
			Int("category_id", category.CategoryID).
			Int("cached", cachedLen).
			Int("offset", offset).
			Msg("Serving deep page from an uncached window")
		s.spawn("products_fill", func(ctx context.Context) error {
			return s.fill(ctx, category, end)
		})
		return s.window(ctx, category, offset, limit)
	}

	if err := s.fill(ctx, category, end); err != nil {
		return nil, err
	}
	return s.repo.ProductSlice(ctx, category.CategoryID, offset, limit)
}

// fill grows the products collection of category until it holds end
// products or the whole listing, at most MaxFill products per fetch. Every
// fetch starts at the cached length so the collection stays a gap-free
// prefix of the upstream listing.
func (s *Server) fill(ctx context.Context, category catalog.Category, end int) error {
	key := cache.ProductsKey(category.CategoryID)

	for {
		cachedLen, err := s.repo.Len(ctx, key)
		if err != nil {
			return err
		}
		if cachedLen >= end || cachedLen >= category.ProductCount {
			return nil
		}

		start, stop := cachedLen, min(end, cachedLen+s.config.MaxFill)
		flight := key.String() + ":" + strconv.Itoa(start) + ":" + strconv.Itoa(stop)

		_, shared, err := s.share(ctx, flight, func(ctx context.Context) (any, error) {
			return nil, s.fetchProducts(ctx, category.CategoryID, start, stop-start)
		})
		if err != nil {
			return err
		}
		if shared {
			s.logger.Debug().Str("flight", flight).Msg("Joined in-flight products fetch")
		}

		grown, err := s.repo.Len(ctx, key)
		if err != nil {
			return err
		}
		// The listing ended before its advertised count.
		if grown <= cachedLen {
			return nil
		}
	}
}

// window fetches and extends [offset, offset+limit) without merging the
// products into the collection.
func (s *Server) window(ctx context.Context, category catalog.Category, offset, limit int) ([]catalog.Product, error) {
	flight := "window:" + cache.ProductsKey(category.CategoryID).String() + ":" + strconv.Itoa(offset) + ":" + strconv.Itoa(limit)

	v, _, err := s.share(ctx, flight, func(ctx context.Context) (any, error) {
		base, err := s.upstream.FetchProducts(ctx, category.CategoryID, offset, limit)
		if err != nil {
			return nil, fmt.Errorf("fetch products of category %d: %w", category.CategoryID, err)
		}
		return s.extender.PreviewProducts(ctx, base)
	})
	if err != nil {
		return nil, err
	}
	return nonNil(v.([]catalog.Product)), nil
}

func (s *Server) fetchProducts(ctx context.Context, categoryID, offset, limit int) error {
	base, err := s.upstream.FetchProducts(ctx, categoryID, offset, limit)
	if err != nil {
		return fmt.Errorf("fetch products of category %d: %w", categoryID, err)
	}

	extended, err := s.extender.ExtendProducts(ctx, base)
	if err != nil {
		return err
	}

	s.logger.Info().
		Int("category_id", categoryID).
		Int("offset", offset).
		Int("limit", limit).
		Int("extended", len(extended)).
		Msg("Fetched products")
	return nil
}

// prefetchOffers warms the first offers of p unless they are cached already.
func (s *Server) prefetchOffers(ctx context.Context, p catalog.Product) error {
	want := min(aggregator.SampleSize, p.OfferCount)
	cachedLen, err := s.repo.Len(ctx, cache.OffersKey(p.ProductID))
	if err != nil {
		return err
	}
	if repository.Covers(cachedLen, 0, want) {
		return nil
	}

	offers, err := s.upstream.FetchOffers(ctx, p.ProductID, 0, aggregator.SampleSize)
	if err != nil {
		return err
	}
	_, err = s.repo.MergeOffers(ctx, offers...)
	return err
}

// GetProductDetail returns a cached product with its category title and all
// of its offers. Offers missing from the cache are fetched and merged first.
func (s *Server) GetProductDetail(ctx context.Context, productID int) (catalog.ProductDetail, []catalog.Offer, error) {
	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		return catalog.ProductDetail{}, nil, err
	}
	category, err := s.repo.Category(ctx, product.CategoryID)
	if err != nil {
		return catalog.ProductDetail{}, nil, err
	}
	detail := catalog.ProductDetail{Product: product, CategoryTitle: category.Title}

	offers, err := s.repo.Offers(ctx, productID)
	if err != nil {
		return catalog.ProductDetail{}, nil, err
	}

	missing := product.OfferCount - len(offers)
	if missing <= 0 {
		pageRequestsTotal.WithLabelValues("offers", "hit").Inc()
		return detail, nonNil(offers), nil
	}
	pageRequestsTotal.WithLabelValues("offers", "miss").Inc()

	fetched, err := s.upstream.FetchOffers(ctx, productID, len(offers), missing)
	if err != nil {
		return catalog.ProductDetail{}, nil, fmt.Errorf("fetch offers of product %d: %w", productID, err)
	}
	if _, err := s.repo.MergeOffers(ctx, fetched...); err != nil {
		return catalog.ProductDetail{}, nil, err
	}

	s.logger.Debug().
		Int("product_id", productID).
		Int("cached", len(offers)).
		Int("fetched", len(fetched)).
		Msg("Completed product offers")

	// Re-read so concurrent completions of the same product stay deduplicated.
	offers, err = s.repo.Offers(ctx, productID)
	if err != nil {
		return catalog.ProductDetail{}, nil, err
	}
	return detail, nonNil(offers), nil
}

// spawn runs task in the background. A task waits up to PrefetchTimeout for
// a free slot and is dropped otherwise; once running it has its own
// PrefetchTimeout. Prefetch failures are logged and counted, never retried
// and never reported to the request that caused them.
func (s *Server) spawn(kind string, task func(ctx context.Context) error) {
	s.inFlight.Add(1)
	prefetchInFlight.Inc()

	go func() {
		defer s.inFlight.Done()
		defer prefetchInFlight.Dec()

		waitCtx, cancelWait := context.WithTimeout(context.Background(), s.config.PrefetchTimeout)
		err := s.prefetch.Acquire(waitCtx, 1)
		cancelWait()
		if err != nil {
			prefetchTasksTotal.WithLabelValues(kind, "dropped").Inc()
			s.logger.Warn().Err(err).Str("kind", kind).Msg("Dropped prefetch task")
			return
		}
		defer s.prefetch.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), s.config.PrefetchTimeout)
		defer cancel()

		if err := task(ctx); err != nil {
			prefetchTasksTotal.WithLabelValues(kind, "failed").Inc()
			s.logger.Warn().Err(err).Str("kind", kind).Msg("Prefetch failed")
			return
		}
		prefetchTasksTotal.WithLabelValues(kind, "ok").Inc()
	}()
}

// Wait blocks until every prefetch task started so far has finished.
func (s *Server) Wait() {
	s.inFlight.Wait()
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
