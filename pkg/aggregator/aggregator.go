// Package aggregator extends base catalog entities with the attributes that
// need additional upstream calls, and merges the extended entities into the
// cache.
//
// Extension is all or nothing per entity: an entity whose sub-fetches do not
// all succeed is never merged, so every cached category and product carries
// its derived fields.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/catalog-cache/pkg/catalog"
	"github.com/Sternrassler/catalog-cache/pkg/client"
	"github.com/Sternrassler/catalog-cache/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SampleSize is how many children are fetched to derive a parent's attributes.
const SampleSize = 5

var extensionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "catalog_extensions_total",
	Help: "Total entity extensions by kind and outcome",
}, []string{"kind", "outcome"})

// Merger is the part of the repository the aggregator writes through.
type Merger interface {
	MergeCategories(ctx context.Context, categories ...catalog.Category) (int, error)
	MergeProducts(ctx context.Context, products ...catalog.Product) (int, error)
	MergeOffers(ctx context.Context, offers ...catalog.Offer) (int, error)
}

// Options configures an Aggregator.
type Options struct {
	// Concurrency bounds how many entities of one batch are extended at once.
	Concurrency int

	// Timeout bounds the extension of a single entity of a batch, 0 for none.
	Timeout time.Duration
}

// DefaultOptions returns options sized for one page.
func DefaultOptions() Options {
	return Options{
		Concurrency: pagination.PageSize,
		Timeout:     30 * time.Second,
	}
}

// Aggregator computes derived attributes and merges extended entities.
type Aggregator struct {
	upstream client.Upstream
	merger   Merger
	pool     *pagination.Pool
	logger   zerolog.Logger
}

// New creates an aggregator.
func New(upstream client.Upstream, merger Merger, opts Options, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		upstream: upstream,
		merger:   merger,
		pool: pagination.NewPool(pagination.Config{
			MaxConcurrency: opts.Concurrency,
			Timeout:        opts.Timeout,
		}),
		logger: logger.With().Str("component", "aggregator").Logger(),
	}
}

// ExtendProduct derives description, image, price range and offer count of
// p from its first offers, then merges the offers and the extended product.
func (a *Aggregator) ExtendProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	extended, err := a.extendProduct(ctx, p)
	if err != nil {
		return catalog.Product{}, err
	}

	if _, err := a.merger.MergeProducts(ctx, extended); err != nil {
		return catalog.Product{}, fmt.Errorf("merge product %d: %w", p.ProductID, err)
	}
	return extended, nil
}

// extendProduct computes the extended product without merging it. The sample
// offers are merged as soon as they arrive.
func (a *Aggregator) extendProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	var (
		offers     []catalog.Offer
		offerCount int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fetched, err := a.upstream.FetchOffers(gctx, p.ProductID, 0, SampleSize)
		if err != nil {
			return err
		}
		if _, err := a.merger.MergeOffers(gctx, fetched...); err != nil {
			return fmt.Errorf("merge offers: %w", err)
		}
		offers = fetched
		return nil
	})
	g.Go(func() error {
		n, err := a.upstream.FetchOfferCount(gctx, p.ProductID)
		if err != nil {
			return err
		}
		offerCount = n
		return nil
	})

	if err := g.Wait(); err != nil {
		extensionsTotal.WithLabelValues("product", "failed").Inc()
		return catalog.Product{}, fmt.Errorf("extend product %d: %w", p.ProductID, err)
	}

	applyOffers(&p, offers)
	p.OfferCount = offerCount

	extensionsTotal.WithLabelValues("product", "extended").Inc()
	a.logger.Debug().
		Int("product_id", p.ProductID).
		Int("offer_count", p.OfferCount).
		Stringer("min_price", p.MinPrice).
		Float64("max_price", p.MaxPrice).
		Msg("Extended product")

	return p, nil
}

// ExtendProducts extends a batch of products on the worker pool and returns
// the successful ones in batch order. On partial failure it returns the
// successes together with a *BatchError.
//
// The batch is expected to be a contiguous run of one category's listing.
// Product collections are addressed by position, so only the successes
// before the first failure are merged.
func (a *Aggregator) ExtendProducts(ctx context.Context, products []catalog.Product) ([]catalog.Product, error) {
	extended, leading, batchErr := a.extendProducts(ctx, products)

	if leading > 0 {
		if _, err := a.merger.MergeProducts(ctx, extended[:leading]...); err != nil {
			return nil, fmt.Errorf("merge products: %w", err)
		}
	}

	if batchErr != nil {
		return extended, batchErr
	}
	return extended, nil
}

// PreviewProducts extends a batch like ExtendProducts but never merges the
// products themselves. Their sample offers are still merged. It serves
// listing windows that do not continue the cached prefix.
func (a *Aggregator) PreviewProducts(ctx context.Context, products []catalog.Product) ([]catalog.Product, error) {
	extended, _, batchErr := a.extendProducts(ctx, products)
	if batchErr != nil {
		return extended, batchErr
	}
	return extended, nil
}

// extendProducts returns the successes in batch order, how many of them
// precede the first failure, and the failures if there are any.
func (a *Aggregator) extendProducts(ctx context.Context, products []catalog.Product) ([]catalog.Product, int, *BatchError) {
	results := make([]catalog.Product, len(products))
	errs := a.pool.Run(ctx, len(products), func(ctx context.Context, i int) error {
		extended, err := a.extendProduct(ctx, products[i])
		results[i] = extended
		return err
	})

	extended := make([]catalog.Product, 0, len(products))
	batchErr := &BatchError{Kind: "products", Total: len(products)}
	leading := 0
	for i, err := range errs {
		if err != nil {
			batchErr.Failures = append(batchErr.Failures, EntityError{ID: products[i].ProductID, Err: err})
			continue
		}
		extended = append(extended, results[i])
		if len(batchErr.Failures) == 0 {
			leading++
		}
	}

	if len(batchErr.Failures) == 0 {
		return extended, leading, nil
	}
	return extended, leading, batchErr
}

// ExtendCategory derives the representative image and product count of c,
// then merges the extended category. The sample products are extended and
// merged on the way.
func (a *Aggregator) ExtendCategory(ctx context.Context, c catalog.Category) (catalog.Category, error) {
	extended, err := a.extendCategory(ctx, c)
	if err != nil {
		return catalog.Category{}, err
	}

	if _, err := a.merger.MergeCategories(ctx, extended); err != nil {
		return catalog.Category{}, fmt.Errorf("merge category %d: %w", c.CategoryID, err)
	}
	return extended, nil
}

func (a *Aggregator) extendCategory(ctx context.Context, c catalog.Category) (catalog.Category, error) {
	var (
		imgURL       string
		productCount int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		base, err := a.upstream.FetchProducts(gctx, c.CategoryID, 0, SampleSize)
		if err != nil {
			return err
		}
		sample, err := a.ExtendProducts(gctx, base)
		if err != nil {
			return err
		}
		imgURL = SelectImage(sample)
		return nil
	})
	g.Go(func() error {
		n, err := a.upstream.FetchProductCount(gctx, c.CategoryID)
		if err != nil {
			return err
		}
		productCount = n
		return nil
	})

	if err := g.Wait(); err != nil {
		extensionsTotal.WithLabelValues("category", "failed").Inc()
		return catalog.Category{}, fmt.Errorf("extend category %d: %w", c.CategoryID, err)
	}

	c.ImgURL = imgURL
	c.ProductCount = productCount

	extensionsTotal.WithLabelValues("category", "extended").Inc()
	a.logger.Debug().
		Int("category_id", c.CategoryID).
		Int("product_count", c.ProductCount).
		Bool("has_image", c.ImgURL != "").
		Msg("Extended category")

	return c, nil
}

// ExtendCategories extends a batch of categories on the worker pool and
// merges the successful ones in batch order. On partial failure it returns
// the successes together with a *BatchError.
func (a *Aggregator) ExtendCategories(ctx context.Context, categories []catalog.Category) ([]catalog.Category, error) {
	results := make([]catalog.Category, len(categories))
	errs := a.pool.Run(ctx, len(categories), func(ctx context.Context, i int) error {
		extended, err := a.extendCategory(ctx, categories[i])
		results[i] = extended
		return err
	})

	extended := make([]catalog.Category, 0, len(categories))
	batchErr := &BatchError{Kind: "categories", Total: len(categories)}
	for i, err := range errs {
		if err != nil {
			batchErr.Failures = append(batchErr.Failures, EntityError{ID: categories[i].CategoryID, Err: err})
			continue
		}
		extended = append(extended, results[i])
	}

	// Written even when empty so the collection exists afterwards.
	if len(extended) > 0 || len(categories) == 0 {
		if _, err := a.merger.MergeCategories(ctx, extended...); err != nil {
			return nil, fmt.Errorf("merge categories: %w", err)
		}
	}

	if len(batchErr.Failures) > 0 {
		return extended, batchErr
	}
	return extended, nil
}
