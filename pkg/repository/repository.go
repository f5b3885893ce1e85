// Package repository is the domain-aware layer over the catalog store.
//
// Collections are JSON arrays kept under their collection key. They only
// ever grow: merges append entities whose identity is not yet present and
// never modify or reorder existing entries.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/catalog-cache/pkg/cache"
	"github.com/Sternrassler/catalog-cache/pkg/catalog"
	"github.com/rs/zerolog"
)

// Repository wraps a cache.Store with existence checks, idempotent merges and
// slice retrieval. Merges are serialized per collection key.
type Repository struct {
	store  cache.Store
	locks  *keyLocks
	logger zerolog.Logger
}

// New creates a repository over store.
func New(store cache.Store, logger zerolog.Logger) *Repository {
	if store == nil {
		panic("store cannot be nil")
	}
	return &Repository{
		store:  store,
		locks:  newKeyLocks(),
		logger: logger.With().Str("component", "repository").Logger(),
	}
}

// load reads and decodes the collection under key.
// found is false when the key was never written.
func load[T catalog.Entity](ctx context.Context, store cache.Store, key string) (items []T, found bool, err error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load %s: %w", key, err)
	}

	if err := json.Unmarshal(data, &items); err != nil {
		repositoryCorruptionsTotal.Inc()
		return nil, true, &CorruptionError{Key: key, Err: err}
	}
	return items, true, nil
}

// merge appends the items whose identity is not yet present under key.
// It returns the number of appended items.
func merge[T catalog.Entity](ctx context.Context, r *Repository, key cache.CollectionKey, items []T) (int, error) {
	k := key.String()

	unlock := r.locks.lock(k)
	defer unlock()

	existing, _, err := load[T](ctx, r.store, k)
	if err != nil {
		return 0, err
	}

	seen := make(map[int]struct{}, len(existing)+len(items))
	for _, item := range existing {
		seen[item.Identity()] = struct{}{}
	}

	merged := existing
	for _, item := range items {
		id := item.Identity()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, item)
	}

	appended := len(merged) - len(existing)
	repositoryMergesTotal.WithLabelValues(string(key.Kind)).Inc()

	if appended == 0 && existing != nil {
		r.logger.Debug().Str("key", k).Int("offered", len(items)).Msg("Merge was a no-op")
		return 0, nil
	}

	// A merge of nothing into an absent key still creates the collection.
	if merged == nil {
		merged = []T{}
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", k, err)
	}
	if err := r.store.Set(ctx, k, data); err != nil {
		return 0, fmt.Errorf("store %s: %w", k, err)
	}

	repositoryAppendedTotal.WithLabelValues(string(key.Kind)).Add(float64(appended))
	r.logger.Debug().
		Str("key", k).
		Int("appended", appended).
		Int("length", len(merged)).
		Msg("Merged collection")

	return appended, nil
}

// groupByParent splits items into per-collection batches, keeping the order
// in which parents first appear and the order of items within each parent.
func groupByParent[T catalog.Entity](items []T, parent func(T) int) (order []int, groups map[int][]T) {
	groups = make(map[int][]T)
	for _, item := range items {
		p := parent(item)
		if _, ok := groups[p]; !ok {
			order = append(order, p)
		}
		groups[p] = append(groups[p], item)
	}
	return order, groups
}

// MergeCategories merges categories into the categories collection.
func (r *Repository) MergeCategories(ctx context.Context, categories ...catalog.Category) (int, error) {
	return merge(ctx, r, cache.CategoriesKey(), categories)
}

// MergeProducts merges products into the collections of their categories.
func (r *Repository) MergeProducts(ctx context.Context, products ...catalog.Product) (int, error) {
	order, groups := groupByParent(products, func(p catalog.Product) int { return p.CategoryID })

	total := 0
	for _, categoryID := range order {
		n, err := merge(ctx, r, cache.ProductsKey(categoryID), groups[categoryID])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// MergeOffers merges offers into the collections of their products.
func (r *Repository) MergeOffers(ctx context.Context, offers ...catalog.Offer) (int, error) {
	order, groups := groupByParent(offers, func(o catalog.Offer) int { return o.ProductID })

	total := 0
	for _, productID := range order {
		n, err := merge(ctx, r, cache.OffersKey(productID), groups[productID])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// HasFullCollection reports whether key has ever been written.
func (r *Repository) HasFullCollection(ctx context.Context, key cache.CollectionKey) (bool, error) {
	_, err := r.store.Get(ctx, key.String())
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return false, nil
		}
		return false, fmt.Errorf("check %s: %w", key, err)
	}
	return true, nil
}

// Len returns the cached length of the collection under key, 0 if absent.
func (r *Repository) Len(ctx context.Context, key cache.CollectionKey) (int, error) {
	switch key.Kind {
	case cache.KindCategories:
		items, _, err := load[catalog.Category](ctx, r.store, key.String())
		return len(items), err
	case cache.KindProducts:
		items, _, err := load[catalog.Product](ctx, r.store, key.String())
		return len(items), err
	case cache.KindOffers:
		items, _, err := load[catalog.Offer](ctx, r.store, key.String())
		return len(items), err
	default:
		return 0, fmt.Errorf("unknown collection kind %q", key.Kind)
	}
}

// HasCoveredRange reports whether every index in [offset, offset+limit) is
// cached under key.
func (r *Repository) HasCoveredRange(ctx context.Context, key cache.CollectionKey, offset, limit int) (bool, error) {
	n, err := r.Len(ctx, key)
	if err != nil {
		return false, err
	}
	return Covers(n, offset, limit), nil
}

// Covers reports whether a collection of length n holds [offset, offset+limit).
func Covers(n, offset, limit int) bool {
	return n >= offset+limit
}

// window clamps [offset, offset+limit) to a collection of length n.
func window(n, offset, limit int) (lo, hi int) {
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	lo = min(offset, n)
	hi = min(offset+limit, n)
	return lo, hi
}

func slice[T catalog.Entity](items []T, offset, limit int) []T {
	lo, hi := window(len(items), offset, limit)
	out := make([]T, hi-lo)
	copy(out, items[lo:hi])
	return out
}

// Categories returns every cached category in insertion order.
func (r *Repository) Categories(ctx context.Context) ([]catalog.Category, error) {
	items, _, err := load[catalog.Category](ctx, r.store, cache.CategoriesKey().String())
	return items, err
}

// Category returns the cached category with the given id.
func (r *Repository) Category(ctx context.Context, categoryID int) (catalog.Category, error) {
	categories, err := r.Categories(ctx)
	if err != nil {
		return catalog.Category{}, err
	}
	for _, c := range categories {
		if c.CategoryID == categoryID {
			return c, nil
		}
	}
	return catalog.Category{}, fmt.Errorf("category %d: %w", categoryID, ErrNotFound)
}

// CategoryExists reports whether the category is cached.
func (r *Repository) CategoryExists(ctx context.Context, categoryID int) (bool, error) {
	_, err := r.Category(ctx, categoryID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Products returns every cached product of a category.
func (r *Repository) Products(ctx context.Context, categoryID int) ([]catalog.Product, error) {
	items, _, err := load[catalog.Product](ctx, r.store, cache.ProductsKey(categoryID).String())
	return items, err
}

// ProductSlice returns the cached products of a category in
// [offset, offset+limit), truncated to what is cached.
func (r *Repository) ProductSlice(ctx context.Context, categoryID, offset, limit int) ([]catalog.Product, error) {
	items, err := r.Products(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	return slice(items, offset, limit), nil
}

// ProductExists reports whether the product is cached in its category.
func (r *Repository) ProductExists(ctx context.Context, categoryID, productID int) (bool, error) {
	products, err := r.Products(ctx, categoryID)
	if err != nil {
		return false, err
	}
	for _, p := range products {
		if p.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

// FindProduct looks the product up across every cached category.
func (r *Repository) FindProduct(ctx context.Context, productID int) (catalog.Product, error) {
	categories, err := r.Categories(ctx)
	if err != nil {
		return catalog.Product{}, err
	}
	for _, c := range categories {
		products, err := r.Products(ctx, c.CategoryID)
		if err != nil {
			return catalog.Product{}, err
		}
		for _, p := range products {
			if p.ProductID == productID {
				return p, nil
			}
		}
	}
	return catalog.Product{}, fmt.Errorf("product %d: %w", productID, ErrNotFound)
}

// Offers returns every cached offer of a product.
func (r *Repository) Offers(ctx context.Context, productID int) ([]catalog.Offer, error) {
	items, _, err := load[catalog.Offer](ctx, r.store, cache.OffersKey(productID).String())
	return items, err
}

// OfferSlice returns the cached offers of a product in [offset, offset+limit).
func (r *Repository) OfferSlice(ctx context.Context, productID, offset, limit int) ([]catalog.Offer, error) {
	items, err := r.Offers(ctx, productID)
	if err != nil {
		return nil, err
	}
	return slice(items, offset, limit), nil
}

// OfferExists reports whether the offer is cached for its product.
func (r *Repository) OfferExists(ctx context.Context, productID, offerID int) (bool, error) {
	offers, err := r.Offers(ctx, productID)
	if err != nil {
		return false, err
	}
	for _, o := range offers {
		if o.OfferID == offerID {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes a whole collection. Administrative use only.
func (r *Repository) Delete(ctx context.Context, key cache.CollectionKey) error {
	k := key.String()

	unlock := r.locks.lock(k)
	defer unlock()

	if err := r.store.Delete(ctx, k); err != nil {
		return fmt.Errorf("delete %s: %w", k, err)
	}
	r.logger.Info().Str("key", k).Msg("Deleted collection")
	return nil
}
