// Package cache provides the byte-oriented key/value store the catalog
// proxy keeps its collections in.
//
// The store has no domain knowledge: values are opaque byte slices addressed
// by a string key. Two backends are provided:
//
//   - RedisStore keeps collections in Redis under a configurable prefix
//   - MemoryStore keeps collections in process memory (tests, single node)
//
// Entries never expire and are never evicted. Delete exists only as an
// administrative primitive.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	store := cache.NewRedisStore(redisClient, "catalog:")
//
//	key := cache.ProductsKey(42)
//
//	data, err := store.Get(ctx, key.String())
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// collection was never written
//	}
//
// # Collection Keys
//
// CollectionKey renders the three collection families:
//
//	categories
//	category:<categoryId>:products
//	product:<productId>:offers
//
// # Metrics
//
// Both backends export Prometheus metrics:
//
//   - catalog_cache_hits_total{backend} - Store hits
//   - catalog_cache_misses_total{backend} - Store misses
//   - catalog_cache_written_bytes_total{backend} - Bytes written
//   - catalog_cache_errors_total{backend,operation} - Store operation errors
package cache
