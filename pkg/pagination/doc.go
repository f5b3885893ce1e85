// Package pagination provides page arithmetic for the catalog and a bounded
// worker pool for per-entity work on a page.
//
// The upstream provider addresses pages by offset and limit while clients
// ask for 1-indexed pages of fixed size:
//
//	offset := pagination.Offset(page, pagination.PageSize)
//
// The pool runs one task per index with a fixed number of workers. Task
// failures are isolated: each index gets its own error slot.
//
//	pool := pagination.NewPool(pagination.DefaultConfig())
//	errs := pool.Run(ctx, len(products), func(ctx context.Context, i int) error {
//		return extend(ctx, products[i])
//	})
package pagination
