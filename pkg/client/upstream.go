package client

import (
	"context"

	"github.com/Sternrassler/catalog-cache/pkg/catalog"
)

// Upstream is the paginated catalog provider. Every operation performs at
// most one upstream call and returns a *TransportError or *StatusError on
// failure.
type Upstream interface {
	FetchCategories(ctx context.Context) ([]catalog.Category, error)
	FetchProducts(ctx context.Context, categoryID, offset, limit int) ([]catalog.Product, error)
	FetchProductCount(ctx context.Context, categoryID int) (int, error)
	FetchOffers(ctx context.Context, productID, offset, limit int) ([]catalog.Offer, error)
	FetchOfferCount(ctx context.Context, productID int) (int, error)
}

var (
	_ Upstream = (*Client)(nil)
	_ Upstream = (*Retrying)(nil)
)
