package aggregator

import "github.com/Sternrassler/catalog-cache/pkg/catalog"

// SelectImage picks a category's representative image from its sample
// products: the image of the most expensive product that has one.
//
// The first image-bearing product is the initial leader whatever its
// MaxPrice; a later product takes over only with a strictly greater MaxPrice.
// Returns "" when no product has an image.
func SelectImage(products []catalog.Product) string {
	var leader *catalog.Product
	for i := range products {
		p := &products[i]
		if p.ImgURL == "" {
			continue
		}
		if leader == nil || p.MaxPrice > leader.MaxPrice {
			leader = p
		}
	}
	if leader == nil {
		return ""
	}
	return leader.ImgURL
}

// PriceRange returns the lowest and highest price among offers that carry a
// price. With no priced offer it returns (catalog.NoLowerBound, 0).
func PriceRange(offers []catalog.Offer) (minPrice catalog.LowerBound, maxPrice float64) {
	minPrice = catalog.NoLowerBound
	for _, o := range offers {
		if o.Price == nil {
			continue
		}
		price := *o.Price
		if catalog.LowerBound(price) < minPrice {
			minPrice = catalog.LowerBound(price)
		}
		if price > maxPrice {
			maxPrice = price
		}
	}
	return minPrice, maxPrice
}

// applyOffers fills the offer-derived fields of p from its sample offers.
func applyOffers(p *catalog.Product, offers []catalog.Offer) {
	p.MinPrice, p.MaxPrice = PriceRange(offers)

	p.Description = ""
	for _, o := range offers {
		if o.Description != "" {
			p.Description = o.Description
			break
		}
	}

	p.ImgURL = ""
	for _, o := range offers {
		if o.ImgURL != "" {
			p.ImgURL = o.ImgURL
			break
		}
	}
}
