package cache

import (
	"strconv"
)

// Kind identifies a collection family.
type Kind string

const (
	// KindCategories is the single top level collection of all categories.
	KindCategories Kind = "categories"

	// KindProducts holds the products of one category.
	KindProducts Kind = "products"

	// KindOffers holds the offers of one product.
	KindOffers Kind = "offers"
)

// CollectionKey addresses one cached collection.
type CollectionKey struct {
	Kind Kind

	// ParentID is the owning category (KindProducts) or product (KindOffers).
	// Ignored for KindCategories.
	ParentID int
}

// CategoriesKey returns the key of the category collection.
func CategoriesKey() CollectionKey {
	return CollectionKey{Kind: KindCategories}
}

// ProductsKey returns the key of a category's product collection.
func ProductsKey(categoryID int) CollectionKey {
	return CollectionKey{Kind: KindProducts, ParentID: categoryID}
}

// OffersKey returns the key of a product's offer collection.
func OffersKey(productID int) CollectionKey {
	return CollectionKey{Kind: KindOffers, ParentID: productID}
}

// String generates the store key.
//
// Examples:
//
//	categories
//	category:7:products
//	product:42:offers
func (k CollectionKey) String() string {
	switch k.Kind {
	case KindCategories:
		return "categories"
	case KindProducts:
		return "category:" + strconv.Itoa(k.ParentID) + ":products"
	case KindOffers:
		return "product:" + strconv.Itoa(k.ParentID) + ":offers"
	default:
		return string(k.Kind) + ":" + strconv.Itoa(k.ParentID)
	}
}
