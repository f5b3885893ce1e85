// Package catalog defines the entities served by the catalog proxy.
package catalog

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// NoLowerBound is the MinPrice of a product for which no priced offer has
// been observed yet. It is not a real price.
var NoLowerBound = LowerBound(math.Inf(1))

// Entity is implemented by every cached catalog entity.
type Entity interface {
	Category | Product | Offer

	// Identity returns the id that is unique within the entity's collection.
	Identity() int
}

// Category is a top level catalog node.
type Category struct {
	CategoryID int    `json:"categoryId"`
	Title      string `json:"title"`

	// Derived by extension.
	ImgURL       string `json:"img_url"`
	ProductCount int    `json:"productCount"`
}

// Identity implements Entity.
func (c Category) Identity() int { return c.CategoryID }

// Product belongs to exactly one category.
type Product struct {
	ProductID  int    `json:"productId"`
	CategoryID int    `json:"categoryId"`
	Title      string `json:"title"`

	// Derived by extension from the product's first offers.
	Description string     `json:"description"`
	ImgURL      string     `json:"img_url"`
	MinPrice    LowerBound `json:"minPrice"`
	MaxPrice    float64    `json:"maxPrice"`
	OfferCount  int        `json:"offerCount"`
}

// Identity implements Entity.
func (p Product) Identity() int { return p.ProductID }

// Offer is a seller's offer for a product. Offers have no derived fields.
type Offer struct {
	OfferID     int    `json:"offerId"`
	ProductID   int    `json:"productId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImgURL      string `json:"img_url"`
	// Price is nil when the upstream omitted it.
	Price *float64 `json:"price"`
	URL   string   `json:"url"`
}

// Identity implements Entity.
func (o Offer) Identity() int { return o.OfferID }

// ProductDetail is a product together with its parent category's title.
type ProductDetail struct {
	Product
	CategoryTitle string `json:"categoryTitle"`
}

// LowerBound is a minimum price. The NoLowerBound sentinel is encoded as
// JSON null.
type LowerBound float64

// IsBounded reports whether a real price was observed.
func (b LowerBound) IsBounded() bool {
	return !math.IsInf(float64(b), 1)
}

// MarshalJSON implements json.Marshaler.
func (b LowerBound) MarshalJSON() ([]byte, error) {
	if !b.IsBounded() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(b))
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *LowerBound) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*b = NoLowerBound
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*b = LowerBound(f)
	return nil
}

// String renders the bound, "none" for NoLowerBound.
func (b LowerBound) String() string {
	if !b.IsBounded() {
		return "none"
	}
	return strconv.FormatFloat(float64(b), 'f', -1, 64)
}
