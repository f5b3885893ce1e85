package pagination

import (
	"errors"
	"fmt"
)

// PageSize is the number of items on one client page.
const PageSize = 5

// FirstPage is the number of the first page.
const FirstPage = 1

// ErrInvalidPage is returned for page numbers below FirstPage.
var ErrInvalidPage = errors.New("invalid page")

// ValidatePage checks that page is addressable.
func ValidatePage(page int) error {
	if page < FirstPage {
		return fmt.Errorf("%w: %d (pages start at %d)", ErrInvalidPage, page, FirstPage)
	}
	return nil
}

// Offset returns the index of the first item of page.
func Offset(page, size int) int {
	return (page - 1) * size
}
