package query

import (
	"fmt"
	"strings"
)

const (
	// FoodIDPrefix is the prefix every catalog identifier carries.
	FoodIDPrefix = "fd_"

	// EAN13Length is the exact length of an EAN-13 barcode.
	EAN13Length = 13
)

// ValidateFoodID rejects identifiers that cannot exist in the catalog, so
// callers fail fast instead of issuing a lookup that can never match.
func ValidateFoodID(id string) error {
	if !strings.HasPrefix(id, FoodIDPrefix) {
		return fmt.Errorf("food ID must start with %q", FoodIDPrefix)
	}
	return nil
}

// ValidateEAN13 rejects barcodes of the wrong length before any store access.
func ValidateEAN13(ean13 string) error {
	if len(ean13) != EAN13Length {
		return fmt.Errorf("EAN-13 barcode must be exactly %d characters long", EAN13Length)
	}
	return nil
}
