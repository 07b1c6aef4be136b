package product

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/infinitecrafts/storefront/internal/domain/pricing"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is the pricing context for a catalog item as seen by the order
// flow: everything needed to compute a snapshot unit price, nothing else.
type Product struct {
	ID       string
	Name     string
	Category string
	// MinimumOrderQuantity below which a line item is rejected. For
	// quantity-tiered products this matches the smallest tier threshold.
	MinimumOrderQuantity int
	Pricing              pricing.Scheme
	Colors               []string
	Sizes                []string
}

// Repository defines read operations on the product catalog. The order flow
// never writes products.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
