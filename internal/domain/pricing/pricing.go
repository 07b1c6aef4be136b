// Package pricing computes unit prices for catalog items across the three
// supported pricing variants: standard, fabric-based, and quantity-tiered.
// All functions are pure; the package holds no state.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Type enumerates the supported pricing variants.
type Type string

const (
	// TypeStandard prices every unit at a fixed product price, optionally
	// adjusted once per unit when a non-default color is selected.
	TypeStandard Type = "standard"
	// TypeFabric prices every unit by the selected fabric, ignoring any
	// base product price.
	TypeFabric Type = "fabric-based"
	// TypeQuantityTiered prices every unit by the highest price-break tier
	// whose threshold the ordered quantity reaches.
	TypeQuantityTiered Type = "quantity-based"
)

// Selection carries the buyer-chosen options for a line item.
type Selection struct {
	Fabric string
	Color  string
	Size   string
}

// InvalidQuantityError indicates a non-positive quantity.
type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0, got %d", e.Quantity)
}

// BelowMinimumQuantityError indicates the ordered quantity is below the
// product's minimum order quantity. Minimum carries the required floor so
// callers can report it.
type BelowMinimumQuantityError struct {
	Minimum int
}

func (e *BelowMinimumQuantityError) Error() string {
	return fmt.Sprintf("quantity below minimum order quantity of %d", e.Minimum)
}

// UnknownFabricError indicates a selection named a fabric the product does
// not declare.
type UnknownFabricError struct {
	Fabric string
}

func (e *UnknownFabricError) Error() string {
	return fmt.Sprintf("unknown fabric %q", e.Fabric)
}

// Scheme is the sealed variant of a product's pricing behaviour. Exactly one
// concrete type applies per product, keyed by Kind.
type Scheme interface {
	Kind() Type
	unitPrice(sel Selection, quantity int) (decimal.Decimal, error)
}

// UnitPrice computes the per-unit price for the given scheme and selection.
// The quantity matters only for quantity-tiered schemes, where it selects the
// price break; the returned price applies uniformly to every unit.
func UnitPrice(s Scheme, sel Selection, quantity int) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, &InvalidQuantityError{Quantity: quantity}
	}
	return s.unitPrice(sel, quantity)
}

// LineTotal computes unit price multiplied by quantity.
func LineTotal(s Scheme, sel Selection, quantity int) (decimal.Decimal, error) {
	unit, err := UnitPrice(s, sel, quantity)
	if err != nil {
		return decimal.Zero, err
	}
	return unit.Mul(decimal.NewFromInt(int64(quantity))), nil
}

// Standard is fixed-price pricing with an optional per-unit color surcharge.
type Standard struct {
	Price decimal.Decimal
	// DefaultColor is the color included in Price. Selecting any other color
	// adds ColorPriceDiff exactly once per unit.
	DefaultColor   string
	ColorPriceDiff decimal.Decimal
}

func (Standard) Kind() Type { return TypeStandard }

func (s Standard) unitPrice(sel Selection, _ int) (decimal.Decimal, error) {
	price := s.Price
	if sel.Color != "" && sel.Color != s.DefaultColor {
		price = price.Add(s.ColorPriceDiff)
	}
	return price, nil
}

// FabricOption is one selectable material with its own unit price.
type FabricOption struct {
	Name  string
	Price decimal.Decimal
}

// FabricBased prices units by the selected fabric. The declared order of
// Fabrics is significant: an empty selection falls back to the first entry.
type FabricBased struct {
	Fabrics []FabricOption
}

func (FabricBased) Kind() Type { return TypeFabric }

func (f FabricBased) unitPrice(sel Selection, _ int) (decimal.Decimal, error) {
	if len(f.Fabrics) == 0 {
		return decimal.Zero, &UnknownFabricError{Fabric: sel.Fabric}
	}
	if sel.Fabric == "" {
		return f.Fabrics[0].Price, nil
	}
	for _, fab := range f.Fabrics {
		if fab.Name == sel.Fabric {
			return fab.Price, nil
		}
	}
	return decimal.Zero, &UnknownFabricError{Fabric: sel.Fabric}
}

// Tier is a price break: every unit costs Price once the ordered quantity
// reaches Quantity.
type Tier struct {
	Quantity int
	Price    decimal.Decimal
}

// QuantityTiered prices units by price-break tiers. Tiers need not be sorted;
// when two tiers share a threshold the later-declared one wins.
type QuantityTiered struct {
	Tiers []Tier
}

func (QuantityTiered) Kind() Type { return TypeQuantityTiered }

func (q QuantityTiered) unitPrice(_ Selection, quantity int) (decimal.Decimal, error) {
	var (
		best  *Tier
		floor = 0
	)
	for i := range q.Tiers {
		t := &q.Tiers[i]
		if floor == 0 || t.Quantity < floor {
			floor = t.Quantity
		}
		// >= so that a later tier with an equal threshold replaces an
		// earlier one.
		if t.Quantity <= quantity && (best == nil || t.Quantity >= best.Quantity) {
			best = t
		}
	}
	if best == nil {
		return decimal.Zero, &BelowMinimumQuantityError{Minimum: floor}
	}
	return best.Price, nil
}

// MinimumQuantity returns the smallest tier threshold, which doubles as the
// product's effective minimum order quantity. Zero when no tiers exist.
func (q QuantityTiered) MinimumQuantity() int {
	min := 0
	for _, t := range q.Tiers {
		if min == 0 || t.Quantity < min {
			min = t.Quantity
		}
	}
	return min
}
