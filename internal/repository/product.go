package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/infinitecrafts/storefront/internal/domain/pricing"
	"github.com/infinitecrafts/storefront/internal/domain/product"
)

const (
	productColumns = `id, name, category, pricing_type, price,
		default_color, color_price_diff, fabrics, quantity_tiers,
		minimum_order_qty, colors, sizes`

	getProductByIDSQL  = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductsByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL. The
// optional pricing columns are folded into the tagged pricing.Scheme variant
// keyed by pricing_type; callers never see the raw column soup.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// fabricJSON and tierJSON mirror the JSONB layouts of the fabric and tier
// columns.
type fabricJSON struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type tierJSON struct {
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p              product.Product
		pricingType    string
		price          decimal.Decimal
		defaultColor   string
		colorPriceDiff decimal.Decimal
		fabricsJSON    []byte
		tiersJSON      []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Category, &pricingType, &price,
		&defaultColor, &colorPriceDiff, &fabricsJSON, &tiersJSON,
		&p.MinimumOrderQuantity, &p.Colors, &p.Sizes,
	)
	if err != nil {
		return product.Product{}, err
	}

	switch pricing.Type(pricingType) {
	case pricing.TypeStandard:
		p.Pricing = pricing.Standard{
			Price:          price,
			DefaultColor:   defaultColor,
			ColorPriceDiff: colorPriceDiff,
		}
	case pricing.TypeFabric:
		var fabrics []fabricJSON
		if err := json.Unmarshal(fabricsJSON, &fabrics); err != nil {
			return product.Product{}, fmt.Errorf("unmarshaling fabrics of product %q: %w", p.ID, err)
		}
		scheme := pricing.FabricBased{Fabrics: make([]pricing.FabricOption, len(fabrics))}
		for i, f := range fabrics {
			scheme.Fabrics[i] = pricing.FabricOption{Name: f.Name, Price: f.Price}
		}
		p.Pricing = scheme
	case pricing.TypeQuantityTiered:
		var tiers []tierJSON
		if err := json.Unmarshal(tiersJSON, &tiers); err != nil {
			return product.Product{}, fmt.Errorf("unmarshaling tiers of product %q: %w", p.ID, err)
		}
		scheme := pricing.QuantityTiered{Tiers: make([]pricing.Tier, len(tiers))}
		for i, t := range tiers {
			scheme.Tiers[i] = pricing.Tier{Quantity: t.Quantity, Price: t.Price}
		}
		p.Pricing = scheme
		if p.MinimumOrderQuantity == 0 {
			p.MinimumOrderQuantity = scheme.MinimumQuantity()
		}
	default:
		return product.Product{}, fmt.Errorf("product %q has unknown pricing type %q", p.ID, pricingType)
	}

	return p, nil
}
