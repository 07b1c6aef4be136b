package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/infinitecrafts/storefront/internal/domain/order"
)

// serviceableSQL fails open: when no dataset has been ingested every pincode
// is serviceable, otherwise the pincode must be present.
const serviceableSQL = `SELECT
	NOT EXISTS (SELECT 1 FROM serviceable_pincodes)
	OR EXISTS (SELECT 1 FROM serviceable_pincodes WHERE pincode = $1)`

var _ order.Serviceability = (*PincodeRepository)(nil)

// PincodeRepository answers delivery-serviceability lookups against the
// ingested pincode dataset.
type PincodeRepository struct {
	pool *pgxpool.Pool
}

// NewPincodeRepository returns a PincodeRepository that uses the given pool.
func NewPincodeRepository(pool *pgxpool.Pool) *PincodeRepository {
	return &PincodeRepository{pool: pool}
}

// Serviceable reports whether orders can be delivered to the given pincode.
func (r *PincodeRepository) Serviceable(ctx context.Context, pincode string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, serviceableSQL, pincode).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking pincode %q: %w", pincode, err)
	}
	return ok, nil
}
