package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/infinitecrafts/storefront/internal/domain/order"
)

const defaultListLimit = 50

const orderColumns = `order_id, user_id, customer_name, phone_number, email,
	address, city, state, pincode, items,
	subtotal, shipping_cost, tax, total_amount,
	status, payment_method, payment_status, upi_deep_link,
	payment_confirmed_by, payment_confirmed_at,
	tracking_number, shipped_date, admin_notes, customer_notes,
	created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`

	listByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	updateStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE order_id = $1 AND status = $2`

	markShippedSQL = `UPDATE orders
		SET status = 'shipped', tracking_number = $2, shipped_date = $3, updated_at = now()
		WHERE order_id = $1 AND status = 'processing'`

	confirmPaymentSQL = `UPDATE orders
		SET payment_status = 'completed', payment_confirmed_by = $2,
			payment_confirmed_at = $3, updated_at = now()
		WHERE order_id = $1 AND payment_status IN ('pending', 'pending_confirmation')`

	updateNotesSQL = `UPDATE orders
		SET admin_notes = COALESCE($2, admin_notes),
			customer_notes = COALESCE($3, customer_notes),
			updated_at = now()
		WHERE order_id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. All state
// mutations are conditional single-statement updates: the WHERE clause
// re-checks the caller's precondition so two concurrent writers cannot both
// succeed on stale state.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order in a single atomic insert. Line items are
// serialized to JSON for the JSONB column. An order_id collision surfaces as
// order.ErrDuplicateOrderID so the checkout flow can regenerate and retry.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.OrderID, o.UserID, o.CustomerName, o.PhoneNumber, o.Email,
		o.Address, o.City, o.State, o.Pincode, itemsJSON,
		o.Subtotal, o.ShippingCost, o.Tax, o.TotalAmount,
		string(o.Status), string(o.PaymentMethod), string(o.PaymentStatus), o.UPIDeepLink,
		o.PaymentConfirmedBy, o.PaymentConfirmedAt,
		o.TrackingNumber, o.ShippedDate, o.AdminNotes, o.CustomerNotes,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrDuplicateOrderID
		}
		return fmt.Errorf("creating order %q: %w", o.OrderID, err)
	}
	return nil
}

// GetByID returns a single order by its human-readable id.
func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}
	return &o, nil
}

// ListByUser returns the user's orders newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]order.Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, listByUserSQL, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus moves status from expected to next, failing with
// order.ErrStaleState when the row no longer matches expected.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, expected, next order.Status) error {
	tag, err := r.pool.Exec(ctx, updateStatusSQL, orderID, string(expected), string(next))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStaleState
	}
	return nil
}

// MarkShipped records the tracking number and shipped date while moving the
// order from processing to shipped.
func (r *OrderRepository) MarkShipped(ctx context.Context, orderID, trackingNumber string, shippedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, markShippedSQL, orderID, trackingNumber, shippedAt)
	if err != nil {
		return fmt.Errorf("marking order %q shipped: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStaleState
	}
	return nil
}

// ConfirmPayment completes the payment if it is still confirmable. The
// condition in the UPDATE guarantees the confirmation timestamp is written at
// most once, whichever concurrent caller gets there first.
func (r *OrderRepository) ConfirmPayment(ctx context.Context, orderID, confirmedBy string, confirmedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, confirmPaymentSQL, orderID, confirmedBy, confirmedAt)
	if err != nil {
		return fmt.Errorf("confirming payment of order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStaleState
	}
	return nil
}

// UpdateNotes patches the free-text note fields.
func (r *OrderRepository) UpdateNotes(ctx context.Context, orderID string, patch order.NotesPatch) error {
	tag, err := r.pool.Exec(ctx, updateNotesSQL, orderID, patch.AdminNotes, patch.CustomerNotes)
	if err != nil {
		return fmt.Errorf("updating notes of order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
		status    string
		method    string
		payStatus string
	)
	err := row.Scan(
		&o.OrderID, &o.UserID, &o.CustomerName, &o.PhoneNumber, &o.Email,
		&o.Address, &o.City, &o.State, &o.Pincode, &itemsJSON,
		&o.Subtotal, &o.ShippingCost, &o.Tax, &o.TotalAmount,
		&status, &method, &payStatus, &o.UPIDeepLink,
		&o.PaymentConfirmedBy, &o.PaymentConfirmedAt,
		&o.TrackingNumber, &o.ShippedDate, &o.AdminNotes, &o.CustomerNotes,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling items of order %q: %w", o.OrderID, err)
	}
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)
	o.PaymentStatus = order.PaymentStatus(payStatus)
	return o, nil
}
