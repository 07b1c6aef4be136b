// Package order holds the order aggregate, its state machines, the checkout
// orchestration, and the lifecycle manager that guards state transitions.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// fulfillmentTransitions is the legal transition table: strictly forward,
// with cancellation reachable from any non-terminal state before shipping.
var fulfillmentTransitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  nil,
	StatusCancelled:  nil,
}

// Valid reports whether s is a known fulfillment status.
func (s Status) Valid() bool {
	_, ok := fulfillmentTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range fulfillmentTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// requiresPayment reports whether entering s requires a completed payment.
// Progression past confirmed is gated on payment.
func (s Status) requiresPayment() bool {
	switch s {
	case StatusProcessing, StatusShipped, StatusDelivered:
		return true
	default:
		return false
	}
}

// PaymentStatus is the payment axis of an order, tracked independently of
// fulfillment.
type PaymentStatus string

const (
	PaymentPending             PaymentStatus = "pending"
	PaymentPendingConfirmation PaymentStatus = "pending_confirmation"
	PaymentCompleted           PaymentStatus = "completed"
	PaymentFailed              PaymentStatus = "failed"
)

// Confirmable reports whether the payment may still be confirmed.
func (p PaymentStatus) Confirmable() bool {
	return p == PaymentPending || p == PaymentPendingConfirmation
}

// PaymentMethod is how the customer chose to pay.
type PaymentMethod string

const (
	MethodCOD   PaymentMethod = "cod"
	MethodUPI   PaymentMethod = "upi"
	MethodUPIQR PaymentMethod = "upi_qr"
	MethodCard  PaymentMethod = "card"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCOD, MethodUPI, MethodUPIQR, MethodCard:
		return true
	default:
		return false
	}
}

// UPIFamily reports whether m settles over a UPI deep link.
func (m PaymentMethod) UPIFamily() bool {
	return m == MethodUPI || m == MethodUPIQR
}

// AddOn is a structured add-on attached to a line item, e.g. a hamper
// component, with its own price.
type AddOn struct {
	Label string          `json:"label"`
	Price decimal.Decimal `json:"price"`
}

// Item is one order line. Product name and price are snapshots taken at
// order time; later catalog changes never alter a placed order.
type Item struct {
	ProductID            string          `json:"product_id"`
	ProductName          string          `json:"product_name"`
	Price                decimal.Decimal `json:"price"`
	Quantity             int             `json:"quantity"`
	CustomizationDetails string          `json:"customization_details,omitempty"`
	AddOns               []AddOn         `json:"add_ons,omitempty"`
}

// Order is the root aggregate for a placed order. It is created once by the
// checkout flow and mutated only through the Lifecycle manager or the notes
// operations; contact and address fields are write-once snapshots.
type Order struct {
	OrderID string
	UserID  string

	CustomerName string
	PhoneNumber  string
	Email        string

	Address string
	City    string
	State   string
	Pincode string

	Items []Item

	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Tax          decimal.Decimal
	TotalAmount  decimal.Decimal

	Status        Status
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus

	UPIDeepLink        string
	PaymentConfirmedBy string
	PaymentConfirmedAt *time.Time

	TrackingNumber string
	ShippedDate    *time.Time

	AdminNotes    string
	CustomerNotes string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sentinel errors.
var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateOrderID is returned by Create when the generated order id
	// collides with an existing one.
	ErrDuplicateOrderID = errors.New("duplicate order id")
	// ErrEmptyItems is returned when a checkout carries no line items.
	ErrEmptyItems = errors.New("items required")
	// ErrStaleState is returned by conditional repository updates whose
	// precondition no longer held at write time.
	ErrStaleState = errors.New("order state changed concurrently")
	// ErrCarrierUnavailable wraps failures reaching the shipping carrier.
	// Safe to retry the transition.
	ErrCarrierUnavailable = errors.New("shipping carrier unavailable")
	// ErrPaymentNotCompleted is returned when a fulfillment transition
	// requires a completed payment.
	ErrPaymentNotCompleted = errors.New("payment not completed")
)

// ValidationError indicates bad or missing client input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProductNotFoundError indicates a cart item references a missing product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidTransitionError indicates an illegal state-machine jump on either
// the fulfillment or the payment axis. The order is left unchanged.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// NotesPatch updates the free-text note fields. Nil means leave unchanged.
type NotesPatch struct {
	AdminNotes    *string
	CustomerNotes *string
}

// Repository defines persistence for orders. Mutations are conditional
// updates: the WHERE clause re-checks the precondition so concurrent writers
// cannot both succeed; a failed precondition surfaces as ErrStaleState.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, orderID string) (*Order, error)
	// ListByUser returns the user's orders newest first. Pagination via
	// limit/offset; limit <= 0 applies a server default.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error)
	// UpdateStatus moves status from expected to next.
	UpdateStatus(ctx context.Context, orderID string, expected, next Status) error
	// MarkShipped moves processing -> shipped, recording tracking and date.
	MarkShipped(ctx context.Context, orderID, trackingNumber string, shippedAt time.Time) error
	// ConfirmPayment marks payment completed if it is still confirmable.
	ConfirmPayment(ctx context.Context, orderID, confirmedBy string, confirmedAt time.Time) error
	UpdateNotes(ctx context.Context, orderID string, patch NotesPatch) error
}
