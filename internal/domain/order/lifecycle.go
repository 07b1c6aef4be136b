package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Carrier books a shipment for an order and returns a tracking number.
// Invoked only on entry to the shipped state.
type Carrier interface {
	CreateShipment(ctx context.Context, o *Order) (trackingNumber string, err error)
}

// Lifecycle enforces the order state machines and performs the side effects
// attached to specific transitions. Every mutation is a single conditional
// write; a failed transition leaves the order untouched.
type Lifecycle struct {
	orders Repository
	// carrier may be nil, in which case shipping always requires the caller
	// to supply a tracking number.
	carrier Carrier
	now     func() time.Time
}

// NewLifecycle creates a Lifecycle manager. carrier may be nil.
func NewLifecycle(orders Repository, carrier Carrier) *Lifecycle {
	return &Lifecycle{
		orders:  orders,
		carrier: carrier,
		now:     time.Now,
	}
}

// Transition moves an order's fulfillment status to next. Only the legal
// forward moves (and cancellation) are accepted; entering shipped must go
// through Ship instead so a tracking number is always recorded.
func (l *Lifecycle) Transition(ctx context.Context, orderID string, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "unknown status " + string(next)}
	}
	if next == StatusShipped {
		return nil, &ValidationError{Field: "trackingNumber", Reason: "required to mark an order shipped"}
	}

	o, err := l.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, &InvalidTransitionError{From: string(o.Status), To: string(next)}
	}
	if next.requiresPayment() && o.PaymentStatus != PaymentCompleted {
		return nil, errors.Wrapf(ErrPaymentNotCompleted, "cannot move order %s to %s", orderID, next)
	}

	if err := l.orders.UpdateStatus(ctx, orderID, o.Status, next); err != nil {
		if errors.Is(err, ErrStaleState) {
			return nil, &InvalidTransitionError{From: string(o.Status), To: string(next)}
		}
		return nil, errors.Wrap(err, "update status")
	}
	return l.orders.GetByID(ctx, orderID)
}

// Ship moves a processing order to shipped. When trackingNumber is empty the
// configured carrier is asked to book the shipment; carrier failures are
// recoverable and the transition may simply be retried.
func (l *Lifecycle) Ship(ctx context.Context, orderID, trackingNumber string) (*Order, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" && l.carrier == nil {
		return nil, &ValidationError{Field: "trackingNumber", Reason: "required"}
	}

	o, err := l.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(StatusShipped) {
		return nil, &InvalidTransitionError{From: string(o.Status), To: string(StatusShipped)}
	}
	if o.PaymentStatus != PaymentCompleted {
		return nil, errors.Wrapf(ErrPaymentNotCompleted, "cannot ship order %s", orderID)
	}

	if trackingNumber == "" {
		trackingNumber, err = l.carrier.CreateShipment(ctx, o)
		if err != nil {
			return nil, errors.Wrap(err, "book shipment")
		}
		if strings.TrimSpace(trackingNumber) == "" {
			return nil, &ValidationError{Field: "trackingNumber", Reason: "carrier returned empty tracking number"}
		}
	}

	if err := l.orders.MarkShipped(ctx, orderID, trackingNumber, l.now()); err != nil {
		if errors.Is(err, ErrStaleState) {
			return nil, &InvalidTransitionError{From: string(o.Status), To: string(StatusShipped)}
		}
		return nil, errors.Wrap(err, "mark shipped")
	}
	return l.orders.GetByID(ctx, orderID)
}

// ConfirmPayment marks an order's payment as verified by confirmedBy. The
// underlying write is conditional on the payment still being confirmable, so
// of two concurrent confirmations exactly one records the timestamp; the
// other gets InvalidTransitionError. Confirming payment never advances the
// fulfillment status.
func (l *Lifecycle) ConfirmPayment(ctx context.Context, orderID, confirmedBy string) (*Order, error) {
	if strings.TrimSpace(confirmedBy) == "" {
		return nil, &ValidationError{Field: "confirmedBy", Reason: "required"}
	}

	o, err := l.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.PaymentStatus.Confirmable() {
		return nil, &InvalidTransitionError{From: string(o.PaymentStatus), To: string(PaymentCompleted)}
	}

	if err := l.orders.ConfirmPayment(ctx, orderID, confirmedBy, l.now()); err != nil {
		if errors.Is(err, ErrStaleState) {
			return nil, &InvalidTransitionError{From: string(o.PaymentStatus), To: string(PaymentCompleted)}
		}
		return nil, errors.Wrap(err, "confirm payment")
	}
	return l.orders.GetByID(ctx, orderID)
}

// UpdateNotes patches the free-text note fields without touching any state
// field.
func (l *Lifecycle) UpdateNotes(ctx context.Context, orderID string, patch NotesPatch) (*Order, error) {
	if patch.AdminNotes == nil && patch.CustomerNotes == nil {
		return nil, &ValidationError{Field: "notes", Reason: "nothing to update"}
	}
	if err := l.orders.UpdateNotes(ctx, orderID, patch); err != nil {
		return nil, errors.Wrap(err, "update notes")
	}
	return l.orders.GetByID(ctx, orderID)
}
