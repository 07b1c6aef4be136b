package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/infinitecrafts/storefront/internal/domain/pricing"
	"github.com/infinitecrafts/storefront/internal/domain/product"
	"github.com/infinitecrafts/storefront/internal/domain/shipping"
)

// maxOrderIDAttempts bounds regenerate-and-retry on order id collisions.
const maxOrderIDAttempts = 3

// PaymentLinker generates order ids and UPI deep links. It is a local
// formatting collaborator; it never talks to a payment network.
type PaymentLinker interface {
	GenerateOrderID() string
	GeneratePaymentLink(orderID string, amount decimal.Decimal) string
}

// Serviceability answers whether a destination pincode can be delivered to.
type Serviceability interface {
	Serviceable(ctx context.Context, pincode string) (bool, error)
}

// CheckoutItem is one cart line as submitted by the client.
type CheckoutItem struct {
	ProductID            string
	Quantity             int
	Selection            pricing.Selection
	CustomizationDetails string
	AddOns               []AddOn
}

// CheckoutRequest is the full checkout input: cart, contact and address
// snapshot, and the chosen payment method.
type CheckoutRequest struct {
	UserID string

	CustomerName string
	PhoneNumber  string
	Email        string

	Address string
	City    string
	State   string
	Pincode string

	Items         []CheckoutItem
	PaymentMethod PaymentMethod
	CustomerNotes string
}

// Service orchestrates checkout: validation, pricing, shipping, persistence,
// and payment link generation.
type Service struct {
	products product.Repository
	orders   Repository
	payments PaymentLinker
	// pincodes is optional; nil disables the serviceability check.
	pincodes Serviceability
	now      func() time.Time
}

// NewService creates a checkout Service with the required collaborators.
// pincodes may be nil.
func NewService(products product.Repository, orders Repository, payments PaymentLinker, pincodes Serviceability) *Service {
	return &Service{
		products: products,
		orders:   orders,
		payments: payments,
		pincodes: pincodes,
		now:      time.Now,
	}
}

// Checkout validates the cart, computes the order totals, persists the order
// in its initial payment state, and returns the stored aggregate. For
// UPI-family payment methods the returned order carries the generated deep
// link. Exactly one order is persisted or none at all.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if err := s.validate(ctx, &req); err != nil {
		return nil, err
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	var (
		items    = make([]Item, len(req.Items))
		lines    = make([]shipping.Line, len(req.Items))
		subtotal = decimal.Zero
	)
	for i, ci := range req.Items {
		p, ok := byID[ci.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: ci.ProductID}
		}
		if p.MinimumOrderQuantity > 0 && ci.Quantity < p.MinimumOrderQuantity {
			return nil, errors.Wrapf(
				&pricing.BelowMinimumQuantityError{Minimum: p.MinimumOrderQuantity},
				"product %s", ci.ProductID,
			)
		}

		unit, err := pricing.UnitPrice(p.Pricing, ci.Selection, ci.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "product %s", ci.ProductID)
		}
		// Add-on prices are part of the unit price snapshot: each unit
		// ships with its add-ons.
		for _, a := range ci.AddOns {
			unit = unit.Add(a.Price)
		}

		items[i] = Item{
			ProductID:            ci.ProductID,
			ProductName:          p.Name,
			Price:                unit,
			Quantity:             ci.Quantity,
			CustomizationDetails: ci.CustomizationDetails,
			AddOns:               ci.AddOns,
		}
		lines[i] = shipping.Line{UnitPrice: unit, Quantity: ci.Quantity}
		subtotal = subtotal.Add(unit.Mul(decimal.NewFromInt(int64(ci.Quantity))))
	}

	shippingCost := shipping.Order(lines)
	tax := decimal.Zero
	total := subtotal.Add(shippingCost).Add(tax)

	o := &Order{
		UserID:        req.UserID,
		CustomerName:  req.CustomerName,
		PhoneNumber:   req.PhoneNumber,
		Email:         req.Email,
		Address:       req.Address,
		City:          req.City,
		State:         req.State,
		Pincode:       req.Pincode,
		Items:         items,
		Subtotal:      subtotal,
		ShippingCost:  shippingCost,
		Tax:           tax,
		TotalAmount:   total,
		Status:        StatusPending,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: PaymentPending,
		CustomerNotes: req.CustomerNotes,
		CreatedAt:     s.now(),
	}
	o.UpdatedAt = o.CreatedAt
	if req.PaymentMethod.UPIFamily() {
		o.PaymentStatus = PaymentPendingConfirmation
	}

	// The id generator is collision-resistant, not collision-free; the
	// unique constraint is authoritative. Regenerate on conflict.
	for attempt := 0; attempt < maxOrderIDAttempts; attempt++ {
		o.OrderID = s.payments.GenerateOrderID()
		if req.PaymentMethod.UPIFamily() {
			o.UPIDeepLink = s.payments.GeneratePaymentLink(o.OrderID, o.TotalAmount)
		}

		err = s.orders.Create(ctx, o)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrDuplicateOrderID) {
			return nil, errors.Wrap(err, "create order")
		}
	}
	return nil, errors.Wrapf(ErrDuplicateOrderID, "exhausted %d attempts", maxOrderIDAttempts)
}

func (s *Service) validate(ctx context.Context, req *CheckoutRequest) error {
	required := []struct {
		field, value string
	}{
		{"userId", req.UserID},
		{"customerName", req.CustomerName},
		{"phoneNumber", req.PhoneNumber},
		{"email", req.Email},
		{"address", req.Address},
		{"city", req.City},
		{"state", req.State},
		{"pincode", req.Pincode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Reason: "required"}
		}
	}
	if !validPincode(req.Pincode) {
		return &ValidationError{Field: "pincode", Reason: "must be 6 digits"}
	}
	if !req.PaymentMethod.Valid() {
		return &ValidationError{Field: "paymentMethod", Reason: "unknown method"}
	}
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.ProductID == "" {
			return &ValidationError{Field: "items.productId", Reason: "required"}
		}
		if item.Quantity <= 0 {
			return errors.Wrapf(
				&pricing.InvalidQuantityError{Quantity: item.Quantity},
				"product %s", item.ProductID,
			)
		}
		for _, a := range item.AddOns {
			if a.Price.IsNegative() {
				return &ValidationError{Field: "items.addOns.price", Reason: "must be non-negative"}
			}
		}
	}

	if s.pincodes != nil {
		ok, err := s.pincodes.Serviceable(ctx, req.Pincode)
		if err != nil {
			return errors.Wrap(err, "check pincode serviceability")
		}
		if !ok {
			return &ValidationError{Field: "pincode", Reason: "not serviceable"}
		}
	}
	return nil
}

func validPincode(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
