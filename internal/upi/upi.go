// Package upi builds UPI payment deep links. Link generation is pure string
// formatting; actual payment verification always happens out-of-band through
// an admin confirmation.
package upi

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// LinkGenerator formats order ids and upi:// deep links for a single payee.
type LinkGenerator struct {
	vpa       string
	payeeName string
	now       func() time.Time
	intN      func(n int) int
}

// NewLinkGenerator creates a LinkGenerator for the given payee VPA and
// display name.
func NewLinkGenerator(vpa, payeeName string) *LinkGenerator {
	return &LinkGenerator{
		vpa:       vpa,
		payeeName: payeeName,
		now:       time.Now,
		intN:      rand.IntN,
	}
}

// GenerateOrderID returns a human-readable order id of the form
// INF-<6-digit-timestamp-suffix>-<3-digit-random>. Customer-support tooling
// depends on this exact shape. The id is collision-resistant, not unique;
// the persistence layer enforces uniqueness.
func (g *LinkGenerator) GenerateOrderID() string {
	suffix := g.now().UnixMilli() % 1_000_000
	random := 100 + g.intN(900)
	return fmt.Sprintf("INF-%06d-%03d", suffix, random)
}

// GeneratePaymentLink builds the upi://pay deep link for an order. The
// transaction reference (tr) is the order id itself, which is how inbound
// payments are later matched to orders by hand.
func (g *LinkGenerator) GeneratePaymentLink(orderID string, amount decimal.Decimal) string {
	v := url.Values{}
	v.Set("pa", g.vpa)
	v.Set("pn", g.payeeName)
	v.Set("am", amount.StringFixed(2))
	v.Set("cu", "INR")
	v.Set("tr", orderID)
	v.Set("tn", "Order "+orderID)
	return "upi://pay?" + v.Encode()
}
