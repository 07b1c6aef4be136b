package upi

import (
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedGenerator(millis int64, random int) *LinkGenerator {
	g := NewLinkGenerator("crafts@okaxis", "Infinite Crafts")
	g.now = func() time.Time { return time.UnixMilli(millis) }
	g.intN = func(int) int { return random }
	return g
}

func TestGenerateOrderID_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^INF-\d{6}-\d{3}$`)

	g := NewLinkGenerator("crafts@okaxis", "Infinite Crafts")
	for range 100 {
		id := g.GenerateOrderID()
		assert.Regexp(t, pattern, id)
	}
}

func TestGenerateOrderID_Deterministic(t *testing.T) {
	g := fixedGenerator(1_757_000_123_456, 42)

	// Timestamp suffix is the millisecond clock mod 1e6; random part is
	// offset into 100..999 so it is always three digits.
	assert.Equal(t, "INF-123456-142", g.GenerateOrderID())
}

func TestGenerateOrderID_ZeroPadsSuffix(t *testing.T) {
	g := fixedGenerator(7_000_000_007, 0)

	assert.Equal(t, "INF-000007-100", g.GenerateOrderID())
}

func TestGeneratePaymentLink_Contents(t *testing.T) {
	g := NewLinkGenerator("crafts@okaxis", "Infinite Crafts")

	link := g.GeneratePaymentLink("INF-123456-142", decimal.RequireFromString("1397.50"))

	require.True(t, strings.HasPrefix(link, "upi://pay?"))

	params, err := url.ParseQuery(strings.TrimPrefix(link, "upi://pay?"))
	require.NoError(t, err)

	assert.Equal(t, "crafts@okaxis", params.Get("pa"))
	assert.Equal(t, "Infinite Crafts", params.Get("pn"))
	assert.Equal(t, "1397.50", params.Get("am"))
	assert.Equal(t, "INR", params.Get("cu"))
	assert.Equal(t, "INF-123456-142", params.Get("tr"))
	assert.Equal(t, "Order INF-123456-142", params.Get("tn"))
}

func TestGeneratePaymentLink_AmountAlwaysTwoDecimals(t *testing.T) {
	g := NewLinkGenerator("crafts@okaxis", "Infinite Crafts")

	link := g.GeneratePaymentLink("INF-000001-100", decimal.NewFromInt(499))
	params, err := url.ParseQuery(strings.TrimPrefix(link, "upi://pay?"))
	require.NoError(t, err)

	assert.Equal(t, "499.00", params.Get("am"))
}
