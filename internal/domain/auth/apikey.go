package auth

import "context"

// Scopes granted to admin API keys.
const (
	// ScopeUpdateOrders allows status, payment, and notes mutations.
	ScopeUpdateOrders = "update_orders"
	// ScopeReadOrders allows reading any user's orders.
	ScopeReadOrders = "read_orders"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key grants the given scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC-SHA256 hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
