package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinitecrafts/storefront/internal/domain/auth"
	"github.com/infinitecrafts/storefront/internal/domain/order"
	"github.com/infinitecrafts/storefront/internal/domain/pricing"
	"github.com/infinitecrafts/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID map[string]*product.Product
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

type mockOrderRepo struct {
	orders map[string]*order.Order
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*order.Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	if _, exists := m.orders[o.OrderID]; exists {
		return order.ErrDuplicateOrderID
	}
	cp := *o
	m.orders[o.OrderID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, orderID string) (*order.Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string, _, _ int) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, orderID string, expected, next order.Status) error {
	o, ok := m.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != expected {
		return order.ErrStaleState
	}
	o.Status = next
	return nil
}

func (m *mockOrderRepo) MarkShipped(_ context.Context, orderID, trackingNumber string, shippedAt time.Time) error {
	o, ok := m.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != order.StatusProcessing {
		return order.ErrStaleState
	}
	o.Status = order.StatusShipped
	o.TrackingNumber = trackingNumber
	o.ShippedDate = &shippedAt
	return nil
}

func (m *mockOrderRepo) ConfirmPayment(_ context.Context, orderID, confirmedBy string, confirmedAt time.Time) error {
	o, ok := m.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	if !o.PaymentStatus.Confirmable() {
		return order.ErrStaleState
	}
	o.PaymentStatus = order.PaymentCompleted
	o.PaymentConfirmedBy = confirmedBy
	o.PaymentConfirmedAt = &confirmedAt
	return nil
}

func (m *mockOrderRepo) UpdateNotes(_ context.Context, orderID string, patch order.NotesPatch) error {
	o, ok := m.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	if patch.AdminNotes != nil {
		o.AdminNotes = *patch.AdminNotes
	}
	if patch.CustomerNotes != nil {
		o.CustomerNotes = *patch.CustomerNotes
	}
	return nil
}

type mockLinker struct {
	nextID int
}

func (m *mockLinker) GenerateOrderID() string {
	m.nextID++
	return fmt.Sprintf("INF-000042-%03d", 100+m.nextID)
}

func (m *mockLinker) GeneratePaymentLink(orderID string, amount decimal.Decimal) string {
	return "upi://pay?tr=" + orderID + "&am=" + amount.StringFixed(2)
}

type mockAPIKeyRepo struct {
	byHash map[string]*auth.APIKeyInfo
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, errors.New("api key not found")
	}
	return info, nil
}

// --- Test server setup ---

const (
	testPepper   = "test-pepper"
	adminKey     = "sk_admin_123"
	readOnlyKey  = "sk_read_456"
	testCushion  = "custom-cushion"
	testUserID   = "u1"
	testUserHdr  = "X-User-ID"
	apiKeyHeader = "X-API-Key"
)

func hashKey(key string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

type env struct {
	router *chi.Mux
	orders *mockOrderRepo
}

func newEnv(t *testing.T) *env {
	t.Helper()

	products := &mockProductRepo{byID: map[string]*product.Product{
		testCushion: {
			ID:      testCushion,
			Name:    "Custom Cushion",
			Pricing: pricing.FabricBased{Fabrics: []pricing.FabricOption{
				{Name: "cotton", Price: decimal.RequireFromString("499.00")},
				{Name: "velvet", Price: decimal.RequireFromString("649.00")},
			}},
		},
	}}
	orders := newMockOrderRepo()

	apikeys := &mockAPIKeyRepo{byHash: map[string]*auth.APIKeyInfo{
		hashKey(adminKey): {
			ID:      "k1",
			KeyHash: hashKey(adminKey),
			Name:    "ops-admin",
			Scopes:  []string{auth.ScopeReadOrders, auth.ScopeUpdateOrders},
		},
		hashKey(readOnlyKey): {
			ID:      "k2",
			KeyHash: hashKey(readOnlyKey),
			Name:    "support",
			Scopes:  []string{auth.ScopeReadOrders},
		},
	}}

	security := NewSecurity(apikeys, []byte(testPepper))
	checkout := order.NewService(products, orders, &mockLinker{}, nil)
	lifecycle := order.NewLifecycle(orders, nil)

	h := NewHandler(checkout, lifecycle, orders, security)
	r := chi.NewRouter()
	h.Register(r)

	return &env{router: r, orders: orders}
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

func validCheckoutBody() map[string]any {
	return map[string]any{
		"customerName":  "Asha Rao",
		"phoneNumber":   "9876543210",
		"email":         "asha@example.com",
		"address":       "12 MG Road",
		"city":          "Bengaluru",
		"state":         "Karnataka",
		"pincode":       "560001",
		"paymentMethod": "upi",
		"items": []map[string]any{
			{"productId": testCushion, "quantity": 1, "fabric": "velvet"},
		},
	}
}

func (e *env) placeOrder(t *testing.T) checkoutResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/orders", validCheckoutBody(), map[string]string{testUserHdr: testUserID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeJSON[checkoutResponse](t, rec)
}

// --- Checkout ---

func TestCheckout_Created(t *testing.T) {
	e := newEnv(t)

	resp := e.placeOrder(t)

	assert.Regexp(t, `^INF-\d{6}-\d{3}$`, resp.OrderID)
	assert.Contains(t, resp.UPIDeepLink, "tr="+resp.OrderID)
	assert.Equal(t, "pending", resp.Order.Status)
	assert.Equal(t, "pending_confirmation", resp.Order.PaymentStatus)
	assert.InDelta(t, 649.0, resp.Order.Subtotal, 0.001)
	assert.InDelta(t, 160.0, resp.Order.ShippingCost, 0.001)
	assert.InDelta(t, 809.0, resp.Order.TotalAmount, 0.001)
}

func TestCheckout_MissingUserIdentity(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/orders", validCheckoutBody(), nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeJSON[errorResponse](t, rec)
	assert.Equal(t, "unauthorized", resp.Code)
}

func TestCheckout_ValidationErrorShape(t *testing.T) {
	e := newEnv(t)

	body := validCheckoutBody()
	body["pincode"] = "12"
	rec := e.do(t, http.MethodPost, "/orders", body, map[string]string{testUserHdr: testUserID})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeJSON[errorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Code)
	assert.NotEmpty(t, resp.Message)
}

func TestCheckout_UnknownProduct(t *testing.T) {
	e := newEnv(t)

	body := validCheckoutBody()
	body["items"] = []map[string]any{{"productId": "ghost", "quantity": 1}}
	rec := e.do(t, http.MethodPost, "/orders", body, map[string]string{testUserHdr: testUserID})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeJSON[errorResponse](t, rec)
	assert.Equal(t, "product_not_found", resp.Code)
}

func TestCheckout_MalformedJSON(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString("{nope"))
	req.Header.Set(testUserHdr, testUserID)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Reads ---

func TestGetOrder_Owner(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodGet, "/orders/"+placed.OrderID, nil, map[string]string{testUserHdr: testUserID})

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeJSON[orderView](t, rec)
	assert.Equal(t, placed.OrderID, view.OrderID)
}

func TestGetOrder_ForeignUserSeesNotFound(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodGet, "/orders/"+placed.OrderID, nil, map[string]string{testUserHdr: "intruder"})

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrder_AdminKeyMayReadAny(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodGet, "/orders/"+placed.OrderID, nil, map[string]string{apiKeyHeader: readOnlyKey})

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetOrder_Missing(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/orders/INF-999999-999", nil, map[string]string{testUserHdr: testUserID})

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeJSON[errorResponse](t, rec)
	assert.Equal(t, "not_found", resp.Code)
}

func TestListUserOrders_OwnOrders(t *testing.T) {
	e := newEnv(t)
	e.placeOrder(t)

	rec := e.do(t, http.MethodGet, "/orders/user/"+testUserID, nil, map[string]string{testUserHdr: testUserID})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[map[string][]orderView](t, rec)
	assert.Len(t, resp["orders"], 1)
}

func TestListUserOrders_ForeignUserForbidden(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/orders/user/"+testUserID, nil, map[string]string{testUserHdr: "intruder"})

	require.Equal(t, http.StatusForbidden, rec.Code)
}

// --- Status updates ---

func TestUpdateStatus_RequiresAPIKey(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/status",
		map[string]any{"status": "confirmed"}, map[string]string{testUserHdr: testUserID})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateStatus_ReadOnlyKeyForbidden(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/status",
		map[string]any{"status": "confirmed"}, map[string]string{apiKeyHeader: readOnlyKey})

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateStatus_Confirm(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/status",
		map[string]any{"status": "confirmed"}, map[string]string{apiKeyHeader: adminKey})

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeJSON[orderView](t, rec)
	assert.Equal(t, "confirmed", view.Status)
}

func TestUpdateStatus_IllegalJump(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/status",
		map[string]any{"status": "delivered"}, map[string]string{apiKeyHeader: adminKey})

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeJSON[errorResponse](t, rec)
	assert.Equal(t, "invalid_transition", resp.Code)
}

func TestUpdateStatus_PaymentGate(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/status",
		map[string]any{"status": "confirmed"}, map[string]string{apiKeyHeader: adminKey})
	require.Equal(t, http.StatusOK, rec.Code)

	// processing requires a completed payment
	rec = e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/status",
		map[string]any{"status": "processing"}, map[string]string{apiKeyHeader: adminKey})

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeJSON[errorResponse](t, rec)
	assert.Equal(t, "payment_not_completed", resp.Code)
}

func TestUpdateStatus_ConfirmPayment(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/status",
		map[string]any{"paymentStatus": "completed", "confirmedBy": "accounts-team"},
		map[string]string{apiKeyHeader: adminKey})

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeJSON[orderView](t, rec)
	assert.Equal(t, "completed", view.PaymentStatus)
	assert.Equal(t, "accounts-team", view.PaymentConfirmedBy)
	require.NotNil(t, view.PaymentConfirmedAt)
	// Confirming payment does not move fulfillment forward.
	assert.Equal(t, "pending", view.Status)
}

func TestUpdateStatus_ConfirmPaymentDefaultsToKeyName(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/status",
		map[string]any{"paymentStatus": "completed"}, map[string]string{apiKeyHeader: adminKey})

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeJSON[orderView](t, rec)
	assert.Equal(t, "ops-admin", view.PaymentConfirmedBy)
}

func TestUpdateStatus_SecondConfirmConflicts(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	body := map[string]any{"paymentStatus": "completed", "confirmedBy": "accounts-team"}
	rec := e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/status", body, map[string]string{apiKeyHeader: adminKey})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/status", body, map[string]string{apiKeyHeader: adminKey})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateStatus_RejectsOtherPaymentStatuses(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/status",
		map[string]any{"paymentStatus": "failed"}, map[string]string{apiKeyHeader: adminKey})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStatus_ShipWithoutTracking(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/status",
		map[string]any{"status": "shipped"}, map[string]string{apiKeyHeader: adminKey})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeJSON[errorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Code)

	stored, err := e.orders.GetByID(context.Background(), placed.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, stored.Status)
}

func TestUpdateStatus_FullHappyPath(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)
	admin := map[string]string{apiKeyHeader: adminKey}

	steps := []map[string]any{
		{"paymentStatus": "completed", "confirmedBy": "accounts-team"},
		{"status": "confirmed"},
		{"status": "processing"},
		{"status": "shipped", "trackingNumber": "AWB123456"},
		{"status": "delivered"},
	}
	for _, body := range steps {
		rec := e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/status", body, admin)
		require.Equal(t, http.StatusOK, rec.Code, "step %v: %s", body, rec.Body.String())
	}

	stored, err := e.orders.GetByID(context.Background(), placed.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, stored.Status)
	assert.Equal(t, "AWB123456", stored.TrackingNumber)
	require.NotNil(t, stored.ShippedDate)
}

func TestUpdateStatus_EmptyBody(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/status",
		map[string]any{}, map[string]string{apiKeyHeader: adminKey})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Notes ---

func TestUpdateNotes_Patch(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/notes",
		map[string]any{"adminNotes": "gift wrap before dispatch"},
		map[string]string{apiKeyHeader: adminKey})

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeJSON[orderView](t, rec)
	assert.Equal(t, "gift wrap before dispatch", view.AdminNotes)
}

func TestUpdateNotes_NothingToUpdate(t *testing.T) {
	e := newEnv(t)
	placed := e.placeOrder(t)

	rec := e.do(t, http.MethodPut, "/orders/"+placed.OrderID+"/notes",
		map[string]any{}, map[string]string{apiKeyHeader: adminKey})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
