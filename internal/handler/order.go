package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/infinitecrafts/storefront/internal/domain/order"
	"github.com/infinitecrafts/storefront/internal/domain/pricing"
)

// checkoutRequest is the wire shape of POST /orders.
type checkoutRequest struct {
	CustomerName  string         `json:"customerName"`
	PhoneNumber   string         `json:"phoneNumber"`
	Email         string         `json:"email"`
	Address       string         `json:"address"`
	City          string         `json:"city"`
	State         string         `json:"state"`
	Pincode       string         `json:"pincode"`
	Items         []checkoutItem `json:"items"`
	PaymentMethod string         `json:"paymentMethod"`
	CustomerNotes string         `json:"customerNotes"`
}

type checkoutItem struct {
	ProductID            string     `json:"productId"`
	Quantity             int        `json:"quantity"`
	Fabric               string     `json:"fabric"`
	Color                string     `json:"color"`
	Size                 string     `json:"size"`
	CustomizationDetails string     `json:"customizationDetails"`
	AddOns               []addOnDTO `json:"addOns"`
}

type addOnDTO struct {
	Label string  `json:"label"`
	Price float64 `json:"price"`
}

// checkoutResponse echoes the fields the storefront needs to drive payment.
type checkoutResponse struct {
	OrderID     string    `json:"orderId"`
	UPIDeepLink string    `json:"upiDeepLink,omitempty"`
	Order       orderView `json:"order"`
}

// orderView is the wire shape of a persisted order.
type orderView struct {
	OrderID            string         `json:"orderId"`
	UserID             string         `json:"userId"`
	CustomerName       string         `json:"customerName"`
	PhoneNumber        string         `json:"phoneNumber"`
	Email              string         `json:"email"`
	Address            string         `json:"address"`
	City               string         `json:"city"`
	State              string         `json:"state"`
	Pincode            string         `json:"pincode"`
	Items              []itemView     `json:"items"`
	Subtotal           float64        `json:"subtotal"`
	ShippingCost       float64        `json:"shippingCost"`
	Tax                float64        `json:"tax"`
	TotalAmount        float64        `json:"totalAmount"`
	Status             string         `json:"status"`
	PaymentMethod      string         `json:"paymentMethod"`
	PaymentStatus      string         `json:"paymentStatus"`
	UPIDeepLink        string         `json:"upiDeepLink,omitempty"`
	PaymentConfirmedBy string         `json:"paymentConfirmedBy,omitempty"`
	PaymentConfirmedAt *time.Time     `json:"paymentConfirmedAt,omitempty"`
	TrackingNumber     string         `json:"trackingNumber,omitempty"`
	ShippedDate        *time.Time     `json:"shippedDate,omitempty"`
	AdminNotes         string         `json:"adminNotes,omitempty"`
	CustomerNotes      string         `json:"customerNotes,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

type itemView struct {
	ProductID            string     `json:"productId"`
	ProductName          string     `json:"productName"`
	Price                float64    `json:"price"`
	Quantity             int        `json:"quantity"`
	CustomizationDetails string     `json:"customizationDetails,omitempty"`
	AddOns               []addOnDTO `json:"addOns,omitempty"`
}

func toOrderView(o *order.Order) orderView {
	items := make([]itemView, len(o.Items))
	for i, it := range o.Items {
		items[i] = itemView{
			ProductID:            it.ProductID,
			ProductName:          it.ProductName,
			Price:                it.Price.InexactFloat64(),
			Quantity:             it.Quantity,
			CustomizationDetails: it.CustomizationDetails,
			AddOns:               toAddOnDTOs(it.AddOns),
		}
	}
	return orderView{
		OrderID:            o.OrderID,
		UserID:             o.UserID,
		CustomerName:       o.CustomerName,
		PhoneNumber:        o.PhoneNumber,
		Email:              o.Email,
		Address:            o.Address,
		City:               o.City,
		State:              o.State,
		Pincode:            o.Pincode,
		Items:              items,
		Subtotal:           o.Subtotal.InexactFloat64(),
		ShippingCost:       o.ShippingCost.InexactFloat64(),
		Tax:                o.Tax.InexactFloat64(),
		TotalAmount:        o.TotalAmount.InexactFloat64(),
		Status:             string(o.Status),
		PaymentMethod:      string(o.PaymentMethod),
		PaymentStatus:      string(o.PaymentStatus),
		UPIDeepLink:        o.UPIDeepLink,
		PaymentConfirmedBy: o.PaymentConfirmedBy,
		PaymentConfirmedAt: o.PaymentConfirmedAt,
		TrackingNumber:     o.TrackingNumber,
		ShippedDate:        o.ShippedDate,
		AdminNotes:         o.AdminNotes,
		CustomerNotes:      o.CustomerNotes,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

func toAddOnDTOs(addOns []order.AddOn) []addOnDTO {
	if len(addOns) == 0 {
		return nil
	}
	out := make([]addOnDTO, len(addOns))
	for i, a := range addOns {
		out[i] = addOnDTO{Label: a.Label, Price: a.Price.InexactFloat64()}
	}
	return out
}

// Checkout handles POST /orders.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := h.security.UserID(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing user identity")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON: "+err.Error())
		return
	}

	items := make([]order.CheckoutItem, len(req.Items))
	for i, it := range req.Items {
		addOns := make([]order.AddOn, len(it.AddOns))
		for j, a := range it.AddOns {
			addOns[j] = order.AddOn{Label: a.Label, Price: decimal.NewFromFloat(a.Price)}
		}
		items[i] = order.CheckoutItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Selection: pricing.Selection{
				Fabric: it.Fabric,
				Color:  it.Color,
				Size:   it.Size,
			},
			CustomizationDetails: it.CustomizationDetails,
			AddOns:               addOns,
		}
	}

	o, err := h.checkout.Checkout(r.Context(), order.CheckoutRequest{
		UserID:        userID,
		CustomerName:  req.CustomerName,
		PhoneNumber:   req.PhoneNumber,
		Email:         req.Email,
		Address:       req.Address,
		City:          req.City,
		State:         req.State,
		Pincode:       req.Pincode,
		Items:         items,
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		CustomerNotes: req.CustomerNotes,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:     o.OrderID,
		UPIDeepLink: o.UPIDeepLink,
		Order:       toOrderView(o),
	})
}

// GetOrder handles GET /orders/{orderID}. Non-admin callers may only fetch
// their own orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	o, err := h.orders.GetByID(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !h.security.CanReadOrdersOf(r, o.UserID) {
		// Hide existence from foreign callers.
		writeError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

// ListUserOrders handles GET /orders/user/{userID}, newest first.
func (h *Handler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !h.security.CanReadOrdersOf(r, userID) {
		writeError(w, http.StatusForbidden, "forbidden", "cannot read another user's orders")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.orders.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	views := make([]orderView, len(list))
	for i := range list {
		views[i] = toOrderView(&list[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": views})
}

// statusUpdateRequest is the wire shape of PUT /orders/{orderID}/status.
// Either status (with optional trackingNumber when moving to shipped) or
// paymentStatus+confirmedBy must be present.
type statusUpdateRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"trackingNumber"`
	PaymentStatus  string `json:"paymentStatus"`
	ConfirmedBy    string `json:"confirmedBy"`
}

// UpdateStatus handles PUT /orders/{orderID}/status (admin only).
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON: "+err.Error())
		return
	}

	var (
		o   *order.Order
		err error
	)
	switch {
	case req.PaymentStatus != "":
		if order.PaymentStatus(req.PaymentStatus) != order.PaymentCompleted {
			writeError(w, http.StatusBadRequest, "validation_error",
				"paymentStatus can only be set to completed via confirmation")
			return
		}
		confirmedBy := req.ConfirmedBy
		if confirmedBy == "" {
			if info, ok := APIKeyFromContext(r.Context()); ok {
				confirmedBy = info.Name
			}
		}
		o, err = h.lifecycle.ConfirmPayment(r.Context(), orderID, confirmedBy)

	case req.Status == string(order.StatusShipped):
		o, err = h.lifecycle.Ship(r.Context(), orderID, req.TrackingNumber)

	case req.Status != "":
		o, err = h.lifecycle.Transition(r.Context(), orderID, order.Status(req.Status))

	default:
		writeError(w, http.StatusBadRequest, "validation_error", "status or paymentStatus required")
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

// notesUpdateRequest is the wire shape of PUT /orders/{orderID}/notes.
type notesUpdateRequest struct {
	AdminNotes    *string `json:"adminNotes"`
	CustomerNotes *string `json:"customerNotes"`
}

// UpdateNotes handles PUT /orders/{orderID}/notes (admin only).
func (h *Handler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req notesUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON: "+err.Error())
		return
	}

	o, err := h.lifecycle.UpdateNotes(r.Context(), orderID, order.NotesPatch{
		AdminNotes:    req.AdminNotes,
		CustomerNotes: req.CustomerNotes,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}
