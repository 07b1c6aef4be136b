// Package handler exposes the order workflow over HTTP. Routes are mounted
// on a chi router; domain errors are mapped to a structured {code, message}
// envelope and never leak internals.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/infinitecrafts/storefront/internal/domain/auth"
	"github.com/infinitecrafts/storefront/internal/domain/order"
	"github.com/infinitecrafts/storefront/internal/domain/pricing"
)

// Handler wires the checkout service and lifecycle manager to HTTP routes.
type Handler struct {
	checkout  *order.Service
	lifecycle *order.Lifecycle
	orders    order.Repository
	security  *Security
}

// NewHandler constructs a Handler with the required collaborators.
func NewHandler(checkout *order.Service, lifecycle *order.Lifecycle, orders order.Repository, security *Security) *Handler {
	return &Handler{
		checkout:  checkout,
		lifecycle: lifecycle,
		orders:    orders,
		security:  security,
	}
}

// Register mounts all routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/orders", h.Checkout)
	r.Get("/orders/{orderID}", h.GetOrder)
	r.Get("/orders/user/{userID}", h.ListUserOrders)

	r.Group(func(r chi.Router) {
		r.Use(h.security.RequireScope(auth.ScopeUpdateOrders))
		r.Put("/orders/{orderID}/status", h.UpdateStatus)
		r.Put("/orders/{orderID}/notes", h.UpdateNotes)
	})
}

// errorResponse is the wire shape of every error.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeDomainError maps a domain error to its HTTP representation. Unknown
// errors are logged and reported as an opaque internal error.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr   *order.ValidationError
		qtyErr *pricing.InvalidQuantityError
		moqErr *pricing.BelowMinimumQuantityError
		fabErr *pricing.UnknownFabricError
		pnfErr *order.ProductNotFoundError
		trErr  *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, "validation_error", vErr.Error())
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.As(err, &qtyErr):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.As(err, &moqErr):
		writeError(w, http.StatusUnprocessableEntity, "below_minimum_order_quantity", err.Error())
	case errors.As(err, &fabErr):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.As(err, &pnfErr):
		writeError(w, http.StatusUnprocessableEntity, "product_not_found", pnfErr.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "order not found")
	case errors.As(err, &trErr):
		writeError(w, http.StatusConflict, "invalid_transition", trErr.Error())
	case errors.Is(err, order.ErrPaymentNotCompleted):
		writeError(w, http.StatusConflict, "payment_not_completed", "payment must be completed first")
	case errors.Is(err, order.ErrCarrierUnavailable):
		writeError(w, http.StatusServiceUnavailable, "carrier_unavailable", "shipping carrier unavailable, retry later")
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
