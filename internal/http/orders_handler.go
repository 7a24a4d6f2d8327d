package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderReader interface {
	List(ctx context.Context, userID, token string, limit int) ([]*domain.Order, string, error)
	Get(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderReader
	timeout time.Duration
}

func NewOrdersHandler(orders OrderReader, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{orders: orders, timeout: timeout}
}

type OrderItemDTO struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

type OrderResponseDTO struct {
	ID              string         `json:"id"`
	OrderNumber     string         `json:"order_number"`
	Subtotal        int64          `json:"subtotal"`
	DiscountAmount  int64          `json:"discount_amount"`
	Shipping        int64          `json:"shipping"`
	Tax             int64          `json:"tax"`
	Total           int64          `json:"total"`
	Status          string         `json:"status"`
	ShippingAddress domain.Address `json:"shipping_address"`
	Items           []OrderItemDTO `json:"items"`
	CreatedAt       string         `json:"created_at"`
}

type OrderListResponseDTO struct {
	Orders     []OrderResponseDTO `json:"orders"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// GET /api/v1/orders?cursor=...&limit=...
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a number")
			return
		}
		limit = parsed
	}

	orders, next, err := h.orders.List(ctx, userID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, convertOrder(o))
	}

	respondJSON(w, http.StatusOK, OrderListResponseDTO{Orders: dtos, NextCursor: next})
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "order_id must be a UUID")
		return
	}

	order, err := h.orders.Get(ctx, userID, orderID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertOrder(order))
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	return OrderResponseDTO{
		ID:              o.ID.String(),
		OrderNumber:     o.OrderNumber,
		Subtotal:        o.Subtotal,
		DiscountAmount:  o.DiscountAmount,
		Shipping:        o.Shipping,
		Tax:             o.Tax,
		Total:           o.Total,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddr,
		Items:           items,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
	}
}
