// Package checkout turns a session cart into a persisted order.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/cart"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/metrics"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
)

var ErrCartEmpty = errors.New("cart is empty")

// OrderStore persists an order, its items and its first status event as one
// unit.
type OrderStore interface {
	CreateOrder(ctx context.Context, req store.CreateOrderRequest) (*models.Order, error)
}

type Service struct {
	orders    OrderStore
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	orderNumber func() string
}

func NewService(orders OrderStore, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orders:      orders,
		publisher:   publisher,
		metrics:     m,
		logger:      logger,
		orderNumber: NewOrderNumber,
	}
}

func NewOrderNumber() string {
	return "ORD-" + uuid.NewString()
}

// Checkout places an order for everything in c on behalf of buyer.
//
// The cart is emptied only after the order has been stored. Guards run in
// the order empty cart, authentication, shipping validation, and none of
// them touch storage. Storage failures come back as
// *database.PersistenceError and leave c unchanged.
func (s *Service) Checkout(ctx context.Context, c *cart.Cart, buyer auth.Actor, info models.ShippingInfo) (*models.Order, error) {
	start := time.Now()

	if c == nil || c.IsEmpty() {
		s.metrics.Checkout(metrics.ResultEmpty)
		return nil, ErrCartEmpty
	}
	if err := auth.RequireAuthenticated(buyer); err != nil {
		s.metrics.Checkout(metrics.ResultRejected)
		return nil, err
	}
	if err := ValidateShipping(info); err != nil {
		s.metrics.Checkout(metrics.ResultInvalid)
		return nil, err
	}

	req := store.CreateOrderRequest{
		UserID:      buyer.ID,
		OrderNumber: s.orderNumber(),
		TotalAmount: c.Total(),
		Shipping:    NormalizeShipping(info),
	}
	for _, line := range c.Lines() {
		req.Items = append(req.Items, store.OrderItemRequest{
			ProductID: line.Product.ID,
			Quantity:  line.Quantity,
			UnitPrice: line.Product.Price,
		})
	}

	order, err := s.orders.CreateOrder(ctx, req)
	if err != nil {
		s.metrics.Checkout(metrics.ResultError)
		s.logger.ErrorContext(ctx, "checkout failed",
			"user_id", buyer.ID,
			"order_number", req.OrderNumber,
			"error", err)
		return nil, database.NewPersistenceError("create order", err)
	}

	c.Clear()
	s.metrics.Checkout(metrics.ResultSuccess)

	if err := s.publisher.OrderCreated(ctx, order); err != nil {
		s.logger.WarnContext(ctx, "publish order created", "order_id", order.ID, "error", err)
	}

	s.logger.InfoContext(ctx, "order placed",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"user_id", order.UserID,
		"total", order.TotalAmount.StringFixed(2),
		"items", len(order.Items),
		"duration", time.Since(start))

	return order, nil
}
