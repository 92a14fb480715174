// Package lifecycle moves orders through pending, shipped and delivered and
// records every accepted move on the order timeline.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/metrics"
	"github.com/safar/go-storefront/internal/models"
)

// StatusStore applies a status change under a lock on the order, running
// check against the status it holds at that moment.
type StatusStore interface {
	UpdateOrderStatus(ctx context.Context, id int64, next models.OrderStatus, actorID int64, check func(models.OrderStatus) error) (*models.Order, *models.StatusEvent, error)
}

type Service struct {
	orders    StatusStore
	policy    Policy
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewService(orders StatusStore, policy Policy, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	if policy == nil {
		policy = ForwardOnly{}
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orders:    orders,
		policy:    policy,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// SetStatus moves the order to next on behalf of actor. Role checks are the
// caller's job.
//
// Policy rejections and ErrUnknownStatus are returned as is, as is
// database.ErrOrderNotFound. Anything else is a *database.PersistenceError.
func (s *Service) SetStatus(ctx context.Context, orderID int64, next models.OrderStatus, actor auth.Actor) (*models.Order, *models.StatusEvent, error) {
	start := time.Now()

	if !next.Valid() {
		return nil, nil, ErrUnknownStatus
	}

	order, event, err := s.orders.UpdateOrderStatus(ctx, orderID, next, actor.ID, func(current models.OrderStatus) error {
		return s.policy.Check(current, next)
	})
	switch {
	case err == nil:
	case IsRejection(err), errors.Is(err, ErrUnknownStatus), errors.Is(err, database.ErrOrderNotFound):
		return nil, nil, err
	default:
		s.logger.ErrorContext(ctx, "order status update failed",
			"order_id", orderID,
			"status", next,
			"error", err)
		return nil, nil, database.NewPersistenceError("update order status", err)
	}

	var from models.OrderStatus
	if event.PreviousStatus != nil {
		from = *event.PreviousStatus
	}
	s.metrics.Transition(from, next)

	if err := s.publisher.StatusChanged(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "publish status changed", "order_id", orderID, "error", err)
	}

	s.logger.InfoContext(ctx, "order status changed",
		"order_id", orderID,
		"from", from,
		"to", next,
		"actor_id", actor.ID,
		"duration", time.Since(start))

	return order, event, nil
}
