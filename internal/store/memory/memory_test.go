package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances by one second on every call.
func stepClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func seed(t *testing.T, s *Store) (*models.User, *models.Product) {
	t.Helper()
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "buyer@example.com", "Buyer")
	require.NoError(t, err)

	product, err := s.CreateProduct(ctx, store.ProductInput{
		SKU:           "SKU-1",
		Name:          "Widget",
		Price:         decimal.RequireFromString("10.00"),
		StockQuantity: 5,
	})
	require.NoError(t, err)

	return user, product
}

func orderRequest(userID int64, number string, productIDs ...int64) store.CreateOrderRequest {
	req := store.CreateOrderRequest{
		UserID:      userID,
		OrderNumber: number,
		TotalAmount: decimal.Zero,
	}
	for _, id := range productIDs {
		item := store.OrderItemRequest{ProductID: id, Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")}
		req.Items = append(req.Items, item)
		req.TotalAmount = req.TotalAmount.Add(item.Subtotal())
	}
	return req
}

func TestCreateOrderRecordsInitialEvent(t *testing.T) {
	s := New(WithClock(stepClock()))
	user, product := seed(t, s)
	ctx := context.Background()

	order, err := s.CreateOrder(ctx, orderRequest(user.ID, "ORD-1", product.ID))
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	require.Len(t, order.Items, 1)
	assert.True(t, order.Items[0].Subtotal.Equal(decimal.RequireFromString("10.00")))

	events, err := s.GetTimeline(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].PreviousStatus)
	assert.Equal(t, models.OrderStatusPending, events[0].NewStatus)
	require.NotNil(t, events[0].ActorID)
	assert.Equal(t, user.ID, *events[0].ActorID)
}

func TestCreateOrderLeavesNothingOnFailure(t *testing.T) {
	s := New()
	user, product := seed(t, s)
	ctx := context.Background()

	_, err := s.CreateOrder(ctx, orderRequest(user.ID, "ORD-1", product.ID, 9999))
	require.ErrorIs(t, err, database.ErrProductNotFound)

	_, err = s.CreateOrder(ctx, orderRequest(424242, "ORD-2", product.ID))
	require.ErrorIs(t, err, database.ErrUserNotFound)

	_, err = s.CreateOrder(ctx, orderRequest(user.ID, "ORD-3"))
	require.ErrorIs(t, err, store.ErrNoOrderItems)

	all, err := s.ListAllOrders(ctx, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, all.Total)
	assert.Empty(t, s.events)
}

func TestUpdateOrderStatusRunsCheckOnCurrentStatus(t *testing.T) {
	s := New(WithClock(stepClock()))
	user, product := seed(t, s)
	ctx := context.Background()

	order, err := s.CreateOrder(ctx, orderRequest(user.ID, "ORD-1", product.ID))
	require.NoError(t, err)

	var seen models.OrderStatus
	updated, event, err := s.UpdateOrderStatus(ctx, order.ID, models.OrderStatusShipped, 7, func(current models.OrderStatus) error {
		seen = current
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, seen)
	assert.Equal(t, models.OrderStatusShipped, updated.Status)
	assert.Equal(t, 2, updated.Version)
	require.NotNil(t, event.PreviousStatus)
	assert.Equal(t, models.OrderStatusPending, *event.PreviousStatus)

	rejected := errors.New("rejected")
	_, _, err = s.UpdateOrderStatus(ctx, order.ID, models.OrderStatusPending, 7, func(models.OrderStatus) error {
		return rejected
	})
	require.ErrorIs(t, err, rejected)

	events, err := s.GetTimeline(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	_, _, err = s.UpdateOrderStatus(ctx, 9999, models.OrderStatusShipped, 7, nil)
	assert.ErrorIs(t, err, database.ErrOrderNotFound)
}

func TestConcurrentStatusUpdatesKeepEveryEvent(t *testing.T) {
	s := New()
	user, product := seed(t, s)
	ctx := context.Background()

	order, err := s.CreateOrder(ctx, orderRequest(user.ID, "ORD-1", product.ID))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, next := range []models.OrderStatus{models.OrderStatusShipped, models.OrderStatusDelivered} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.UpdateOrderStatus(ctx, order.ID, next, 1, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	events, err := s.GetTimeline(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)

	final, err := s.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, events[2].NewStatus, final.Status)
	assert.Equal(t, events[1].NewStatus, *events[2].PreviousStatus)
}

func TestListOrdersForUserPagesNewestFirst(t *testing.T) {
	s := New(WithClock(stepClock()))
	user, product := seed(t, s)
	ctx := context.Background()

	var ids []int64
	for _, number := range []string{"ORD-1", "ORD-2", "ORD-3"} {
		order, err := s.CreateOrder(ctx, orderRequest(user.ID, number, product.ID))
		require.NoError(t, err)
		ids = append(ids, order.ID)
	}

	first, err := s.ListOrdersForUser(ctx, user.ID, "", 2)
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, ids[2], first.Items[0].ID)
	assert.Equal(t, ids[1], first.Items[1].ID)

	second, err := s.ListOrdersForUser(ctx, user.ID, first.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.False(t, second.HasMore)
	assert.Empty(t, second.NextCursor)
	assert.Equal(t, ids[0], second.Items[0].ID)

	other, err := s.ListOrdersForUser(ctx, user.ID+100, "", 2)
	require.NoError(t, err)
	assert.NotNil(t, other.Items)
	assert.Empty(t, other.Items)
}

func TestUpdateProductOptimisticLock(t *testing.T) {
	s := New()
	_, product := seed(t, s)
	ctx := context.Background()

	in := store.ProductInput{SKU: "SKU-1", Name: "Widget v2", Price: decimal.RequireFromString("12.00"), StockQuantity: 3}

	updated, err := s.UpdateProduct(ctx, product.ID, in, product.Version)
	require.NoError(t, err)
	assert.Equal(t, product.Version+1, updated.Version)

	_, err = s.UpdateProduct(ctx, product.ID, in, product.Version)
	assert.ErrorIs(t, err, database.ErrOptimisticLockFailed)

	_, err = s.UpdateProduct(ctx, 9999, in, 1)
	assert.ErrorIs(t, err, database.ErrProductNotFound)
}

func TestDeleteProductInUse(t *testing.T) {
	s := New()
	user, product := seed(t, s)
	ctx := context.Background()

	_, err := s.CreateOrder(ctx, orderRequest(user.ID, "ORD-1", product.ID))
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteProduct(ctx, product.ID), database.ErrProductInUse)
	assert.ErrorIs(t, s.DeleteProduct(ctx, 9999), database.ErrProductNotFound)
}

func TestDeleteUserCascades(t *testing.T) {
	s := New()
	user, product := seed(t, s)
	ctx := context.Background()

	order, err := s.CreateOrder(ctx, orderRequest(user.ID, "ORD-1", product.ID))
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, user.ID))

	_, err = s.GetOrder(ctx, order.ID)
	assert.ErrorIs(t, err, database.ErrOrderNotFound)

	events, err := s.GetTimeline(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	require.NoError(t, s.DeleteProduct(ctx, product.ID))
}

func TestUsers(t *testing.T) {
	s := New()
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "a@example.com", "A")
	require.NoError(t, err)
	assert.False(t, user.IsAdmin)

	_, err = s.CreateUser(ctx, "a@example.com", "Again")
	assert.ErrorIs(t, err, database.ErrEmailTaken)

	admin, err := s.EnsureAdmin(ctx, "a@example.com", "A")
	require.NoError(t, err)
	assert.Equal(t, user.ID, admin.ID)
	assert.True(t, admin.IsAdmin)

	demoted, err := s.SetAdmin(ctx, user.ID, false)
	require.NoError(t, err)
	assert.False(t, demoted.IsAdmin)

	page, err := s.ListUsers(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 1, page.TotalPages)

	_, err = s.GetUser(ctx, 9999)
	assert.ErrorIs(t, err, database.ErrUserNotFound)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := New()
	user, product := seed(t, s)
	ctx := context.Background()

	order, err := s.CreateOrder(ctx, orderRequest(user.ID, "ORD-1", product.ID))
	require.NoError(t, err)

	order.Items[0].Quantity = 99
	order.Status = models.OrderStatusDelivered

	stored, err := s.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Items[0].Quantity)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
}
