package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/cart"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/metrics"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
	"github.com/safar/go-storefront/internal/store/memory"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	calls int
	err   error
	next  OrderStore
}

func (s *countingStore) CreateOrder(ctx context.Context, req store.CreateOrderRequest) (*models.Order, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.next.CreateOrder(ctx, req)
}

type recordingPublisher struct {
	created []*models.Order
	err     error
}

func (p *recordingPublisher) OrderCreated(_ context.Context, o *models.Order) error {
	p.created = append(p.created, o)
	return p.err
}

func (p *recordingPublisher) StatusChanged(context.Context, *models.StatusEvent) error { return nil }
func (p *recordingPublisher) Close() error                                           { return nil }

type fixture struct {
	store   *memory.Store
	buyer   auth.Actor
	widget  models.Product
	gadget  models.Product
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	user, err := s.CreateUser(ctx, "buyer@example.com", "Buyer")
	require.NoError(t, err)

	widget, err := s.CreateProduct(ctx, store.ProductInput{
		SKU: "W-1", Name: "Widget", Price: decimal.RequireFromString("10.00"), StockQuantity: 5,
	})
	require.NoError(t, err)
	gadget, err := s.CreateProduct(ctx, store.ProductInput{
		SKU: "G-1", Name: "Gadget", Price: decimal.RequireFromString("5.00"), StockQuantity: 5,
	})
	require.NoError(t, err)

	return &fixture{
		store:   s,
		buyer:   auth.FromUser(user),
		widget:  *widget,
		gadget:  *gadget,
		metrics: metrics.New(prometheus.NewRegistry()),
	}
}

func validShipping() models.ShippingInfo {
	return models.ShippingInfo{
		Email:      "buyer@example.com",
		Name:       "Ada Buyer",
		Address:    "1 Main St",
		City:       "Springfield",
		Country:    "US",
		PostalCode: "12345",
	}
}

func TestCheckoutPlacesOrder(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{}
	svc := NewService(f.store, pub, f.metrics, nil)

	c := cart.New()
	require.NoError(t, c.AddItem(f.widget, 2))
	require.NoError(t, c.AddItem(f.gadget, 1))

	order, err := svc.Checkout(context.Background(), c, f.buyer, validShipping())
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("25.00")))
	assert.Equal(t, f.buyer.ID, order.UserID)
	assert.Regexp(t, `^ORD-[0-9a-f-]{36}$`, order.OrderNumber)
	assert.Equal(t, "Springfield", order.Shipping.City)

	require.Len(t, order.Items, 2)
	assert.Equal(t, f.widget.ID, order.Items[0].ProductID)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, order.Items[0].Subtotal.Equal(decimal.RequireFromString("20.00")))

	events, err := f.store.GetTimeline(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].PreviousStatus)
	assert.Equal(t, models.OrderStatusPending, events[0].NewStatus)

	assert.True(t, c.IsEmpty())
	assert.Len(t, pub.created, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Checkouts.WithLabelValues(metrics.ResultSuccess)))
}

func TestCheckoutEmptyCartTouchesNothing(t *testing.T) {
	f := newFixture(t)
	spy := &countingStore{next: f.store}
	svc := NewService(spy, nil, f.metrics, nil)

	_, err := svc.Checkout(context.Background(), cart.New(), f.buyer, validShipping())
	require.ErrorIs(t, err, ErrCartEmpty)
	assert.Zero(t, spy.calls)

	_, err = svc.Checkout(context.Background(), nil, f.buyer, validShipping())
	assert.ErrorIs(t, err, ErrCartEmpty)
}

func TestCheckoutGuardOrder(t *testing.T) {
	f := newFixture(t)
	spy := &countingStore{next: f.store}
	svc := NewService(spy, nil, nil, nil)

	_, err := svc.Checkout(context.Background(), cart.New(), auth.Anonymous(), models.ShippingInfo{})
	assert.ErrorIs(t, err, ErrCartEmpty)

	c := cart.New()
	require.NoError(t, c.AddItem(f.widget, 1))

	_, err = svc.Checkout(context.Background(), c, auth.Anonymous(), models.ShippingInfo{})
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)

	_, err = svc.Checkout(context.Background(), c, f.buyer, models.ShippingInfo{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 6)

	assert.Zero(t, spy.calls)
	assert.Equal(t, 1, c.Len())
}

func TestCheckoutStoreFailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	spy := &countingStore{err: &pq.Error{Code: "40001"}}
	pub := &recordingPublisher{}
	svc := NewService(spy, pub, f.metrics, nil)

	c := cart.New()
	require.NoError(t, c.AddItem(f.widget, 2))

	order, err := svc.Checkout(context.Background(), c, f.buyer, validShipping())
	require.Error(t, err)
	assert.Nil(t, order)

	var perr *database.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retryable())

	line, ok := c.Line(f.widget.ID)
	require.True(t, ok)
	assert.Equal(t, 2, line.Quantity)
	assert.Empty(t, pub.created)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Checkouts.WithLabelValues(metrics.ResultError)))
}

func TestCheckoutUnknownProductLeavesNoOrder(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.store, nil, nil, nil)

	ghost := models.Product{ID: 9999, Name: "Ghost", Price: decimal.RequireFromString("1.00"), StockQuantity: 1}

	c := cart.New()
	require.NoError(t, c.AddItem(f.widget, 1))
	require.NoError(t, c.AddItem(ghost, 1))

	_, err := svc.Checkout(context.Background(), c, f.buyer, validShipping())
	require.ErrorIs(t, err, database.ErrProductNotFound)

	var perr *database.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable())

	page, err := f.store.ListAllOrders(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Equal(t, 2, c.Len())
}

func TestCheckoutPublishFailureIsNotSurfaced(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.store, &recordingPublisher{err: errors.New("broker down")}, nil, nil)

	c := cart.New()
	require.NoError(t, c.AddItem(f.widget, 1))

	order, err := svc.Checkout(context.Background(), c, f.buyer, validShipping())
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.True(t, c.IsEmpty())
}

// unreachableBroker holds every write until its context ends.
type unreachableBroker struct{}

func (unreachableBroker) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (unreachableBroker) Close() error { return nil }

func TestCheckoutDoesNotWaitForUnreachableBroker(t *testing.T) {
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := events.NewKafkaWithWriter(unreachableBroker{}, 300*time.Millisecond, logger)
	svc := NewService(f.store, pub, nil, logger)

	c := cart.New()
	require.NoError(t, c.AddItem(f.widget, 1))

	start := time.Now()
	order, err := svc.Checkout(context.Background(), c, f.buyer, validShipping())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Less(t, elapsed, 300*time.Millisecond)
	require.NoError(t, pub.Close())
}

func TestCheckoutTwiceCreatesTwoOrders(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.store, nil, nil, nil)
	ctx := context.Background()

	var ids []int64
	var numbers []string
	for range 2 {
		c := cart.New()
		require.NoError(t, c.AddItem(f.widget, 1))
		order, err := svc.Checkout(ctx, c, f.buyer, validShipping())
		require.NoError(t, err)
		ids = append(ids, order.ID)
		numbers = append(numbers, order.OrderNumber)
	}

	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEqual(t, numbers[0], numbers[1])
}
