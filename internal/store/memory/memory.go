// Package memory is an in-process store.Store. It keeps everything behind a
// single mutex and is meant for STORE_DRIVER=memory and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
)

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	nextID   int64
	products map[int64]*models.Product
	users    map[int64]*models.User
	orders   map[int64]*models.Order
	events   map[int64][]models.StatusEvent
}

var _ store.Store = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the time source used for created_at and occurred_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:      func() time.Time { return time.Now().UTC() },
		products: make(map[int64]*models.Product),
		users:    make(map[int64]*models.User),
		orders:   make(map[int64]*models.Order),
		events:   make(map[int64][]models.StatusEvent),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) CreateProduct(ctx context.Context, in store.ProductInput) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.skuTaken(in.SKU, 0) {
		return nil, database.ErrSKUTaken
	}

	now := s.now()
	p := &models.Product{
		ID:        s.id(),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	applyProduct(p, in)
	s.products[p.ID] = p

	clone := *p
	return &clone, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, database.ErrProductNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id int64, in store.ProductInput, version int) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, database.ErrProductNotFound
	}
	if p.Version != version {
		return nil, database.ErrOptimisticLockFailed
	}
	if s.skuTaken(in.SKU, id) {
		return nil, database.ErrSKUTaken
	}

	applyProduct(p, in)
	p.Version++
	p.UpdatedAt = s.now()

	clone := *p
	return &clone, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return database.ErrProductNotFound
	}
	for _, o := range s.orders {
		for _, item := range o.Items {
			if item.ProductID == id {
				return database.ErrProductInUse
			}
		}
	}

	delete(s.products, id)
	return nil
}

func (s *Store) ListProducts(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.Product], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		all = append(all, *p)
	}
	slices.SortFunc(all, func(a, b models.Product) int {
		return newestFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})

	return offsetPage(all, page, pageSize), nil
}

// CreateOrder checks the buyer and every product before writing, so a
// failing line leaves nothing behind.
func (s *Store) CreateOrder(ctx context.Context, req store.CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, store.ErrNoOrderItems
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[req.UserID]; !ok {
		return nil, database.ErrUserNotFound
	}
	for _, item := range req.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, fmt.Errorf("create order item for product %d: %w", item.ProductID, database.ErrProductNotFound)
		}
	}
	for _, o := range s.orders {
		if o.OrderNumber == req.OrderNumber {
			return nil, fmt.Errorf("create order: order number %s already used", req.OrderNumber)
		}
	}

	now := s.now()
	order := &models.Order{
		ID:          s.id(),
		UserID:      req.UserID,
		OrderNumber: req.OrderNumber,
		Status:      models.OrderStatusPending,
		TotalAmount: req.TotalAmount,
		Shipping:    req.Shipping,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	for _, item := range req.Items {
		order.Items = append(order.Items, models.OrderItem{
			ID:        s.id(),
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal(),
			CreatedAt: now,
		})
	}
	s.orders[order.ID] = order

	actorID := req.UserID
	s.appendEvent(order.ID, nil, models.OrderStatusPending, &actorID)

	return cloneOrder(order), nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) ListOrdersForUser(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage[models.Order], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, limit = store.NormalizePage(1, limit)

	after, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Order
	for _, o := range s.orders {
		if o.UserID == userID && after.Before(o.CreatedAt, o.ID) {
			matched = append(matched, *cloneOrder(o))
		}
	}
	slices.SortFunc(matched, func(a, b models.Order) int {
		return newestFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})

	page := &store.CursorPage[models.Order]{Items: []models.Order{}}
	if len(matched) > limit {
		matched = matched[:limit]
		last := matched[len(matched)-1]
		page.HasMore = true
		page.NextCursor = store.EncodeCursor(store.OrderCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	if matched != nil {
		page.Items = matched
	}
	return page, nil
}

func (s *Store) ListAllOrders(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.Order], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		all = append(all, *cloneOrder(o))
	}
	slices.SortFunc(all, func(a, b models.Order) int {
		return newestFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})

	return offsetPage(all, page, pageSize), nil
}

// UpdateOrderStatus runs check and records the change while holding the
// store lock, matching the row lock taken by the Postgres backend.
func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, next models.OrderStatus, actorID int64, check func(models.OrderStatus) error) (*models.Order, *models.StatusEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, nil, database.ErrOrderNotFound
	}

	current := o.Status
	if check != nil {
		if err := check(current); err != nil {
			return nil, nil, err
		}
	}

	o.Status = next
	o.UpdatedAt = s.now()
	o.Version++

	var actor *int64
	if actorID > 0 {
		actor = &actorID
	}
	event := s.appendEvent(id, &current, next, actor)

	return cloneOrder(o), &event, nil
}

func (s *Store) AppendEvent(ctx context.Context, orderID int64, previous *models.OrderStatus, next models.OrderStatus, actorID *int64) (*models.StatusEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return nil, database.ErrOrderNotFound
	}
	event := s.appendEvent(orderID, previous, next, actorID)
	return &event, nil
}

// appendEvent must be called with mu held. Timestamps never go backwards
// within one order even if the clock does.
func (s *Store) appendEvent(orderID int64, previous *models.OrderStatus, next models.OrderStatus, actorID *int64) models.StatusEvent {
	event := models.StatusEvent{
		ID:         s.id(),
		OrderID:    orderID,
		NewStatus:  next,
		OccurredAt: s.now(),
	}
	if previous != nil {
		p := *previous
		event.PreviousStatus = &p
	}
	if actorID != nil {
		a := *actorID
		event.ActorID = &a
	}

	history := s.events[orderID]
	if n := len(history); n > 0 && event.OccurredAt.Before(history[n-1].OccurredAt) {
		event.OccurredAt = history[n-1].OccurredAt
	}
	s.events[orderID] = append(history, event)

	return cloneEvent(event)
}

func (s *Store) GetTimeline(ctx context.Context, orderID int64) ([]models.StatusEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.events[orderID]
	events := make([]models.StatusEvent, len(history))
	for i, e := range history {
		events[i] = cloneEvent(e)
	}
	return events, nil
}

func (s *Store) CreateUser(ctx context.Context, email, name string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userByEmail(email) != nil {
		return nil, database.ErrEmailTaken
	}
	u := s.insertUser(email, name, false)
	clone := *u
	return &clone, nil
}

func (s *Store) EnsureAdmin(ctx context.Context, email, name string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userByEmail(email)
	if u == nil {
		u = s.insertUser(email, name, true)
	} else {
		u.IsAdmin = true
		u.Version++
		u.UpdatedAt = s.now()
	}
	clone := *u
	return &clone, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *Store) SetAdmin(ctx context.Context, id int64, isAdmin bool) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	u.IsAdmin = isAdmin
	u.Version++
	u.UpdatedAt = s.now()

	clone := *u
	return &clone, nil
}

// DeleteUser cascades to the user's orders and their timelines.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return database.ErrUserNotFound
	}
	for orderID, o := range s.orders {
		if o.UserID == id {
			delete(s.orders, orderID)
			delete(s.events, orderID)
		}
	}
	delete(s.users, id)
	return nil
}

func (s *Store) ListUsers(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.User], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, *u)
	}
	slices.SortFunc(all, func(a, b models.User) int {
		return newestFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})

	return offsetPage(all, page, pageSize), nil
}

func (s *Store) insertUser(email, name string, isAdmin bool) *models.User {
	now := s.now()
	u := &models.User{
		ID:        s.id(),
		Email:     email,
		Name:      name,
		IsAdmin:   isAdmin,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	s.users[u.ID] = u
	return u
}

func (s *Store) userByEmail(email string) *models.User {
	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (s *Store) skuTaken(sku string, except int64) bool {
	for id, p := range s.products {
		if id != except && p.SKU == sku {
			return true
		}
	}
	return false
}

func applyProduct(p *models.Product, in store.ProductInput) {
	p.SKU = in.SKU
	p.Name = in.Name
	p.Description = in.Description
	p.Category = in.Category
	p.ImageURL = in.ImageURL
	p.Price = in.Price
	p.StockQuantity = in.StockQuantity
}

func newestFirst(aTime time.Time, aID int64, bTime time.Time, bID int64) int {
	if c := bTime.Compare(aTime); c != 0 {
		return c
	}
	return cmp.Compare(bID, aID)
}

func offsetPage[T any](all []T, page, pageSize int) *store.OffsetPage[T] {
	page, pageSize = store.NormalizePage(page, pageSize)

	start := min((page-1)*pageSize, len(all))
	end := min(start+pageSize, len(all))

	return store.NewOffsetPage(slices.Clone(all[start:end]), int64(len(all)), page, pageSize)
}

func cloneOrder(o *models.Order) *models.Order {
	clone := *o
	clone.Items = slices.Clone(o.Items)
	return &clone
}

func cloneEvent(e models.StatusEvent) models.StatusEvent {
	if e.PreviousStatus != nil {
		p := *e.PreviousStatus
		e.PreviousStatus = &p
	}
	if e.ActorID != nil {
		a := *e.ActorID
		e.ActorID = &a
	}
	return e
}
