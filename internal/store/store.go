// Package store persists the catalog, users, orders and order timelines.
//
// The package-level functions run against Postgres through database/sql.
// Store is the method set shared by the Postgres binding and the in-process
// backend in store/memory.
package store

import (
	"context"

	"github.com/safar/go-storefront/internal/models"
)

type Store interface {
	Ping(ctx context.Context) error

	CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	UpdateProduct(ctx context.Context, id int64, in ProductInput, version int) (*models.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	ListProducts(ctx context.Context, page, pageSize int) (*OffsetPage[models.Product], error)

	// CreateOrder persists the order, its items and the initial pending
	// status event atomically.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrdersForUser(ctx context.Context, userID int64, cursor string, limit int) (*CursorPage[models.Order], error)
	ListAllOrders(ctx context.Context, page, pageSize int) (*OffsetPage[models.Order], error)
	UpdateOrderStatus(ctx context.Context, id int64, next models.OrderStatus, actorID int64, check func(models.OrderStatus) error) (*models.Order, *models.StatusEvent, error)

	AppendEvent(ctx context.Context, orderID int64, previous *models.OrderStatus, next models.OrderStatus, actorID *int64) (*models.StatusEvent, error)
	GetTimeline(ctx context.Context, orderID int64) ([]models.StatusEvent, error)

	CreateUser(ctx context.Context, email, name string) (*models.User, error)
	EnsureAdmin(ctx context.Context, email, name string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	SetAdmin(ctx context.Context, id int64, isAdmin bool) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context, page, pageSize int) (*OffsetPage[models.User], error)
}

var _ Store = (*Postgres)(nil)
