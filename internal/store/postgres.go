package store

import (
	"context"
	"database/sql"

	"github.com/safar/go-storefront/internal/models"
)

// Postgres binds the package functions to one connection pool.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) DB() *sql.DB {
	return p.db
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	return CreateProduct(ctx, p.db, in)
}

func (p *Postgres) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return GetProduct(ctx, p.db, id)
}

func (p *Postgres) UpdateProduct(ctx context.Context, id int64, in ProductInput, version int) (*models.Product, error) {
	return UpdateProduct(ctx, p.db, id, in, version)
}

func (p *Postgres) DeleteProduct(ctx context.Context, id int64) error {
	return DeleteProduct(ctx, p.db, id)
}

func (p *Postgres) ListProducts(ctx context.Context, page, pageSize int) (*OffsetPage[models.Product], error) {
	return ListProducts(ctx, p.db, page, pageSize)
}

func (p *Postgres) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	return CreateOrder(ctx, p.db, req)
}

func (p *Postgres) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return GetOrder(ctx, p.db, id)
}

func (p *Postgres) ListOrdersForUser(ctx context.Context, userID int64, cursor string, limit int) (*CursorPage[models.Order], error) {
	return ListOrdersCursor(ctx, p.db, userID, cursor, limit)
}

func (p *Postgres) ListAllOrders(ctx context.Context, page, pageSize int) (*OffsetPage[models.Order], error) {
	return ListAllOrders(ctx, p.db, page, pageSize)
}

func (p *Postgres) UpdateOrderStatus(ctx context.Context, id int64, next models.OrderStatus, actorID int64, check func(models.OrderStatus) error) (*models.Order, *models.StatusEvent, error) {
	return UpdateOrderStatus(ctx, p.db, id, next, actorID, check)
}

func (p *Postgres) AppendEvent(ctx context.Context, orderID int64, previous *models.OrderStatus, next models.OrderStatus, actorID *int64) (*models.StatusEvent, error) {
	return AppendEvent(ctx, p.db, orderID, previous, next, actorID)
}

func (p *Postgres) GetTimeline(ctx context.Context, orderID int64) ([]models.StatusEvent, error) {
	return GetTimeline(ctx, p.db, orderID)
}

func (p *Postgres) CreateUser(ctx context.Context, email, name string) (*models.User, error) {
	return CreateUser(ctx, p.db, email, name)
}

func (p *Postgres) EnsureAdmin(ctx context.Context, email, name string) (*models.User, error) {
	return EnsureAdmin(ctx, p.db, email, name)
}

func (p *Postgres) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return GetUser(ctx, p.db, id)
}

func (p *Postgres) SetAdmin(ctx context.Context, id int64, isAdmin bool) (*models.User, error) {
	return SetAdmin(ctx, p.db, id, isAdmin)
}

func (p *Postgres) DeleteUser(ctx context.Context, id int64) error {
	return DeleteUser(ctx, p.db, id)
}

func (p *Postgres) ListUsers(ctx context.Context, page, pageSize int) (*OffsetPage[models.User], error) {
	return ListUsers(ctx, p.db, page, pageSize)
}
