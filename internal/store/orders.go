package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

var ErrNoOrderItems = errors.New("order must have at least one item")

type CreateOrderRequest struct {
	UserID      int64
	OrderNumber string
	TotalAmount decimal.Decimal
	Shipping    models.ShippingInfo
	Items       []OrderItemRequest
}

type OrderItemRequest struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

func (it OrderItemRequest) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const orderColumns = `id, user_id, order_number, status, total_amount,
	shipping_email, shipping_name, shipping_address, shipping_city, shipping_country, shipping_postal_code,
	created_at, updated_at, version`

func scanOrder(row interface{ Scan(...any) error }, order *models.Order) error {
	return row.Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.Status,
		&order.TotalAmount,
		&order.Shipping.Email,
		&order.Shipping.Name,
		&order.Shipping.Address,
		&order.Shipping.City,
		&order.Shipping.Country,
		&order.Shipping.PostalCode,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
}

// CreateOrder writes the order, its items and the creation status event in
// one transaction. On any error nothing is left behind.
func CreateOrder(ctx context.Context, db *sql.DB, req CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrNoOrderItems
	}

	var order *models.Order

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order = &models.Order{}
		s := req.Shipping
		err := scanOrder(tx.QueryRowContext(ctx,
			`INSERT INTO orders (user_id, order_number, status, total_amount,
			     shipping_email, shipping_name, shipping_address, shipping_city, shipping_country, shipping_postal_code,
			     created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW(), 1)
			 RETURNING `+orderColumns,
			req.UserID, req.OrderNumber, models.OrderStatusPending, req.TotalAmount,
			s.Email, s.Name, s.Address, s.City, s.Country, s.PostalCode), order)
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return database.ErrUserNotFound
			}
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range req.Items {
			created := models.OrderItem{
				OrderID:   order.ID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
				Subtotal:  item.Subtotal(),
			}

			err := tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal, created_at)
				 VALUES ($1, $2, $3, $4, $5, NOW())
				 RETURNING id, created_at`,
				order.ID, item.ProductID, item.Quantity, item.UnitPrice, created.Subtotal).Scan(&created.ID, &created.CreatedAt)
			if err != nil {
				if database.IsForeignKeyViolation(err) {
					return fmt.Errorf("create order item for product %d: %w", item.ProductID, database.ErrProductNotFound)
				}
				return fmt.Errorf("create order item: %w", err)
			}

			order.Items = append(order.Items, created)
		}

		actorID := req.UserID
		if _, err := AppendEvent(ctx, tx, order.ID, nil, models.OrderStatusPending, &actorID); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	if err := scanOrder(db.QueryRowContext(ctx, query, id), order); err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	orders := []models.Order{*order}
	if err := loadItems(ctx, db, orders); err != nil {
		return nil, err
	}

	return &orders[0], nil
}

// loadItems fills Items for every order with a single query.
func loadItems(ctx context.Context, q querier, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
		index[order.ID] = i
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, unit_price, subtotal, created_at
		 FROM order_items
		 WHERE order_id = ANY($1)
		 ORDER BY id`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, userID int64, cursor string, limit int) (*CursorPage[models.Order], error) {
	_, limit = NormalizePage(1, limit)

	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	orders, err := queryOrders(ctx, db, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	if err := loadItems(ctx, db, orders); err != nil {
		return nil, err
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	if orders == nil {
		orders = []models.Order{}
	}

	return &CursorPage[models.Order]{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListAllOrders pages through every order, newest first.
func ListAllOrders(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage[models.Order], error) {
	page, pageSize = NormalizePage(page, pageSize)

	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	orders, err := queryOrders(ctx, db, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	if err := loadItems(ctx, db, orders); err != nil {
		return nil, err
	}

	return NewOffsetPage(orders, total, page, pageSize), nil
}

func queryOrders(ctx context.Context, q querier, query string, args ...any) ([]models.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// UpdateOrderStatus moves an order to next and appends the matching status
// event. The order row stays locked between reading the current status,
// running check against it, and writing the event, so concurrent updates of
// one order are applied and recorded one at a time.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, id int64, next models.OrderStatus, actorID int64, check func(current models.OrderStatus) error) (*models.Order, *models.StatusEvent, error) {
	var (
		order *models.Order
		event *models.StatusEvent
	)

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SET LOCAL lock_timeout = '5s'`); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}

		var current models.OrderStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if err != nil {
			if err == sql.ErrNoRows {
				return database.ErrOrderNotFound
			}
			if database.IsLockNotAvailable(err) {
				return fmt.Errorf("lock order %d: %w: %w", id, database.ErrLockTimeout, err)
			}
			return fmt.Errorf("lock order %d: %w", id, err)
		}

		if check != nil {
			if err := check(current); err != nil {
				return err
			}
		}

		order = &models.Order{}
		err = scanOrder(tx.QueryRowContext(ctx,
			`UPDATE orders
			 SET status = $1, updated_at = NOW(), version = version + 1
			 WHERE id = $2
			 RETURNING `+orderColumns,
			next, id), order)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		var actor *int64
		if actorID > 0 {
			actor = &actorID
		}
		event, err = AppendEvent(ctx, tx, id, &current, next, actor)
		return err
	})

	if err != nil {
		return nil, nil, err
	}

	return order, event, nil
}
