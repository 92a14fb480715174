package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
)

// AppendEvent records one status change. occurred_at is taken from
// clock_timestamp() so that, under the order row lock, later events never
// carry an earlier time than the ones before them.
func AppendEvent(ctx context.Context, q querier, orderID int64, previous *models.OrderStatus, next models.OrderStatus, actorID *int64) (*models.StatusEvent, error) {
	event := &models.StatusEvent{
		OrderID:   orderID,
		NewStatus: next,
	}
	if previous != nil {
		p := *previous
		event.PreviousStatus = &p
	}
	if actorID != nil {
		a := *actorID
		event.ActorID = &a
	}

	err := q.QueryRowContext(ctx,
		`INSERT INTO order_status_events (order_id, previous_status, new_status, actor_id, occurred_at)
		 VALUES ($1, $2, $3, $4, clock_timestamp())
		 RETURNING id, occurred_at`,
		orderID, nullStatus(previous), next, nullInt64(actorID)).Scan(&event.ID, &event.OccurredAt)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("append status event: %w", err)
	}

	return event, nil
}

// GetTimeline returns the order's events oldest first; ties keep insertion
// order.
func GetTimeline(ctx context.Context, db *sql.DB, orderID int64) ([]models.StatusEvent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, previous_status, new_status, actor_id, occurred_at
		 FROM order_status_events
		 WHERE order_id = $1
		 ORDER BY occurred_at, id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get timeline: %w", err)
	}
	defer rows.Close()

	events := []models.StatusEvent{}
	for rows.Next() {
		var (
			event    models.StatusEvent
			previous sql.NullString
			actor    sql.NullInt64
		)
		if err := rows.Scan(&event.ID, &event.OrderID, &previous, &event.NewStatus, &actor, &event.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		if previous.Valid {
			p := models.OrderStatus(previous.String)
			event.PreviousStatus = &p
		}
		if actor.Valid {
			a := actor.Int64
			event.ActorID = &a
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return events, nil
}

func nullStatus(s *models.OrderStatus) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*s), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
