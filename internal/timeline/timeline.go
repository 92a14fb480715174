// Package timeline reads the status history of an order.
package timeline

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"time"

	"github.com/safar/go-storefront/internal/models"
)

type Source interface {
	GetTimeline(ctx context.Context, orderID int64) ([]models.StatusEvent, error)
}

// Stage is the span an order spent in one status.
type Stage struct {
	Status    models.OrderStatus `json:"status"`
	EnteredAt time.Time          `json:"entered_at"`
	Duration  time.Duration      `json:"duration"`
	Current   bool               `json:"current"`
}

type Reader struct {
	source Source
}

func NewReader(source Source) *Reader {
	return &Reader{source: source}
}

// Timeline returns the order's events oldest first, ties broken by event id.
// An order without history yields an empty slice.
func (r *Reader) Timeline(ctx context.Context, orderID int64) ([]models.StatusEvent, error) {
	events, err := r.source.GetTimeline(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		return []models.StatusEvent{}, nil
	}

	slices.SortStableFunc(events, func(a, b models.StatusEvent) int {
		if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return events, nil
}

// Events yields the timeline one event at a time. Every range over the
// returned sequence reads the source again.
func (r *Reader) Events(ctx context.Context, orderID int64) iter.Seq2[models.StatusEvent, error] {
	return func(yield func(models.StatusEvent, error) bool) {
		events, err := r.Timeline(ctx, orderID)
		if err != nil {
			yield(models.StatusEvent{}, err)
			return
		}
		for _, e := range events {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Stages folds the timeline into per-status spans. The last stage is open
// and measured up to now.
func (r *Reader) Stages(ctx context.Context, orderID int64, now time.Time) ([]Stage, error) {
	events, err := r.Timeline(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return StagesOf(events, now), nil
}

func StagesOf(events []models.StatusEvent, now time.Time) []Stage {
	stages := make([]Stage, len(events))
	for i, e := range events {
		end := now
		if i+1 < len(events) {
			end = events[i+1].OccurredAt
		}
		stages[i] = Stage{
			Status:    e.NewStatus,
			EnteredAt: e.OccurredAt,
			Duration:  max(end.Sub(e.OccurredAt), 0),
			Current:   i == len(events)-1,
		}
	}
	return stages
}
