// Package events publishes order facts to downstream consumers after they
// have been committed.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/safar/go-storefront/internal/config"
	"github.com/safar/go-storefront/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const (
	TypeOrderCreated  = "order.created"
	TypeStatusChanged = "order.status_changed"
)

type Publisher interface {
	OrderCreated(ctx context.Context, order *models.Order) error
	StatusChanged(ctx context.Context, event *models.StatusEvent) error
	Close() error
}

// Message is the JSON value written for every event.
type Message struct {
	Type           string              `json:"type"`
	OrderID        int64               `json:"order_id"`
	OrderNumber    string              `json:"order_number,omitempty"`
	UserID         int64               `json:"user_id,omitempty"`
	TotalAmount    *decimal.Decimal    `json:"total_amount,omitempty"`
	PreviousStatus *models.OrderStatus `json:"previous_status,omitempty"`
	Status         models.OrderStatus  `json:"status"`
	ActorID        *int64              `json:"actor_id,omitempty"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

func CreatedMessage(order *models.Order) Message {
	total := order.TotalAmount
	return Message{
		Type:        TypeOrderCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalAmount: &total,
		Status:      order.Status,
		OccurredAt:  order.CreatedAt,
	}
}

func StatusMessage(event *models.StatusEvent) Message {
	return Message{
		Type:           TypeStatusChanged,
		OrderID:        event.OrderID,
		PreviousStatus: event.PreviousStatus,
		Status:         event.NewStatus,
		ActorID:        event.ActorID,
		OccurredAt:     event.OccurredAt,
	}
}

type Nop struct{}

func (Nop) OrderCreated(context.Context, *models.Order) error        { return nil }
func (Nop) StatusChanged(context.Context, *models.StatusEvent) error { return nil }
func (Nop) Close() error                                             { return nil }

// MessageWriter is the part of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const DefaultPublishTimeout = 5 * time.Second

// Kafka writes one message per event, keyed by order id so that all events
// of an order land on the same partition. Writes run in the background, so
// OrderCreated and StatusChanged return once the message is encoded.
type Kafka struct {
	writer  MessageWriter
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

func NewKafka(brokers []string, topic string, timeout time.Duration, logger *slog.Logger) *Kafka {
	return NewKafkaWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
	}, timeout, logger)
}

// NewKafkaWithWriter publishes through w. Each write gets at most timeout.
func NewKafkaWithWriter(w MessageWriter, timeout time.Duration, logger *slog.Logger) *Kafka {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{writer: w, timeout: timeout, logger: logger}
}

func (k *Kafka) OrderCreated(ctx context.Context, order *models.Order) error {
	return k.publish(ctx, CreatedMessage(order))
}

func (k *Kafka) StatusChanged(ctx context.Context, event *models.StatusEvent) error {
	return k.publish(ctx, StatusMessage(event))
}

// Close waits for in-flight writes, then closes the writer.
func (k *Kafka) Close() error {
	k.wg.Wait()
	return k.writer.Close()
}

func (k *Kafka) publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	m := kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.OrderID, 10)),
		Value: data,
		Time:  time.Now().UTC(),
	}

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.timeout)
		defer cancel()

		if err := k.writer.WriteMessages(ctx, m); err != nil {
			k.logger.WarnContext(ctx, "publish order event",
				"type", msg.Type,
				"order_id", msg.OrderID,
				"error", err)
		}
	}()
	return nil
}

// NewPublisher returns a Kafka publisher when brokers are configured and Nop
// otherwise.
func NewPublisher(cfg config.KafkaConfig, logger *slog.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		return Nop{}
	}
	return NewKafka(cfg.Brokers, cfg.OrderTopic, cfg.PublishTimeout, logger)
}
