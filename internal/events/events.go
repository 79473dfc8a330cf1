// Package events publishes order lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// Event types.
const (
	TypeOrderPlaced    = "order.placed"
	TypeOrderPaid      = "order.paid"
	TypeOrderCancelled = "order.cancelled"
)

// Order outcomes carried on placed events.
const (
	OutcomeWallet   = "wallet"
	OutcomeOnline   = "online"
	OutcomeCOD      = "cod"
	OutcomeRejected = "rejected"
)

// OrderEvent describes a change to an order made through the storefront.
type OrderEvent struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	UserID         string    `json:"userId"`
	TenantID       string    `json:"tenantId,omitempty"`
	PaymentMode    string    `json:"paymentMode,omitempty"`
	Outcome        string    `json:"outcome,omitempty"`
	FinalTotal     float64   `json:"finalTotal"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Publisher sends order events somewhere durable.
type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}

// PubSubPublisher publishes order events to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a Pub/Sub backed publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	return &PubSubPublisher{topic: topic, marshal: json.Marshal}, nil
}

// Publish sends the event and waits for the server id.
func (p *PubSubPublisher) Publish(ctx context.Context, event OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "tenantId", event.TenantID)
	setAttr(attrs, "outcome", event.Outcome)

	msg := &pubsub.Message{Data: data, Attributes: attrs}
	// Events for one order keep their order on ordering-enabled topics.
	if p.topic.EnableMessageOrdering {
		msg.OrderingKey = event.OrderID
	}
	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

// LogPublisher writes events to the log. It is used when no topic is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher returns a publisher that logs at info level.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, event OrderEvent) error {
	p.logger.Info("order event",
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID),
		zap.String("user_id", event.UserID),
		zap.String("tenant_id", event.TenantID),
		zap.String("outcome", event.Outcome),
		zap.String("final_total", strconv.FormatFloat(event.FinalTotal, 'f', 2, 64)),
	)
	return nil
}
