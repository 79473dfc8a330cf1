package realtime

import (
	"errors"
	"strings"
)

// Order feed events.
const (
	EventJoin                  = "join"
	EventOrderStatusUpdated    = "order-status-updated"
	EventOrderPaymentCompleted = "order-payment-completed"
	EventOrderPaymentRefunded  = "order-payment-refunded"
)

// OrderEvents lists the events relayed by an OrderFeed.
var OrderEvents = []string{EventOrderStatusUpdated, EventOrderPaymentCompleted, EventOrderPaymentRefunded}

// OrderFeed joins a customer's order room and relays status pushes.
type OrderFeed struct {
	conn *Conn
	room string
}

// CustomerRoom returns the order room for a user.
func CustomerRoom(userID string) string { return "customer_" + userID }

// NewOrderFeed relays order events on conn to fn.
func NewOrderFeed(conn *Conn, userID string, fn func(Frame)) (*OrderFeed, error) {
	if conn == nil {
		return nil, errors.New("order feed: connection is required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("order feed: user id is required")
	}
	for _, event := range OrderEvents {
		conn.On(event, fn)
	}
	return &OrderFeed{conn: conn, room: CustomerRoom(userID)}, nil
}

// Join subscribes to the customer's room.
func (f *OrderFeed) Join() error {
	return f.conn.Emit(EventJoin, f.room)
}

// Room returns the joined room.
func (f *OrderFeed) Room() string { return f.room }
