package idempotency

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Header is the request header billing reads to de-duplicate retried mutations.
const Header = "x-idempotency-key"

// Generator mints idempotency keys. Keys minted by one Generator sort by creation time.
type Generator struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy io.Reader
}

// NewGenerator builds a Generator. Nil arguments default to time.Now and crypto/rand.
func NewGenerator(now func() time.Time, entropy io.Reader) *Generator {
	if now == nil {
		now = time.Now
	}
	if entropy == nil {
		entropy = rand.Reader
	}
	return &Generator{now: now, entropy: ulid.Monotonic(entropy, 0)}
}

// OrderKey returns "<userID>-<ulid>" for order creation.
func (g *Generator) OrderKey(userID string) string {
	return strings.TrimSpace(userID) + "-" + g.next()
}

// PaymentKey returns "payment-<orderID>-<ulid>" for payment initiation.
func (g *Generator) PaymentKey(orderID string) string {
	return "payment-" + strings.TrimSpace(orderID) + "-" + g.next()
}

func (g *Generator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(g.now()), g.entropy)
	if err != nil {
		// Monotonic entropy overflowed within one millisecond.
		return ulid.Make().String()
	}
	return id.String()
}
