// Package realtime relays the storefront's push channels: customer support chat,
// call signaling and order status events. Each channel is a WebSocket carrying
// JSON frames of the form {"event": ..., "data": ...}.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"
)

// ErrClosed is returned when emitting on a closed connection.
var ErrClosed = errors.New("realtime: connection closed")

// Frame is one message on a channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes data into a frame.
func NewFrame(event string, data any) (Frame, error) {
	if data == nil {
		return Frame{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("realtime: encode %s: %w", event, err)
	}
	return Frame{Event: event, Data: raw}, nil
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("realtime: %s frame has no data", f.Event)
	}
	return json.Unmarshal(f.Data, v)
}

// DialConfig locates a channel endpoint.
type DialConfig struct {
	URL    string
	Origin string
	Header http.Header
}

// Dial opens a channel connection.
func Dial(ctx context.Context, cfg DialConfig) (*Conn, error) {
	origin := cfg.Origin
	if origin == "" {
		origin = "http://localhost/"
	}
	wsCfg, err := websocket.NewConfig(cfg.URL, origin)
	if err != nil {
		return nil, fmt.Errorf("realtime: config %s: %w", cfg.URL, err)
	}
	for k, v := range cfg.Header {
		wsCfg.Header[k] = append([]string(nil), v...)
	}
	ws, err := wsCfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial %s: %w", cfg.URL, err)
	}
	return NewConn(ws), nil
}

// Conn is a frame connection. Emit is safe for concurrent use; handlers run on
// the goroutine that calls Run, in arrival order.
type Conn struct {
	ws *websocket.Conn

	sendMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]map[int]func(Frame)
	wildcard map[int]func(Frame)
	onClose  map[int]func(error)
	nextID   int

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// NewConn wraps an established WebSocket.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ws:       ws,
		handlers: make(map[string]map[int]func(Frame)),
		wildcard: make(map[int]func(Frame)),
		onClose:  make(map[int]func(error)),
		done:     make(chan struct{}),
	}
}

// Emit sends one frame.
func (c *Conn) Emit(event string, data any) error {
	frame, err := NewFrame(event, data)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

// Send writes a prepared frame.
func (c *Conn) Send(frame Frame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := websocket.JSON.Send(c.ws, frame); err != nil {
		return fmt.Errorf("realtime: send %s: %w", frame.Event, err)
	}
	return nil
}

// On registers fn for event and returns a func that removes it.
func (c *Conn) On(event string, fn func(Frame)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]func(Frame))
	}
	c.handlers[event][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

// OnAny registers fn for every frame.
func (c *Conn) OnAny(fn func(Frame)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.wildcard[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.wildcard, id)
	}
}

// OnClose registers fn to run once when the connection ends. If it already
// ended, fn runs immediately.
func (c *Conn) OnClose(fn func(error)) func() {
	select {
	case <-c.done:
		fn(c.err)
		return func() {}
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.onClose[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onClose, id)
	}
}

// Run reads frames until the peer closes, a read fails, or ctx ends.
func (c *Conn) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.shutdown(ctx.Err()) })
	defer stop()

	for {
		var frame Frame
		if err := websocket.JSON.Receive(c.ws, &frame); err != nil {
			c.shutdown(err)
			return c.Err()
		}
		if frame.Event == "" {
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Conn) dispatch(frame Frame) {
	c.mu.Lock()
	fns := make([]func(Frame), 0, len(c.handlers[frame.Event])+len(c.wildcard))
	for _, fn := range c.handlers[frame.Event] {
		fns = append(fns, fn)
	}
	for _, fn := range c.wildcard {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(frame)
	}
}

// Close ends the connection.
func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended, or nil for a local Close.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.err = cause
		close(c.done)
		_ = c.ws.Close()

		c.mu.Lock()
		fns := make([]func(error), 0, len(c.onClose))
		for _, fn := range c.onClose {
			fns = append(fns, fn)
		}
		c.onClose = map[int]func(error){}
		c.mu.Unlock()
		for _, fn := range fns {
			fn(cause)
		}
	})
}
