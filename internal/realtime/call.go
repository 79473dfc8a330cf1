package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
)

// Call signaling events.
const (
	EventRegister     = "register"
	EventCallIncoming = "call:incoming"
	EventCallAnswer   = "call:answer"
	EventCallICE      = "call:ice-candidate"
	EventCallReject   = "call:reject"
	EventCallEnd      = "call:end"
	EventCallEnded    = "call:ended"
)

// ErrNoActiveCall is returned when answering or ending without a current call.
var ErrNoActiveCall = errors.New("realtime: no active call")

// IncomingCall is an offer from support staff.
type IncomingCall struct {
	From       string          `json:"from"`
	CallerName string          `json:"callerName"`
	Offer      json.RawMessage `json:"offer"`
}

type answerPayload struct {
	To     string          `json:"to"`
	Answer json.RawMessage `json:"answer"`
	From   string          `json:"from"`
}

type candidatePayload struct {
	To        string          `json:"to"`
	Candidate json.RawMessage `json:"candidate"`
}

type peerPayload struct {
	To string `json:"to"`
}

// CallEvents receives call state changes.
type CallEvents struct {
	Incoming func(IncomingCall)

	// Candidate relays a remote ICE candidate for the current call.
	Candidate func(candidate json.RawMessage)
	Ended     func()
}

// Call relays WebRTC signaling for one customer. Media stays in the browser; only
// one call is tracked and a second offer while one is active is rejected.
type Call struct {
	conn   *Conn
	userID string
	events CallEvents

	mu      sync.Mutex
	current *IncomingCall
}

// NewCall attaches call handling to conn.
func NewCall(conn *Conn, userID string, events CallEvents) (*Call, error) {
	if conn == nil {
		return nil, errors.New("call: connection is required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("call: user id is required")
	}
	c := &Call{conn: conn, userID: userID, events: events}
	conn.On(EventCallIncoming, c.handleIncoming)
	conn.On(EventCallEnded, func(Frame) { c.finish() })
	conn.On(EventCallICE, c.handleCandidate)
	conn.OnClose(func(error) { c.finish() })
	return c, nil
}

// Register announces the user so calls can be routed here.
func (c *Call) Register() error {
	return c.conn.Emit(EventRegister, c.userID)
}

// Current returns the active call, if any.
func (c *Call) Current() (IncomingCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return IncomingCall{}, false
	}
	return *c.current, true
}

func (c *Call) handleIncoming(f Frame) {
	var in IncomingCall
	if err := f.Decode(&in); err != nil || in.From == "" {
		return
	}
	c.mu.Lock()
	busy := c.current != nil && c.current.From != in.From
	if !busy {
		c.current = &in
	}
	c.mu.Unlock()
	if busy {
		_ = c.conn.Emit(EventCallReject, peerPayload{To: in.From})
		return
	}
	if c.events.Incoming != nil {
		c.events.Incoming(in)
	}
}

func (c *Call) handleCandidate(f Frame) {
	var in struct {
		Candidate json.RawMessage `json:"candidate"`
	}
	if err := f.Decode(&in); err != nil || len(in.Candidate) == 0 {
		return
	}
	if _, ok := c.Current(); !ok {
		return
	}
	if c.events.Candidate != nil {
		c.events.Candidate(in.Candidate)
	}
}

// Answer sends the browser's SDP answer to the caller.
func (c *Call) Answer(answer json.RawMessage) error {
	call, ok := c.Current()
	if !ok {
		return ErrNoActiveCall
	}
	return c.conn.Emit(EventCallAnswer, answerPayload{To: call.From, Answer: answer, From: c.userID})
}

// Candidate sends a local ICE candidate to the caller.
func (c *Call) Candidate(candidate json.RawMessage) error {
	call, ok := c.Current()
	if !ok {
		return ErrNoActiveCall
	}
	return c.conn.Emit(EventCallICE, candidatePayload{To: call.From, Candidate: candidate})
}

// Reject declines the current call.
func (c *Call) Reject() error {
	return c.hangUp(EventCallReject)
}

// End hangs up the current call.
func (c *Call) End() error {
	return c.hangUp(EventCallEnd)
}

func (c *Call) hangUp(event string) error {
	c.mu.Lock()
	call := c.current
	c.current = nil
	c.mu.Unlock()
	if call == nil {
		return ErrNoActiveCall
	}
	return c.conn.Emit(event, peerPayload{To: call.From})
}

func (c *Call) finish() {
	c.mu.Lock()
	had := c.current != nil
	c.current = nil
	c.mu.Unlock()
	if had && c.events.Ended != nil {
		c.events.Ended()
	}
}
