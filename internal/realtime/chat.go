package realtime

import (
	"errors"
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// Chat events.
const (
	EventChatJoin    = "chat:join"
	EventChatLeave   = "chat:leave"
	EventChatMessage = "chat:message"
	EventChatTyping  = "chat:typing"
	EventChatRead    = "chat:read"

	// EventChatUnread is emitted to the browser when the unread count changes.
	EventChatUnread = "chat:unread"
)

// Sender roles.
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

const (
	maxMessageLength  = 2000
	maxSanitizePasses = 4
)

// ErrEmptyMessage is returned when a message has no text after sanitizing.
var ErrEmptyMessage = errors.New("realtime: empty chat message")

// ChatMessage is a support chat message.
type ChatMessage struct {
	ID         string `json:"_id,omitempty"`
	RoomID     string `json:"roomId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	SenderRole string `json:"senderRole"`
	Text       string `json:"text"`
	Read       bool   `json:"read"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// Typing is a typing indicator.
type Typing struct {
	RoomID     string `json:"roomId"`
	SenderName string `json:"senderName"`
	IsTyping   bool   `json:"isTyping"`
}

// ReadReceipt marks a room read by a role.
type ReadReceipt struct {
	RoomID     string `json:"roomId"`
	ReaderRole string `json:"readerRole"`
}

// Chat is a customer's support chat channel. The customer's room id is their user id.
type Chat struct {
	conn     *Conn
	userID   string
	name     string
	policy   *bluemonday.Policy
	onUnread func(int)

	mu     sync.Mutex
	room   string
	open   bool
	unread int
}

// ChatDeps wires a Chat.
type ChatDeps struct {
	Conn     *Conn
	UserID   string
	Name     string
	OnUnread func(count int)
}

// NewChat attaches chat handling to conn.
func NewChat(deps ChatDeps) (*Chat, error) {
	if deps.Conn == nil {
		return nil, errors.New("chat: connection is required")
	}
	if strings.TrimSpace(deps.UserID) == "" {
		return nil, errors.New("chat: user id is required")
	}
	c := &Chat{
		conn:     deps.Conn,
		userID:   deps.UserID,
		name:     deps.Name,
		policy:   bluemonday.StrictPolicy(),
		onUnread: deps.OnUnread,
	}
	deps.Conn.On(EventChatMessage, c.handleMessage)
	return c, nil
}

// RoomID returns the customer's room.
func (c *Chat) RoomID() string { return c.userID }

func (c *Chat) handleMessage(f Frame) {
	var msg ChatMessage
	if err := f.Decode(&msg); err != nil {
		return
	}
	if msg.SenderRole != RoleAdmin || msg.RoomID != c.userID {
		return
	}
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return
	}
	c.unread++
	n := c.unread
	c.mu.Unlock()
	if c.onUnread != nil {
		c.onUnread(n)
	}
}

// Join enters the customer's room.
func (c *Chat) Join() error {
	c.mu.Lock()
	c.room = c.userID
	c.mu.Unlock()
	return c.conn.Emit(EventChatJoin, c.userID)
}

// Leave exits the room.
func (c *Chat) Leave() error {
	c.mu.Lock()
	c.room = ""
	c.mu.Unlock()
	return c.conn.Emit(EventChatLeave, c.userID)
}

// Send posts a message as the customer. Markup is stripped.
func (c *Chat) Send(text string) (ChatMessage, error) {
	clean := c.Sanitize(text)
	if clean == "" {
		return ChatMessage{}, ErrEmptyMessage
	}
	msg := ChatMessage{
		RoomID:     c.userID,
		SenderID:   c.userID,
		SenderName: c.name,
		SenderRole: RoleCustomer,
		Text:       clean,
	}
	return msg, c.conn.Emit(EventChatMessage, msg)
}

// Sanitize returns text as plain text: markup is stripped, entities are decoded,
// surrounding whitespace is trimmed and the length is bounded. Entity-encoded
// markup is decoded before stripping, so it cannot survive as live tags.
func (c *Chat) Sanitize(text string) string {
	clean := text
	stable := false
	for i := 0; i < maxSanitizePasses && !stable; i++ {
		next := html.UnescapeString(c.policy.Sanitize(html.UnescapeString(clean)))
		stable = next == clean
		clean = next
	}
	if !stable {
		// Still nested after every pass: keep it escaped.
		clean = c.policy.Sanitize(clean)
	}
	clean = strings.TrimSpace(clean)
	if r := []rune(clean); len(r) > maxMessageLength {
		clean = string(r[:maxMessageLength])
	}
	return clean
}

// Typing broadcasts a typing indicator.
func (c *Chat) Typing(isTyping bool) error {
	return c.conn.Emit(EventChatTyping, Typing{RoomID: c.userID, SenderName: c.name, IsTyping: isTyping})
}

// MarkRead tells the service the customer has read the room.
func (c *Chat) MarkRead() error {
	return c.conn.Emit(EventChatRead, ReadReceipt{RoomID: c.userID, ReaderRole: RoleCustomer})
}

// SetPanelOpen records whether the chat panel is visible. Opening it resets the
// unread count and marks the room read.
func (c *Chat) SetPanelOpen(open bool) error {
	c.mu.Lock()
	c.open = open
	changed := open && c.unread != 0
	if open {
		c.unread = 0
	}
	c.mu.Unlock()
	if changed && c.onUnread != nil {
		c.onUnread(0)
	}
	if open {
		return c.MarkRead()
	}
	return nil
}

// SetUnread seeds the unread count, typically from the history service.
func (c *Chat) SetUnread(n int) {
	c.mu.Lock()
	if c.open {
		n = 0
	}
	c.unread = max(0, n)
	c.mu.Unlock()
}

// Unread returns the unread admin message count.
func (c *Chat) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}
