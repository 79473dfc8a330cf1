package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/KoushikPanda1729/client-ui/internal/auth"
	"github.com/KoushikPanda1729/client-ui/internal/domain"
	"github.com/KoushikPanda1729/client-ui/internal/platform/httpx"
	"github.com/KoushikPanda1729/client-ui/internal/realtime"
	"github.com/KoushikPanda1729/client-ui/internal/session"
)

// Frames only exchanged between the browser and this service.
const (
	eventChatPanel = "chat:panel"
	eventError     = "error"
)

var errOriginDenied = errors.New("handlers: websocket origin not allowed")

// SocketConfig locates the upstream realtime services.
type SocketConfig struct {
	ChatURL        string
	CallURL        string
	OrderURL       string
	AllowedOrigins []string
}

// SocketHandlers bridge browser WebSockets to the upstream realtime services.
// The browser speaks the same {event, data} frames; the bridge owns the channel
// state (unread count, current call) on the session.
type SocketHandlers struct {
	cfg     SocketConfig
	history *realtime.HistoryClient
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewSocketHandlers constructs the bridges. history may be nil.
func NewSocketHandlers(cfg SocketConfig, history *realtime.HistoryClient, logger func(ctx context.Context, event string, fields map[string]any)) *SocketHandlers {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &SocketHandlers{cfg: cfg, history: history, logger: logger}
}

// Routes wires /chat, /call and /orders under /ws.
func (h *SocketHandlers) Routes(r chi.Router) {
	r.Get("/chat", func(w http.ResponseWriter, r *http.Request) { h.serve(w, r, "chat", h.cfg.ChatURL, h.attachChat) })
	r.Get("/call", func(w http.ResponseWriter, r *http.Request) { h.serve(w, r, "call", h.cfg.CallURL, h.attachCall) })
	r.Get("/orders", func(w http.ResponseWriter, r *http.Request) { h.serve(w, r, "orders", h.cfg.OrderURL, h.attachOrders) })
}

// bridge is one browser socket paired with its upstream socket.
type bridge struct {
	user     domain.User
	upstream *realtime.Conn
	browser  *realtime.Conn
	logger   func(ctx context.Context, event string, fields map[string]any)
	ctx      context.Context
}

func (b *bridge) forward(f realtime.Frame) {
	_ = b.browser.Send(f)
}

func (b *bridge) fail(event string, err error) {
	b.logger(b.ctx, "socket.frame_failed", map[string]any{"event": event, "error": err.Error()})
	_ = b.browser.Emit(eventError, map[string]string{"event": event, "message": err.Error()})
}

// relay decodes browser frames of event into T and hands them to fn.
func relay[T any](b *bridge, event string, fn func(T) error) {
	b.browser.On(event, func(f realtime.Frame) {
		var in T
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &in); err != nil {
				b.fail(event, err)
				return
			}
		}
		if err := fn(in); err != nil {
			b.fail(event, err)
		}
	})
}

func (h *SocketHandlers) originAllowed(origin string) bool {
	if len(h.cfg.AllowedOrigins) == 0 || slices.Contains(h.cfg.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, strings.TrimRight(origin, "/"))
}

func (h *SocketHandlers) handshake(cfg *websocket.Config, r *http.Request) error {
	origin := r.Header.Get("Origin")
	if !h.originAllowed(origin) {
		return errOriginDenied
	}
	if origin != "" {
		u, err := url.Parse(origin)
		if err != nil {
			return err
		}
		cfg.Origin = u
	}
	return nil
}

func (h *SocketHandlers) serve(w http.ResponseWriter, r *http.Request, channel, target string, attach func(*bridge) error) {
	sess, user, r, ok := signedIn(w, r)
	if !ok {
		return
	}
	if !h.originAllowed(r.Header.Get("Origin")) {
		httpx.WriteError(r.Context(), w, httpx.NewError("origin_not_allowed", "origin not allowed", http.StatusForbidden))
		return
	}
	if strings.TrimSpace(target) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("channel_unavailable", channel+" is not available right now.", http.StatusServiceUnavailable))
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	up, err := realtime.Dial(r.Context(), realtime.DialConfig{URL: target, Header: authHeader(sess)})
	if err != nil {
		h.logger(ctx, "socket.dial_failed", map[string]any{"channel": channel, "error": err.Error()})
		httpx.WriteError(r.Context(), w, httpx.NewError("channel_unavailable", channel+" is not available right now.", http.StatusBadGateway))
		return
	}

	server := websocket.Server{
		Handshake: h.handshake,
		Handler: func(ws *websocket.Conn) {
			// Hijacked connections keep the server's read and write deadlines.
			_ = ws.SetDeadline(time.Time{})
			browser := realtime.NewConn(ws)
			b := &bridge{user: user, upstream: up, browser: browser, logger: h.logger, ctx: ctx}
			if err := trackBoth(sess, up, browser); err != nil {
				return
			}
			browser.OnClose(func(error) { _ = up.Close() })
			up.OnClose(func(error) { _ = browser.Close() })
			if err := attach(b); err != nil {
				h.logger(ctx, "socket.attach_failed", map[string]any{"channel": channel, "error": err.Error()})
				_ = browser.Close()
				return
			}
			h.logger(ctx, "socket.opened", map[string]any{"channel": channel, "userID": user.IDString()})
			go func() { _ = up.Run(ctx) }()
			_ = browser.Run(ctx)
			h.logger(ctx, "socket.closed", map[string]any{"channel": channel, "userID": user.IDString()})
		},
	}
	server.ServeHTTP(w, r)
	_ = up.Close()
}

func trackBoth(sess *session.Session, conns ...*realtime.Conn) error {
	for _, c := range conns {
		if err := sess.Track(c); err != nil {
			for _, other := range conns {
				_ = other.Close()
			}
			return err
		}
	}
	return nil
}

func authHeader(sess *session.Session) http.Header {
	token := sess.Tokens().AccessToken()
	if token == "" {
		return nil
	}
	return http.Header{"Cookie": {(&http.Cookie{Name: auth.AccessCookie, Value: token}).String()}}
}

func displayName(u domain.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

type chatTextFrame struct {
	Text string `json:"text"`
}

type chatTypingFrame struct {
	IsTyping bool `json:"isTyping"`
}

type chatPanelFrame struct {
	Open bool `json:"open"`
}

func (h *SocketHandlers) attachChat(b *bridge) error {
	emitUnread := func(n int) { _ = b.browser.Emit(realtime.EventChatUnread, map[string]int{"count": n}) }
	chat, err := realtime.NewChat(realtime.ChatDeps{
		Conn:     b.upstream,
		UserID:   b.user.IDString(),
		Name:     displayName(b.user),
		OnUnread: emitUnread,
	})
	if err != nil {
		return err
	}
	for _, event := range []string{realtime.EventChatMessage, realtime.EventChatTyping, realtime.EventChatRead} {
		b.upstream.On(event, b.forward)
	}

	relay(b, realtime.EventChatMessage, func(in chatTextFrame) error {
		_, err := chat.Send(in.Text)
		return err
	})
	relay(b, realtime.EventChatTyping, func(in chatTypingFrame) error { return chat.Typing(in.IsTyping) })
	relay(b, realtime.EventChatRead, func(struct{}) error { return chat.MarkRead() })
	relay(b, eventChatPanel, func(in chatPanelFrame) error { return chat.SetPanelOpen(in.Open) })

	if h.history != nil {
		if n, err := h.history.UnreadCount(b.ctx, chat.RoomID()); err == nil {
			chat.SetUnread(n)
			emitUnread(chat.Unread())
		} else {
			b.logger(b.ctx, "chat.unread_failed", map[string]any{"error": err.Error()})
		}
	}
	return chat.Join()
}

type answerFrame struct {
	Answer json.RawMessage `json:"answer"`
}

type candidateFrame struct {
	Candidate json.RawMessage `json:"candidate"`
}

func (h *SocketHandlers) attachCall(b *bridge) error {
	call, err := realtime.NewCall(b.upstream, b.user.IDString(), realtime.CallEvents{
		Incoming:  func(in realtime.IncomingCall) { _ = b.browser.Emit(realtime.EventCallIncoming, in) },
		Candidate: func(c json.RawMessage) { _ = b.browser.Emit(realtime.EventCallICE, candidateFrame{Candidate: c}) },
		Ended:     func() { _ = b.browser.Emit(realtime.EventCallEnded, nil) },
	})
	if err != nil {
		return err
	}
	relay(b, realtime.EventCallAnswer, func(in answerFrame) error { return call.Answer(in.Answer) })
	relay(b, realtime.EventCallICE, func(in candidateFrame) error { return call.Candidate(in.Candidate) })
	relay(b, realtime.EventCallReject, func(struct{}) error { return call.Reject() })
	relay(b, realtime.EventCallEnd, func(struct{}) error { return call.End() })
	return call.Register()
}

func (h *SocketHandlers) attachOrders(b *bridge) error {
	feed, err := realtime.NewOrderFeed(b.upstream, b.user.IDString(), b.forward)
	if err != nil {
		return err
	}
	return feed.Join()
}
