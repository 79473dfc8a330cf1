package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/KoushikPanda1729/client-ui/internal/platform/upstream"
)

const waitFor = 2 * time.Second

type peer struct {
	ws  *websocket.Conn
	got chan Frame
}

func (p *peer) send(t *testing.T, event string, data any) {
	t.Helper()
	frame, err := NewFrame(event, data)
	require.NoError(t, err)
	require.NoError(t, websocket.JSON.Send(p.ws, frame))
}

func (p *peer) expect(t *testing.T, event string) Frame {
	t.Helper()
	select {
	case f := <-p.got:
		require.Equal(t, event, f.Event)
		return f
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %s", event)
		return Frame{}
	}
}

// connect starts a channel server and returns a running client Conn and the server side.
func connect(t *testing.T) (*Conn, *peer) {
	t.Helper()
	peers := make(chan *peer, 1)
	srv := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		p := &peer{ws: ws, got: make(chan Frame, 16)}
		peers <- p
		for {
			var f Frame
			if err := websocket.JSON.Receive(ws, &f); err != nil {
				return
			}
			p.got <- f
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	conn, err := Dial(ctx, DialConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	require.NoError(t, err)
	go func() { _ = conn.Run(ctx) }()
	t.Cleanup(func() { _ = conn.Close() })

	select {
	case p := <-peers:
		return conn, p
	case <-time.After(waitFor):
		t.Fatal("server never accepted the connection")
		return nil, nil
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

func TestConnDispatchesAndReportsClose(t *testing.T) {
	conn, p := connect(t)

	events := make(chan string, 4)
	all := make(chan string, 4)
	closed := make(chan error, 1)
	off := conn.On("ping", func(f Frame) {
		var n int
		require.NoError(t, f.Decode(&n))
		events <- "ping"
	})
	conn.OnAny(func(f Frame) { all <- f.Event })
	conn.OnClose(func(err error) { closed <- err })

	p.send(t, "ping", 1)
	assert.Equal(t, "ping", receive(t, events))
	assert.Equal(t, "ping", receive(t, all))

	off()
	p.send(t, "ping", 2)
	assert.Equal(t, "ping", receive(t, all))
	assert.Empty(t, events)

	require.NoError(t, conn.Emit("pong", map[string]int{"n": 1}))
	got := p.expect(t, "pong")
	assert.JSONEq(t, `{"n":1}`, string(got.Data))

	require.NoError(t, p.ws.Close())
	receive(t, closed)
	<-conn.Done()
	assert.ErrorIs(t, conn.Emit("pong", nil), ErrClosed)

	late := make(chan struct{}, 1)
	conn.OnClose(func(error) { late <- struct{}{} })
	receive(t, late)
}

func TestFrameDecodeRequiresData(t *testing.T) {
	f, err := NewFrame("empty", nil)
	require.NoError(t, err)
	var v map[string]any
	assert.Error(t, f.Decode(&v))
}

func TestChatSanitizesOutgoingMessages(t *testing.T) {
	conn, p := connect(t)
	chat, err := NewChat(ChatDeps{Conn: conn, UserID: "u1", Name: "Asha"})
	require.NoError(t, err)

	require.NoError(t, chat.Join())
	join := p.expect(t, EventChatJoin)
	assert.JSONEq(t, `"u1"`, string(join.Data))

	msg, err := chat.Send("  <b>hot</b> &amp; <script>alert(1)</script>fresh ")
	require.NoError(t, err)
	assert.Equal(t, "hot & fresh", msg.Text)

	var sent ChatMessage
	require.NoError(t, p.expect(t, EventChatMessage).Decode(&sent))
	assert.Equal(t, "u1", sent.RoomID)
	assert.Equal(t, RoleCustomer, sent.SenderRole)
	assert.Equal(t, "Asha", sent.SenderName)
	assert.Equal(t, "hot & fresh", sent.Text)

	_, err = chat.Send("<i></i>   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	require.NoError(t, chat.Typing(true))
	var typing Typing
	require.NoError(t, p.expect(t, EventChatTyping).Decode(&typing))
	assert.True(t, typing.IsTyping)

	assert.Len(t, []rune(chat.Sanitize(strings.Repeat("a", maxMessageLength+50))), maxMessageLength)

	for in, want := range map[string]string{
		"&lt;script&gt;alert(1)&lt;/script&gt;hi":      "hi",
		"&lt;b&gt;bold&lt;/b&gt;":                      "bold",
		"&amp;lt;img src=x onerror=alert(1)&amp;gt;ok": "ok",
		"2 &lt; 3":                                     "2 < 3",
	} {
		got := chat.Sanitize(in)
		assert.Equal(t, want, got, in)
		assert.NotContains(t, got, "<script", in)
	}
}

func TestChatCountsUnreadAdminMessagesWhileClosed(t *testing.T) {
	conn, p := connect(t)
	counts := make(chan int, 8)
	chat, err := NewChat(ChatDeps{Conn: conn, UserID: "u1", OnUnread: func(n int) { counts <- n }})
	require.NoError(t, err)

	p.send(t, EventChatMessage, ChatMessage{RoomID: "u2", SenderRole: RoleAdmin, Text: "other room"})
	p.send(t, EventChatMessage, ChatMessage{RoomID: "u1", SenderRole: RoleCustomer, Text: "echo"})
	p.send(t, EventChatMessage, ChatMessage{RoomID: "u1", SenderRole: RoleAdmin, Text: "hello"})
	assert.Equal(t, 1, receive(t, counts))
	p.send(t, EventChatMessage, ChatMessage{RoomID: "u1", SenderRole: RoleAdmin, Text: "still there?"})
	assert.Equal(t, 2, receive(t, counts))

	require.NoError(t, chat.SetPanelOpen(true))
	assert.Equal(t, 0, receive(t, counts))
	assert.Equal(t, 0, chat.Unread())
	var receipt ReadReceipt
	require.NoError(t, p.expect(t, EventChatRead).Decode(&receipt))
	assert.Equal(t, ReadReceipt{RoomID: "u1", ReaderRole: RoleCustomer}, receipt)

	synced := make(chan struct{}, 1)
	conn.On("sync", func(Frame) { synced <- struct{}{} })
	p.send(t, EventChatMessage, ChatMessage{RoomID: "u1", SenderRole: RoleAdmin, Text: "seen live"})
	p.send(t, "sync", nil)
	receive(t, synced)
	assert.Equal(t, 0, chat.Unread())
	require.NoError(t, chat.SetPanelOpen(false))
	p.send(t, EventChatMessage, ChatMessage{RoomID: "u1", SenderRole: RoleAdmin, Text: "missed"})
	assert.Equal(t, 1, receive(t, counts))

	chat.SetUnread(-3)
	assert.Equal(t, 0, chat.Unread())
}

func TestCallRejectsSecondOfferWhileBusy(t *testing.T) {
	conn, p := connect(t)
	incoming := make(chan IncomingCall, 2)
	candidates := make(chan string, 2)
	ended := make(chan struct{}, 2)
	call, err := NewCall(conn, "u1", CallEvents{
		Incoming:  func(c IncomingCall) { incoming <- c },
		Candidate: func(c json.RawMessage) { candidates <- string(c) },
		Ended:     func() { ended <- struct{}{} },
	})
	require.NoError(t, err)

	require.NoError(t, call.Register())
	reg := p.expect(t, EventRegister)
	assert.JSONEq(t, `"u1"`, string(reg.Data))

	assert.ErrorIs(t, call.Answer(json.RawMessage(`{}`)), ErrNoActiveCall)

	p.send(t, EventCallIncoming, IncomingCall{From: "staff-1", CallerName: "Support", Offer: json.RawMessage(`{"sdp":"o"}`)})
	first := receive(t, incoming)
	assert.Equal(t, "staff-1", first.From)

	p.send(t, EventCallIncoming, IncomingCall{From: "staff-2", Offer: json.RawMessage(`{"sdp":"x"}`)})
	var reject map[string]string
	require.NoError(t, p.expect(t, EventCallReject).Decode(&reject))
	assert.Equal(t, "staff-2", reject["to"])

	current, ok := call.Current()
	require.True(t, ok)
	assert.Equal(t, "staff-1", current.From)

	require.NoError(t, call.Answer(json.RawMessage(`{"sdp":"a"}`)))
	var answer map[string]json.RawMessage
	require.NoError(t, p.expect(t, EventCallAnswer).Decode(&answer))
	assert.JSONEq(t, `"staff-1"`, string(answer["to"]))
	assert.JSONEq(t, `"u1"`, string(answer["from"]))
	assert.JSONEq(t, `{"sdp":"a"}`, string(answer["answer"]))

	p.send(t, EventCallICE, map[string]any{"candidate": map[string]string{"c": "1"}})
	assert.JSONEq(t, `{"c":"1"}`, receive(t, candidates))

	p.send(t, EventCallEnded, nil)
	receive(t, ended)
	_, ok = call.Current()
	assert.False(t, ok)
	assert.ErrorIs(t, call.End(), ErrNoActiveCall)
}

func TestCallEndsWhenSocketCloses(t *testing.T) {
	conn, p := connect(t)
	incoming := make(chan IncomingCall, 1)
	ended := make(chan struct{}, 1)
	call, err := NewCall(conn, "u1", CallEvents{
		Incoming: func(c IncomingCall) { incoming <- c },
		Ended:    func() { ended <- struct{}{} },
	})
	require.NoError(t, err)

	p.send(t, EventCallIncoming, IncomingCall{From: "staff-1"})
	receive(t, incoming)
	require.NoError(t, p.ws.Close())
	receive(t, ended)
	_, ok := call.Current()
	assert.False(t, ok)
}

func TestCallHangUpNotifiesCaller(t *testing.T) {
	conn, p := connect(t)
	incoming := make(chan IncomingCall, 1)
	call, err := NewCall(conn, "u1", CallEvents{Incoming: func(c IncomingCall) { incoming <- c }})
	require.NoError(t, err)

	p.send(t, EventCallIncoming, IncomingCall{From: "staff-1"})
	receive(t, incoming)
	require.NoError(t, call.End())
	var end map[string]string
	require.NoError(t, p.expect(t, EventCallEnd).Decode(&end))
	assert.Equal(t, "staff-1", end["to"])
}

func TestOrderFeedJoinsCustomerRoom(t *testing.T) {
	conn, p := connect(t)
	got := make(chan Frame, 4)
	feed, err := NewOrderFeed(conn, "u1", func(f Frame) { got <- f })
	require.NoError(t, err)

	require.NoError(t, feed.Join())
	join := p.expect(t, EventJoin)
	assert.JSONEq(t, `"customer_u1"`, string(join.Data))

	p.send(t, "unrelated", nil)
	p.send(t, EventOrderStatusUpdated, map[string]string{"orderId": "o-1", "status": "prepared"})
	p.send(t, EventOrderPaymentRefunded, map[string]string{"orderId": "o-1"})
	assert.Equal(t, EventOrderStatusUpdated, receive(t, got).Event)
	assert.Equal(t, EventOrderPaymentRefunded, receive(t, got).Event)

	_, err = NewOrderFeed(conn, " ", func(Frame) {})
	assert.Error(t, err)
}

func TestHistoryClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/messages/u1":
			_, _ = w.Write([]byte(`{"messages":[{"_id":"m1","roomId":"u1","senderRole":"admin","text":"hi","read":false}]}`))
		case "/messages/u1/unread/count":
			assert.Equal(t, RoleCustomer, r.URL.Query().Get("role"))
			_, _ = w.Write([]byte(`{"count":3}`))
		case "/messages/empty":
			_, _ = w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	api, err := upstream.New(upstream.Config{Name: "chat", BaseURL: srv.URL})
	require.NoError(t, err)
	h, err := NewHistoryClient(api)
	require.NoError(t, err)

	msgs, err := h.History(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)

	empty, err := h.History(context.Background(), "empty")
	require.NoError(t, err)
	assert.NotNil(t, empty)

	n, err := h.UnreadCount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = h.History(context.Background(), "")
	assert.Error(t, err)
}
