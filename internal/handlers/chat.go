package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/KoushikPanda1729/client-ui/internal/platform/httpx"
	"github.com/KoushikPanda1729/client-ui/internal/realtime"
)

// ChatHandlers serve the support chat history for the signed-in shopper's room.
type ChatHandlers struct {
	history *realtime.HistoryClient
}

// NewChatHandlers constructs chat routes.
func NewChatHandlers(history *realtime.HistoryClient) *ChatHandlers {
	return &ChatHandlers{history: history}
}

// Routes wires /chat.
func (h *ChatHandlers) Routes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Get("/history", h.getHistory)
		r.Get("/unread", h.getUnread)
	})
}

func (h *ChatHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.history == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("chat_unavailable", "Chat is not available right now.", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *ChatHandlers) getHistory(w http.ResponseWriter, r *http.Request) {
	_, user, r, ok := signedIn(w, r)
	if !ok || !h.available(w, r) {
		return
	}
	messages, err := h.history.History(r.Context(), user.IDString())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"roomId": user.IDString(), "messages": messages})
}

func (h *ChatHandlers) getUnread(w http.ResponseWriter, r *http.Request) {
	_, user, r, ok := signedIn(w, r)
	if !ok || !h.available(w, r) {
		return
	}
	count, err := h.history.UnreadCount(r.Context(), user.IDString())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"count": count})
}
