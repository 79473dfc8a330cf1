package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/KoushikPanda1729/client-ui/internal/platform/upstream"
)

// HistoryClient reads chat history from the chat service's HTTP API.
type HistoryClient struct {
	api *upstream.Client
}

// NewHistoryClient wraps a chat service client.
func NewHistoryClient(api *upstream.Client) (*HistoryClient, error) {
	if api == nil {
		return nil, errors.New("history client: upstream client is required")
	}
	return &HistoryClient{api: api}, nil
}

func roomPath(roomID string) (string, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return "", errors.New("realtime: room id is required")
	}
	return "/messages/" + url.PathEscape(roomID), nil
}

// History returns a room's messages, oldest first.
func (h *HistoryClient) History(ctx context.Context, roomID string) ([]ChatMessage, error) {
	path, err := roomPath(roomID)
	if err != nil {
		return nil, err
	}
	var out struct {
		Messages []ChatMessage `json:"messages"`
	}
	if err := h.api.Get(ctx, path, nil, &out); err != nil {
		return nil, fmt.Errorf("chat history: %w", err)
	}
	if out.Messages == nil {
		out.Messages = []ChatMessage{}
	}
	return out.Messages, nil
}

// UnreadCount returns how many messages the customer has not read.
func (h *HistoryClient) UnreadCount(ctx context.Context, roomID string) (int, error) {
	path, err := roomPath(roomID)
	if err != nil {
		return 0, err
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := h.api.Get(ctx, path+"/unread/count", url.Values{"role": {RoleCustomer}}, &out); err != nil {
		return 0, fmt.Errorf("chat unread count: %w", err)
	}
	return out.Count, nil
}
