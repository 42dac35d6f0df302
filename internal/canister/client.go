// Package canister is the boundary to the remote marketplace
// backend. Every call goes through a JSON gateway that wraps the
// canister's Ok/Err result variants; this client unwraps them and
// normalizes wire shapes into the models package.
package canister

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bazarek/internal/models"
)

type Client struct {
	baseURL    string
	principal  string
	httpClient *http.Client
}

func NewClient(baseURL, principal string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		principal: principal,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// result is the canister's Ok/Err variant envelope.
type result struct {
	Ok  json.RawMessage `json:"Ok"`
	Err *string         `json:"Err"`
}

func (c *Client) call(ctx context.Context, method string, args any, out any) error {
	var body bytes.Buffer
	if args != nil {
		if err := json.NewEncoder(&body).Encode(args); err != nil {
			return fmt.Errorf("failed to encode %s args: %w", method, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call/"+method, &body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Principal", c.principal)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s failed: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("call %s returned status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var res result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if res.Err != nil {
		return mapError(method, *res.Err)
	}
	if out != nil {
		if err := json.Unmarshal(res.Ok, out); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", method, err)
		}
	}
	return nil
}

func mapError(method, msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not a participant"):
		return fmt.Errorf("%s: %w", method, models.ErrNotParticipant)
	case strings.Contains(lower, "not found"):
		return fmt.Errorf("%s: %w", method, models.ErrNotFound)
	default:
		return fmt.Errorf("%s rejected: %s", method, msg)
	}
}

// Wire shapes. The backend keys fields snake_case and tracks time in
// nanoseconds since epoch.

type wireMessage struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Timestamp   int64  `json:"timestamp"`
	Read        bool   `json:"read"`
}

type wireConversation struct {
	ID              string          `json:"id"`
	Participants    []string        `json:"participants"`
	ListingID       int64           `json:"listing_id"`
	ListingTitle    string          `json:"listing_title"`
	Messages        []wireMessage   `json:"messages"`
	CreatedAt       int64           `json:"created_at"`
	LastMessageTime *int64          `json:"last_message_time"`
	UnreadCounts    map[string]int  `json:"unread_counts"`
	TypingUsers     map[string]bool `json:"typing_users"`
}

func (m wireMessage) toModel() models.Message {
	typ := models.MessageType(m.MessageType)
	if typ == "" {
		typ = models.MessageTypeText
	}
	return models.Message{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      typ,
		Timestamp: time.Unix(0, m.Timestamp),
		Read:      m.Read,
		Status:    models.MessageStatusConfirmed,
	}
}

func (c *Client) toConversation(w wireConversation) models.Conversation {
	msgs := make([]models.Message, len(w.Messages))
	for i, m := range w.Messages {
		msgs[i] = m.toModel()
	}
	conv := models.Conversation{
		ID:           w.ID,
		Participants: w.Participants,
		ListingID:    w.ListingID,
		ListingTitle: w.ListingTitle,
		Messages:     msgs,
		CreatedAt:    time.Unix(0, w.CreatedAt),
		UnreadCount:  w.UnreadCounts[c.principal],
		TypingUsers:  w.TypingUsers,
	}
	if w.LastMessageTime != nil {
		conv.LastMessageTime = time.Unix(0, *w.LastMessageTime)
	}
	if len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		conv.LastMessage = &last
		conv.LastMessageTime = last.Timestamp
	}
	return conv
}

// Conversation API.

func (c *Client) CreateConversation(ctx context.Context, listingID int64) (models.Conversation, error) {
	var w wireConversation
	args := map[string]any{"listing_id": listingID}
	if err := c.call(ctx, "create_conversation", args, &w); err != nil {
		return models.Conversation{}, err
	}
	return c.toConversation(w), nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (models.Message, error) {
	var w wireMessage
	args := map[string]any{"conversation_id": conversationID, "content": content}
	if err := c.call(ctx, "send_chat_message", args, &w); err != nil {
		return models.Message{}, err
	}
	return w.toModel(), nil
}

func (c *Client) GetConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var wire []wireMessage
	args := map[string]any{"conversation_id": conversationID}
	if err := c.call(ctx, "get_conversation_messages", args, &wire); err != nil {
		return nil, err
	}
	msgs := make([]models.Message, len(wire))
	for i, m := range wire {
		msgs[i] = m.toModel()
	}
	return msgs, nil
}

func (c *Client) GetUserConversations(ctx context.Context) ([]models.Conversation, error) {
	var wire []wireConversation
	if err := c.call(ctx, "get_user_conversations", nil, &wire); err != nil {
		return nil, err
	}
	convs := make([]models.Conversation, len(wire))
	for i, w := range wire {
		convs[i] = c.toConversation(w)
	}
	return convs, nil
}

func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	args := map[string]any{"conversation_id": conversationID}
	return c.call(ctx, "mark_conversation_read", args, nil)
}

func (c *Client) SetTypingStatus(ctx context.Context, conversationID string, isTyping bool) error {
	args := map[string]any{"conversation_id": conversationID, "is_typing": isTyping}
	return c.call(ctx, "set_typing_status", args, nil)
}
