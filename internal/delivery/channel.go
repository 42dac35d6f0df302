// Package delivery abstracts how server-side conversation updates
// reach the client: a live websocket push feed or a periodic poll.
// Both variants normalize payloads into the canonical shapes and feed
// the same handler, so the rest of the client never knows which one
// is active.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bazarek/internal/models"
)

// Status of the underlying transport.
type Status string

const (
	StatusConnected Status = "connected"
	StatusDegraded  Status = "degraded"
	// StatusDisconnected is terminal: the reconnect budget ran out
	// and the UI should offer manual refresh instead.
	StatusDisconnected Status = "disconnected"
)

var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// Handler receives normalized delivery events. chat.Service
// implements it.
type Handler interface {
	HandleMessage(conversationID string, msg models.Message)
	HandleTyping(conversationID, userID string, isTyping bool)
}

// Channel is one running delivery transport.
type Channel interface {
	// Run blocks until ctx is cancelled or the transport gives up.
	Run(ctx context.Context) error
	Status() Status
}

// OnDemandRefresher is implemented by transports that can fetch a
// conversation outside their regular schedule. The pull channel is
// one; the push feed has nothing to fetch.
type OnDemandRefresher interface {
	RequestRefresh(conversationID string)
}

// wirePayload is the raw push frame the gateway emits. Timestamps
// are nanoseconds since epoch, matching the backend clock.
type wirePayload struct {
	MessageType    string `json:"message_type"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	UserID         string `json:"user_id"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
	IsTyping       bool   `json:"is_typing"`
}

const (
	payloadNewMessage   = "new_message"
	payloadTypingStatus = "typing_status"
	payloadConnected    = "connection_established"
)

var errUnknownPayload = errors.New("unknown payload type")

// dispatchPayload decodes one raw frame and routes it. Malformed or
// unrecognized frames return an error for logging; they never stop
// the feed.
func dispatchPayload(raw []byte, handler Handler, newID func() string) error {
	var p wirePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	switch p.MessageType {
	case payloadNewMessage:
		if p.ConversationID == "" {
			return errors.New("new_message payload missing conversation_id")
		}
		handler.HandleMessage(p.ConversationID, models.Message{
			// Push frames carry no server id; a provisional one keeps
			// the entry addressable until the next history fetch
			// replaces it with the real record.
			ID:        newID(),
			SenderID:  p.SenderID,
			Content:   p.Content,
			Type:      models.MessageTypeText,
			Timestamp: time.Unix(0, p.Timestamp),
			Status:    models.MessageStatusConfirmed,
		})
	case payloadTypingStatus:
		if p.ConversationID == "" {
			return errors.New("typing_status payload missing conversation_id")
		}
		handler.HandleTyping(p.ConversationID, p.UserID, p.IsTyping)
	case payloadConnected:
		// Informational only.
	default:
		return fmt.Errorf("%w: %q", errUnknownPayload, p.MessageType)
	}
	return nil
}
