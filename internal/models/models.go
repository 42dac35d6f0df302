package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNotParticipant = errors.New("not a conversation participant")
)

// MessageStatus tracks the lifecycle of a locally observed message.
// A message never moves back from confirmed to pending.
type MessageStatus string

const (
	// MessageStatusPending is an optimistic local message awaiting server confirmation.
	MessageStatusPending MessageStatus = "pending"
	// MessageStatusConfirmed is a server-acknowledged message.
	MessageStatusConfirmed MessageStatus = "confirmed"
	// MessageStatusFailed is a send attempt that errored. It stays visible.
	MessageStatusFailed MessageStatus = "failed"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Message represents a single chat message. ID is server-assigned for
// confirmed messages and a client-generated temporary id for pending ones.
type Message struct {
	ID        string        `json:"id"`
	SenderID  string        `json:"senderId"`
	Content   string        `json:"content"`
	Type      MessageType   `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Read      bool          `json:"read"`
	Status    MessageStatus `json:"status"`
}

// Conversation is the per-listing thread between exactly two users.
type Conversation struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	ListingID    int64     `json:"listingId"`
	ListingTitle string    `json:"listingTitle,omitempty"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"createdAt"`

	// Derived from Messages, cached for list rendering.
	LastMessage     *Message  `json:"lastMessage,omitempty"`
	LastMessageTime time.Time `json:"lastMessageTime,omitzero"`

	UnreadCount int             `json:"unreadCount"`
	TypingUsers map[string]bool `json:"typingUsers,omitempty"`
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// User represents a marketplace user profile.
type User struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	PhoneNumber string  `json:"phoneNumber"`
	CompanyName string  `json:"companyName"`
	CreatedAt   int64   `json:"createdAt"`
	FavoriteIDs []int64 `json:"favoriteIds,omitempty"`
}

// Listing is a marketplace offer.
type Listing struct {
	ID             int64    `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	CategoriesPath string   `json:"categoriesPath"`
	Price          float64  `json:"price"`
	Amount         int      `json:"amount"`
	OwnerID        string   `json:"ownerId"`
	ImageIDs       []int64  `json:"imageIds,omitempty"`
	CreatedAt      int64    `json:"createdAt"`
	Reviews        []Review `json:"reviews,omitempty"`
}

type Review struct {
	OwnerID string `json:"ownerId"`
	Rating  int    `json:"rating"` // 0-5
	Comment string `json:"comment"`
}

// Category is a node in the marketplace category tree.
type Category struct {
	Name     string     `json:"name"`
	Children []Category `json:"children,omitempty"`
}
