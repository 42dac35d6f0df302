// Package stubs provides sample conversations and listings for
// development without a reachable canister.
package stubs

import (
	"time"

	"bazarek/internal/models"
)

// SampleConversations returns two seeded conversations with userID
// as one participant.
func SampleConversations(userID string) []models.Conversation {
	now := time.Now()

	apples := models.Conversation{
		ID:           "sample-conv-1",
		Participants: []string{userID, "user-anna"},
		ListingID:    1,
		ListingTitle: "Organic Apples",
		CreatedAt:    now.Add(-48 * time.Hour),
		UnreadCount:  2,
		TypingUsers:  map[string]bool{},
		Messages: []models.Message{
			{ID: "msg-1", SenderID: "user-anna", Content: "Hi! I'm interested in your organic apples. Are they still available?", Type: models.MessageTypeText, Timestamp: now.Add(-48 * time.Hour), Read: true, Status: models.MessageStatusConfirmed},
			{ID: "msg-2", SenderID: userID, Content: "Hello! Yes, they are still available. How many kilograms would you like?", Type: models.MessageTypeText, Timestamp: now.Add(-48*time.Hour + 10*time.Minute), Read: true, Status: models.MessageStatusConfirmed},
			{ID: "msg-3", SenderID: "user-anna", Content: "I'd like to order 10kg. What's the price per kilogram?", Type: models.MessageTypeText, Timestamp: now.Add(-1 * time.Hour), Status: models.MessageStatusConfirmed},
			{ID: "msg-4", SenderID: "user-anna", Content: "And do you have any certificates for organic farming?", Type: models.MessageTypeText, Timestamp: now.Add(-30 * time.Minute), Status: models.MessageStatusConfirmed},
		},
	}

	vegetables := models.Conversation{
		ID:           "sample-conv-2",
		Participants: []string{userID, "user-piotr"},
		ListingID:    2,
		ListingTitle: "Fresh Vegetables Bundle",
		CreatedAt:    now.Add(-24 * time.Hour),
		TypingUsers:  map[string]bool{},
		Messages: []models.Message{
			{ID: "msg-5", SenderID: "user-piotr", Content: "Hello, I saw your vegetable bundle. What exactly is included?", Type: models.MessageTypeText, Timestamp: now.Add(-24 * time.Hour), Read: true, Status: models.MessageStatusConfirmed},
			{ID: "msg-6", SenderID: userID, Content: "Hi! The bundle includes carrots, potatoes, onions, and tomatoes. All freshly harvested.", Type: models.MessageTypeText, Timestamp: now.Add(-23 * time.Hour), Read: true, Status: models.MessageStatusConfirmed},
		},
	}

	return []models.Conversation{apples, vegetables}
}
