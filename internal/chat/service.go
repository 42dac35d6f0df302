package chat

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"bazarek/internal/content"
	"bazarek/internal/models"
)

// Backend is the remote conversation API the service depends on.
type Backend interface {
	CreateConversation(ctx context.Context, listingID int64) (models.Conversation, error)
	SendMessage(ctx context.Context, conversationID, content string) (models.Message, error)
	GetConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	GetUserConversations(ctx context.Context) ([]models.Conversation, error)
	MarkConversationRead(ctx context.Context, conversationID string) error
	SetTypingStatus(ctx context.Context, conversationID string, isTyping bool) error
}

// Service drives the conversation store: lifecycle, the optimistic
// send path, read marking and the outgoing typing debounce. It is
// the only writer besides the delivery channel.
type Service struct {
	store   *Store
	backend Backend
	userID  string

	// Outgoing typing state, one debounce timer per conversation.
	typingMu     sync.Mutex
	typingActive map[string]*time.Timer

	// TypingQuietPeriod can be lowered in tests.
	TypingQuietPeriod time.Duration
}

func NewService(store *Store, backend Backend, userID string) *Service {
	return &Service{
		store:             store,
		backend:           backend,
		userID:            userID,
		typingActive:      make(map[string]*time.Timer),
		TypingQuietPeriod: DefaultTypingQuietPeriod,
	}
}

func (s *Service) Store() *Store {
	return s.store
}

func (s *Service) UserID() string {
	return s.userID
}

// CreateOrGetConversation returns the id of the conversation for
// (listing, current user, other user), creating it on the backend
// only when no local one exists. A failed creation leaves no partial
// conversation behind.
func (s *Service) CreateOrGetConversation(ctx context.Context, listingID int64, otherUserID string) (string, error) {
	if conv, ok := s.store.FindByListing(listingID, s.userID, otherUserID); ok {
		return conv.ID, nil
	}

	conv, err := s.backend.CreateConversation(ctx, listingID)
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	s.store.UpsertConversation(conv)
	return conv.ID, nil
}

// SendMessage shows the message immediately as pending, then sends
// it. On success the server echo collapses into the pending entry;
// on failure the entry flips to failed and stays visible. There is no
// automatic retry, a resend is an explicit user action.
func (s *Service) SendMessage(ctx context.Context, conversationID, body string) (models.Message, error) {
	body = content.Sanitize(body)
	if err := content.ValidateMessage(body); err != nil {
		return models.Message{}, err
	}
	if conv, ok := s.store.Get(conversationID); !ok {
		return models.Message{}, models.ErrNotFound
	} else if !conv.HasParticipant(s.userID) {
		return models.Message{}, models.ErrNotParticipant
	}

	s.stopTyping(conversationID)

	msg := models.Message{
		ID:        "tmp-" + uuid.NewString(),
		SenderID:  s.userID,
		Content:   body,
		Type:      models.MessageTypeText,
		Timestamp: time.Now(),
		Status:    models.MessageStatusPending,
	}
	s.store.AppendOptimisticMessage(conversationID, msg)

	confirmed, err := s.backend.SendMessage(ctx, conversationID, body)
	if err != nil {
		s.store.MarkMessageFailed(conversationID, msg.ID)
		return models.Message{}, fmt.Errorf("failed to send message: %w", err)
	}
	s.store.MergeIncomingMessage(conversationID, confirmed)
	return confirmed, nil
}

// OpenConversation makes the conversation the active one, refreshes
// its history and marks it read once. The read mark is local first;
// the backend notification is best effort.
func (s *Service) OpenConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	if _, ok := s.store.Get(conversationID); !ok {
		return models.Conversation{}, models.ErrNotFound
	}
	s.store.SetActive(conversationID)

	if err := s.RefreshMessages(ctx, conversationID); err != nil {
		log.Printf("failed to refresh conversation %s: %v", conversationID, err)
	}

	// Re-read after the refresh: unread messages may have been
	// discovered by the fetch the open itself just did.
	conv, _ := s.store.Get(conversationID)
	if conv.UnreadCount > 0 {
		s.store.MarkRead(conversationID)
		if err := s.backend.MarkConversationRead(ctx, conversationID); err != nil {
			log.Printf("failed to notify read state for %s: %v", conversationID, err)
		}
	}

	conv, _ = s.store.Get(conversationID)
	return conv, nil
}

// CloseConversation clears the active conversation and cancels any
// outgoing typing signal for it.
func (s *Service) CloseConversation(conversationID string) {
	if s.store.ActiveID() == conversationID {
		s.store.SetActive("")
	}
	s.stopTyping(conversationID)
}

// RefreshMessages fetches the full history and reconciles it into
// the store. Never a blind overwrite.
func (s *Service) RefreshMessages(ctx context.Context, conversationID string) error {
	msgs, err := s.backend.GetConversationMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}
	s.store.ReplaceMessages(conversationID, msgs)
	return nil
}

// SyncConversations pulls the user's conversation list. Known
// conversations get their histories reconciled, new ones are
// inserted as-is.
func (s *Service) SyncConversations(ctx context.Context) error {
	convs, err := s.backend.GetUserConversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch conversations: %w", err)
	}
	for _, conv := range convs {
		if _, ok := s.store.Get(conv.ID); ok {
			s.store.ReplaceMessages(conv.ID, conv.Messages)
		} else {
			s.store.UpsertConversation(conv)
		}
	}
	return nil
}

// StartTyping signals the first keystroke of a burst. Repeated calls
// while the quiet-period timer is armed only re-arm it; the network
// sees at most one start per burst.
func (s *Service) StartTyping(ctx context.Context, conversationID string) {
	s.typingMu.Lock()
	t, active := s.typingActive[conversationID]
	if active {
		t.Stop()
	}
	s.typingActive[conversationID] = time.AfterFunc(s.TypingQuietPeriod, func() {
		s.stopTyping(conversationID)
	})
	s.typingMu.Unlock()

	if !active {
		if err := s.backend.SetTypingStatus(ctx, conversationID, true); err != nil {
			log.Printf("failed to send typing start for %s: %v", conversationID, err)
		}
	}
}

// StopTyping ends the current burst explicitly, e.g. when the view
// is torn down.
func (s *Service) StopTyping(conversationID string) {
	s.stopTyping(conversationID)
}

func (s *Service) stopTyping(conversationID string) {
	s.typingMu.Lock()
	t, active := s.typingActive[conversationID]
	if active {
		t.Stop()
		delete(s.typingActive, conversationID)
	}
	s.typingMu.Unlock()

	if active {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.backend.SetTypingStatus(ctx, conversationID, false); err != nil {
			log.Printf("failed to send typing stop for %s: %v", conversationID, err)
		}
	}
}

// HandleMessage is the delivery-channel entry point for a pushed or
// polled message.
func (s *Service) HandleMessage(conversationID string, msg models.Message) {
	if _, ok := s.store.Get(conversationID); !ok {
		// A message for a conversation we have not seen yet, usually
		// one created by the other participant. Fetch it.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.SyncConversations(ctx); err != nil {
			log.Printf("failed to sync conversations for incoming message: %v", err)
			return
		}
	}
	s.store.MergeIncomingMessage(conversationID, msg)
}

// HandleTyping is the delivery-channel entry point for a remote
// typing signal. Our own echoes are ignored.
func (s *Service) HandleTyping(conversationID, userID string, isTyping bool) {
	if userID == s.userID {
		return
	}
	s.store.SetTyping(conversationID, userID, isTyping)
}
