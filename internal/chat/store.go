package chat

import (
	"sort"
	"sync"
	"time"

	"bazarek/internal/models"
)

// DefaultTypingQuietPeriod is how long a remote typing signal stays
// live without a refresh before the user is dropped from the set.
const DefaultTypingQuietPeriod = 2 * time.Second

// UpdateType tags store notifications.
type UpdateType string

const (
	UpdateConversation UpdateType = "conversation"
	UpdateNewMessage   UpdateType = "new_message"
	UpdateTyping       UpdateType = "typing"
)

// Update is pushed to subscribers after every store mutation. The
// conversation is a snapshot; mutating it does not affect the store.
type Update struct {
	Type           UpdateType
	ConversationID string
	Conversation   models.Conversation
	// Message is set for UpdateNewMessage.
	Message *models.Message
}

// Store owns the authoritative conversation state. Every mutation
// goes through its operation set; mutations for a single conversation
// never interleave. Updates fan out to subscriber channels the same
// way the server hub fans out to connections.
type Store struct {
	userID string

	conversations map[string]*models.Conversation
	activeID      string
	subscribers   map[chan Update]struct{}
	typingTimers  map[string]map[string]*time.Timer

	// TypingQuietPeriod can be lowered in tests.
	TypingQuietPeriod time.Duration

	mu sync.RWMutex
}

func NewStore(userID string) *Store {
	return &Store{
		userID:            userID,
		conversations:     make(map[string]*models.Conversation),
		subscribers:       make(map[chan Update]struct{}),
		typingTimers:      make(map[string]map[string]*time.Timer),
		TypingQuietPeriod: DefaultTypingQuietPeriod,
	}
}

// Subscribe returns a channel receiving an Update after every
// mutation. Slow subscribers have updates dropped, not blocked on.
func (s *Store) Subscribe() chan Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Update, 100)
	s.subscribers[ch] = struct{}{}
	return ch
}

func (s *Store) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// SetActive marks the conversation the UI currently shows. An empty
// id means no conversation is open.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = id
}

func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Get returns a snapshot of the conversation.
func (s *Store) Get(id string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, false
	}
	return snapshot(c), true
}

// List returns conversation snapshots sorted by last activity,
// newest first.
func (s *Store) List() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		result = append(result, snapshot(c))
	}
	sort.Slice(result, func(i, j int) bool {
		ti, tj := result[i].LastMessageTime, result[j].LastMessageTime
		if ti.IsZero() {
			ti = result[i].CreatedAt
		}
		if tj.IsZero() {
			tj = result[j].CreatedAt
		}
		return ti.After(tj)
	})
	return result
}

// FindByListing looks up the conversation for a listing and an
// unordered pair of participants. At most one such conversation
// exists.
func (s *Store) FindByListing(listingID int64, userA, userB string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.conversations {
		if c.ListingID == listingID && c.HasParticipant(userA) && c.HasParticipant(userB) {
			return snapshot(c), true
		}
	}
	return models.Conversation{}, false
}

// UpsertConversation inserts or fully replaces a conversation.
func (s *Store) UpsertConversation(conv models.Conversation) {
	s.mu.Lock()
	if conv.TypingUsers == nil {
		conv.TypingUsers = make(map[string]bool)
	}
	c := conv
	recompute(&c)
	s.conversations[conv.ID] = &c
	update := s.updateLocked(UpdateConversation, &c, nil)
	s.mu.Unlock()

	s.publish(update)
}

// AppendOptimisticMessage adds a pending local message. The sender's
// own message never bumps the unread count.
func (s *Store) AppendOptimisticMessage(conversationID string, msg models.Message) {
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return
	}
	msg.Status = models.MessageStatusPending
	if msg.Type == "" {
		msg.Type = models.MessageTypeText
	}
	c.Messages = append(c.Messages, msg)
	recompute(c)
	update := s.updateLocked(UpdateConversation, c, nil)
	s.mu.Unlock()

	s.publish(update)
}

// MergeIncomingMessage runs the reconciler for one incoming message.
// The unread count grows only when the merge appended a new entry
// authored by the other participant; a replace is the confirmation
// of our own earlier send.
func (s *Store) MergeIncomingMessage(conversationID string, msg models.Message) MergeOutcome {
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return MergeDuplicate
	}
	merged, outcome := Merge(c.Messages, msg)
	c.Messages = merged
	if outcome == MergeAppended && msg.SenderID != s.userID {
		c.UnreadCount++
	}
	recompute(c)

	var update Update
	if outcome == MergeAppended {
		last := merged[len(merged)-1]
		update = s.updateLocked(UpdateNewMessage, c, &last)
	} else {
		update = s.updateLocked(UpdateConversation, c, nil)
	}
	s.mu.Unlock()

	s.publish(update)
	return outcome
}

// MarkMessageFailed flips a pending message to failed in place, so
// the user still sees the attempt.
func (s *Store) MarkMessageFailed(conversationID, messageID string) {
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return
	}
	for i := range c.Messages {
		if c.Messages[i].ID == messageID && c.Messages[i].Status == models.MessageStatusPending {
			c.Messages[i].Status = models.MessageStatusFailed
			break
		}
	}
	recompute(c)
	update := s.updateLocked(UpdateConversation, c, nil)
	s.mu.Unlock()

	s.publish(update)
}

// MarkRead zeroes the unread count and flags the other participant's
// messages as read. Backend notification is the caller's concern and
// its failure never rolls this back.
func (s *Store) MarkRead(conversationID string) {
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return
	}
	c.UnreadCount = 0
	for i := range c.Messages {
		if c.Messages[i].SenderID != s.userID {
			c.Messages[i].Read = true
		}
	}
	update := s.updateLocked(UpdateConversation, c, nil)
	s.mu.Unlock()

	s.publish(update)
}

// ReplaceMessages applies a bulk history fetch. Local pending and
// failed messages are reconciled against the fetched set first, so a
// refresh racing an in-flight send cannot drop it. The unread count
// is recomputed from the fetched read flags.
func (s *Store) ReplaceMessages(conversationID string, msgs []models.Message) {
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return
	}
	c.Messages = MergeHistory(c.Messages, msgs)
	unread := 0
	for _, m := range c.Messages {
		if m.SenderID != s.userID && !m.Read && m.Status == models.MessageStatusConfirmed {
			unread++
		}
	}
	c.UnreadCount = unread
	recompute(c)
	update := s.updateLocked(UpdateConversation, c, nil)
	s.mu.Unlock()

	s.publish(update)
}

// SetTyping updates the ephemeral typing set. A live signal re-arms
// the quiet-period timer; with no refresh the user is dropped without
// any explicit stop event.
func (s *Store) SetTyping(conversationID, userID string, isTyping bool) {
	s.mu.Lock()
	c, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return
	}

	timers := s.typingTimers[conversationID]
	if timers == nil {
		timers = make(map[string]*time.Timer)
		s.typingTimers[conversationID] = timers
	}
	if t, ok := timers[userID]; ok {
		t.Stop()
		delete(timers, userID)
	}

	if isTyping {
		c.TypingUsers[userID] = true
		timers[userID] = time.AfterFunc(s.TypingQuietPeriod, func() {
			s.SetTyping(conversationID, userID, false)
		})
	} else {
		delete(c.TypingUsers, userID)
	}
	update := s.updateLocked(UpdateTyping, c, nil)
	s.mu.Unlock()

	s.publish(update)
}

func (s *Store) updateLocked(typ UpdateType, c *models.Conversation, msg *models.Message) Update {
	return Update{
		Type:           typ,
		ConversationID: c.ID,
		Conversation:   snapshot(c),
		Message:        msg,
	}
}

func (s *Store) publish(update Update) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- update:
		default:
			// Drop for slow subscribers rather than stall mutations.
		}
	}
}

// recompute refreshes the derived last-message cache. Failed sends
// are invisible to it.
func recompute(c *models.Conversation) {
	c.LastMessage = nil
	c.LastMessageTime = time.Time{}
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Status == models.MessageStatusFailed {
			continue
		}
		m := c.Messages[i]
		c.LastMessage = &m
		c.LastMessageTime = m.Timestamp
		return
	}
}

func snapshot(c *models.Conversation) models.Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.Messages = append([]models.Message(nil), c.Messages...)
	out.TypingUsers = make(map[string]bool, len(c.TypingUsers))
	for k, v := range c.TypingUsers {
		out.TypingUsers[k] = v
	}
	if c.LastMessage != nil {
		m := *c.LastMessage
		out.LastMessage = &m
	}
	return out
}
