package storage

import (
	"path/filepath"
	"testing"
	"time"

	"bazarek/internal/models"
)

func newTestStorage(t *testing.T) *BboltStorage {
	t.Helper()
	s, err := NewBboltStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorage(t *testing.T) {
	s := newTestStorage(t)

	t.Run("conversation roundtrip", func(t *testing.T) {
		created := time.Unix(0, 1700000000000000000)
		conv := models.Conversation{
			ID:           "c1",
			Participants: []string{"me", "alice"},
			ListingID:    7,
			ListingTitle: "Organic Apples",
			CreatedAt:    created,
			UnreadCount:  2,
			Messages: []models.Message{
				{ID: "m1", SenderID: "alice", Content: "still available?", Type: models.MessageTypeText,
					Timestamp: created.Add(time.Minute), Read: true, Status: models.MessageStatusConfirmed},
				{ID: "tmp-1", SenderID: "me", Content: "yes", Type: models.MessageTypeText,
					Timestamp: created.Add(2 * time.Minute), Status: models.MessageStatusPending},
			},
		}
		if err := s.UpsertConversation(conv); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		convs, err := s.ListConversations()
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(convs) != 1 {
			t.Fatalf("expected 1 conversation, got %d", len(convs))
		}

		got := convs[0]
		if got.ID != "c1" || got.ListingID != 7 || got.ListingTitle != "Organic Apples" || got.UnreadCount != 2 {
			t.Errorf("metadata mismatch: %+v", got)
		}
		if !got.CreatedAt.Equal(created) {
			t.Errorf("created at: got %v want %v", got.CreatedAt, created)
		}
		if len(got.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(got.Messages))
		}
		// Message keys are timestamp-prefixed, so iteration order is
		// chronological.
		if got.Messages[0].ID != "m1" || got.Messages[1].ID != "tmp-1" {
			t.Errorf("messages out of order: %s, %s", got.Messages[0].ID, got.Messages[1].ID)
		}
		if got.Messages[1].Status != models.MessageStatusPending {
			t.Errorf("pending message must survive a restart, got %s", got.Messages[1].Status)
		}
		if !got.Messages[0].Read {
			t.Error("read flag lost")
		}
	})

	t.Run("upsert rewrites messages", func(t *testing.T) {
		conv := models.Conversation{
			ID:           "c1",
			Participants: []string{"me", "alice"},
			CreatedAt:    time.Now(),
			Messages: []models.Message{
				{ID: "m1", SenderID: "alice", Content: "still available?", Timestamp: time.Now(), Status: models.MessageStatusConfirmed},
			},
		}
		if err := s.UpsertConversation(conv); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		convs, err := s.ListConversations()
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(convs) != 1 {
			t.Fatalf("expected 1 conversation, got %d", len(convs))
		}
		if len(convs[0].Messages) != 1 {
			t.Errorf("stale messages not rewritten, got %d", len(convs[0].Messages))
		}
	})

	t.Run("push subscriptions", func(t *testing.T) {
		sub := DBPushSubscription{
			ID:           "sub-1",
			Subscription: []byte(`{"endpoint":"https://push.example/abc"}`),
			CreatedAt:    time.Now().UnixNano(),
		}
		if err := s.SavePushSubscription(sub); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		subs, err := s.ListPushSubscriptions()
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(subs) != 1 || subs[0].ID != "sub-1" || string(subs[0].Subscription) != string(sub.Subscription) {
			t.Errorf("unexpected subscriptions %+v", subs)
		}

		if err := s.DeletePushSubscription("sub-1"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		subs, err = s.ListPushSubscriptions()
		if err != nil {
			t.Fatalf("list after delete failed: %v", err)
		}
		if len(subs) != 0 {
			t.Errorf("expected no subscriptions, got %d", len(subs))
		}
	})

	t.Run("favorites", func(t *testing.T) {
		if err := s.SetFavorite(7, true); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		if err := s.SetFavorite(12, true); err != nil {
			t.Fatalf("set failed: %v", err)
		}

		ids, err := s.ListFavorites()
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(ids) != 2 || ids[0] != 7 || ids[1] != 12 {
			t.Errorf("expected [7 12], got %v", ids)
		}

		if err := s.SetFavorite(7, false); err != nil {
			t.Fatalf("unset failed: %v", err)
		}
		ids, err = s.ListFavorites()
		if err != nil {
			t.Fatalf("list after unset failed: %v", err)
		}
		if len(ids) != 1 || ids[0] != 12 {
			t.Errorf("expected [12], got %v", ids)
		}
	})
}

func TestStorageReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s, err := NewBboltStorage(path)
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	conv := models.Conversation{
		ID:           "c1",
		Participants: []string{"me", "alice"},
		CreatedAt:    time.Now(),
		Messages: []models.Message{
			{ID: "m1", SenderID: "alice", Content: "hi", Timestamp: time.Now(), Status: models.MessageStatusConfirmed},
		},
	}
	if err := s.UpsertConversation(conv); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	s, err = NewBboltStorage(path)
	if err != nil {
		t.Fatalf("failed to reopen storage: %v", err)
	}
	defer func() { _ = s.Close() }()

	convs, err := s.ListConversations()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(convs) != 1 || len(convs[0].Messages) != 1 {
		t.Fatalf("cached history lost across reopen: %+v", convs)
	}
}
