// Package storage is the local bbolt cache. It keeps conversation
// history so a restarted client can render something before the first
// backend fetch, plus web-push subscriptions and the favorites set.
package storage

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"bazarek/internal/models"
)

var (
	bucketConversations = []byte("conversations")
	bucketMessages      = []byte("messages")
	bucketSubscriptions = []byte("push_subscriptions")
	bucketFavorites     = []byte("favorites")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketConversations, bucketMessages, bucketSubscriptions, bucketFavorites} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertConversation caches conversation metadata and rewrites its
// message bucket. Pending and failed messages are local-only state
// and are persisted too, so an unsent message survives a restart.
func (s *BboltStorage) UpsertConversation(conv models.Conversation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbConv := &DBConversation{
			ID:           conv.ID,
			Participants: conv.Participants,
			ListingID:    conv.ListingID,
			ListingTitle: conv.ListingTitle,
			CreatedAt:    conv.CreatedAt.UnixNano(),
			UnreadCount:  conv.UnreadCount,
		}
		data, err := dbConv.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal conversation: %w", err)
		}
		if err := tx.Bucket(bucketConversations).Put(dbConv.Key(), data); err != nil {
			return err
		}

		// Rewrite the message bucket; the in-memory store already
		// reconciled, this is a plain mirror of its state.
		msgBucket := tx.Bucket(bucketMessages)
		if msgBucket.Bucket([]byte(conv.ID)) != nil {
			if err := msgBucket.DeleteBucket([]byte(conv.ID)); err != nil {
				return err
			}
		}
		convBucket, err := msgBucket.CreateBucket([]byte(conv.ID))
		if err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}
		for _, m := range conv.Messages {
			dbMsg := &DBMessage{
				ID:             m.ID,
				ConversationID: conv.ID,
				SenderID:       m.SenderID,
				Content:        m.Content,
				Type:           string(m.Type),
				Timestamp:      m.Timestamp.UnixNano(),
				Read:           m.Read,
				Status:         string(m.Status),
			}
			data, err := dbMsg.MarshalBinary()
			if err != nil {
				return fmt.Errorf("failed to marshal message: %w", err)
			}
			if err := convBucket.Put(dbMsg.Key(), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListConversations loads every cached conversation with its
// messages, ordered by the message key (timestamp ascending).
func (s *BboltStorage) ListConversations() ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		msgBucket := tx.Bucket(bucketMessages)
		return tx.Bucket(bucketConversations).ForEach(func(k, v []byte) error {
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(v); err != nil {
				return err
			}
			conv := models.Conversation{
				ID:           dbConv.ID,
				Participants: dbConv.Participants,
				ListingID:    dbConv.ListingID,
				ListingTitle: dbConv.ListingTitle,
				CreatedAt:    time.Unix(0, dbConv.CreatedAt),
				UnreadCount:  dbConv.UnreadCount,
				TypingUsers:  make(map[string]bool),
			}
			if convBucket := msgBucket.Bucket([]byte(dbConv.ID)); convBucket != nil {
				err := convBucket.ForEach(func(_, mv []byte) error {
					var dbMsg DBMessage
					if err := dbMsg.UnmarshalBinary(mv); err != nil {
						return err
					}
					conv.Messages = append(conv.Messages, models.Message{
						ID:        dbMsg.ID,
						SenderID:  dbMsg.SenderID,
						Content:   dbMsg.Content,
						Type:      models.MessageType(dbMsg.Type),
						Timestamp: time.Unix(0, dbMsg.Timestamp),
						Read:      dbMsg.Read,
						Status:    models.MessageStatus(dbMsg.Status),
					})
					return nil
				})
				if err != nil {
					return err
				}
			}
			convs = append(convs, conv)
			return nil
		})
	})
	return convs, err
}

func (s *BboltStorage) SavePushSubscription(sub DBPushSubscription) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := sub.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal subscription: %w", err)
		}
		return tx.Bucket(bucketSubscriptions).Put(sub.Key(), data)
	})
}

func (s *BboltStorage) DeletePushSubscription(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSubscriptions).Delete([]byte(id))
	})
}

func (s *BboltStorage) ListPushSubscriptions() ([]DBPushSubscription, error) {
	var subs []DBPushSubscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSubscriptions).ForEach(func(k, v []byte) error {
			var sub DBPushSubscription
			if err := sub.UnmarshalBinary(v); err != nil {
				return err
			}
			subs = append(subs, sub)
			return nil
		})
	})
	return subs, err
}

// SetFavorite stores or clears a favorite listing id.
func (s *BboltStorage) SetFavorite(listingID int64, favorite bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFavorites)
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, uint64(listingID))
		if favorite {
			return b.Put(key, []byte{1})
		}
		return b.Delete(key)
	})
}

func (s *BboltStorage) ListFavorites() ([]int64, error) {
	var ids []int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFavorites).ForEach(func(k, _ []byte) error {
			ids = append(ids, int64(binary.BigEndian.Uint64(k)))
			return nil
		})
	})
	return ids, err
}
