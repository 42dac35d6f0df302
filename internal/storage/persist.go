package storage

import (
	"context"
	"log"

	"bazarek/internal/chat"
)

// Persister mirrors the in-memory conversation store into the local
// cache as it changes. Typing updates are ephemeral and skipped.
type Persister struct {
	store   *chat.Store
	storage *BboltStorage
}

func NewPersister(store *chat.Store, storage *BboltStorage) *Persister {
	return &Persister{store: store, storage: storage}
}

func (p *Persister) Run(ctx context.Context) error {
	updates := p.store.Subscribe()
	defer p.store.Unsubscribe(updates)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Type == chat.UpdateTyping {
				continue
			}
			if err := p.storage.UpsertConversation(update.Conversation); err != nil {
				log.Printf("failed to persist conversation %s: %v", update.ConversationID, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
