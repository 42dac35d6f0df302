// Package notify sends web-push notifications for messages that
// arrive in conversations the user does not currently have open.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"bazarek/internal/chat"
	"bazarek/internal/storage"
)

type Config struct {
	// VAPID key pair and subscriber contact, as required by the push
	// services.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

func (c Config) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

type Notifier struct {
	cfg    Config
	store  *chat.Store
	subs   *storage.BboltStorage
	userID string

	// send is swappable in tests.
	send func(payload []byte, sub *webpush.Subscription) (int, error)
}

func New(cfg Config, store *chat.Store, subs *storage.BboltStorage, userID string) *Notifier {
	n := &Notifier{
		cfg:    cfg,
		store:  store,
		subs:   subs,
		userID: userID,
	}
	n.send = func(payload []byte, sub *webpush.Subscription) (int, error) {
		resp, err := webpush.SendNotification(payload, sub, &webpush.Options{
			Subscriber:      cfg.Subscriber,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			TTL:             60,
		})
		if err != nil {
			return 0, err
		}
		defer func() { _ = resp.Body.Close() }()
		return resp.StatusCode, nil
	}
	return n
}

// Run watches store updates until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	updates := n.store.Subscribe()
	defer n.store.Unsubscribe(updates)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			n.handle(update)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (n *Notifier) handle(update chat.Update) {
	if update.Type != chat.UpdateNewMessage || update.Message == nil {
		return
	}
	// Only messages from the other side, and only when that
	// conversation is not on screen.
	if update.Message.SenderID == n.userID || n.store.ActiveID() == update.ConversationID {
		return
	}

	title := update.Conversation.ListingTitle
	if title == "" {
		title = "New message"
	}
	payload, err := json.Marshal(map[string]string{
		"title":          title,
		"body":           update.Message.Content,
		"conversationId": update.ConversationID,
	})
	if err != nil {
		log.Printf("failed to build push payload: %v", err)
		return
	}

	subs, err := n.subs.ListPushSubscriptions()
	if err != nil {
		log.Printf("failed to list push subscriptions: %v", err)
		return
	}
	for _, dbSub := range subs {
		if err := n.push(payload, dbSub); err != nil {
			log.Printf("failed to push to subscription %s: %v", dbSub.ID, err)
		}
	}
}

func (n *Notifier) push(payload []byte, dbSub storage.DBPushSubscription) error {
	var sub webpush.Subscription
	if err := json.Unmarshal(dbSub.Subscription, &sub); err != nil {
		return fmt.Errorf("failed to decode subscription: %w", err)
	}
	status, err := n.send(payload, &sub)
	if err != nil {
		return err
	}
	if status == http.StatusGone || status == http.StatusNotFound {
		// The browser dropped the subscription.
		if err := n.subs.DeletePushSubscription(dbSub.ID); err != nil {
			return fmt.Errorf("failed to prune dead subscription: %w", err)
		}
	}
	return nil
}
