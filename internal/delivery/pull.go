package delivery

import (
	"context"
	"log"
	"time"

	"bazarek/internal/models"
)

const DefaultPollInterval = 5 * time.Second

// historyFetcher is the one backend call the poller needs.
type historyFetcher interface {
	GetConversationMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// historySink applies a fetched history through the reconciler.
// chat.Store satisfies it.
type historySink interface {
	ActiveID() string
	ReplaceMessages(conversationID string, msgs []models.Message)
}

// PullChannel is the degraded-mode transport: it refreshes the active
// conversation's history on a fixed interval and on demand. Every
// result goes through the reconciler, and a result that arrives after
// the user switched conversations is discarded.
type PullChannel struct {
	backend  historyFetcher
	sink     historySink
	interval time.Duration

	// refresh carries on-demand requests into the run loop.
	refresh chan string
}

func NewPullChannel(backend historyFetcher, sink historySink, interval time.Duration) *PullChannel {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PullChannel{
		backend:  backend,
		sink:     sink,
		interval: interval,
		refresh:  make(chan string, 8),
	}
}

// Status for the pull transport only distinguishes running from
// stopped; fetch errors are retried on the next tick anyway.
func (p *PullChannel) Status() Status {
	return StatusDegraded
}

// RequestRefresh asks for an immediate fetch of the conversation,
// e.g. behind a manual refresh button.
func (p *PullChannel) RequestRefresh(conversationID string) {
	select {
	case p.refresh <- conversationID:
	default:
	}
}

func (p *PullChannel) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.poll(ctx, p.sink.ActiveID())
		case id := <-p.refresh:
			p.poll(ctx, id)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *PullChannel) poll(ctx context.Context, conversationID string) {
	if conversationID == "" {
		return
	}
	msgs, err := p.backend.GetConversationMessages(ctx, conversationID)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("poll of conversation %s failed: %v", conversationID, err)
		}
		return
	}
	// The user may have navigated away while the fetch was in
	// flight; a stale result must not touch the store.
	if p.sink.ActiveID() != conversationID {
		return
	}
	p.sink.ReplaceMessages(conversationID, msgs)
}
