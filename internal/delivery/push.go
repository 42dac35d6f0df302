package delivery

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultMaxReconnects  = 5
	DefaultReconnectDelay = time.Second
)

// wsConn is the subset of *websocket.Conn the push channel needs.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

// PushChannel keeps a persistent websocket to the gateway and feeds
// every frame through the payload dispatcher. Connection loss
// triggers exponential backoff; after the attempt budget runs out the
// channel reports a terminal disconnected status instead of retrying
// forever.
type PushChannel struct {
	url     string
	handler Handler

	// dial is swappable in tests.
	dial func(ctx context.Context, url string) (wsConn, error)

	MaxReconnects  int
	ReconnectDelay time.Duration

	mu     sync.RWMutex
	status Status
}

func NewPushChannel(url string, handler Handler) *PushChannel {
	return &PushChannel{
		url:     url,
		handler: handler,
		dial: func(ctx context.Context, url string) (wsConn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
		MaxReconnects:  DefaultMaxReconnects,
		ReconnectDelay: DefaultReconnectDelay,
	}
}

func (p *PushChannel) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *PushChannel) setStatus(s Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// Run connects and reads frames until ctx is cancelled. A lost
// connection counts against the reconnect budget the same as a failed
// dial, so a gateway that accepts the handshake and then drops the
// socket still backs off and eventually exhausts. Only a connection
// that actually delivered a frame resets the budget. Exhausting it
// returns ErrReconnectExhausted with the channel left disconnected.
func (p *PushChannel) Run(ctx context.Context) error {
	attempt := 0
	for {
		conn, err := p.dial(ctx, p.url)
		if err == nil {
			p.setStatus(StatusConnected)
			var delivered bool
			delivered, err = p.readLoop(ctx, conn)
			_ = conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.setStatus(StatusDegraded)
			log.Printf("push channel connection lost: %v", err)
			if delivered {
				attempt = 0
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		if attempt > p.MaxReconnects {
			p.setStatus(StatusDisconnected)
			return ErrReconnectExhausted
		}
		delay := p.ReconnectDelay << (attempt - 1)
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		log.Printf("push channel reconnecting (attempt %d/%d) in %s: %v",
			attempt, p.MaxReconnects, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readLoop reads frames until the connection breaks or ctx ends. It
// reports whether at least one frame arrived, so the caller can tell
// a working connection from one the gateway dropped straight away.
func (p *PushChannel) readLoop(ctx context.Context, conn wsConn) (bool, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	delivered := false
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return delivered, err
		}
		delivered = true
		if err := dispatchPayload(raw, p.handler, provisionalID); err != nil {
			// A bad frame must not take down the feed.
			log.Printf("push channel dropped payload: %v", err)
		}
	}
}

func provisionalID() string {
	return "push-" + uuid.NewString()
}
