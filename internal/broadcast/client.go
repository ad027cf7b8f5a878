package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// ErrNotConnected is returned by Client.Publish while the upstream is unreachable.
var ErrNotConnected = errors.New("broadcast upstream not connected")

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 10 * time.Second
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithClientMetrics records drops on the client's local fan-out.
func WithClientMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// Client joins a remote hub over websocket and re-exposes it as a local notifier.
// It reconnects with backoff until closed.
type Client struct {
	url     string
	origin  string
	logger  *slog.Logger
	metrics *metrics.Metrics
	dialer  *websocket.Dialer
	local   *Hub

	mu        sync.Mutex
	conn      *websocket.Conn
	onConnect func()
	cancel    context.CancelFunc
	done      chan struct{}

	wmu sync.Mutex
}

// NewClient creates a client for the hub served at url (ws:// or wss://).
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:    url,
		origin: uuid.NewString(),
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	c.local = NewHub(url, WithLogger(c.logger), WithMetrics(c.metrics))
	return c
}

// OnConnect registers fn to run after every successful (re)connection. Messages sent
// while disconnected are lost, so owners typically re-read storage here.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// Start launches the connection loop. It returns immediately.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Publish sends rec upstream. It does not wait for other contexts to receive it.
func (c *Client) Publish(ctx context.Context, rec stats.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := NewUpdate(c.origin, rec)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("writing upstream: %w", err)
	}
	return nil
}

// Subscribe registers handler for records received from upstream.
func (c *Client) Subscribe(handler Handler) (Subscription, error) {
	return c.local.Subscribe(handler)
}

// Close stops reconnecting, drops the connection and closes local subscriptions.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return c.local.Close()
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	backoff := minBackoff
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("broadcast upstream dial failed", "url", c.url, "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff

		c.mu.Lock()
		c.conn = conn
		onConnect := c.onConnect
		c.mu.Unlock()
		c.logger.Info("broadcast upstream connected", "url", c.url)
		if onConnect != nil {
			onConnect()
		}

		err = c.serve(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("broadcast upstream disconnected", "url", c.url, "error", err)
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		conn.SetReadLimit(maxMessageSize)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			msg, err := ParseMessage(data)
			if err != nil {
				c.logger.Debug("ignoring malformed frame", "error", err)
				continue
			}
			if msg.Type != TypeStatsUpdate || msg.Origin == c.origin {
				continue
			}
			if err := c.local.deliver(msg); err != nil {
				return err
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		c.wmu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wmu.Unlock()
		return conn.Close()
	})
	return g.Wait()
}
