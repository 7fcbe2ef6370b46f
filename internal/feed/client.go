package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/observability"
)

// Config configures the stream client.
type Config struct {
	// ReconnectDelay is the initial delay before a reconnect attempt;
	// it doubles per failure up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration

	// Category is stamped onto every token signal from this stream.
	Category domain.SlotCategory
}

// DefaultConfig returns the default stream configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 60 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
		Category:          domain.CategoryReserved,
	}
}

// Callbacks receive decoded stream events. Handlers run on the read
// goroutine; slow handlers delay the stream.
type Callbacks struct {
	OnToken      func(domain.TokenSignal)
	OnGraduation func(domain.GraduationSignal)
}

// Client maintains a subscription to the launchpad stream, reconnecting
// with exponential backoff on any connection failure.
type Client struct {
	endpoint  string
	cfg       Config
	callbacks Callbacks
	metrics   *observability.Metrics
	now       func() time.Time
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithFeedMetrics attaches Prometheus metrics.
func WithFeedMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithFeedClock overrides the time source. Test hook.
func WithFeedClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// NewClient creates a stream client. Run must be called to start it.
func NewClient(endpoint string, cfg Config, callbacks Callbacks, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:  endpoint,
		cfg:       cfg,
		callbacks: callbacks,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects and consumes the stream until the context is cancelled.
// Connection failures reconnect with exponential backoff and never
// surface to the caller.
func (c *Client) Run(ctx context.Context) error {
	delay := c.cfg.ReconnectDelay

	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("feed client stopped")
			return ctx.Err()
		}

		if c.metrics != nil {
			c.metrics.FeedReconnects.Inc()
		}
		log.Warn().Err(err).Dur("retry_in", delay).Msg("feed connection lost")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// session runs one connection: dial, subscribe, read until failure.
func (c *Client) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.endpoint, err)
	}
	defer conn.Close()

	// Drop the connection promptly on shutdown so the blocked read
	// returns.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for _, method := range []string{"subscribeNewToken", "subscribeMigration"} {
		conn.SetWriteDeadline(c.now().Add(c.cfg.WriteTimeout))
		if err := conn.WriteJSON(map[string]string{"method": method}); err != nil {
			return fmt.Errorf("subscribe %s: %w", method, err)
		}
	}
	log.Info().Str("endpoint", c.endpoint).Msg("feed subscribed")

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.pingLoop(conn, pingDone)

	for {
		conn.SetReadDeadline(c.now().Add(c.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.dispatch(message)
	}
}

func (c *Client) dispatch(message []byte) {
	event, err := ParseEvent(message, c.cfg.Category, c.now())
	if err != nil {
		log.Debug().Err(err).Msg("undecodable stream message")
		return
	}

	switch {
	case event.Token != nil:
		if c.metrics != nil {
			c.metrics.FeedEvents.WithLabelValues("mint").Inc()
		}
		log.Info().Str("mint", event.Token.Mint).Str("symbol", event.Token.Symbol).
			Msg("new token detected")
		if c.callbacks.OnToken != nil {
			c.callbacks.OnToken(*event.Token)
		}

	case event.Graduation != nil:
		if c.metrics != nil {
			c.metrics.FeedEvents.WithLabelValues("graduation").Inc()
		}
		log.Info().Str("mint", event.Graduation.Mint).Msg("graduation detected")
		if c.callbacks.OnGraduation != nil {
			c.callbacks.OnGraduation(*event.Graduation)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(c.now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
