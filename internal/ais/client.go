package ais

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultURL is the public aisstream.io websocket endpoint.
const DefaultURL = "wss://stream.aisstream.io/v0/stream"

// minReconnectDelay floors the backoff so the delay is never zero or
// negative after jitter.
const minReconnectDelay = 100 * time.Millisecond

// DefaultMessageTypes lists the message kinds the client acts upon.
var DefaultMessageTypes = []string{"PositionReport", "ShipStaticData"}

// Config holds the connection parameters for a Client.
type Config struct {
	URL           string
	APIKey        string
	BoundingBoxes [][2][2]float64 // [[latMin,lonMin],[latMax,lonMax]] per box
	MessageTypes  []string

	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	ReconnectJitter    float64 // multiplicative, e.g. 0.3 for ±30%

	// Logger is optional; if nil, uses log.Default().
	Logger *log.Logger
	// Debug enables per-message drop logging.
	Debug bool
}

// subscription is the payload sent once per connection to authenticate and
// scope the stream.
type subscription struct {
	APIKey             string          `json:"APIKey"`
	BoundingBoxes      [][2][2]float64 `json:"BoundingBoxes"`
	FilterMessageTypes []string        `json:"FilterMessageTypes"`
}

// Client streams typed vessel events from the feed, reconnecting with
// exponential backoff on any transport failure.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *log.Logger
}

// NewClient validates the configuration and returns a Client. A missing API
// key is a configuration error: the caller must not attempt to run degraded.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ais: API key is required (set AISSTREAM_API_KEY)")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if len(cfg.MessageTypes) == 0 {
		cfg.MessageTypes = DefaultMessageTypes
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 60 * time.Second
	}
	if cfg.ReconnectJitter == 0 {
		cfg.ReconnectJitter = 0.3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 45 * time.Second},
		logger: logger,
	}, nil
}

// Run connects to the feed and delivers parsed events to out until the
// context is cancelled. Connection failures are never fatal: the client
// backs off and reconnects indefinitely. Run does not close out.
func (c *Client) Run(ctx context.Context, out chan<- Event) error {
	sub := subscription{
		APIKey:             c.cfg.APIKey,
		BoundingBoxes:      c.cfg.BoundingBoxes,
		FilterMessageTypes: c.cfg.MessageTypes,
	}

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Printf("ais: connect failed: %v", err)
			if !c.sleep(ctx, reconnectDelay(attempt, c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay, c.cfg.ReconnectJitter)) {
				return ctx.Err()
			}
			attempt++
			continue
		}

		if err := conn.WriteJSON(sub); err != nil {
			conn.Close()
			c.logger.Printf("ais: subscribe failed: %v", err)
			if !c.sleep(ctx, reconnectDelay(attempt, c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay, c.cfg.ReconnectJitter)) {
				return ctx.Err()
			}
			attempt++
			continue
		}

		c.logger.Printf("ais: subscribed, streaming (%d bounding boxes)", len(c.cfg.BoundingBoxes))
		attempt = 0

		err = c.readLoop(ctx, conn, out)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Printf("ais: connection lost: %v", err)
		if !c.sleep(ctx, reconnectDelay(attempt, c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay, c.cfg.ReconnectJitter)) {
			return ctx.Err()
		}
		attempt++
	}
}

// readLoop reads and parses messages until the connection breaks or the
// context is cancelled. Malformed or partial messages are dropped per
// message, never escalated.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- Event) error {
	// Unblock ReadMessage on cancellation by closing the connection.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue // malformed JSON is expected noise
		}

		var ev Event
		switch env.MessageType {
		case "PositionReport":
			pos, ok := parsePosition(&env)
			if !ok {
				c.debugf("ais: dropping partial PositionReport")
				continue
			}
			ev = pos
		case "ShipStaticData":
			static, ok := parseStatic(&env)
			if !ok {
				c.debugf("ais: dropping partial ShipStaticData")
				continue
			}
			ev = static
		default:
			continue // unrecognized kinds are ignored
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) debugf(format string, args ...any) {
	if c.cfg.Debug {
		c.logger.Printf(format, args...)
	}
}

// sleep waits for d or until the context is done; it reports whether the
// full delay elapsed.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// reconnectDelay computes min(base*2^attempt, max) with uniform ±jitter
// applied multiplicatively, floored at minReconnectDelay. Attempt 0 is the
// first retry.
func reconnectDelay(attempt int, base, max time.Duration, jitter float64) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt))
	if delay > float64(max) || math.IsInf(delay, 1) {
		delay = float64(max)
	}

	delay *= 1 + (rand.Float64()*2-1)*jitter

	if delay < float64(minReconnectDelay) {
		delay = float64(minReconnectDelay)
	}
	return time.Duration(delay)
}
