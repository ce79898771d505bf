package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adsbtools/skybridge/internal/config"
	"github.com/adsbtools/skybridge/internal/tracker"
	"github.com/adsbtools/skybridge/pkg/logger"
)

// PositionSink consumes snapshot and delta batches from the channel
type PositionSink interface {
	ApplySnapshot(entries []tracker.AircraftPosition)
	ApplyDelta(updates []tracker.AircraftPosition, removed []string)
	Clear()
}

// ConnectionState describes the upstream channel as observed by consumers.
// Socket-level failures surface here as state transitions, not as errors.
type ConnectionState struct {
	Connected         bool      `json:"connected"`
	LastError         string    `json:"last_error,omitempty"`
	LastConnectedAt   time.Time `json:"last_connected_at,omitempty"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
}

// Client maintains the upstream WebSocket connection: it subscribes to the
// position stream, feeds snapshots and deltas into the sink, correlates
// request/response pairs, and reconnects with exponential backoff and
// jitter when the connection drops. On every disconnect the sink is
// cleared and all pending requests are rejected; the upstream resends a
// full snapshot after resubscription, so individual delta loss is
// self-healing and never retried.
type Client struct {
	cfg    config.UpstreamConfig
	sink   PositionSink
	rest   *RESTClient
	dialer *websocket.Dialer
	logger *logger.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	state   ConnectionState
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewClient creates a new upstream feed client. rest may be nil when no
// HTTP fallback is configured.
func NewClient(cfg config.UpstreamConfig, sink PositionSink, rest *RESTClient, log *logger.Logger) *Client {
	return &Client{
		cfg:  cfg,
		sink: sink,
		rest: rest,
		dialer: &websocket.Dialer{
			HandshakeTimeout: time.Duration(cfg.HTTPTimeoutSecs) * time.Second,
		},
		logger:  log.Named("upstream"),
		pending: make(map[string]*pendingRequest),
		stopCh:  make(chan struct{}),
	}
}

// Start starts the connection loop
func (c *Client) Start(ctx context.Context) error {
	c.logger.Info("Starting upstream client",
		logger.String("url", c.cfg.WebSocketURL),
		logger.Bool("http_fallback", c.rest != nil),
	)

	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// Stop closes the connection and stops reconnecting. Every pending
// request is rejected and all reconnect timers are released.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.rejectAllPending(fmt.Errorf("client stopped"))
	c.logger.Info("Upstream client stopped")
}

// State returns a copy of the current connection state
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// run is the connection loop: dial, subscribe, read until failure,
// tear down, back off, repeat
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	attempt := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := c.dialer.DialContext(ctx, c.cfg.WebSocketURL, nil)
		if err != nil {
			attempt++
			c.recordDisconnect(err, attempt)

			if c.cfg.ReconnectMaxAttempts > 0 && attempt >= c.cfg.ReconnectMaxAttempts {
				c.logger.Error("Giving up after maximum reconnect attempts",
					logger.Int("attempts", attempt), logger.Error(err))
				return
			}

			delay := c.backoffDelay(attempt)
			c.logger.Warn("Upstream connection failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Error(err))

			select {
			case <-time.After(delay):
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		attempt = 0
		c.setConnected(conn)
		c.logger.Info("Connected to upstream feed", logger.String("url", c.cfg.WebSocketURL))

		if err := c.writeJSON(map[string]any{"type": MessageTypeSubscribe}); err != nil {
			c.logger.Error("Failed to send subscribe message", logger.Error(err))
		}

		// readLoop only observes connection errors, so a watcher closes the
		// socket when Stop or context cancellation races a fresh dial
		watchDone := make(chan struct{})
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			select {
			case <-c.stopCh:
				conn.Close()
			case <-ctx.Done():
				conn.Close()
			case <-watchDone:
			}
		}()

		readErr := c.readLoop(conn)
		close(watchDone)
		c.handleDisconnect(readErr)

		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
	}
}

// backoffDelay computes the reconnect delay for the given attempt:
// min(initial * multiplier^attempt, max) plus a random jitter fraction,
// capped at the maximum delay
func (c *Client) backoffDelay(attempt int) time.Duration {
	initial := float64(c.cfg.ReconnectInitialDelayMs)
	max := float64(c.cfg.ReconnectMaxDelayMs)

	delay := initial * math.Pow(c.cfg.ReconnectMultiplier, float64(attempt-1))
	if delay > max {
		delay = max
	}
	delay *= 1 + c.cfg.ReconnectJitterFraction*rand.Float64()
	if delay > max {
		delay = max
	}

	return time.Duration(delay) * time.Millisecond
}

func (c *Client) setConnected(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.state.Connected = true
	c.state.LastError = ""
	c.state.LastConnectedAt = time.Now()
	c.state.ReconnectAttempts = 0
	c.mu.Unlock()
}

func (c *Client) recordDisconnect(err error, attempts int) {
	c.mu.Lock()
	c.conn = nil
	c.state.Connected = false
	if err != nil {
		c.state.LastError = err.Error()
	}
	c.state.ReconnectAttempts = attempts
	c.mu.Unlock()
}

// handleDisconnect clears all live position state and rejects every
// pending request. Disconnection is a normal transition: the displayed
// set fails safe to empty and a fresh snapshot arrives on reconnect.
func (c *Client) handleDisconnect(err error) {
	c.recordDisconnect(err, 0)
	c.sink.Clear()
	c.rejectAllPending(fmt.Errorf("connection lost: %w", err))

	c.logger.Warn("Disconnected from upstream feed", logger.Error(err))
}

// readLoop reads and dispatches messages until the connection fails
func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(raw)
	}
}

// dispatch decodes one frame by its type tag and routes it to the matching
// handler. Unknown types are logged rather than silently dropped.
func (c *Client) dispatch(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("Failed to parse upstream message", logger.Error(err))
		return
	}

	payload := payloadBytes(raw, env)

	switch env.Type {
	case MessageTypePositionsSnapshot, MessageTypeAircraftSnapshot:
		var snapshot SnapshotPayload
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			c.logger.Warn("Failed to parse snapshot payload", logger.Error(err))
			return
		}
		entries := snapshot.Entries()
		c.sink.ApplySnapshot(entries)
		c.logger.Debug("Applied snapshot", logger.Int("aircraft_count", len(entries)))

	case MessageTypePositionsUpdate:
		var update UpdatePayload
		if err := json.Unmarshal(payload, &update); err != nil {
			c.logger.Warn("Failed to parse update payload", logger.Error(err))
			return
		}
		c.sink.ApplyDelta(update.Updates(), update.Removed)

	case MessageTypeBatch:
		var batch BatchPayload
		if err := json.Unmarshal(payload, &batch); err != nil {
			c.logger.Warn("Failed to parse batch payload", logger.Error(err))
			return
		}
		for _, msg := range batch.Messages {
			c.dispatch(msg)
		}

	case MessageTypeResponse:
		// Both framings appear on the wire: request_id beside data at the
		// top level, or the whole payload nested under data
		var resp ResponsePayload
		if err := json.Unmarshal(raw, &resp); err != nil {
			c.logger.Warn("Failed to parse response payload", logger.Error(err))
			return
		}
		if resp.RequestID == "" {
			if err := json.Unmarshal(payload, &resp); err != nil {
				c.logger.Warn("Failed to parse response payload", logger.Error(err))
				return
			}
		}
		c.resolvePending(resp.RequestID, resp.Data, nil)

	case MessageTypeError:
		var errPayload ErrorPayload
		if err := json.Unmarshal(raw, &errPayload); err != nil {
			c.logger.Warn("Failed to parse error payload", logger.Error(err))
			return
		}
		if errPayload.RequestID == "" {
			if err := json.Unmarshal(payload, &errPayload); err != nil {
				c.logger.Warn("Failed to parse error payload", logger.Error(err))
				return
			}
		}
		c.resolvePending(errPayload.RequestID, nil, fmt.Errorf("server error: %s", errPayload.Message))

	case MessageTypeStatus:
		// Informational; connection state is tracked locally

	default:
		c.logger.Warn("Unhandled upstream message type", logger.String("type", env.Type))
	}
}

// writeJSON sends one JSON frame, serializing concurrent writers
func (c *Client) writeJSON(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}
