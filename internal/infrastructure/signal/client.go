package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"meetcore/internal/core/domain"
	"meetcore/internal/core/ports"
	"meetcore/pkg/retry"
	"meetcore/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config tunes the signaling channel client.
type Config struct {
	HubURL            string
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	ReconnectSchedule []time.Duration
	SendQueueSize     int
	SendRetryAttempts int
	MessagesPerSecond float64
	MessageBurst      int
}

func DefaultConfig() Config {
	return Config{
		HubURL:       "ws://localhost:5000/meetingHub",
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReconnectSchedule: []time.Duration{
			0,
			2 * time.Second,
			5 * time.Second,
			10 * time.Second,
			20 * time.Second,
		},
		SendQueueSize:     128,
		SendRetryAttempts: 3,
		MessagesPerSecond: 50,
		MessageBurst:      100,
	}
}

type queuedSend struct {
	envelope domain.Envelope
	attempts int
}

// Client is the websocket implementation of the signaling channel. It owns
// the reconnect loop: a dropped connection moves the channel through
// Reconnecting with the fixed backoff schedule, the last delay repeating
// until either the dial succeeds or Disconnect is called. Handlers
// registered before Connect stay registered across every reconnect.
type Client struct {
	cfg Config

	mu            sync.RWMutex
	conn          *websocket.Conn
	connID        domain.ConnectionID
	state         domain.ConnectionState
	participantID domain.ParticipantID
	handlers      map[string][]ports.EventHandler
	stateHandlers []ports.StateHandler
	queue         []queuedSend

	writeMu sync.Mutex
	limiter *rate.Limiter

	closed    chan struct{}
	closeOnce sync.Once

	logger *zap.SugaredLogger
}

var _ ports.SignalTransport = (*Client)(nil)

func NewClient(cfg Config, logger *zap.SugaredLogger) *Client {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Client{
		cfg:      cfg,
		state:    domain.StateDisconnected,
		handlers: make(map[string][]ports.EventHandler),
		limiter:  rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.MessageBurst),
		closed:   make(chan struct{}),
		logger:   logger,
	}
}

// On registers an event handler. Registration is expected before Connect;
// the map is never pruned so handlers survive reconnects.
func (c *Client) On(event string, handler ports.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], handler)
}

func (c *Client) OnStateChange(handler ports.StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandlers = append(c.stateHandlers, handler)
}

// Connect dials the hub. A fresh connection id is generated for the dial
// and returned; the server learns it from the query string.
func (c *Client) Connect(ctx context.Context, participantID domain.ParticipantID) (domain.ConnectionID, error) {
	c.mu.Lock()
	if c.state != domain.StateDisconnected {
		c.mu.Unlock()
		return "", fmt.Errorf("transport already connected")
	}
	c.participantID = participantID
	c.mu.Unlock()

	c.setState(domain.StateConnecting)
	connID, err := c.dial(ctx, participantID)
	if err != nil {
		c.setState(domain.StateDisconnected)
		return "", err
	}
	return connID, nil
}

func (c *Client) dial(ctx context.Context, participantID domain.ParticipantID) (domain.ConnectionID, error) {
	connID := domain.ConnectionID(utils.NewConnectionID())

	u, err := url.Parse(c.cfg.HubURL)
	if err != nil {
		return "", fmt.Errorf("invalid hub url: %w", err)
	}
	q := u.Query()
	q.Set("participantId", string(participantID))
	q.Set("connectionId", string(connID))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("dialing hub: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.connID = connID
	c.mu.Unlock()

	c.setState(domain.StateConnected)
	c.logger.Infow("signaling channel connected", "connection_id", connID)

	go c.readLoop(conn)
	go c.pingLoop(conn)
	c.flushQueue()

	return connID, nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			c.logger.Warnw("signaling channel dropped", "error", err)
			go c.reconnectLoop()
			return
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warnw("malformed signaling frame dropped", "error", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env domain.Envelope) {
	c.mu.RLock()
	handlers := make([]ports.EventHandler, len(c.handlers[env.Event]))
	copy(handlers, c.handlers[env.Event])
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debugw("unhandled signaling event", "event", env.Event)
		return
	}
	for _, h := range handlers {
		h(env.Payload)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// reconnectLoop redials on the fixed schedule. It never gives up on its
// own; only Disconnect stops it.
func (c *Client) reconnectLoop() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connID = ""
	participantID := c.participantID
	c.mu.Unlock()

	c.setState(domain.StateReconnecting)

	for attempt := 0; ; attempt++ {
		delay := retry.ScheduleDelay(c.cfg.ReconnectSchedule, attempt)
		select {
		case <-c.closed:
			return
		case <-time.After(delay):
		}

		c.logger.Infow("reconnecting signaling channel", "attempt", attempt+1)
		if _, err := c.dial(context.Background(), participantID); err != nil {
			c.logger.Warnw("reconnect attempt failed", "attempt", attempt+1, "error", err)
			continue
		}
		return
	}
}

// Send delivers one event. While reconnecting the envelope is parked in a
// bounded queue and flushed when the channel comes back; while disconnected
// it fails fast.
func (c *Client) Send(event string, target domain.ConnectionID, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", event, err)
	}
	env := domain.Envelope{Event: event, Target: target, Payload: raw}

	c.mu.Lock()
	switch c.state {
	case domain.StateDisconnected:
		c.mu.Unlock()
		return domain.ErrConnectionUnavailable
	case domain.StateConnecting, domain.StateReconnecting:
		defer c.mu.Unlock()
		return c.park(queuedSend{envelope: env})
	}
	conn := c.conn
	c.mu.Unlock()

	if err := c.write(conn, env); err != nil {
		// The read loop notices the drop and drives the reconnect; the
		// envelope is parked so it is not lost with the connection.
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state == domain.StateDisconnected {
			return domain.ErrConnectionUnavailable
		}
		return c.park(queuedSend{envelope: env})
	}
	return nil
}

// park appends to the pending queue. Caller holds c.mu.
func (c *Client) park(qs queuedSend) error {
	if len(c.queue) >= c.cfg.SendQueueSize {
		return fmt.Errorf("send queue full: %w", domain.ErrConnectionUnavailable)
	}
	c.queue = append(c.queue, qs)
	return nil
}

// flushQueue replays envelopes parked during the outage. An envelope that
// keeps failing is dropped after the configured attempts.
func (c *Client) flushQueue() {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	conn := c.conn
	c.mu.Unlock()

	if len(pending) == 0 || conn == nil {
		return
	}
	c.logger.Infow("flushing parked envelopes", "count", len(pending))

	for _, qs := range pending {
		if err := c.write(conn, qs.envelope); err != nil {
			qs.attempts++
			if qs.attempts >= c.cfg.SendRetryAttempts {
				c.logger.Warnw("dropping envelope after repeated failures",
					"event", qs.envelope.Event, "attempts", qs.attempts)
				continue
			}
			c.mu.Lock()
			if perr := c.park(qs); perr != nil {
				c.logger.Warnw("dropping envelope, queue full", "event", qs.envelope.Event)
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) write(conn *websocket.Conn, env domain.Envelope) error {
	r := c.limiter.Reserve()
	if d := r.Delay(); d > 0 {
		time.Sleep(d)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteJSON(env)
}

// Disconnect closes the channel for good. No reconnect follows.
func (c *Client) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			err = c.conn.Close()
			c.conn = nil
		}
		c.connID = ""
		c.queue = nil
		c.mu.Unlock()
		c.setState(domain.StateDisconnected)
	})
	return err
}

func (c *Client) ConnectionID() domain.ConnectionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connID
}

func (c *Client) State() domain.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(state domain.ConnectionState) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	handlers := make([]ports.StateHandler, len(c.stateHandlers))
	copy(handlers, c.stateHandlers)
	c.mu.Unlock()

	for _, h := range handlers {
		h(state)
	}
}
