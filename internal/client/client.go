// Package client implements the dashboard-side WebSocket client: it dials
// the realtime server, keeps the connection alive with ping/pong, replays
// messages queued while offline, and redials with linear backoff.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/musika/commerce/internal/protocol"
)

// Connection states reported by State and to connection handlers.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

// Dialer opens the underlying transport. Production uses DefaultDialer;
// tests substitute a pipe.
type Dialer func(ctx context.Context, rawURL string) (net.Conn, error)

// DefaultDialer performs a real WebSocket handshake against rawURL.
func DefaultDialer(ctx context.Context, rawURL string) (net.Conn, error) {
	conn, _, _, err := ws.Dial(ctx, rawURL)
	return conn, err
}

// Config holds client tuning parameters.
type Config struct {
	URL          string        // base ws:// URL of the realtime server
	BaseDelay    time.Duration // first reconnect delay, grows linearly
	MaxAttempts  int           // reconnect attempts before giving up
	PingInterval time.Duration // how often to ping the server
	PongTimeout  time.Duration // how long to wait for the pong reply
	Dialer       Dialer
}

// DefaultConfig returns a Config with production defaults for the given URL.
func DefaultConfig(rawURL string) Config {
	return Config{
		URL:          rawURL,
		BaseDelay:    time.Second,
		MaxAttempts:  5,
		PingInterval: 30 * time.Second,
		PongTimeout:  5 * time.Second,
		Dialer:       DefaultDialer,
	}
}

// Handler consumes one envelope of a subscribed type.
type Handler func(env protocol.Envelope)

// ConnHandler observes connection state transitions.
type ConnHandler func(state string)

type handlerEntry struct {
	id int
	fn Handler
}

// Client is a reconnecting WebSocket client for the realtime server.
// All exported methods are safe for concurrent use.
type Client struct {
	config Config

	mu           sync.Mutex
	conn         net.Conn
	state        string
	attempts     int
	manualClose  bool
	queue        []protocol.Envelope
	handlers     map[string][]handlerEntry
	connHandlers []ConnHandler
	nextID       int
	pongTimer    *time.Timer
	generation   int

	identity identity
}

type identity struct {
	merchantID string
	token      string
	userID     string
	role       string
}

// New creates a Client from config. Zero-valued fields fall back to the
// DefaultConfig values.
func New(config Config) *Client {
	def := DefaultConfig(config.URL)
	if config.BaseDelay <= 0 {
		config.BaseDelay = def.BaseDelay
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = def.PongTimeout
	}
	if config.Dialer == nil {
		config.Dialer = DefaultDialer
	}
	return &Client{
		config:   config,
		state:    StateDisconnected,
		handlers: make(map[string][]handlerEntry),
	}
}

// State returns the current connection state.
func (c *Client) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the server with the given identity. It is a no-op when the
// client is already connected or connecting. The identity is remembered and
// reused for reconnects.
func (c *Client) Connect(ctx context.Context, merchantID, token, userID, role string) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.manualClose = false
	c.identity = identity{merchantID: merchantID, token: token, userID: userID, role: role}
	c.mu.Unlock()

	c.notifyConn(StateConnecting)
	return c.dial(ctx)
}

// dial performs one connection attempt using the stored identity.
func (c *Client) dial(ctx context.Context) error {
	c.mu.Lock()
	ident := c.identity
	c.mu.Unlock()

	rawURL, err := c.buildURL(ident)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	conn, err := c.config.Dialer(ctx, rawURL)
	if err != nil {
		c.setState(StateDisconnected)
		c.scheduleReconnect()
		return fmt.Errorf("client: dial %s: %w", c.config.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.generation++
	gen := c.generation
	queued := c.queue
	c.queue = nil
	c.mu.Unlock()

	log.Printf("client: connected to %s", c.config.URL)
	c.notifyConn(StateConnected)

	for _, env := range queued {
		if err := c.write(env); err != nil {
			log.Printf("client: flush queued %s: %v", env.Type, err)
			break
		}
	}

	go c.readLoop(conn, gen)
	go c.heartbeatLoop(conn, gen)
	return nil
}

// buildURL appends the identity as query parameters to the configured URL.
func (c *Client) buildURL(ident identity) (string, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", fmt.Errorf("client: parse url: %w", err)
	}
	q := u.Query()
	if ident.merchantID != "" {
		q.Set("merchant_id", ident.merchantID)
	}
	if ident.token != "" {
		q.Set("token", ident.token)
	}
	if ident.userID != "" {
		q.Set("user_id", ident.userID)
	}
	if ident.role != "" {
		q.Set("role", ident.role)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readLoop consumes server frames until the connection fails, then triggers
// a reconnect unless the close was requested locally.
func (c *Client) readLoop(conn net.Conn, gen int) {
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			c.onConnLost(conn, gen)
			return
		}
		env, perr := protocol.ParseEnvelope(data)
		if perr != nil {
			log.Printf("client: dropping malformed frame: %v", perr)
			continue
		}
		if env.Type == protocol.TypePong {
			c.clearPongTimer()
		}
		c.dispatch(env)
	}
}

// heartbeatLoop pings the server periodically and arms a timer that force
// closes the socket when the pong does not arrive in time.
func (c *Client) heartbeatLoop(conn net.Conn, gen int) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		stale := c.generation != gen || c.conn != conn || c.state != StateConnected
		c.mu.Unlock()
		if stale {
			return
		}

		ping, err := protocol.NewEnvelope(protocol.TypePing, nil)
		if err != nil {
			continue
		}
		if err := c.write(ping); err != nil {
			return
		}
		c.armPongTimer(conn)
	}
}

func (c *Client) armPongTimer(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pongTimer != nil {
		c.pongTimer.Stop()
	}
	c.pongTimer = time.AfterFunc(c.config.PongTimeout, func() {
		log.Println("client: pong timeout, closing connection")
		_ = conn.Close()
	})
}

func (c *Client) clearPongTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pongTimer != nil {
		c.pongTimer.Stop()
		c.pongTimer = nil
	}
}

// onConnLost tears down state for a failed connection and schedules a
// reconnect when the loss was not a deliberate Disconnect.
func (c *Client) onConnLost(conn net.Conn, gen int) {
	c.mu.Lock()
	if c.generation != gen || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	manual := c.manualClose
	if c.pongTimer != nil {
		c.pongTimer.Stop()
		c.pongTimer = nil
	}
	c.mu.Unlock()

	_ = conn.Close()
	c.notifyConn(StateDisconnected)

	if !manual {
		c.scheduleReconnect()
	}
}

// reconnectDelay returns the wait before the given attempt, growing linearly
// with the attempt number.
func (c *Client) reconnectDelay(attempt int) time.Duration {
	return c.config.BaseDelay * time.Duration(attempt)
}

// scheduleReconnect arms a timer for the next dial attempt. After
// MaxAttempts consecutive failures the client gives up until the next
// explicit Connect.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.manualClose || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.attempts++
	if c.attempts > c.config.MaxAttempts {
		c.mu.Unlock()
		log.Printf("client: giving up after %d reconnect attempts", c.config.MaxAttempts)
		return
	}
	attempt := c.attempts
	c.state = StateConnecting
	c.mu.Unlock()

	c.notifyConn(StateConnecting)

	delay := c.reconnectDelay(attempt)
	log.Printf("client: reconnect attempt %d/%d in %s", attempt, c.config.MaxAttempts, delay)

	time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.manualClose {
			c.state = StateDisconnected
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		if err := c.dial(context.Background()); err != nil {
			log.Printf("client: reconnect failed: %v", err)
		}
	})
}

// Disconnect closes the connection and suppresses automatic reconnection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manualClose = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) setState(state string) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// On registers a handler for a message type and returns a function that
// removes exactly that handler.
func (c *Client) On(msgType string, fn Handler) (off func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers[msgType] = append(c.handlers[msgType], handlerEntry{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entries := c.handlers[msgType]
		for i, e := range entries {
			if e.id == id {
				c.handlers[msgType] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// OnConnection registers a handler for connection state changes.
func (c *Client) OnConnection(fn ConnHandler) {
	c.mu.Lock()
	c.connHandlers = append(c.connHandlers, fn)
	c.mu.Unlock()
}

// dispatch invokes the handlers registered for the envelope's type in
// registration order. A panicking handler is isolated so the rest still run.
func (c *Client) dispatch(env protocol.Envelope) {
	c.mu.Lock()
	entries := make([]handlerEntry, len(c.handlers[env.Type]))
	copy(entries, c.handlers[env.Type])
	c.mu.Unlock()

	for _, e := range entries {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("client: handler for %s panicked: %v", env.Type, r)
				}
			}()
			e.fn(env)
		}()
	}
}

func (c *Client) notifyConn(state string) {
	c.mu.Lock()
	handlers := make([]ConnHandler, len(c.connHandlers))
	copy(handlers, c.connHandlers)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(state)
	}
}

// Send delivers an envelope to the server, queueing it for replay when the
// client is offline. The queue is unbounded; callers gate volume upstream.
func (c *Client) Send(env protocol.Envelope) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.queue = append(c.queue, env)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.write(env)
}

// write encodes and writes one envelope on the active connection.
func (c *Client) write(env protocol.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("client: not connected")
	}

	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("client: encode %s: %w", env.Type, err)
	}
	if err := wsutil.WriteClientMessage(conn, ws.OpText, data); err != nil {
		return fmt.Errorf("client: write %s: %w", env.Type, err)
	}
	return nil
}

// QueuedMessages returns the number of envelopes waiting for reconnection.
func (c *Client) QueuedMessages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func marshalDetails(details interface{}) (json.RawMessage, error) {
	if details == nil {
		return nil, nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("client: marshal details: %w", err)
	}
	return raw, nil
}

func (c *Client) sendTyped(msgType string, payload interface{}) error {
	env, err := protocol.NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	return c.Send(env)
}

// SubscribeRoom asks the server to add this client to a room.
func (c *Client) SubscribeRoom(room string) error {
	return c.sendTyped(protocol.TypeSubscribe, protocol.SubscribePayload{Room: room})
}

// UnsubscribeRoom asks the server to remove this client from a room.
func (c *Client) UnsubscribeRoom(room string) error {
	return c.sendTyped(protocol.TypeUnsubscribe, protocol.SubscribePayload{Room: room})
}

// SubscribeToOrderUpdates registers fn for order status changes and joins
// the caller's merchant room.
func (c *Client) SubscribeToOrderUpdates(merchantID string, fn Handler) func() {
	off := c.On(protocol.TypeOrderStatusChanged, fn)
	if err := c.SubscribeRoom("merchant_" + merchantID); err != nil {
		log.Printf("client: subscribe merchant room: %v", err)
	}
	return off
}

// SubscribeToNewOrders registers fn for newly created orders in the
// caller's merchant room.
func (c *Client) SubscribeToNewOrders(merchantID string, fn Handler) func() {
	off := c.On(protocol.TypeNewOrder, fn)
	if err := c.SubscribeRoom("merchant_" + merchantID); err != nil {
		log.Printf("client: subscribe merchant room: %v", err)
	}
	return off
}

// SubscribeToNotifications registers fn for merchant notifications.
func (c *Client) SubscribeToNotifications(merchantID string, fn Handler) func() {
	off := c.On(protocol.TypeMerchantNotification, fn)
	if err := c.SubscribeRoom("merchant_" + merchantID); err != nil {
		log.Printf("client: subscribe merchant room: %v", err)
	}
	return off
}

// SubscribeToBotStatus registers fn for bot status broadcasts.
func (c *Client) SubscribeToBotStatus(fn Handler) func() {
	return c.On(protocol.TypeBotStatus, fn)
}

// SubscribeToBotMessages registers fn for live bot conversation traffic.
func (c *Client) SubscribeToBotMessages(fn Handler) func() {
	return c.On(protocol.TypeBotMessage, fn)
}

// SubscribeToUserActivity registers fn for activity events and joins the
// admin dashboard room.
func (c *Client) SubscribeToUserActivity(fn Handler) func() {
	off := c.On(protocol.TypeUserActivity, fn)
	if err := c.SubscribeRoom("admin_dashboard"); err != nil {
		log.Printf("client: subscribe admin room: %v", err)
	}
	return off
}

// UpdateOrderStatus reports an order status change to the server.
func (c *Client) UpdateOrderStatus(orderID, status string, details interface{}) error {
	raw, err := marshalDetails(details)
	if err != nil {
		return err
	}
	return c.sendTyped(protocol.TypeOrderStatusUpdate, protocol.OrderStatusUpdatePayload{
		OrderID: orderID,
		Status:  status,
		Details: raw,
	})
}

// SendMerchantNotification pushes a notification to a merchant's room.
func (c *Client) SendMerchantNotification(merchantID, notification, level string) error {
	return c.sendTyped(protocol.TypeMerchantNotification, protocol.MerchantNotificationPayload{
		MerchantID:   merchantID,
		Notification: notification,
		Level:        level,
	})
}

// TrackUserActivity reports a user action to the admin dashboard.
func (c *Client) TrackUserActivity(action string, details interface{}) error {
	raw, err := marshalDetails(details)
	if err != nil {
		return err
	}
	return c.sendTyped(protocol.TypeUserActivity, protocol.UserActivityPayload{
		Action:  action,
		Details: raw,
	})
}

// RequestBotStatus asks the server to broadcast a fresh bot status snapshot.
func (c *Client) RequestBotStatus() error {
	return c.sendTyped(protocol.TypeBotStatusRequest, nil)
}
