// Package ws implements the realtime event distribution server: it
// terminates WebSocket connections, maintains the connection and room
// registries, and fans typed envelopes out to subscribed dashboards.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/musika/commerce/internal/metrics"
	"github.com/musika/commerce/internal/protocol"
)

// RoomAdminDashboard receives user activity and platform-wide events.
const RoomAdminDashboard = "admin_dashboard"

// MerchantRoom returns the broadcast room for a tenant's dashboard.
func MerchantRoom(merchantID string) string { return "merchant_" + merchantID }

// OrderRoom returns the broadcast room for a single order's watchers.
func OrderRoom(orderID string) string { return "order_" + orderID }

// ServerConfig holds tunable parameters for the realtime server.
type ServerConfig struct {
	ListenAddr        string        // address to listen on, e.g. ":5174"
	MaxConnections    int           // hard cap on total connections
	WriteTimeout      time.Duration // timeout for WebSocket write operations
	HeartbeatInterval time.Duration // liveness sweep period
	HistoryReplay     int           // history entries sent on connect
}

// DefaultServerConfig returns a ServerConfig with production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:        ":5174",
		MaxConnections:    10000,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HistoryReplay:     10,
	}
}

// Relay mirrors local broadcasts to sibling server instances. Implementations
// must tolerate being called concurrently.
type Relay interface {
	PublishRoom(room string, env protocol.Envelope) error
	PublishAll(env protocol.Envelope) error
}

// EventRecorder persists notable envelopes for later review (the audit log
// behind the admin "logs" command). Failures are logged, never fatal.
type EventRecorder interface {
	Record(ctx context.Context, eventType, merchantID, level string, payload []byte) error
}

// Server is the realtime event distribution server.
type Server struct {
	config   ServerConfig
	conns    *ConnectionRegistry
	rooms    *RoomRegistry
	history  *History
	relay    Relay
	recorder EventRecorder

	httpServer *http.Server
	done       chan struct{}
	startedAt  time.Time
}

// NewServer creates a Server with the given configuration.
func NewServer(config ServerConfig) *Server {
	if config.HistoryReplay <= 0 {
		config.HistoryReplay = 10
	}
	return &Server{
		config:  config,
		conns:   NewConnectionRegistry(),
		rooms:   NewRoomRegistry(),
		history: NewHistory(),
		done:    make(chan struct{}),
	}
}

// AttachRelay wires a cross-instance relay. Must be called before Start.
func (s *Server) AttachRelay(r Relay) { s.relay = r }

// AttachRecorder wires the audit event recorder. Must be called before Start.
func (s *Server) AttachRecorder(rec EventRecorder) { s.recorder = rec }

// Start configures the HTTP server and begins accepting WebSocket
// connections. It starts the heartbeat sweep in a background goroutine and
// blocks on http.Server.ListenAndServe.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/ws-event", s.handleBridgeEvent)
	mux.HandleFunc("/api/ws-stats", s.handleStats)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	go s.heartbeatLoop()

	log.Printf("ws: server listening on %s (max_conns=%d, heartbeat=%s)",
		s.config.ListenAddr, s.config.MaxConnections, s.config.HeartbeatInterval)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// newClientID generates a connection id of the form
// client_<unix-ms>_<random suffix>. Collisions are treated as negligible.
func newClientID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("client_%d_%s", time.Now().UnixMilli(), suffix)
}

// handleUpgrade upgrades an HTTP request to a WebSocket connection, extracts
// the client identity from the query parameters, registers the connection and
// greets it with its id plus a snapshot of recent history.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	role := q.Get("role")
	if role == "" {
		role = "customer"
	}
	merchantID := q.Get("merchant_id")
	userID := q.Get("user_id")
	token := q.Get("token")

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	c := &Connection{
		ID:          newClientID(),
		MerchantID:  merchantID,
		UserID:      userID,
		Role:        role,
		Token:       token,
		Conn:        conn,
		ConnectedAt: time.Now(),
	}
	c.MarkAlive()

	s.conns.Add(c)
	metrics.ConnectionsActive.Set(float64(s.conns.Count()))

	env, err := protocol.NewEnvelope(protocol.TypeConnectionEstablished, protocol.ConnectionEstablishedPayload{
		ClientID:       c.ID,
		MessageHistory: s.history.Last(s.config.HistoryReplay),
	})
	if err != nil {
		log.Printf("ws: build connection_established for %s: %v", c.ID, err)
	} else {
		s.send(c, env)
	}

	log.Printf("ws: client connected id=%s role=%s tenant=%s (total=%d)",
		c.ID, c.Role, c.MerchantID, s.conns.Count())

	go s.readLoop(c)
}

// readLoop reads frames from one connection until it fails or closes. Frames
// from a single connection are processed strictly in arrival order; registry
// mutations complete before the next frame is read.
func (s *Server) readLoop(c *Connection) {
	for {
		hdr, rdr, err := wsutil.NextReader(c.Conn, ws.StateServerSide)
		if err != nil {
			s.Disconnect(c.ID)
			return
		}

		if hdr.OpCode.IsControl() {
			// Drain any control payload before continuing.
			_, _ = io.Copy(io.Discard, rdr)
			switch hdr.OpCode {
			case ws.OpClose:
				s.Disconnect(c.ID)
				return
			case ws.OpPong:
				c.MarkAlive()
			case ws.OpPing:
				c.MarkAlive()
				if err := c.writePong(); err != nil {
					s.Disconnect(c.ID)
					return
				}
			}
			continue
		}

		data, err := io.ReadAll(rdr)
		if err != nil {
			s.Disconnect(c.ID)
			return
		}
		c.MarkAlive()

		if len(data) == 0 {
			continue
		}
		s.handleInbound(c, data)
	}
}

// handleInbound dispatches one parsed frame. Malformed JSON is logged and
// dropped with no reply; unknown types are logged and ignored so newer
// clients never break older servers.
func (s *Server) handleInbound(c *Connection, data []byte) {
	env, payload, err := protocol.ParseClientMessage(data)
	if errors.Is(err, protocol.ErrUnknownType) {
		log.Printf("ws: unknown message type %q from %s", env.Type, c.ID)
		return
	}
	if err != nil {
		log.Printf("ws: dropping malformed frame from %s: %v", c.ID, err)
		return
	}

	metrics.EnvelopesTotal.WithLabelValues(env.Type, "in").Inc()

	switch env.Type {
	case protocol.TypePing:
		pong, err := protocol.NewEnvelope(protocol.TypePong, nil)
		if err == nil {
			s.send(c, pong)
		}
	case protocol.TypeSubscribe:
		s.Subscribe(c, payload.(protocol.SubscribePayload).Room)
	case protocol.TypeUnsubscribe:
		s.Unsubscribe(c, payload.(protocol.SubscribePayload).Room)
	case protocol.TypeBotStatusRequest:
		s.BroadcastBotStatus()
	case protocol.TypeOrderStatusUpdate:
		s.OrderStatusUpdate(c, payload.(protocol.OrderStatusUpdatePayload))
	case protocol.TypeMerchantNotification:
		s.MerchantNotification(c, payload.(protocol.MerchantNotificationPayload))
	case protocol.TypeUserActivity:
		s.UserActivity(c, payload.(protocol.UserActivityPayload))
	}
}

// Subscribe idempotently adds the connection to a room, confirms to the
// caller, and tells the other members someone joined.
func (s *Server) Subscribe(c *Connection, room string) {
	if room == "" {
		return
	}

	size := s.rooms.Join(room, c.ID)
	c.addSub(room)
	metrics.RoomsActive.Set(float64(s.rooms.Count()))

	log.Printf("ws: client %s subscribed to %s (size=%d)", c.ID, room, size)

	if env, err := protocol.NewEnvelope(protocol.TypeSubscriptionConfirmed, protocol.SubscriptionConfirmedPayload{Room: room}); err == nil {
		s.send(c, env)
	}

	joined, err := protocol.NewEnvelope(protocol.TypeUserJoined, protocol.UserJoinedPayload{
		ClientID: c.ID,
		RoomSize: size,
	})
	if err == nil {
		s.BroadcastToRoom(room, joined, c.ID)
	}
}

// Unsubscribe removes the connection from a room, pruning the room when it
// becomes empty, and confirms to the caller.
func (s *Server) Unsubscribe(c *Connection, room string) {
	if room == "" {
		return
	}

	s.rooms.Leave(room, c.ID)
	c.removeSub(room)
	metrics.RoomsActive.Set(float64(s.rooms.Count()))

	log.Printf("ws: client %s unsubscribed from %s", c.ID, room)

	if env, err := protocol.NewEnvelope(protocol.TypeUnsubscriptionConfirmed, protocol.SubscriptionConfirmedPayload{Room: room}); err == nil {
		s.send(c, env)
	}
}

// OrderStatusUpdate fans an order status change out to the sender's tenant
// room and the order's own room. The tenant is read from the connection's
// registered identity so a client cannot spoof another tenant's room.
func (s *Server) OrderStatusUpdate(c *Connection, p protocol.OrderStatusUpdatePayload) {
	env, err := protocol.NewEnvelope(protocol.TypeOrderStatusChanged, protocol.OrderStatusChangedPayload{
		OrderID:   p.OrderID,
		Status:    p.Status,
		Details:   p.Details,
		UpdatedBy: c.Role,
	})
	if err != nil {
		log.Printf("ws: build order_status_changed: %v", err)
		return
	}

	s.history.Append(env)
	s.record(env.Type, c.MerchantID, "info", env.Data)

	s.BroadcastToRoom(MerchantRoom(c.MerchantID), env, "")
	s.BroadcastToRoom(OrderRoom(p.OrderID), env, "")

	log.Printf("ws: order %s updated to %s by %s", p.OrderID, p.Status, c.Role)
}

// MerchantNotification fans a notification out to the named merchant's room.
func (s *Server) MerchantNotification(c *Connection, p protocol.MerchantNotificationPayload) {
	level := p.Level
	if level == "" {
		level = "info"
	}
	env, err := protocol.NewEnvelope(protocol.TypeMerchantNotification, protocol.MerchantNotificationSent{
		MerchantID:   p.MerchantID,
		Notification: p.Notification,
		Level:        level,
		SentBy:       c.Role,
	})
	if err != nil {
		log.Printf("ws: build merchant_notification: %v", err)
		return
	}

	s.history.Append(env)
	s.record(env.Type, p.MerchantID, level, env.Data)
	s.BroadcastToRoom(MerchantRoom(p.MerchantID), env, "")
}

// UserActivity forwards an activity report to the admin dashboard room.
func (s *Server) UserActivity(c *Connection, p protocol.UserActivityPayload) {
	env, err := protocol.NewEnvelope(protocol.TypeUserActivity, protocol.UserActivitySent{
		UserID:  c.UserID,
		Action:  p.Action,
		Details: p.Details,
		Role:    c.Role,
	})
	if err != nil {
		log.Printf("ws: build user_activity: %v", err)
		return
	}
	s.BroadcastToRoom(RoomAdminDashboard, env, "")
}

// BroadcastBotStatus pushes a registry snapshot to every connection.
func (s *Server) BroadcastBotStatus() {
	env, err := protocol.NewEnvelope(protocol.TypeBotStatus, protocol.BotStatusPayload{
		Connected:        true,
		ConnectedClients: s.conns.Count(),
		ActiveRooms:      s.rooms.Count(),
	})
	if err != nil {
		return
	}
	s.history.Append(env)
	s.BroadcastAll(env, "")
}

// BroadcastToRoom delivers an envelope to every member of a room except the
// excluded sender, then mirrors it to sibling instances via the relay.
func (s *Server) BroadcastToRoom(room string, env protocol.Envelope, excludeID string) {
	s.localBroadcastToRoom(room, env, excludeID)
	if s.relay != nil {
		if err := s.relay.PublishRoom(room, env); err != nil {
			log.Printf("ws: relay publish room=%s: %v", room, err)
		}
	}
}

// localBroadcastToRoom delivers only to connections on this instance. It is
// the entry point used for envelopes arriving from the relay.
func (s *Server) localBroadcastToRoom(room string, env protocol.Envelope, excludeID string) {
	for _, id := range s.rooms.Members(room) {
		if excludeID != "" && id == excludeID {
			continue
		}
		if c := s.conns.Get(id); c != nil {
			s.send(c, env)
		}
	}
}

// RemoteBroadcastToRoom is called by the relay subscription for envelopes
// published by sibling instances.
func (s *Server) RemoteBroadcastToRoom(room string, env protocol.Envelope) {
	s.localBroadcastToRoom(room, env, "")
}

// BroadcastAll delivers an envelope to every connection except the excluded
// one, silently skipping sockets that fail to write.
func (s *Server) BroadcastAll(env protocol.Envelope, excludeID string) {
	s.localBroadcastAll(env, excludeID)
	if s.relay != nil {
		if err := s.relay.PublishAll(env); err != nil {
			log.Printf("ws: relay publish all: %v", err)
		}
	}
}

func (s *Server) localBroadcastAll(env protocol.Envelope, excludeID string) {
	for _, c := range s.conns.All() {
		if excludeID != "" && c.ID == excludeID {
			continue
		}
		s.send(c, env)
	}
}

// RemoteBroadcastAll is called by the relay subscription for broadcast-all
// envelopes published by sibling instances.
func (s *Server) RemoteBroadcastAll(env protocol.Envelope) {
	s.localBroadcastAll(env, "")
}

// send writes an envelope to one connection, ignoring write failures: a dead
// socket is reaped by its read loop or the heartbeat sweep, and one client's
// failure must never affect delivery to others.
func (s *Server) send(c *Connection, env protocol.Envelope) {
	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	err := c.WriteEnvelope(env)
	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Time{})
	}
	if err == nil {
		metrics.EnvelopesTotal.WithLabelValues(env.Type, "out").Inc()
	}
}

// record persists an envelope to the audit log when a recorder is attached.
func (s *Server) record(eventType, merchantID, level string, payload []byte) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.recorder.Record(ctx, eventType, merchantID, level, payload); err != nil {
		log.Printf("ws: audit record %s: %v", eventType, err)
	}
}

// Disconnect removes a connection from every room it subscribed to, pruning
// now-empty rooms, then deletes it from the registry. Safe to call twice.
func (s *Server) Disconnect(id string) {
	c := s.conns.Remove(id)
	if c == nil {
		return
	}
	for _, room := range c.Subscriptions() {
		s.rooms.Leave(room, id)
	}
	metrics.ConnectionsActive.Set(float64(s.conns.Count()))
	metrics.RoomsActive.Set(float64(s.rooms.Count()))
	log.Printf("ws: client disconnected id=%s (total=%d)", id, s.conns.Count())
}

// handleHealth responds with the server's health status as JSON.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Rooms       int    `json:"rooms"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Rooms:       s.rooms.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// Shutdown performs a graceful shutdown: it stops the HTTP listener, signals
// the heartbeat loop to exit, and closes all active connections.
func (s *Server) Shutdown() error {
	log.Println("ws: shutting down server...")

	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("ws: http shutdown error: %v", err)
		}
	}

	for _, c := range s.conns.All() {
		s.Disconnect(c.ID)
	}

	log.Printf("ws: server stopped, all connections closed")
	return nil
}
