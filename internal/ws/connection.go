package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/musika/commerce/internal/protocol"
)

// Connection represents a single WebSocket client with the identity extracted
// from its connection request and a write mutex serializing outbound frames.
type Connection struct {
	ID          string
	MerchantID  string // tenant; empty for unauthenticated/admin connections
	UserID      string
	Role        string
	Token       string
	Conn        net.Conn
	ConnectedAt time.Time

	alive   atomic.Bool // reset by the heartbeat sweep, set by any inbound frame
	writeMu sync.Mutex

	subsMu sync.Mutex
	subs   map[string]struct{} // rooms this connection joined
}

// Alive reports whether the connection has produced traffic since the last
// heartbeat sweep.
func (c *Connection) Alive() bool { return c.alive.Load() }

// MarkAlive records inbound activity; any frame proves liveness.
func (c *Connection) MarkAlive() { c.alive.Store(true) }

// resetAlive clears the flag ahead of a ping; the next pong flips it back.
func (c *Connection) resetAlive() { c.alive.Store(false) }

// WriteEnvelope sends an envelope as a WebSocket text frame. The write mutex
// ensures concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteEnvelope(env protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a protocol-level ping frame (opcode 0x9); browser clients
// answer with a pong automatically.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// writePong answers a protocol-level ping from the peer.
func (c *Connection) writePong() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPongFrame(nil))
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// addSub records room membership on the connection side. The room registry
// owns the authoritative member sets; this is the back-reference used for
// disconnect cleanup.
func (c *Connection) addSub(room string) {
	c.subsMu.Lock()
	if c.subs == nil {
		c.subs = make(map[string]struct{})
	}
	c.subs[room] = struct{}{}
	c.subsMu.Unlock()
}

func (c *Connection) removeSub(room string) {
	c.subsMu.Lock()
	delete(c.subs, room)
	c.subsMu.Unlock()
}

// Subscriptions returns a snapshot of the rooms this connection joined.
func (c *Connection) Subscriptions() []string {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	rooms := make([]string, 0, len(c.subs))
	for room := range c.subs {
		rooms = append(rooms, room)
	}
	return rooms
}

// ConnectionRegistry is a thread-safe registry mapping connection ids to
// Connection objects. It exclusively owns the socket handles: removal closes
// the underlying connection.
type ConnectionRegistry struct {
	mu   sync.RWMutex
	byID map[string]*Connection
}

// NewConnectionRegistry creates an empty ConnectionRegistry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{byID: make(map[string]*Connection)}
}

// Add registers a connection.
func (r *ConnectionRegistry) Add(c *Connection) {
	r.mu.Lock()
	r.byID[c.ID] = c
	r.mu.Unlock()
}

// Remove removes a connection by id and closes its socket. Returns the
// removed connection, or nil if it was already gone; the nil return makes
// disconnect cleanup idempotent when a read error and a heartbeat timeout
// race to remove the same connection.
func (r *ConnectionRegistry) Remove(id string) *Connection {
	r.mu.Lock()
	c, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	c.Close()
	return c
}

// Get returns the connection for the given id, or nil.
func (r *ConnectionRegistry) Get(id string) *Connection {
	r.mu.RLock()
	c := r.byID[id]
	r.mu.RUnlock()
	return c
}

// Count returns the current number of registered connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	n := len(r.byID)
	r.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections, safe to iterate without
// holding the lock.
func (r *ConnectionRegistry) All() []*Connection {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	return conns
}
