// Package relay mirrors realtime broadcasts across server instances over
// NATS so clients connected to different instances see the same traffic.
// Each instance tags outgoing messages with its own origin id and drops its
// own messages when they come back around.
package relay

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/musika/commerce/internal/protocol"
)

// NATS subject layout. Room traffic uses one subject per room under the
// rt.room prefix; broadcast-all traffic shares a single subject.
const (
	SubjectRoomPrefix = "rt.room."
	SubjectBroadcast  = "rt.broadcast"
)

// Message is the relay's wire frame around a protocol envelope.
type Message struct {
	Origin   string            `json:"origin"`
	Room     string            `json:"room,omitempty"`
	Envelope protocol.Envelope `json:"envelope"`
}

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	Origin        string // unique id of this server instance
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns production defaults for the given origin id.
func DefaultConfig(url, origin string) Config {
	return Config{
		URL:           url,
		Name:          "musika-rtserver",
		Origin:        origin,
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Relay is a NATS-backed cross-instance broadcast mirror.
type Relay struct {
	conn   *nats.Conn
	origin string

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect establishes the NATS connection.
func Connect(config Config) (*Relay, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("relay: nats disconnected: %v", err)
			} else {
				log.Printf("relay: nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("relay: nats reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("relay: nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("relay: nats connect: %w", err)
	}
	log.Printf("relay: connected to %s as %s", nc.ConnectedUrl(), config.Origin)

	return &Relay{conn: nc, origin: config.Origin}, nil
}

// roomSubject maps a room name onto a NATS subject, replacing characters
// that carry meaning in subject syntax.
func roomSubject(room string) string {
	sanitized := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(room)
	return SubjectRoomPrefix + sanitized
}

// PublishRoom mirrors a room broadcast to sibling instances.
func (r *Relay) PublishRoom(room string, env protocol.Envelope) error {
	return r.publish(roomSubject(room), Message{Origin: r.origin, Room: room, Envelope: env})
}

// PublishAll mirrors a broadcast-all to sibling instances.
func (r *Relay) PublishAll(env protocol.Envelope) error {
	return r.publish(SubjectBroadcast, Message{Origin: r.origin, Envelope: env})
}

func (r *Relay) publish(subject string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("relay: marshal for %s: %w", subject, err)
	}
	if err := r.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("relay: publish %s: %w", subject, err)
	}
	return nil
}

// SubscribeRooms delivers room traffic published by sibling instances. The
// handler receives the room name and the envelope; this instance's own
// messages are filtered out.
func (r *Relay) SubscribeRooms(handler func(room string, env protocol.Envelope)) error {
	sub, err := r.conn.Subscribe(SubjectRoomPrefix+">", func(m *nats.Msg) {
		msg, ok := r.decode(m)
		if !ok || msg.Room == "" {
			return
		}
		handler(msg.Room, msg.Envelope)
	})
	if err != nil {
		return fmt.Errorf("relay: subscribe rooms: %w", err)
	}
	r.track(sub)
	return nil
}

// SubscribeBroadcast delivers broadcast-all traffic from sibling instances.
func (r *Relay) SubscribeBroadcast(handler func(env protocol.Envelope)) error {
	sub, err := r.conn.Subscribe(SubjectBroadcast, func(m *nats.Msg) {
		msg, ok := r.decode(m)
		if !ok {
			return
		}
		handler(msg.Envelope)
	})
	if err != nil {
		return fmt.Errorf("relay: subscribe broadcast: %w", err)
	}
	r.track(sub)
	return nil
}

// decode unmarshals a relay frame and filters out messages this instance
// published itself.
func (r *Relay) decode(m *nats.Msg) (Message, bool) {
	var msg Message
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		log.Printf("relay: drop undecodable frame on %s: %v", m.Subject, err)
		return Message{}, false
	}
	if msg.Origin == r.origin {
		return Message{}, false
	}
	return msg, true
}

func (r *Relay) track(sub *nats.Subscription) {
	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()
}

// Close drains all subscriptions and the connection.
func (r *Relay) Close() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			log.Printf("relay: drain %s: %v", sub.Subject, err)
		}
	}
	if err := r.conn.Drain(); err != nil {
		log.Printf("relay: connection drain: %v", err)
	}
	log.Printf("relay: closed")
}
