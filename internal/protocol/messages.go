// Package protocol defines the JSON envelope exchanged over the realtime
// WebSocket connection between the dashboard, the bot bridge, and the server.
// Every message is a typed envelope with a string discriminator; routing on
// both ends depends on the "type" field surviving a marshal/unmarshal cycle
// exactly.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypePing                 = "ping"
	TypeSubscribe            = "subscribe"
	TypeUnsubscribe          = "unsubscribe"
	TypeBotStatusRequest     = "bot_status_request"
	TypeOrderStatusUpdate    = "order_status_update"
	TypeMerchantNotification = "merchant_notification"
	TypeUserActivity         = "user_activity"
)

// Server -> Client message types.
const (
	TypeConnectionEstablished   = "connection_established"
	TypePong                    = "pong"
	TypeSubscriptionConfirmed   = "subscription_confirmed"
	TypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	TypeUserJoined              = "user_joined"
	TypeBotStatus               = "bot_status"
	TypeNewOrder                = "new_order"
	TypeOrderStatusChanged      = "order_status_changed"
	TypeBotMessage              = "bot_message"
)

// Bridge-originated types, posted by the bot's event emitter and fanned out
// by the server. TypeMerchantNotification and TypeUserActivity travel both
// directions.
const (
	TypeBotMessageSent   = "bot_message_sent"
	TypeCommandExecuted  = "command_executed"
	TypeInventoryUpdated = "inventory_updated"
	TypeErrorEvent       = "error"
)

// ErrUnknownType is returned by ParseClientMessage for types outside the
// recognized inbound set. Callers log and ignore these (the contract is
// forward-compatible, never fatal).
var ErrUnknownType = errors.New("protocol: unknown message type")

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope is the wire message unit. Payload fields live under "data"; the
// optional "room" scopes the message to a broadcast channel.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Room      string          `json:"room,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// NewEnvelope builds an envelope of the given type, marshalling the payload
// into the data field and stamping the current time in ISO-8601.
func NewEnvelope(msgType string, payload interface{}) (Envelope, error) {
	env := Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("protocol: marshal %q payload: %w", msgType, err)
		}
		env.Data = raw
	}
	return env, nil
}

// Encode serializes the envelope for transmission.
func (e Envelope) Encode() ([]byte, error) {
	out, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal envelope: %w", err)
	}
	return out, nil
}

// ParseEnvelope decodes raw frame bytes into an envelope. A missing or empty
// type field is an error; nothing can be routed without it.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: parse envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	return env, nil
}

// DecodePayload unmarshals the envelope's data field into dst. An absent data
// field leaves dst at its zero value.
func (e Envelope) DecodePayload(dst interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("protocol: decode %q payload: %w", e.Type, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server payloads
// ---------------------------------------------------------------------------

// SubscribePayload names the room to join or leave.
type SubscribePayload struct {
	Room string `json:"room"`
}

// OrderStatusUpdatePayload is sent by a dashboard client when an order moves
// to a new status. The tenant is never taken from this payload; the server
// reads it from the connection's registered identity.
type OrderStatusUpdatePayload struct {
	OrderID string          `json:"orderId"`
	Status  string          `json:"status"`
	Details json.RawMessage `json:"details,omitempty"`
}

// MerchantNotificationPayload carries a notification for a merchant's
// dashboard room.
type MerchantNotificationPayload struct {
	MerchantID   string `json:"merchantId"`
	Notification string `json:"notification"`
	Level        string `json:"level,omitempty"`
}

// UserActivityPayload reports a user action for the admin dashboard.
type UserActivityPayload struct {
	Action  string          `json:"action"`
	Details json.RawMessage `json:"details,omitempty"`
}

// ---------------------------------------------------------------------------
// Server -> Client payloads
// ---------------------------------------------------------------------------

// ConnectionEstablishedPayload greets a new connection with its assigned id
// and a snapshot of recent traffic.
type ConnectionEstablishedPayload struct {
	ClientID       string     `json:"clientId"`
	MessageHistory []Envelope `json:"messageHistory"`
}

// SubscriptionConfirmedPayload acknowledges a subscribe or unsubscribe.
type SubscriptionConfirmedPayload struct {
	Room string `json:"room"`
}

// UserJoinedPayload tells existing room members that a connection joined.
type UserJoinedPayload struct {
	ClientID string `json:"clientId"`
	RoomSize int    `json:"roomSize"`
}

// BotStatusPayload is the server's snapshot answer to bot_status_request.
type BotStatusPayload struct {
	Connected        bool `json:"connected"`
	ConnectedClients int  `json:"connectedClients"`
	ActiveRooms      int  `json:"activeRooms"`
}

// NewOrderPayload wraps a freshly created order for the dashboard.
type NewOrderPayload struct {
	Order json.RawMessage `json:"order"`
}

// OrderStatusChangedPayload is the fanout form of an order status update.
type OrderStatusChangedPayload struct {
	OrderID   string          `json:"orderId"`
	Status    string          `json:"status"`
	Details   json.RawMessage `json:"details,omitempty"`
	UpdatedBy string          `json:"updatedBy"`
}

// MerchantNotificationSent is the fanout form of a merchant notification,
// carrying the role of the connection that sent it.
type MerchantNotificationSent struct {
	MerchantID   string `json:"merchantId"`
	Notification string `json:"notification"`
	Level        string `json:"level"`
	SentBy       string `json:"sentBy"`
}

// UserActivitySent is the fanout form of a user activity report.
type UserActivitySent struct {
	UserID  string          `json:"userId"`
	Action  string          `json:"action"`
	Details json.RawMessage `json:"details,omitempty"`
	Role    string          `json:"role"`
}

// BotMessagePayload relays a chat message observed by the bot.
type BotMessagePayload struct {
	From     string `json:"from"`
	Text     string `json:"text"`
	HasMedia bool   `json:"hasMedia,omitempty"`
}

// ---------------------------------------------------------------------------
// Bridge payloads (bot -> server)
// ---------------------------------------------------------------------------

// BotStatusEventPayload reports the bot process connecting or disconnecting
// from the chat provider.
type BotStatusEventPayload struct {
	Event       string            `json:"event"` // "connected" or "disconnected"
	PhoneNumber string            `json:"phoneNumber,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	DeviceInfo  map[string]string `json:"deviceInfo,omitempty"`
}

// BotMessageSentPayload records an outbound bot message.
type BotMessageSentPayload struct {
	To        string `json:"to"`
	Text      string `json:"text"`
	MessageID string `json:"messageId,omitempty"`
}

// CommandExecutedPayload records a bot command invocation for the admin feed.
type CommandExecutedPayload struct {
	From    string   `json:"from"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Status  string   `json:"status"`
}

// InventoryUpdatedPayload reports a stock level change.
type InventoryUpdatedPayload struct {
	ProductID   string `json:"productId"`
	OldQuantity int    `json:"oldQuantity"`
	NewQuantity int    `json:"newQuantity"`
}

// ErrorEventPayload surfaces a bot-side failure to the admin dashboard. Only
// the plain-language message crosses the wire, never a stack trace.
type ErrorEventPayload struct {
	Context string `json:"context"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw frame bytes into the envelope plus the typed
// payload for the recognized inbound set. Unrecognized types return the
// envelope together with ErrUnknownType so callers can log and ignore them.
func ParseClientMessage(data []byte) (Envelope, interface{}, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return Envelope{}, nil, err
	}

	var payload interface{}
	switch env.Type {
	case TypePing, TypeBotStatusRequest:
		// No payload.
	case TypeSubscribe, TypeUnsubscribe:
		var p SubscribePayload
		if err := env.DecodePayload(&p); err != nil {
			return env, nil, err
		}
		// Accept an envelope-level room when the payload omits it.
		if p.Room == "" {
			p.Room = env.Room
		}
		payload = p
	case TypeOrderStatusUpdate:
		var p OrderStatusUpdatePayload
		if err := env.DecodePayload(&p); err != nil {
			return env, nil, err
		}
		payload = p
	case TypeMerchantNotification:
		var p MerchantNotificationPayload
		if err := env.DecodePayload(&p); err != nil {
			return env, nil, err
		}
		payload = p
	case TypeUserActivity:
		var p UserActivityPayload
		if err := env.DecodePayload(&p); err != nil {
			return env, nil, err
		}
		payload = p
	default:
		return env, nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	return env, payload, nil
}
