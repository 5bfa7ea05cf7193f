// Package emitter forwards bot-side events to the realtime server over its
// HTTP bridge. Events raised while the dashboard link is down are held in a
// bounded queue and replayed in order once the link is confirmed.
package emitter

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/musika/commerce/internal/metrics"
	"github.com/musika/commerce/internal/protocol"
)

// MaxQueueSize bounds the offline queue. When full, the oldest event is
// dropped: recent activity matters more on a dashboard than stale history.
const MaxQueueSize = 100

// Emitter posts protocol envelopes to the realtime server's event bridge.
// All methods are safe for concurrent use.
type Emitter struct {
	endpoint string
	httpc    *http.Client

	mu        sync.Mutex
	queue     []protocol.Envelope
	connected bool
	enabled   bool
	sent      int
	dropped   int
}

// New creates an Emitter targeting the realtime server at baseURL, e.g.
// "http://localhost:5174". An empty baseURL disables the emitter entirely.
func New(baseURL string) *Emitter {
	return &Emitter{
		endpoint: baseURL + "/api/ws-event",
		enabled:  baseURL != "",
		httpc:    &http.Client{Timeout: 5 * time.Second},
	}
}

// SetConnected flips the link state. Transitioning to connected replays the
// queued events in FIFO order; a replay failure re-queues the remainder.
func (e *Emitter) SetConnected(connected bool) {
	e.mu.Lock()
	wasConnected := e.connected
	e.connected = connected
	var pending []protocol.Envelope
	if connected && !wasConnected {
		pending = e.queue
		e.queue = nil
	}
	e.mu.Unlock()

	if len(pending) > 0 {
		log.Printf("emitter: link up, replaying %d queued event(s)", len(pending))
		for i, env := range pending {
			if err := e.post(env); err != nil {
				log.Printf("emitter: replay %s: %v", env.Type, err)
				e.requeue(pending[i:])
				return
			}
			e.mu.Lock()
			e.sent++
			e.mu.Unlock()
		}
	}
	e.updateDepthGauge()
}

// Broadcast sends one typed event, queueing it when the link is down.
func (e *Emitter) Broadcast(msgType string, payload interface{}) {
	e.mu.Lock()
	enabled := e.enabled
	connected := e.connected
	e.mu.Unlock()
	if !enabled {
		return
	}

	env, err := protocol.NewEnvelope(msgType, payload)
	if err != nil {
		log.Printf("emitter: build %s: %v", msgType, err)
		return
	}

	if !connected {
		e.enqueue(env)
		return
	}

	if err := e.post(env); err != nil {
		log.Printf("emitter: post %s: %v", msgType, err)
		e.enqueue(env)
		return
	}
	e.mu.Lock()
	e.sent++
	e.mu.Unlock()
}

// enqueue appends to the offline queue, dropping the oldest entry at cap.
func (e *Emitter) enqueue(env protocol.Envelope) {
	e.mu.Lock()
	if len(e.queue) >= MaxQueueSize {
		e.queue = e.queue[1:]
		e.dropped++
	}
	e.queue = append(e.queue, env)
	e.mu.Unlock()
	e.updateDepthGauge()
}

func (e *Emitter) requeue(events []protocol.Envelope) {
	e.mu.Lock()
	e.queue = append(events, e.queue...)
	if overflow := len(e.queue) - MaxQueueSize; overflow > 0 {
		e.queue = e.queue[overflow:]
		e.dropped += overflow
	}
	e.connected = false
	e.mu.Unlock()
	e.updateDepthGauge()
}

func (e *Emitter) post(env protocol.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	resp, err := e.httpc.Post(e.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusError{status: resp.StatusCode}
	}
	return nil
}

type httpStatusError struct{ status int }

func (e *httpStatusError) Error() string {
	return "emitter: bridge returned " + http.StatusText(e.status)
}

func (e *Emitter) updateDepthGauge() {
	e.mu.Lock()
	depth := len(e.queue)
	e.mu.Unlock()
	metrics.EmitterQueueDepth.Set(float64(depth))
}

// Stats reports queue and delivery counters.
func (e *Emitter) Stats() (queued, sent, dropped int, connected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue), e.sent, e.dropped, e.connected
}

// BotConnected reports the bot linking up with the chat provider.
func (e *Emitter) BotConnected(phoneNumber string, deviceInfo map[string]string) {
	e.Broadcast(protocol.TypeBotStatus, protocol.BotStatusEventPayload{
		Event:       "connected",
		PhoneNumber: phoneNumber,
		DeviceInfo:  deviceInfo,
	})
}

// BotDisconnected reports the bot losing its chat provider link.
func (e *Emitter) BotDisconnected(reason string) {
	e.Broadcast(protocol.TypeBotStatus, protocol.BotStatusEventPayload{
		Event:  "disconnected",
		Reason: reason,
	})
}

// MessageReceived relays an inbound chat message to the live feed.
func (e *Emitter) MessageReceived(from, text string, hasMedia bool) {
	e.Broadcast(protocol.TypeBotMessage, protocol.BotMessagePayload{
		From:     from,
		Text:     text,
		HasMedia: hasMedia,
	})
}

// MessageSent relays an outbound bot reply to the live feed.
func (e *Emitter) MessageSent(to, text string) {
	e.Broadcast(protocol.TypeBotMessageSent, protocol.BotMessageSentPayload{
		To:   to,
		Text: text,
	})
}

// CommandExecuted reports a command invocation for the admin feed.
func (e *Emitter) CommandExecuted(from, command string, args []string, status string) {
	e.Broadcast(protocol.TypeCommandExecuted, protocol.CommandExecutedPayload{
		From:    from,
		Command: command,
		Args:    args,
		Status:  status,
	})
}

// OrderCreated pushes a freshly placed order to the merchant dashboard.
func (e *Emitter) OrderCreated(order interface{}) {
	e.Broadcast(protocol.TypeNewOrder, map[string]interface{}{"order": order})
}

// OrderStatusChanged pushes an order status transition.
func (e *Emitter) OrderStatusChanged(orderID, status string) {
	e.Broadcast(protocol.TypeOrderStatusChanged, protocol.OrderStatusChangedPayload{
		OrderID:   orderID,
		Status:    status,
		UpdatedBy: "bot",
	})
}

// MerchantNotification pushes a notification into a merchant's room.
func (e *Emitter) MerchantNotification(merchantID, notification, level string) {
	e.Broadcast(protocol.TypeMerchantNotification, protocol.MerchantNotificationPayload{
		MerchantID:   merchantID,
		Notification: notification,
		Level:        level,
	})
}

// UserActivity reports a customer action for the admin dashboard.
func (e *Emitter) UserActivity(action string, details json.RawMessage) {
	e.Broadcast(protocol.TypeUserActivity, protocol.UserActivityPayload{
		Action:  action,
		Details: details,
	})
}

// ErrorOccurred surfaces a bot-side failure to the admin dashboard.
func (e *Emitter) ErrorOccurred(context, message string) {
	e.Broadcast(protocol.TypeErrorEvent, protocol.ErrorEventPayload{
		Context: context,
		Message: message,
	})
}
