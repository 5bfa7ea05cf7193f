package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/musika/commerce/internal/protocol"
)

// handleBridgeEvent accepts envelopes posted by the bot's event emitter and
// routes them to the rooms the equivalent socket-originated events would
// reach. The bridge is the only path between the bot process and the
// dashboard's realtime layer.
func (s *Server) handleBridgeEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var env protocol.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil || env.Type == "" {
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	s.routeBridgeEvent(env)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// bridgeOrderRef is the subset of order payload fields the router needs to
// pick target rooms.
type bridgeOrderRef struct {
	OrderID    string `json:"orderId"`
	MerchantID string `json:"merchantId"`
	Order      struct {
		ID         string `json:"id"`
		MerchantID string `json:"merchant_id"`
	} `json:"order"`
}

// routeBridgeEvent fans one emitter envelope out. Unknown types go to the
// admin dashboard so nothing the bot reports is silently lost.
func (s *Server) routeBridgeEvent(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeNewOrder:
		var ref bridgeOrderRef
		_ = env.DecodePayload(&ref)
		s.history.Append(env)
		s.record(env.Type, ref.Order.MerchantID, "info", env.Data)
		if ref.Order.MerchantID != "" {
			s.BroadcastToRoom(MerchantRoom(ref.Order.MerchantID), env, "")
		}
		s.BroadcastToRoom(RoomAdminDashboard, env, "")
		log.Printf("ws: bridge new_order id=%s merchant=%s", ref.Order.ID, ref.Order.MerchantID)

	case protocol.TypeOrderStatusChanged:
		var ref bridgeOrderRef
		_ = env.DecodePayload(&ref)
		s.history.Append(env)
		s.record(env.Type, ref.MerchantID, "info", env.Data)
		if ref.OrderID != "" {
			s.BroadcastToRoom(OrderRoom(ref.OrderID), env, "")
		}
		if ref.MerchantID != "" {
			s.BroadcastToRoom(MerchantRoom(ref.MerchantID), env, "")
		}
		s.BroadcastToRoom(RoomAdminDashboard, env, "")

	case protocol.TypeMerchantNotification:
		var p protocol.MerchantNotificationPayload
		_ = env.DecodePayload(&p)
		level := p.Level
		if level == "" {
			level = "info"
		}
		s.history.Append(env)
		s.record(env.Type, p.MerchantID, level, env.Data)
		if p.MerchantID != "" {
			s.BroadcastToRoom(MerchantRoom(p.MerchantID), env, "")
		}

	case protocol.TypeBotStatus, protocol.TypeBotMessage, protocol.TypeBotMessageSent:
		s.history.Append(env)
		s.BroadcastAll(env, "")

	case protocol.TypeUserActivity, protocol.TypeCommandExecuted,
		protocol.TypeInventoryUpdated, protocol.TypeErrorEvent:
		s.BroadcastToRoom(RoomAdminDashboard, env, "")

	default:
		log.Printf("ws: bridge event with unrecognized type %q routed to admin dashboard", env.Type)
		s.BroadcastToRoom(RoomAdminDashboard, env, "")
	}
}

// ClientSummary describes one connection in the stats snapshot.
type ClientSummary struct {
	ID            string    `json:"id"`
	Role          string    `json:"role"`
	MerchantID    string    `json:"merchantId,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	ConnectedAt   time.Time `json:"connectedAt"`
	Subscriptions []string  `json:"subscriptions"`
}

// Stats is the server statistics snapshot served at /api/ws-stats.
type Stats struct {
	ConnectedClients   int             `json:"connectedClients"`
	ActiveRooms        int             `json:"activeRooms"`
	MessageHistorySize int             `json:"messageHistorySize"`
	Clients            []ClientSummary `json:"clients"`
}

// SnapshotStats builds a point-in-time view of the registries.
func (s *Server) SnapshotStats() Stats {
	conns := s.conns.All()
	stats := Stats{
		ConnectedClients:   len(conns),
		ActiveRooms:        s.rooms.Count(),
		MessageHistorySize: s.history.Len(),
		Clients:            make([]ClientSummary, 0, len(conns)),
	}
	for _, c := range conns {
		stats.Clients = append(stats.Clients, ClientSummary{
			ID:            c.ID,
			Role:          c.Role,
			MerchantID:    c.MerchantID,
			UserID:        c.UserID,
			ConnectedAt:   c.ConnectedAt,
			Subscriptions: c.Subscriptions(),
		})
	}
	return stats
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.SnapshotStats())
}
