package relay

import (
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/musika/commerce/internal/protocol"
)

func TestRoomSubjectSanitizesMeta(t *testing.T) {
	tests := map[string]string{
		"merchant_m1":     "rt.room.merchant_m1",
		"order.42":        "rt.room.order_42",
		"weird room>*":    "rt.room.weird_room__",
		"admin_dashboard": "rt.room.admin_dashboard",
	}
	for room, want := range tests {
		if got := roomSubject(room); got != want {
			t.Errorf("roomSubject(%q) = %q, want %q", room, got, want)
		}
	}
}

func TestDecodeFiltersOwnOrigin(t *testing.T) {
	r := &Relay{origin: "srv-a"}
	env, _ := protocol.NewEnvelope(protocol.TypeBotStatus, nil)

	own, _ := json.Marshal(Message{Origin: "srv-a", Room: "merchant_m1", Envelope: env})
	if _, ok := r.decode(&nats.Msg{Subject: "rt.room.merchant_m1", Data: own}); ok {
		t.Error("own messages must be filtered")
	}

	other, _ := json.Marshal(Message{Origin: "srv-b", Room: "merchant_m1", Envelope: env})
	msg, ok := r.decode(&nats.Msg{Subject: "rt.room.merchant_m1", Data: other})
	if !ok || msg.Room != "merchant_m1" || msg.Envelope.Type != protocol.TypeBotStatus {
		t.Errorf("decode = %+v ok=%v", msg, ok)
	}

	if _, ok := r.decode(&nats.Msg{Subject: "rt.broadcast", Data: []byte("{bad")}); ok {
		t.Error("undecodable frames must be dropped")
	}
}
