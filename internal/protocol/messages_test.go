package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEnvelopeTypeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeOrderStatusChanged, OrderStatusChangedPayload{
		OrderID: "o1", Status: "confirmed", UpdatedBy: "merchant",
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	raw, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	back, err := ParseEnvelope(raw)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if back.Type != TypeOrderStatusChanged {
		t.Errorf("type lost in round trip: got %q", back.Type)
	}
	if back.Timestamp == "" {
		t.Error("timestamp should be stamped")
	}

	var p OrderStatusChangedPayload
	if err := back.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.OrderID != "o1" || p.Status != "confirmed" {
		t.Errorf("payload mismatch: %+v", p)
	}
}

func TestParseEnvelopeRejectsMissingType(t *testing.T) {
	if _, err := ParseEnvelope([]byte(`{"data":{"room":"x"}}`)); err == nil {
		t.Error("expected error for missing type")
	}
	if _, err := ParseEnvelope([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestParseClientMessageSubscribe(t *testing.T) {
	raw := []byte(`{"type":"subscribe","data":{"room":"merchant_m1"},"timestamp":"2024-01-01T00:00:00Z"}`)
	env, payload, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage: %v", err)
	}
	if env.Type != TypeSubscribe {
		t.Errorf("type = %q, want subscribe", env.Type)
	}
	sub, ok := payload.(SubscribePayload)
	if !ok {
		t.Fatalf("payload type = %T", payload)
	}
	if sub.Room != "merchant_m1" {
		t.Errorf("room = %q", sub.Room)
	}
}

func TestParseClientMessageEnvelopeLevelRoom(t *testing.T) {
	raw := []byte(`{"type":"subscribe","room":"order_o7","timestamp":"2024-01-01T00:00:00Z"}`)
	_, payload, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage: %v", err)
	}
	if sub := payload.(SubscribePayload); sub.Room != "order_o7" {
		t.Errorf("room = %q, want order_o7", sub.Room)
	}
}

func TestParseClientMessageUnknownType(t *testing.T) {
	raw := []byte(`{"type":"telemetry_v2","data":{}}`)
	env, _, err := ParseClientMessage(raw)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
	if env.Type != "telemetry_v2" {
		t.Errorf("envelope type should still be reported, got %q", env.Type)
	}
}

func TestParseClientMessageOrderStatusUpdate(t *testing.T) {
	raw := []byte(`{"type":"order_status_update","data":{"orderId":"o1","status":"shipped","details":{"eta":"2h"}}}`)
	_, payload, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage: %v", err)
	}
	upd := payload.(OrderStatusUpdatePayload)
	if upd.OrderID != "o1" || upd.Status != "shipped" {
		t.Errorf("payload = %+v", upd)
	}
	var details map[string]string
	if err := json.Unmarshal(upd.Details, &details); err != nil {
		t.Fatalf("details should stay raw JSON: %v", err)
	}
	if details["eta"] != "2h" {
		t.Errorf("details = %v", details)
	}
}
