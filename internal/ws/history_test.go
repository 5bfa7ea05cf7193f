package ws

import (
	"fmt"
	"testing"

	"github.com/musika/commerce/internal/protocol"
)

func envWithRoom(room string) protocol.Envelope {
	env, _ := protocol.NewEnvelope(protocol.TypeBotMessage, protocol.BotMessagePayload{Text: room})
	env.Room = room
	return env
}

func TestHistoryAppendAndLast(t *testing.T) {
	h := NewHistory()

	for i := 1; i <= 3; i++ {
		h.Append(envWithRoom(fmt.Sprintf("r%d", i)))
	}

	last := h.Last(10)
	if len(last) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(last))
	}
	if last[0].Room != "r1" || last[2].Room != "r3" {
		t.Errorf("entries out of order: %s .. %s", last[0].Room, last[2].Room)
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory()

	// 101 appends: the first entry must be gone, the newest 100 present in
	// append order.
	for i := 1; i <= MaxHistorySize+1; i++ {
		h.Append(envWithRoom(fmt.Sprintf("r%d", i)))
	}

	if h.Len() != MaxHistorySize {
		t.Fatalf("len = %d, want %d", h.Len(), MaxHistorySize)
	}

	all := h.Last(MaxHistorySize)
	if all[0].Room != "r2" {
		t.Errorf("oldest entry = %s, want r2", all[0].Room)
	}
	if all[len(all)-1].Room != fmt.Sprintf("r%d", MaxHistorySize+1) {
		t.Errorf("newest entry = %s", all[len(all)-1].Room)
	}
	for i := range all {
		want := fmt.Sprintf("r%d", i+2)
		if all[i].Room != want {
			t.Fatalf("index %d: got %s, want %s", i, all[i].Room, want)
		}
	}
}

func TestHistoryLastSmallerThanCount(t *testing.T) {
	h := NewHistory()
	for i := 1; i <= 20; i++ {
		h.Append(envWithRoom(fmt.Sprintf("r%d", i)))
	}

	last := h.Last(5)
	if len(last) != 5 {
		t.Fatalf("len = %d, want 5", len(last))
	}
	if last[0].Room != "r16" || last[4].Room != "r20" {
		t.Errorf("window = %s..%s, want r16..r20", last[0].Room, last[4].Room)
	}
}
