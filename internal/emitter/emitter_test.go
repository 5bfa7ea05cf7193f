package emitter

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/musika/commerce/internal/protocol"
)

type bridgeRecorder struct {
	mu        sync.Mutex
	envelopes []protocol.Envelope
	fail      bool
}

func (b *bridgeRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var env protocol.Envelope
		if err := json.Unmarshal(body, &env); err == nil {
			b.envelopes = append(b.envelopes, env)
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

func (b *bridgeRecorder) received() []protocol.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]protocol.Envelope, len(b.envelopes))
	copy(out, b.envelopes)
	return out
}

func TestEventsQueueWhileDisconnected(t *testing.T) {
	rec := &bridgeRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	e := New(srv.URL)
	e.MessageReceived("+263770000001", "hello", false)
	e.CommandExecuted("+263770000001", "menu", nil, "ok")

	if queued, _, _, _ := e.Stats(); queued != 2 {
		t.Fatalf("queued = %d, want 2", queued)
	}
	if got := rec.received(); len(got) != 0 {
		t.Fatalf("bridge received %d envelopes before connect", len(got))
	}
}

func TestFlushPreservesOrderOnConnect(t *testing.T) {
	rec := &bridgeRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	e := New(srv.URL)
	for i := 0; i < 3; i++ {
		e.MessageReceived("+26377000000"+strconv.Itoa(i), "msg", false)
	}
	e.SetConnected(true)

	got := rec.received()
	if len(got) != 3 {
		t.Fatalf("bridge received %d envelopes, want 3", len(got))
	}
	for i, env := range got {
		var p protocol.BotMessagePayload
		if err := env.DecodePayload(&p); err != nil {
			t.Fatal(err)
		}
		if want := "+26377000000" + strconv.Itoa(i); p.From != want {
			t.Errorf("envelope %d from %q, want %q", i, p.From, want)
		}
	}
	if queued, sent, _, _ := e.Stats(); queued != 0 || sent != 3 {
		t.Errorf("queued=%d sent=%d, want 0/3", queued, sent)
	}
}

func TestQueueDropsOldestAtCapacity(t *testing.T) {
	e := New("http://localhost:0")
	for i := 0; i <= MaxQueueSize; i++ {
		e.CommandExecuted("+263770000001", "cmd"+strconv.Itoa(i), nil, "ok")
	}

	queued, _, dropped, _ := e.Stats()
	if queued != MaxQueueSize {
		t.Fatalf("queued = %d, want %d", queued, MaxQueueSize)
	}
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}

	e.mu.Lock()
	var first protocol.CommandExecutedPayload
	if err := e.queue[0].DecodePayload(&first); err != nil {
		t.Fatal(err)
	}
	e.mu.Unlock()
	if first.Command != "cmd1" {
		t.Errorf("oldest surviving command = %q, want cmd1 (cmd0 dropped)", first.Command)
	}
}

func TestFailedSendWhileConnectedIsQueued(t *testing.T) {
	rec := &bridgeRecorder{fail: true}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	e := New(srv.URL)
	e.SetConnected(true)
	e.MessageSent("+263770000001", "reply")

	if queued, _, _, _ := e.Stats(); queued != 1 {
		t.Fatalf("queued = %d, want 1", queued)
	}
}

func TestDisabledEmitterDoesNothing(t *testing.T) {
	e := New("")
	e.MessageReceived("+263770000001", "hello", false)
	if queued, sent, _, _ := e.Stats(); queued != 0 || sent != 0 {
		t.Errorf("disabled emitter queued=%d sent=%d", queued, sent)
	}
}

func TestReplayFailureRequeuesRemainder(t *testing.T) {
	rec := &bridgeRecorder{fail: true}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	e := New(srv.URL)
	e.MessageReceived("+263770000001", "one", false)
	e.MessageReceived("+263770000002", "two", false)

	e.SetConnected(true)

	queued, _, _, connected := e.Stats()
	if queued != 2 {
		t.Errorf("queued = %d, want 2 (nothing lost)", queued)
	}
	if connected {
		t.Error("a failed replay should mark the link down again")
	}
}
