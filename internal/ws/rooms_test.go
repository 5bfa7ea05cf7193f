package ws

import (
	"sort"
	"testing"
)

func TestRoomJoinLeave(t *testing.T) {
	r := NewRoomRegistry()

	if size := r.Join("merchant_m1", "a"); size != 1 {
		t.Errorf("first join size = %d, want 1", size)
	}
	if size := r.Join("merchant_m1", "b"); size != 2 {
		t.Errorf("second join size = %d, want 2", size)
	}
	// Joining twice is idempotent.
	if size := r.Join("merchant_m1", "a"); size != 2 {
		t.Errorf("duplicate join size = %d, want 2", size)
	}

	members := r.Members("merchant_m1")
	sort.Strings(members)
	if len(members) != 2 || members[0] != "a" || members[1] != "b" {
		t.Errorf("members = %v", members)
	}

	r.Leave("merchant_m1", "a")
	if r.Size("merchant_m1") != 1 {
		t.Errorf("size after leave = %d, want 1", r.Size("merchant_m1"))
	}
}

func TestRoomPrunedWhenEmpty(t *testing.T) {
	r := NewRoomRegistry()

	r.Join("order_o1", "a")
	if !r.Exists("order_o1") {
		t.Fatal("room should exist after join")
	}

	r.Leave("order_o1", "a")
	if r.Exists("order_o1") {
		t.Error("room should be removed once its member set is empty")
	}
	if r.Count() != 0 {
		t.Errorf("count = %d, want 0", r.Count())
	}

	// Re-subscribing recreates it fresh.
	if size := r.Join("order_o1", "b"); size != 1 {
		t.Errorf("rejoin size = %d, want 1", size)
	}
}

func TestRoomLeaveUnknownIsNoop(t *testing.T) {
	r := NewRoomRegistry()
	r.Leave("nope", "a") // must not panic or create state
	if r.Count() != 0 {
		t.Errorf("count = %d, want 0", r.Count())
	}
	if got := r.Members("nope"); len(got) != 0 {
		t.Errorf("members of unknown room = %v", got)
	}
}
