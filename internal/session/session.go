// Package session stores per-phone conversation state so multi-turn flows
// survive between webhook deliveries. Entries expire after a period of
// inactivity and the customer starts fresh.
package session

import (
	"context"
	"time"
)

// DefaultTTL is how long an idle conversation is kept.
const DefaultTTL = 30 * time.Minute

// State is one customer's conversation position.
type State struct {
	Step      string            // current flow step, e.g. "awaiting_menu_choice"
	Context   map[string]string // flow-scoped scratch values
	Role      string            // resolved role, cached to skip re-verification
	UpdatedAt time.Time
}

// Cache stores conversation state keyed by phone number. Get returns
// ok=false for a missing or expired entry; implementations never return an
// error for a plain miss.
type Cache interface {
	Get(ctx context.Context, phone string) (State, bool, error)
	Put(ctx context.Context, phone string, state State) error
	Delete(ctx context.Context, phone string) error
}
