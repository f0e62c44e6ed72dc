// Package echotrack remembers message IDs the bridge itself sent so
// their server echoes can be told apart from genuine user input.
package echotrack

import (
	"sync"
	"time"
)

// Tracker is a TTL set of sent message IDs. Safe for concurrent use.
type Tracker struct {
	mu  sync.Mutex
	ttl time.Duration
	ids map[string]time.Time

	now func() time.Time
}

func New(ttl time.Duration) *Tracker {
	return &Tracker{
		ttl: ttl,
		ids: make(map[string]time.Time),
		now: time.Now,
	}
}

// Record marks a message ID as sent by us.
func (t *Tracker) Record(id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids[id] = t.now().Add(t.ttl)
	t.pruneLocked()
}

// Consume reports whether id was recorded and not yet expired, removing
// it in the same step. Each sent ID suppresses exactly one echo.
func (t *Tracker) Consume(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	deadline, ok := t.ids[id]
	if !ok {
		return false
	}
	delete(t.ids, id)
	return t.now().Before(deadline)
}

// Prune drops expired entries. The bridge calls this on every inbound
// event so the set shrinks even when nothing is being sent.
func (t *Tracker) Prune() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
}

// Len returns the number of tracked IDs, expired entries included.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}

func (t *Tracker) pruneLocked() {
	now := t.now()
	for id, deadline := range t.ids {
		if !now.Before(deadline) {
			delete(t.ids, id)
		}
	}
}
