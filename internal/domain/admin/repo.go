package admin

import (
	"context"
	"sync"
	"time"
)

// AuditRepository persists inspection audit events.
type AuditRepository interface {
	Insert(ctx context.Context, ev *AuditEvent) error
	List(ctx context.Context, limit int) ([]*AuditEvent, error)
}

// inMemoryAuditCap bounds the in-memory audit backlog; older entries
// are dropped first.
const inMemoryAuditCap = 1000

// InMemoryAuditStore keeps audit events in memory. Used by tests and
// by in-memory serving mode.
type InMemoryAuditStore struct {
	mu     sync.Mutex
	nextID int64
	events []*AuditEvent
}

func NewInMemoryAuditStore() *InMemoryAuditStore {
	return &InMemoryAuditStore{}
}

func (s *InMemoryAuditStore) Insert(_ context.Context, ev *AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ev.ID = s.nextID
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	cp := *ev
	s.events = append(s.events, &cp)
	if len(s.events) > inMemoryAuditCap {
		s.events = s.events[len(s.events)-inMemoryAuditCap:]
	}
	return nil
}

// List returns the newest events first.
func (s *InMemoryAuditStore) List(_ context.Context, limit int) ([]*AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]*AuditEvent, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.events[i]
		out = append(out, &cp)
	}
	return out, nil
}
