// Package eventbus carries run events from the pipeline to SSE
// subscribers. Every event is appended durably first, then fanned out
// to the live subscribers of its run. Slow subscribers never block the
// pipeline: a full channel drops the live delivery and the client
// recovers through replay.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event types emitted by the pipeline.
const (
	TypeStepStarted     = "step_started"
	TypeStepCompleted   = "step_completed"
	TypeRuleFired       = "rule_fired"
	TypeToolCall        = "tool_call"
	TypeToolResult      = "tool_result"
	TypePolicyViolation = "policy_violation"
	TypeFinalized       = "finalized"
)

// Event is one run event. Seq is assigned by the durable appender and
// is strictly increasing per run, starting at 1.
type Event struct {
	RunID   string          `json:"run_id"`
	Seq     int64           `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Appender persists an event and assigns its sequence number.
type Appender interface {
	AppendEvent(ctx context.Context, ev *Event) error
}

const subscriberBuffer = 64

// Finalization marks only exist to short-circuit late subscribers to
// replay; after this long a late subscriber meets the finalized event
// through replay anyway, so the mark can go.
const closedMarkTTL = 10 * time.Minute

type subscriber struct {
	ch chan Event
}

// Bus is the in-process fan-out. One Bus serves all runs.
type Bus struct {
	mu       sync.RWMutex
	appender Appender
	logger   zerolog.Logger
	subs     map[string][]*subscriber
	closed   map[string]time.Time
}

// New creates a Bus that appends events through a before fanning them
// out to live subscribers.
func New(a Appender, logger zerolog.Logger) *Bus {
	return &Bus{
		appender: a,
		logger:   logger,
		subs:     make(map[string][]*subscriber),
		closed:   make(map[string]time.Time),
	}
}

// Publish persists ev, then delivers it to every live subscriber of
// the run. Delivery is non-blocking. Publishing a finalized event
// closes the run's channels after delivery.
func (b *Bus) Publish(ctx context.Context, ev *Event) error {
	if err := b.appender.AppendEvent(ctx, ev); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs[ev.RunID] {
		select {
		case sub.ch <- *ev:
		default:
			b.logger.Warn().Str("run_id", ev.RunID).Int64("seq", ev.Seq).Msg("subscriber buffer full, dropping live event")
		}
	}

	if ev.Type == TypeFinalized {
		for _, sub := range b.subs[ev.RunID] {
			close(sub.ch)
		}
		delete(b.subs, ev.RunID)
		b.closed[ev.RunID] = time.Now()
		b.pruneClosedLocked(time.Now().Add(-closedMarkTTL))
	}
	return nil
}

// pruneClosedLocked drops finalization marks older than cutoff.
// Callers hold the write lock.
func (b *Bus) pruneClosedLocked(cutoff time.Time) {
	for runID, at := range b.closed {
		if at.Before(cutoff) {
			delete(b.closed, runID)
		}
	}
}

// Subscribe registers a live listener for a run. The returned channel
// is closed when the run finalizes or cancel is called. Subscribing to
// an already finalized run returns a closed channel so the caller
// falls through to replay only.
func (b *Bus) Subscribe(runID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	if _, ok := b.closed[runID]; ok {
		close(sub.ch)
		return sub.ch, func() {}
	}

	b.subs[runID] = append(b.subs[runID], sub)
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[runID]
		for i, s := range list {
			if s == sub {
				b.subs[runID] = append(list[:i], list[i+1:]...)
				close(s.ch)
				return
			}
		}
	}
	return sub.ch, cancel
}

// SubscriberCount reports the live subscriber count for a run.
func (b *Bus) SubscriberCount(runID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[runID])
}

// Reset drops all subscriptions and finalization marks. Tests use it
// between cases.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, list := range b.subs {
		for _, sub := range list {
			close(sub.ch)
		}
	}
	b.subs = make(map[string][]*subscriber)
	b.closed = make(map[string]time.Time)
}
