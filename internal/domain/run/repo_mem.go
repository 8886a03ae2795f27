package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pharmassist/pharmassist/internal/platform/eventbus"
)

// InMemoryRunRepo is a thread-safe in-memory RunRepository.
type InMemoryRunRepo struct {
	mu    sync.RWMutex
	runs  map[string]*Run
	order []string
}

func NewInMemoryRunRepo() *InMemoryRunRepo {
	return &InMemoryRunRepo{runs: make(map[string]*Run)}
}

// Reset clears all runs. Tests use it between cases.
func (r *InMemoryRunRepo) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = make(map[string]*Run)
	r.order = nil
}

func cloneRun(in *Run) *Run {
	cp := *in
	return &cp
}

func (r *InMemoryRunRepo) Create(_ context.Context, in *Run) error {
	if err := in.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[in.ID]; ok {
		return fmt.Errorf("run %s already exists", in.ID)
	}
	now := time.Now().UTC()
	in.CreatedAt = now
	in.UpdatedAt = now
	r.runs[in.ID] = cloneRun(in)
	r.order = append(r.order, in.ID)
	return nil
}

func (r *InMemoryRunRepo) GetByID(_ context.Context, id string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rn, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return cloneRun(rn), nil
}

func (r *InMemoryRunRepo) Update(_ context.Context, in *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.runs[in.ID]
	if !ok {
		return fmt.Errorf("run %s not found", in.ID)
	}
	if cur.Status != in.Status && !cur.Status.CanTransition(in.Status) {
		return fmt.Errorf("illegal status transition %s -> %s", cur.Status, in.Status)
	}
	in.UpdatedAt = time.Now().UTC()
	r.runs[in.ID] = cloneRun(in)
	return nil
}

func (r *InMemoryRunRepo) List(_ context.Context, limit, offset int) ([]*Run, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := len(r.order)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*Run, 0, end-offset)
	for _, id := range r.order[offset:end] {
		out = append(out, cloneRun(r.runs[id]))
	}
	return out, total, nil
}

func (r *InMemoryRunRepo) ListByPatient(_ context.Context, patientID, kind string, limit, offset int) ([]*Run, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []*Run
	// order slice is append-only, so iterating backwards yields newest first
	for i := len(r.order) - 1; i >= 0; i-- {
		rn := r.runs[r.order[i]]
		if rn.PatientID != patientID {
			continue
		}
		if kind != "" && rn.Kind != kind {
			continue
		}
		all = append(all, cloneRun(rn))
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (r *InMemoryRunRepo) LatestByPatient(ctx context.Context, patientID, kind string) (*Run, error) {
	runs, _, err := r.ListByPatient(ctx, patientID, kind, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// InMemoryEventRepo is a thread-safe in-memory EventRepository.
type InMemoryEventRepo struct {
	mu     sync.RWMutex
	events map[string][]eventbus.Event
}

func NewInMemoryEventRepo() *InMemoryEventRepo {
	return &InMemoryEventRepo{events: make(map[string][]eventbus.Event)}
}

// Reset clears all events.
func (r *InMemoryEventRepo) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[string][]eventbus.Event)
}

func (r *InMemoryEventRepo) AppendEvent(_ context.Context, ev *eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Seq = int64(len(r.events[ev.RunID]) + 1)
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	r.events[ev.RunID] = append(r.events[ev.RunID], *ev)
	return nil
}

func (r *InMemoryEventRepo) ListAfter(_ context.Context, runID string, afterSeq int64, limit int) ([]eventbus.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []eventbus.Event
	for _, ev := range r.events[runID] {
		if ev.Seq <= afterSeq {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
