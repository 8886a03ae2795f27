package run

import (
	"context"

	"github.com/pharmassist/pharmassist/internal/platform/eventbus"
)

type RunRepository interface {
	Create(ctx context.Context, r *Run) error
	GetByID(ctx context.Context, id string) (*Run, error)
	Update(ctx context.Context, r *Run) error
	List(ctx context.Context, limit, offset int) ([]*Run, int, error)
	ListByPatient(ctx context.Context, patientID, kind string, limit, offset int) ([]*Run, int, error)
	// LatestByPatient returns the most recent run of the given kind,
	// or nil when the patient has none.
	LatestByPatient(ctx context.Context, patientID, kind string) (*Run, error)
}

// EventRepository is the durable event log. AppendEvent assigns the
// per-run sequence number, making it the eventbus.Appender.
type EventRepository interface {
	AppendEvent(ctx context.Context, ev *eventbus.Event) error
	ListAfter(ctx context.Context, runID string, afterSeq int64, limit int) ([]eventbus.Event, error)
}
