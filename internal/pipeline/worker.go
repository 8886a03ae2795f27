package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pharmassist/pharmassist/internal/domain/patient"
	"github.com/pharmassist/pharmassist/internal/domain/run"
)

const maxRefreshReasonLen = 80

// RefreshWorker is the background analysis refresher: a single actor
// goroutine that drains a pending set of patient ids, executes one
// scheduled-refresh run per patient and maintains the per-patient
// analysis state. Enqueueing an already tracked patient coalesces.
type RefreshWorker struct {
	mu        sync.Mutex
	pending   map[string]string
	running   map[string]bool
	lastError map[string]string
	wake      chan struct{}

	patients patient.PatientRepository
	visits   patient.VisitRepository
	states   patient.AnalysisStateRepository
	runs     run.RunRepository
	executor run.Executor
	logger   zerolog.Logger
}

func NewRefreshWorker(
	patients patient.PatientRepository,
	visits patient.VisitRepository,
	states patient.AnalysisStateRepository,
	runs run.RunRepository,
	executor run.Executor,
	logger zerolog.Logger,
) *RefreshWorker {
	return &RefreshWorker{
		pending:   make(map[string]string),
		running:   make(map[string]bool),
		lastError: make(map[string]string),
		wake:      make(chan struct{}, 1),
		patients:  patients,
		visits:    visits,
		states:    states,
		runs:      runs,
		executor:  executor,
		logger:    logger,
	}
}

// Start launches the actor goroutine. The actor runs until ctx is
// cancelled; an empty queue parks it on the wake channel instead of
// exiting.
func (w *RefreshWorker) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Enqueue marks a patient for refresh. The returned flag is false when
// the patient was already pending or running, in which case the request
// coalesces into the existing one.
func (w *RefreshWorker) Enqueue(ctx context.Context, patientID, reason string) (bool, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return false, fmt.Errorf("%w: patient id is required", ErrInvalidInput)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual"
	}
	if len(reason) > maxRefreshReasonLen {
		reason = reason[:maxRefreshReasonLen]
	}

	w.mu.Lock()
	tracked := w.pending[patientID] != "" || w.running[patientID]
	w.pending[patientID] = reason
	delete(w.lastError, patientID)
	w.mu.Unlock()

	if err := w.states.Upsert(ctx, &patient.AnalysisState{
		PatientID: patientID,
		Status:    patient.AnalysisRefreshPending,
	}); err != nil {
		return false, fmt.Errorf("mark refresh pending: %w", err)
	}

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return !tracked, nil
}

// Tracking reports the in-memory view of a patient: whether it is
// pending or running, and its last normalized runtime error.
func (w *RefreshWorker) Tracking(patientID string) (pending, running bool, lastError string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, pending = w.pending[patientID]
	return pending, w.running[patientID], w.lastError[patientID]
}

// Reset clears all in-memory tracking state. Tests use it between
// cases.
func (w *RefreshWorker) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = make(map[string]string)
	w.running = make(map[string]bool)
	w.lastError = make(map[string]string)
	select {
	case <-w.wake:
	default:
	}
}

func (w *RefreshWorker) loop(ctx context.Context) {
	for {
		patientID, reason, ok := w.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.wake:
			}
			continue
		}
		w.process(ctx, patientID, reason)
	}
}

// next claims the lexicographically smallest pending patient so drain
// order is deterministic.
func (w *RefreshWorker) next() (string, string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return "", "", false
	}
	var min string
	for id := range w.pending {
		if min == "" || id < min {
			min = id
		}
	}
	reason := w.pending[min]
	delete(w.pending, min)
	w.running[min] = true
	return min, reason, true
}

func (w *RefreshWorker) process(ctx context.Context, patientID, reason string) {
	defer func() {
		w.mu.Lock()
		delete(w.running, patientID)
		w.mu.Unlock()
	}()

	if err := w.states.Upsert(ctx, &patient.AnalysisState{
		PatientID: patientID,
		Status:    patient.AnalysisRunning,
	}); err != nil {
		w.logger.Warn().Str("patient_id", patientID).Err(err).Msg("analysis state update failed")
	}

	runID, err := w.refreshOnce(ctx, patientID)
	if err != nil {
		kind := NormalizeError(err)
		w.mu.Lock()
		w.lastError[patientID] = kind
		w.mu.Unlock()
		w.logger.Warn().Str("patient_id", patientID).Str("error_kind", kind).Msg("refresh failed")
		if err := w.states.Upsert(ctx, &patient.AnalysisState{
			PatientID: patientID,
			Status:    patient.AnalysisFailed,
			LastError: kind,
		}); err != nil {
			w.logger.Warn().Str("patient_id", patientID).Err(err).Msg("analysis state update failed")
		}
		return
	}

	r, err := w.runs.GetByID(ctx, runID)
	if err != nil || r.Status != run.StatusCompleted {
		status := "unknown"
		if err == nil {
			status = string(r.Status)
		}
		lastError := "pipeline_status=" + status
		w.mu.Lock()
		w.lastError[patientID] = lastError
		w.mu.Unlock()
		if err := w.states.Upsert(ctx, &patient.AnalysisState{
			PatientID: patientID,
			Status:    patient.AnalysisFailed,
			LastRunID: runID,
			LastError: lastError,
		}); err != nil {
			w.logger.Warn().Str("patient_id", patientID).Err(err).Msg("analysis state update failed")
		}
		return
	}

	if err := w.states.Upsert(ctx, &patient.AnalysisState{
		PatientID: patientID,
		Status:    patient.AnalysisUpToDate,
		LastRunID: runID,
	}); err != nil {
		w.logger.Warn().Str("patient_id", patientID).Err(err).Msg("analysis state update failed")
	}
	w.logger.Info().Str("patient_id", patientID).Str("run_id", runID).Str("reason", reason).Msg("analysis refreshed")
}

// refreshOnce creates and synchronously executes one scheduled-refresh
// run over the patient's latest visit.
func (w *RefreshWorker) refreshOnce(ctx context.Context, patientID string) (string, error) {
	if _, err := w.patients.GetByID(ctx, patientID); err != nil {
		return "", fmt.Errorf("patient not found: %w", err)
	}
	visit, err := w.visits.Latest(ctx, patientID)
	if err != nil {
		return "", fmt.Errorf("visit not found for patient: %w", err)
	}

	lang := visit.Intake.Language
	if lang != "en" && lang != "fr" {
		lang = "en"
	}

	r := &run.Run{
		ID:        uuid.NewString(),
		Kind:      run.KindRefresh,
		PatientID: patientID,
		VisitID:   visit.ID,
		Language:  lang,
		Status:    run.StatusCreated,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := w.runs.Create(ctx, r); err != nil {
		return "", fmt.Errorf("create refresh run: %w", err)
	}

	w.executor.Execute(ctx, r.ID, run.ExecInput{})
	return r.ID, nil
}
