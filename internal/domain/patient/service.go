package patient

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/pharmassist/pharmassist/internal/domain/run"
)

// RefreshTracker is the in-memory view of the background refresh
// worker. The pipeline worker implements it.
type RefreshTracker interface {
	Enqueue(ctx context.Context, patientID, reason string) (bool, error)
	Tracking(patientID string) (pending, running bool, lastError string)
}

// RunLookup is the slice of the run repository the projection needs.
type RunLookup interface {
	ListByPatient(ctx context.Context, patientID, kind string, limit, offset int) ([]*run.Run, int, error)
}

// AnalysisStatus is the projected per-patient analysis view served to
// the pharmacist UI.
type AnalysisStatus struct {
	PatientID                string     `json:"patient_id"`
	Status                   string     `json:"status"`
	ChangedSinceLastAnalysis bool       `json:"changed_since_last_analysis"`
	LatestVisitID            string     `json:"latest_visit_id,omitempty"`
	LatestVisitAt            *time.Time `json:"latest_visit_at,omitempty"`
	LatestRunID              string     `json:"latest_run_id,omitempty"`
	LatestRunStatus          string     `json:"latest_run_status,omitempty"`
	LatestRunAt              *time.Time `json:"latest_run_at,omitempty"`
	LastError                string     `json:"last_error,omitempty"`
	Message                  string     `json:"message"`
}

var analysisMessages = map[string]string{
	AnalysisUpToDate:       "Analysis is up to date.",
	AnalysisRefreshPending: "New data detected; refresh is pending.",
	AnalysisRunning:        "Refresh is running.",
	AnalysisFailed:         "Last refresh failed. Manual refresh recommended.",
}

// Service is the pharmacy dataset surface: patient lookup, visit
// history, the analysis projection and the patients inbox.
type Service struct {
	patients PatientRepository
	visits   VisitRepository
	states   AnalysisStateRepository
	runs     RunLookup
	tracker  RefreshTracker
	logger   zerolog.Logger
}

func NewService(
	patients PatientRepository,
	visits VisitRepository,
	states AnalysisStateRepository,
	runs RunLookup,
	tracker RefreshTracker,
	logger zerolog.Logger,
) *Service {
	return &Service{
		patients: patients,
		visits:   visits,
		states:   states,
		runs:     runs,
		tracker:  tracker,
		logger:   logger,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, prefix string, limit int) ([]*Patient, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.patients.Search(ctx, prefix, limit)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) ListVisits(ctx context.Context, patientID string, limit, offset int) ([]*Visit, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.visits.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) LatestVisit(ctx context.Context, patientID string) (*Visit, error) {
	return s.visits.Latest(ctx, patientID)
}

// QueueRefresh marks a patient for background analysis refresh and
// returns the projected status plus whether a new refresh was queued.
func (s *Service) QueueRefresh(ctx context.Context, patientID, reason string) (bool, *AnalysisStatus, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return false, nil, fmt.Errorf("queue refresh: %w", err)
	}
	queued, err := s.tracker.Enqueue(ctx, patientID, reason)
	if err != nil {
		return false, nil, err
	}
	status, err := s.AnalysisStatus(ctx, patientID)
	if err != nil {
		return queued, nil, err
	}
	return queued, status, nil
}

// refreshRuns returns the newest scheduled-refresh run and the newest
// completed one, scanning a bounded window of recent runs.
func (s *Service) refreshRuns(ctx context.Context, patientID string) (latest, latestCompleted *run.Run, err error) {
	runs, _, err := s.runs.ListByPatient(ctx, patientID, run.KindRefresh, 20, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("list refresh runs: %w", err)
	}
	for _, r := range runs {
		if latest == nil {
			latest = r
		}
		if r.Status == run.StatusCompleted {
			latestCompleted = r
			break
		}
	}
	return latest, latestCompleted, nil
}

// AnalysisStatus projects the analysis state of one patient from the
// worker's in-memory tracking, the run history and the latest visit.
func (s *Service) AnalysisStatus(ctx context.Context, patientID string) (*AnalysisStatus, error) {
	latestVisit, _ := s.visits.Latest(ctx, patientID)
	latestRun, latestCompleted, err := s.refreshRuns(ctx, patientID)
	if err != nil {
		return nil, err
	}
	var stored *AnalysisState
	if st, err := s.states.Get(ctx, patientID); err == nil {
		stored = st
	}
	pending, running, runtimeError := s.tracker.Tracking(patientID)

	changed := false
	if latestVisit != nil {
		if latestCompleted == nil {
			changed = true
		} else {
			changed = latestVisit.At.After(latestCompleted.CreatedAt)
		}
	}

	var status string
	switch {
	case running:
		status = AnalysisRunning
	case pending:
		status = AnalysisRefreshPending
	case latestRun != nil && latestRun.Status == run.StatusFailedSafe:
		status = AnalysisFailed
	case runtimeError != "":
		status = AnalysisFailed
	case changed:
		status = AnalysisRefreshPending
	case latestCompleted != nil:
		status = AnalysisUpToDate
	case stored != nil && stored.Status == AnalysisFailed:
		status = AnalysisFailed
	default:
		status = AnalysisUpToDate
	}

	out := &AnalysisStatus{
		PatientID:                patientID,
		Status:                   status,
		ChangedSinceLastAnalysis: changed,
		LastError:                runtimeError,
		Message:                  analysisMessages[status],
	}
	if latestVisit != nil {
		out.LatestVisitID = latestVisit.ID
		at := latestVisit.At
		out.LatestVisitAt = &at
	}
	if latestRun == nil {
		latestRun = latestCompleted
	}
	if latestRun != nil {
		out.LatestRunID = latestRun.ID
		out.LatestRunStatus = string(latestRun.Status)
		at := latestRun.CreatedAt
		out.LatestRunAt = &at
	}
	if out.LastError == "" && stored != nil {
		out.LastError = stored.LastError
	}
	return out, nil
}

// Inbox lists patients that need pharmacist attention: new data since
// the last completed refresh, or a pending, running or failed refresh.
// Sorted by latest visit, newest first.
func (s *Service) Inbox(ctx context.Context, limit int) ([]*AnalysisStatus, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	patients, _, err := s.patients.List(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}

	var items []*AnalysisStatus
	for _, p := range patients {
		if p.LatestVisitAt == nil {
			continue
		}
		status, err := s.AnalysisStatus(ctx, p.ID)
		if err != nil {
			s.logger.Warn().Str("patient_id", p.ID).Err(err).Msg("inbox projection failed")
			continue
		}
		switch {
		case status.ChangedSinceLastAnalysis,
			status.Status == AnalysisRefreshPending,
			status.Status == AnalysisRunning,
			status.Status == AnalysisFailed:
			items = append(items, status)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := items[i].LatestVisitAt, items[j].LatestVisitAt
		if ti == nil || tj == nil {
			return tj == nil && ti != nil
		}
		return ti.After(*tj)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
