package run

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pharmassist/pharmassist/internal/platform/eventbus"
)

// ExecInput carries the in-memory input of a run to its executor. Raw
// text lives only here and on the stack of the pipeline; it is never
// persisted.
type ExecInput struct {
	Text    string
	Answers map[string]string
}

// Executor runs the pipeline for a created run. Execute is called on
// its own goroutine and must finalize the run in every outcome.
type Executor interface {
	Execute(ctx context.Context, runID string, input ExecInput)
}

// CreateRunRequest is the service-level request for a new run.
// Answers must already be canonicalized by the question-bank
// validator.
type CreateRunRequest struct {
	Kind      string
	CaseRef   string
	PatientID string
	VisitID   string
	Language  string
	Text      string
	Answers   map[string]string
}

// Service owns the run lifecycle around the pipeline: creation,
// lookup, event replay and stream-token minting.
type Service struct {
	runs     RunRepository
	events   EventRepository
	tokens   *StreamTokenIssuer
	executor Executor
	logger   zerolog.Logger
}

func NewService(runs RunRepository, events EventRepository, tokens *StreamTokenIssuer, logger zerolog.Logger) *Service {
	return &Service{runs: runs, events: events, tokens: tokens, logger: logger}
}

// SetExecutor wires the pipeline in after construction; main does
// this once the orchestrator exists.
func (s *Service) SetExecutor(e Executor) { s.executor = e }

// InputDigest returns the sha256 prefix used to reference raw input
// without retaining it.
func InputDigest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:12]
}

// CreateRun validates the request, persists the run in its created
// state and dispatches the executor. The returned token authorizes
// streaming this run's events.
func (s *Service) CreateRun(ctx context.Context, req CreateRunRequest) (*Run, string, error) {
	if req.Kind == "" {
		req.Kind = KindConsult
	}
	if req.Language == "" {
		req.Language = "en"
	}
	if req.CaseRef == "" && req.Text == "" && req.VisitID == "" {
		return nil, "", fmt.Errorf("one of case_ref, text or visit_id is required")
	}

	r := &Run{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		CaseRef:   req.CaseRef,
		PatientID: req.PatientID,
		VisitID:   req.VisitID,
		Language:  req.Language,
		Status:    StatusCreated,
	}
	if req.Text != "" {
		r.InputHash = InputDigest(req.Text)
		r.InputLen = len(req.Text)
		s.logger.Info().
			Str("run_id", r.ID).
			Str("input_hash", r.InputHash).
			Int("input_len", r.InputLen).
			Msg("raw input accepted at boundary")
	}
	if err := s.runs.Create(ctx, r); err != nil {
		return nil, "", fmt.Errorf("create run: %w", err)
	}

	token, err := s.tokens.Mint(r.ID)
	if err != nil {
		return nil, "", fmt.Errorf("mint stream token: %w", err)
	}

	if s.executor != nil {
		input := ExecInput{Text: req.Text, Answers: req.Answers}
		go s.executor.Execute(context.Background(), r.ID, input)
	}
	return r, token, nil
}

// GetRun returns a run by id.
func (s *Service) GetRun(ctx context.Context, id string) (*Run, error) {
	return s.runs.GetByID(ctx, id)
}

// ListRuns pages through runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]*Run, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.runs.List(ctx, limit, offset)
}

// ReplayEvents returns stored events with seq greater than afterSeq.
func (s *Service) ReplayEvents(ctx context.Context, runID string, afterSeq int64) ([]eventbus.Event, error) {
	return s.events.ListAfter(ctx, runID, afterSeq, 1000)
}

// VerifyStreamToken checks a token against a run id.
func (s *Service) VerifyStreamToken(token, runID string) error {
	return s.tokens.Verify(token, runID)
}

// LatestScheduledRun implements the lookup the patient inbox needs:
// the newest scheduled-refresh run for a patient, or nil.
func (s *Service) LatestScheduledRun(ctx context.Context, patientID string) (*Run, error) {
	return s.runs.LatestByPatient(ctx, patientID, KindRefresh)
}
