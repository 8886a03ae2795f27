package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pharmassist/pharmassist/internal/domain/evidence"
	"github.com/pharmassist/pharmassist/internal/domain/intake"
	"github.com/pharmassist/pharmassist/internal/domain/patient"
	"github.com/pharmassist/pharmassist/internal/domain/recommend"
	"github.com/pharmassist/pharmassist/internal/domain/report"
	"github.com/pharmassist/pharmassist/internal/domain/run"
	"github.com/pharmassist/pharmassist/internal/domain/triage"
	"github.com/pharmassist/pharmassist/internal/platform/eventbus"
	"github.com/pharmassist/pharmassist/internal/platform/privacy"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

// Config gates the optional pipeline steps.
type Config struct {
	PrebriefEnabled bool
	PlannerEnabled  bool
}

// Orchestrator drives runs through the pipeline steps. It implements
// run.Executor and is the only writer of run artifacts and terminal
// statuses.
type Orchestrator struct {
	runs      run.RunRepository
	events    run.EventRepository
	bus       *eventbus.Bus
	patients  patient.PatientRepository
	visits    patient.VisitRepository
	inventory patient.InventoryRepository
	intakes   *intake.Extractor
	triage    *triage.Engine
	composer  *report.Composer
	planner   *report.Planner
	cfg       Config
	logger    zerolog.Logger
}

func NewOrchestrator(
	runs run.RunRepository,
	events run.EventRepository,
	bus *eventbus.Bus,
	patients patient.PatientRepository,
	visits patient.VisitRepository,
	inventory patient.InventoryRepository,
	intakes *intake.Extractor,
	engine *triage.Engine,
	composer *report.Composer,
	planner *report.Planner,
	cfg Config,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		runs:      runs,
		events:    events,
		bus:       bus,
		patients:  patients,
		visits:    visits,
		inventory: inventory,
		intakes:   intakes,
		triage:    engine,
		composer:  composer,
		planner:   planner,
		cfg:       cfg,
		logger:    logger,
	}
}

// eventPayload is the redacted event body: step names, tool summaries,
// rule ids and violation records only. Raw input text never appears
// here.
type eventPayload struct {
	Step          string                 `json:"step,omitempty"`
	Message       string                 `json:"message,omitempty"`
	ToolName      string                 `json:"tool_name,omitempty"`
	ResultSummary string                 `json:"result_summary,omitempty"`
	Args          map[string]interface{} `json:"args_redacted,omitempty"`
	RuleID        string                 `json:"rule_id,omitempty"`
	Severity      string                 `json:"severity,omitempty"`
	Violations    []privacy.Violation    `json:"violations,omitempty"`
}

func (o *Orchestrator) emit(ctx context.Context, runID, typ string, p eventPayload) {
	data, err := json.Marshal(p)
	if err != nil {
		o.logger.Warn().Str("run_id", runID).Err(err).Msg("event payload marshal failed")
		return
	}
	ev := &eventbus.Event{RunID: runID, Type: typ, Payload: data, At: time.Now().UTC()}
	if err := o.bus.Publish(ctx, ev); err != nil {
		o.logger.Warn().Str("run_id", runID).Str("type", typ).Err(err).Msg("event publish failed")
	}
}

func (o *Orchestrator) stepStarted(ctx context.Context, runID string, step Step) {
	o.emit(ctx, runID, eventbus.TypeStepStarted, eventPayload{Step: step.String(), Message: "Starting " + step.String() + "."})
}

func (o *Orchestrator) stepCompleted(ctx context.Context, runID string, step Step) {
	o.emit(ctx, runID, eventbus.TypeStepCompleted, eventPayload{Step: step.String(), Message: "Completed " + step.String() + "."})
}

// finalize moves r to a terminal status, persists it and emits the
// finalized event. The message is a fixed redacted phrase.
func (o *Orchestrator) finalize(ctx context.Context, r *run.Run, status run.Status, msg string) {
	now := time.Now().UTC()
	r.Status = status
	r.UpdatedAt = now
	r.FinalizedAt = &now
	if err := o.runs.Update(ctx, r); err != nil {
		o.logger.Error().Str("run_id", r.ID).Err(err).Msg("run finalize update failed")
	}
	o.emit(ctx, r.ID, eventbus.TypeFinalized, eventPayload{Message: msg})
	o.logger.Info().Str("run_id", r.ID).Str("status", string(status)).Msg("run finalized")
}

func (o *Orchestrator) failSafe(ctx context.Context, r *run.Run, violations []privacy.Violation, errKind, msg string) {
	r.PolicyViolations = append(r.PolicyViolations, violations...)
	r.ErrorKind = errKind
	o.finalize(ctx, r, run.StatusFailedSafe, msg)
}

// runInput is the resolved material a run executes over. Exactly one
// of text or prefilled is the intake source.
type runInput struct {
	text      string
	prefilled *contracts.Intake
	context   CaseContext
	products  []patient.Product
}

func (o *Orchestrator) resolveInput(ctx context.Context, r *run.Run, input run.ExecInput) (runInput, error) {
	var out runInput

	switch {
	case r.VisitID != "":
		visit, err := o.visits.GetByID(ctx, r.VisitID)
		if err != nil {
			return out, fmt.Errorf("resolve visit: %w", err)
		}
		patientID := r.PatientID
		if patientID == "" {
			patientID = visit.PatientID
		}
		p, err := o.patients.GetByID(ctx, patientID)
		if err != nil {
			return out, fmt.Errorf("resolve patient: %w", err)
		}
		out.prefilled = cloneIntake(visit.Intake)
		out.context = patientContext(p)
		out.products, err = o.listProducts(ctx)
		if err != nil {
			return out, err
		}
		return out, nil

	case r.CaseRef != "":
		bundle, err := LoadCase(r.CaseRef)
		if err != nil {
			return out, err
		}
		out.text = bundle.Text(r.Language)
		out.context = bundle.Context
		out.products = bundle.Products
		if len(out.products) == 0 {
			out.products, err = o.listProducts(ctx)
			if err != nil {
				return out, err
			}
		}
		return out, nil

	default:
		if input.Text == "" {
			return out, fmt.Errorf("%w: run has no case, visit or text", ErrInvalidInput)
		}
		out.text = input.Text
		if r.PatientID != "" {
			p, err := o.patients.GetByID(ctx, r.PatientID)
			if err != nil {
				return out, fmt.Errorf("resolve patient: %w", err)
			}
			out.context = patientContext(p)
		}
		var err error
		out.products, err = o.listProducts(ctx)
		if err != nil {
			return out, err
		}
		return out, nil
	}
}

func (o *Orchestrator) listProducts(ctx context.Context) ([]patient.Product, error) {
	items, err := o.inventory.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	out := make([]patient.Product, 0, len(items))
	for _, p := range items {
		out = append(out, *p)
	}
	return out, nil
}

func cloneIntake(in contracts.Intake) *contracts.Intake {
	cp := in
	cp.Symptoms = append([]contracts.Symptom(nil), in.Symptoms...)
	cp.Conditions = append([]string(nil), in.Conditions...)
	cp.Medications = append([]string(nil), in.Medications...)
	cp.Allergies = append([]string(nil), in.Allergies...)
	cp.Answers = map[string]string{}
	for k, v := range in.Answers {
		cp.Answers[k] = v
	}
	return &cp
}

func patientContext(p *patient.Patient) CaseContext {
	return CaseContext{
		Age:             p.Age,
		Sex:             p.Sex,
		PregnancyStatus: p.PregnancyStatus,
		Conditions:      append([]string(nil), p.ChronicConditions...),
		Medications:     append([]string(nil), p.Medications...),
		Allergies:       append([]string(nil), p.Allergies...),
	}
}

// applyContext fills intake fields the extractor could not know from
// text. Extracted values win over context.
func applyContext(in *contracts.Intake, cctx CaseContext, answers map[string]string) {
	if in.Age == nil {
		in.Age = cctx.Age
	}
	if in.Sex == "" {
		in.Sex = cctx.Sex
	}
	if in.PregnancyStatus == "" {
		in.PregnancyStatus = cctx.PregnancyStatus
	}
	if len(in.Conditions) == 0 {
		in.Conditions = append([]string(nil), cctx.Conditions...)
	}
	if len(in.Medications) == 0 {
		in.Medications = append([]string(nil), cctx.Medications...)
	}
	if len(in.Allergies) == 0 {
		in.Allergies = append([]string(nil), cctx.Allergies...)
	}
	if len(answers) > 0 {
		if in.Answers == nil {
			in.Answers = map[string]string{}
		}
		for k, v := range answers {
			in.Answers[k] = v
		}
	}
}

// Execute runs the pipeline for a created run. Every outcome finalizes
// the run; panics degrade to failed_safe with a normalized error kind.
func (o *Orchestrator) Execute(ctx context.Context, runID string, input run.ExecInput) {
	r, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		o.logger.Error().Str("run_id", runID).Err(err).Msg("run not found for execution")
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error().Str("run_id", runID).Str("panic_type", fmt.Sprintf("%T", rec)).Msg("pipeline panicked")
			o.failSafe(ctx, r, nil, "internal_error", "Run failed safe (internal error).")
		}
	}()

	resolved, err := o.resolveInput(ctx, r, input)
	if err != nil {
		o.logger.Warn().Str("run_id", runID).Str("error_kind", NormalizeError(err)).Msg("run input resolution failed")
		o.failSafe(ctx, r, nil, NormalizeError(err), "Run failed safe (input could not be resolved).")
		return
	}

	r.Status = run.StatusRunning
	r.UpdatedAt = time.Now().UTC()
	if err := o.runs.Update(ctx, r); err != nil {
		o.logger.Error().Str("run_id", runID).Err(err).Msg("run status update failed")
	}
	o.emit(ctx, runID, eventbus.TypeStepStarted, eventPayload{Step: "pipeline", Message: "Run started."})

	var (
		in        contracts.Intake
		rec       contracts.Recommendation
		snippets  []contracts.EvidenceSnippet
		escalated bool
	)
	lang := r.Language

	for _, step := range steps {
		if step == StepPrebrief && !o.cfg.PrebriefEnabled {
			continue
		}
		if step == StepPlanner && !o.cfg.PlannerEnabled {
			continue
		}
		// Escalation and product recommendations are mutually
		// exclusive: an escalated run never ranks or cites products.
		if escalated && (step == StepProductRanking || step == StepEvidenceRetrieval) {
			continue
		}

		o.stepStarted(ctx, runID, step)

		switch step {
		case StepPHIScrub:
			if resolved.prefilled == nil {
				vs := privacy.ScanText("$.input_text", resolved.text)
				if privacy.HasBlocker(vs) {
					o.emit(ctx, runID, eventbus.TypePolicyViolation, eventPayload{
						Step:       step.String(),
						Message:    "PHI boundary triggered; stopping safely.",
						Violations: vs,
					})
					o.failSafe(ctx, r, vs, "", "Run failed safe (PHI detected).")
					return
				}
			}

		case StepIntakeExtraction:
			if resolved.prefilled != nil {
				in = *resolved.prefilled
				o.emit(ctx, runID, eventbus.TypeToolResult, eventPayload{
					Step:          step.String(),
					ToolName:      "intake_source",
					ResultSummary: "structured intake from stored visit",
				})
			} else {
				var vs []privacy.Violation
				in, vs = o.intakes.Extract(ctx, resolved.text, lang)
				if privacy.HasBlocker(vs) {
					o.emit(ctx, runID, eventbus.TypePolicyViolation, eventPayload{
						Step:       step.String(),
						Message:    "PHI boundary triggered; stopping safely.",
						Violations: vs,
					})
					o.failSafe(ctx, r, vs, "", "Run failed safe (PHI detected).")
					return
				}
			}
			applyContext(&in, resolved.context, input.Answers)
			if in.Language == "" {
				in.Language = lang
			}
			r.Artifacts.Intake = &in

		case StepTriage:
			res := o.triage.Assess(ctx, in)
			rec = contracts.Recommendation{
				SafetyWarnings:    res.Warnings,
				FollowUpQuestions: res.Questions,
				Confidence:        res.Confidence,
				Escalation:        res.Escalation,
			}
			r.Artifacts.RedFlags = res.RedFlags
			r.Artifacts.Confidence = res.Confidence

			for _, rf := range res.RedFlags {
				o.emit(ctx, runID, eventbus.TypeRuleFired, eventPayload{
					Step:     step.String(),
					RuleID:   rf,
					Severity: "WARN",
					Message:  "Red flag detected: " + rf,
				})
			}

			if res.NeedsMoreInfo {
				o.emit(ctx, runID, eventbus.TypeRuleFired, eventPayload{
					Step:     step.String(),
					RuleID:   "FOLLOW_UP_REQUIRED",
					Severity: "WARN",
					Message:  fmt.Sprintf("Follow-up required (%d questions).", len(res.Questions)),
				})
				r.Artifacts.Questions = res.Questions
				r.Artifacts.NeedsMoreInfo = true
				r.Artifacts.Trace = o.buildTrace(ctx, runID)
				o.finalize(ctx, r, run.StatusNeedsMoreInfo, "Run needs more info (follow-up required).")
				return
			}

			escalated = res.Escalation != nil
			r.Artifacts.Escalation = res.Escalation

		case StepProductRanking:
			ranked, warns := recommend.Rank(in, resolved.products)
			rec.RankedProducts = ranked
			rec.SafetyWarnings = recommend.DedupeWarnings(append(rec.SafetyWarnings, warns...))
			o.emit(ctx, runID, eventbus.TypeToolResult, eventPayload{
				Step:          step.String(),
				ToolName:      "product_ranker",
				ResultSummary: fmt.Sprintf("ranked_products=%d warnings=%d", len(ranked), len(warns)),
			})

		case StepSafety:
			bySKU := make(map[string]patient.Product, len(resolved.products))
			for _, p := range resolved.products {
				if p.SKU != "" {
					bySKU[p.SKU] = p
				}
			}
			more := recommend.SafetyWarnings(in, bySKU, rec.RankedProducts, rec.Escalation)
			rec.SafetyWarnings = recommend.DedupeWarnings(append(rec.SafetyWarnings, more...))
			o.emit(ctx, runID, eventbus.TypeToolResult, eventPayload{
				Step:          step.String(),
				ToolName:      "safety_engine",
				ResultSummary: fmt.Sprintf("safety_warnings=%d", len(rec.SafetyWarnings)),
			})

		case StepEvidenceRetrieval:
			o.emit(ctx, runID, eventbus.TypeToolCall, eventPayload{
				Step:     step.String(),
				ToolName: "evidence_retrieval",
				Args:     map[string]interface{}{"k": evidence.DefaultK},
			})
			items, err := evidence.Retrieve(in, evidence.DefaultK)
			if err != nil {
				o.failSafe(ctx, r, nil, NormalizeError(err), "Run failed safe (evidence retrieval error).")
				return
			}
			snippets = items
			rec.RankedProducts = evidence.AttachRefs(rec.RankedProducts, items)
			r.Artifacts.Evidence = items
			o.emit(ctx, runID, eventbus.TypeToolResult, eventPayload{
				Step:          step.String(),
				ToolName:      "evidence_retrieval",
				ResultSummary: fmt.Sprintf("retrieved=%d", len(items)),
			})

		case StepReport:
			r.Artifacts.ReportMarkdown = o.composer.Report(ctx, in, rec, snippets, lang)

		case StepHandout:
			r.Artifacts.HandoutText = o.composer.Handout(rec, lang)

		case StepPrebrief:
			pb := report.Prebrief(rec, o.buildTrace(ctx, runID), r.VisitID, lang)
			r.Artifacts.Prebrief = &pb

		case StepPlanner:
			plan := o.planner.Build(ctx, rec, lang)
			r.Artifacts.Plan = &plan

		case StepTrace:
			r.Artifacts.Trace = o.buildTrace(ctx, runID)
		}

		o.stepCompleted(ctx, runID, step)
	}

	r.Artifacts.Recommendations = rec.RankedProducts
	r.Artifacts.Warnings = rec.SafetyWarnings

	if vs := o.finalGate(r, rec, snippets); privacy.HasBlocker(vs) {
		// Drop every generated free-text artifact; structured data and
		// the trace survive for audit.
		r.Artifacts.ReportMarkdown = ""
		r.Artifacts.HandoutText = ""
		r.Artifacts.Prebrief = nil
		r.Artifacts.Plan = nil
		o.emit(ctx, runID, eventbus.TypePolicyViolation, eventPayload{
			Message:    "Final policy gate triggered; free text dropped.",
			Violations: vs,
		})
		o.failSafe(ctx, r, vs, "", "Run failed safe (policy gate).")
		return
	}

	o.finalize(ctx, r, run.StatusCompleted, "Run completed.")
}

// finalGate re-checks every generated free text just before the run is
// persisted as completed.
func (o *Orchestrator) finalGate(r *run.Run, rec contracts.Recommendation, snippets []contracts.EvidenceSnippet) []privacy.Violation {
	texts := []privacy.FreeText{
		{Path: "$.artifacts.report_markdown", Text: r.Artifacts.ReportMarkdown},
		{Path: "$.artifacts.handout_text", Text: r.Artifacts.HandoutText},
	}
	for i, p := range rec.RankedProducts {
		texts = append(texts, privacy.FreeText{Path: fmt.Sprintf("$.artifacts.recommendations[%d].why", i), Text: p.Why})
	}
	for i, w := range rec.SafetyWarnings {
		texts = append(texts, privacy.FreeText{Path: fmt.Sprintf("$.artifacts.warnings[%d].message", i), Text: w.Message})
	}
	if rec.Escalation != nil {
		texts = append(texts,
			privacy.FreeText{Path: "$.artifacts.escalation.reason", Text: rec.Escalation.Reason},
			privacy.FreeText{Path: "$.artifacts.escalation.advice", Text: rec.Escalation.Advice},
		)
	}
	if pb := r.Artifacts.Prebrief; pb != nil {
		for _, list := range [][]string{pb.TopActions, pb.TopRisks, pb.TopQuestions, pb.WhatChanged, pb.NewRxDelta} {
			for _, item := range list {
				texts = append(texts, privacy.FreeText{Path: "$.artifacts.prebrief", Text: item})
			}
		}
	}
	if plan := r.Artifacts.Plan; plan != nil {
		for _, c := range plan.SafetyChecks {
			texts = append(texts, privacy.FreeText{Path: "$.artifacts.plan.safety_checks", Text: c})
		}
		for _, s := range plan.Steps {
			texts = append(texts, privacy.FreeText{Path: "$.artifacts.plan.steps", Text: s.Description})
		}
	}
	return privacy.FinalGate(texts, evidence.AllowedIDs(snippets))
}

// buildTrace assembles the redacted trace artifact from the stored
// event log. Unparseable payloads are skipped rather than failing the
// run.
func (o *Orchestrator) buildTrace(ctx context.Context, runID string) *contracts.Trace {
	events, err := o.events.ListAfter(ctx, runID, 0, 1000)
	if err != nil {
		o.logger.Warn().Str("run_id", runID).Err(err).Msg("trace assembly failed")
		return &contracts.Trace{RunID: runID}
	}

	tr := &contracts.Trace{RunID: runID}
	for _, ev := range events {
		var p eventPayload
		if len(ev.Payload) > 0 {
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				continue
			}
		}
		step := contracts.TraceStep{Seq: ev.Seq, Step: p.Step, Type: ev.Type}
		switch ev.Type {
		case eventbus.TypeToolCall, eventbus.TypeToolResult:
			if p.ToolName == "" {
				continue
			}
			step.Detail = p.ToolName
			if p.ResultSummary != "" {
				step.Detail = p.ToolName + ": " + p.ResultSummary
			}
		case eventbus.TypeRuleFired:
			if p.RuleID == "" {
				continue
			}
			step.Detail = p.RuleID
		case eventbus.TypePolicyViolation:
			detail := "policy violation"
			if len(p.Violations) > 0 {
				detail = p.Violations[0].Code
			}
			step.Detail = detail
		default:
			step.Detail = p.Message
		}
		tr.Steps = append(tr.Steps, step)
	}
	return tr
}
