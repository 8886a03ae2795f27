package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pharmassist/pharmassist/internal/domain/intake"
	"github.com/pharmassist/pharmassist/internal/domain/patient"
	"github.com/pharmassist/pharmassist/internal/domain/report"
	"github.com/pharmassist/pharmassist/internal/domain/run"
	"github.com/pharmassist/pharmassist/internal/domain/triage"
	"github.com/pharmassist/pharmassist/internal/platform/eventbus"
	"github.com/pharmassist/pharmassist/internal/platform/llm"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

type env struct {
	runs   *run.InMemoryRunRepo
	events *run.InMemoryEventRepo
	store  *patient.InMemoryStore
	bus    *eventbus.Bus
	orch   *Orchestrator
}

func newEnv(cfg Config) *env {
	runs := run.NewInMemoryRunRepo()
	events := run.NewInMemoryEventRepo()
	store := patient.NewInMemoryStore()
	bus := eventbus.New(events, zerolog.Nop())
	orch := NewOrchestrator(
		runs, events, bus,
		store.Patients(), store.Visits(), store.Inventory(),
		intake.NewExtractor(llm.Disabled{}, zerolog.Nop()),
		triage.NewEngine(nil),
		report.NewComposer(llm.Disabled{}, false, zerolog.Nop()),
		report.NewPlanner(llm.Disabled{}, zerolog.Nop()),
		cfg,
		zerolog.Nop(),
	)
	return &env{runs: runs, events: events, store: store, bus: bus, orch: orch}
}

func (e *env) createRun(t *testing.T, r *run.Run) *run.Run {
	t.Helper()
	if r.Kind == "" {
		r.Kind = run.KindConsult
	}
	if r.Language == "" {
		r.Language = "en"
	}
	r.Status = run.StatusCreated
	if err := e.runs.Create(context.Background(), r); err != nil {
		t.Fatalf("create run: %v", err)
	}
	return r
}

func (e *env) eventPayloads(t *testing.T, runID string) []eventPayload {
	t.Helper()
	events, err := e.events.ListAfter(context.Background(), runID, 0, 1000)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	out := make([]eventPayload, 0, len(events))
	for _, ev := range events {
		var p eventPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			t.Fatalf("decode event %d: %v", ev.Seq, err)
		}
		out = append(out, p)
	}
	return out
}

func (e *env) eventTypes(t *testing.T, runID string) []string {
	t.Helper()
	events, err := e.events.ListAfter(context.Background(), runID, 0, 1000)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestExecute_CaseRunCompletes(t *testing.T) {
	e := newEnv(Config{PrebriefEnabled: true, PlannerEnabled: true})
	r := e.createRun(t, &run.Run{ID: "run_case42", CaseRef: "case_000042"})

	e.orch.Execute(context.Background(), r.ID, run.ExecInput{})

	got, err := e.runs.GetByID(context.Background(), r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != run.StatusCompleted {
		t.Fatalf("status = %s, want completed (error_kind=%q)", got.Status, got.ErrorKind)
	}
	if got.ErrorKind != "" || len(got.PolicyViolations) != 0 {
		t.Errorf("unexpected error_kind=%q violations=%v", got.ErrorKind, got.PolicyViolations)
	}
	if got.FinalizedAt == nil {
		t.Error("finalized_at not set")
	}

	a := got.Artifacts
	if a.Intake == nil {
		t.Fatal("intake artifact missing")
	}
	if len(a.Recommendations) != 3 {
		t.Fatalf("expected 3 recommendations, got %d", len(a.Recommendations))
	}
	if a.Recommendations[0].SKU != "sku_cet_10" {
		t.Errorf("top product = %s, want sku_cet_10", a.Recommendations[0].SKU)
	}
	if n := len(a.Recommendations[0].EvidenceRefs); n == 0 || n > 2 {
		t.Errorf("evidence refs = %d, want 1..2", n)
	}
	if len(a.Evidence) == 0 {
		t.Error("no evidence attached")
	}
	if !strings.Contains(a.ReportMarkdown, "# Pharmacist report") {
		t.Errorf("report missing header:\n%s", a.ReportMarkdown)
	}
	if !strings.Contains(a.HandoutText, "# Patient handout") {
		t.Errorf("handout missing header:\n%s", a.HandoutText)
	}
	if a.Prebrief == nil {
		t.Error("prebrief artifact missing")
	}
	if a.Plan == nil {
		t.Error("plan artifact missing")
	} else if !a.Plan.FallbackUsed {
		t.Error("disabled generator should force the fallback plan")
	}
	if a.Trace == nil || len(a.Trace.Steps) == 0 {
		t.Error("trace artifact missing or empty")
	}
	if a.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", a.Confidence)
	}

	types := e.eventTypes(t, r.ID)
	if len(types) == 0 || types[len(types)-1] != eventbus.TypeFinalized {
		t.Fatalf("last event should be finalized, got %v", types)
	}
}

func TestExecute_RedFlagEscalatesWithoutProducts(t *testing.T) {
	e := newEnv(Config{})
	r := e.createRun(t, &run.Run{ID: "run_redflag", CaseRef: "case_redflag_000101"})

	e.orch.Execute(context.Background(), r.ID, run.ExecInput{})

	got, _ := e.runs.GetByID(context.Background(), r.ID)
	if got.Status != run.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	a := got.Artifacts
	if a.Escalation == nil || a.Escalation.Level != contracts.EscalationUrgent {
		t.Fatalf("expected urgent escalation, got %+v", a.Escalation)
	}
	if len(a.Recommendations) != 0 {
		t.Errorf("escalated run must not rank products, got %v", a.Recommendations)
	}
	found := false
	for _, w := range a.Warnings {
		if w.Code == "ESCALATION_RECOMMENDED" {
			found = true
		}
	}
	if !found {
		t.Errorf("ESCALATION_RECOMMENDED warning missing: %v", a.Warnings)
	}
	if !strings.Contains(a.ReportMarkdown, "## Escalation") {
		t.Errorf("report missing escalation section:\n%s", a.ReportMarkdown)
	}

	for _, p := range e.eventPayloads(t, r.ID) {
		if p.Step == StepProductRanking.String() || p.Step == StepEvidenceRetrieval.String() {
			t.Fatalf("escalated run emitted %s events", p.Step)
		}
	}
	ruleSeen := false
	for _, p := range e.eventPayloads(t, r.ID) {
		if p.RuleID == triage.RFChestPain {
			ruleSeen = true
		}
	}
	if !ruleSeen {
		t.Error("rule_fired event for RF_CHEST_PAIN missing")
	}
}

func TestExecute_LowInfoNeedsMoreInfo(t *testing.T) {
	e := newEnv(Config{})
	r := e.createRun(t, &run.Run{ID: "run_lowinfo", CaseRef: "case_lowinfo_000102"})

	e.orch.Execute(context.Background(), r.ID, run.ExecInput{})

	got, _ := e.runs.GetByID(context.Background(), r.ID)
	if got.Status != run.StatusNeedsMoreInfo {
		t.Fatalf("status = %s, want needs_more_info", got.Status)
	}
	a := got.Artifacts
	if !a.NeedsMoreInfo {
		t.Error("needs_more_info flag not set")
	}
	if len(a.Questions) != 5 {
		t.Fatalf("expected 5 follow-up questions, got %d", len(a.Questions))
	}
	if a.Questions[0].ID != "q_primary_domain" {
		t.Errorf("first question = %s, want q_primary_domain", a.Questions[0].ID)
	}
	if a.Confidence != 0.1 {
		t.Errorf("confidence = %v, want 0.1", a.Confidence)
	}
	if a.ReportMarkdown != "" {
		t.Error("needs_more_info run must not carry a report")
	}
	if a.Trace == nil {
		t.Error("trace artifact missing")
	}
}

func TestExecute_AnswersResolveFollowUp(t *testing.T) {
	e := newEnv(Config{})
	r := e.createRun(t, &run.Run{ID: "run_answers", CaseRef: "case_lowinfo_000102"})

	answers := map[string]string{
		"q_primary_domain":   "allergy",
		"q_overall_severity": "moderate",
		"q_fever":            "no",
		"q_breathing":        "no",
		"q_chest_pain":       "no",
	}
	e.orch.Execute(context.Background(), r.ID, run.ExecInput{Answers: answers})

	got, _ := e.runs.GetByID(context.Background(), r.ID)
	if got.Status != run.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Artifacts.NeedsMoreInfo {
		t.Error("answered run still flagged needs_more_info")
	}
	if len(got.Artifacts.Recommendations) == 0 {
		t.Error("answered run produced no recommendations")
	}
}

func TestExecute_TextRunPHIBlocked(t *testing.T) {
	e := newEnv(Config{})
	r := e.createRun(t, &run.Run{ID: "run_phi"})

	e.orch.Execute(context.Background(), r.ID, run.ExecInput{
		Text: "Sneezing for a week, contact jean.dupont@example.com",
	})

	got, _ := e.runs.GetByID(context.Background(), r.ID)
	if got.Status != run.StatusFailedSafe {
		t.Fatalf("status = %s, want failed_safe", got.Status)
	}
	if len(got.PolicyViolations) == 0 {
		t.Fatal("policy violations not recorded")
	}
	if got.Artifacts.Intake != nil {
		t.Error("intake must not be extracted after a PHI blocker")
	}

	types := e.eventTypes(t, r.ID)
	seen := false
	for _, typ := range types {
		if typ == eventbus.TypePolicyViolation {
			seen = true
		}
	}
	if !seen {
		t.Errorf("policy_violation event missing: %v", types)
	}
}

func TestExecute_TextRunCompletes(t *testing.T) {
	e := newEnv(Config{})
	seedInventory(t, e.store)
	r := e.createRun(t, &run.Run{ID: "run_text"})

	e.orch.Execute(context.Background(), r.ID, run.ExecInput{
		Text: "Sneezing and itchy eyes for a week.\n- sneezing (moderate, 7d)\n- itchy eyes (mild)",
	})

	got, _ := e.runs.GetByID(context.Background(), r.ID)
	if got.Status != run.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if len(got.Artifacts.Recommendations) == 0 {
		t.Error("text run produced no recommendations")
	}
}

func TestExecute_VisitRunUsesStoredIntake(t *testing.T) {
	e := newEnv(Config{})
	ctx := context.Background()
	seedInventory(t, e.store)

	pat := &patient.Patient{ID: "pat_alice", Sex: "female", PregnancyStatus: "not_pregnant"}
	if err := e.store.Patients().Upsert(ctx, pat); err != nil {
		t.Fatal(err)
	}
	visit := &patient.Visit{
		ID:        "visit_alice_1",
		PatientID: "pat_alice",
		At:        time.Now().UTC().Add(-24 * time.Hour),
		Intake: contracts.Intake{
			Language:          "en",
			PresentingProblem: "Sneezing and itchy eyes",
			Symptoms: []contracts.Symptom{
				{Label: "sneezing", Severity: "moderate"},
				{Label: "itchy eyes", Severity: "mild"},
			},
		},
	}
	if err := e.store.Visits().Create(ctx, visit); err != nil {
		t.Fatal(err)
	}

	r := e.createRun(t, &run.Run{ID: "run_visit", PatientID: "pat_alice", VisitID: "visit_alice_1"})
	e.orch.Execute(ctx, r.ID, run.ExecInput{})

	got, _ := e.runs.GetByID(ctx, r.ID)
	if got.Status != run.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if len(got.Artifacts.Recommendations) == 0 {
		t.Error("visit run produced no recommendations")
	}

	sourced := false
	for _, p := range e.eventPayloads(t, r.ID) {
		if p.ToolName == "intake_source" {
			sourced = true
		}
	}
	if !sourced {
		t.Error("intake_source tool event missing for visit run")
	}
}

func TestExecute_UnknownCaseFailsSafe(t *testing.T) {
	e := newEnv(Config{})
	r := e.createRun(t, &run.Run{ID: "run_unknown", CaseRef: "case_zzzzzz"})

	e.orch.Execute(context.Background(), r.ID, run.ExecInput{})

	got, _ := e.runs.GetByID(context.Background(), r.ID)
	if got.Status != run.StatusFailedSafe {
		t.Fatalf("status = %s, want failed_safe", got.Status)
	}
	if got.ErrorKind != "not_found" {
		t.Errorf("error_kind = %q, want not_found", got.ErrorKind)
	}
}

func TestExecute_OptionalStepsGated(t *testing.T) {
	e := newEnv(Config{})
	r := e.createRun(t, &run.Run{ID: "run_gated", CaseRef: "case_000042"})

	e.orch.Execute(context.Background(), r.ID, run.ExecInput{})

	got, _ := e.runs.GetByID(context.Background(), r.ID)
	if got.Status != run.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Artifacts.Prebrief != nil || got.Artifacts.Plan != nil {
		t.Error("gated artifacts should be absent when disabled")
	}
	for _, p := range e.eventPayloads(t, r.ID) {
		if p.Step == StepPrebrief.String() || p.Step == StepPlanner.String() {
			t.Fatalf("disabled step %s emitted events", p.Step)
		}
	}
}

func seedInventory(t *testing.T, store *patient.InMemoryStore) {
	t.Helper()
	ctx := context.Background()
	products := []*patient.Product{
		{SKU: "sku_cet_10", Name: "Cetirizine 10mg tablets", Brand: "AllerCalm", Category: "allergy", Ingredients: []string{"cetirizine"}, InStock: true, StockQty: 42},
		{SKU: "sku_saline_spray", Name: "Saline nasal spray", Category: "allergy", Ingredients: []string{"sodium chloride"}, InStock: true, StockQty: 18},
	}
	for _, p := range products {
		if err := store.Inventory().Upsert(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
}
