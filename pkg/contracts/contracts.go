// Package contracts holds the wire-level types shared by the pipeline
// engines and the HTTP surface. Everything here is plain data: engines
// produce these values deterministically and handlers serialize them
// as-is.
package contracts

// Severity grades a warning. Blockers change the outcome of a run,
// warns are surfaced to the pharmacist, infos are advisory.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarn    Severity = "warn"
	SeverityBlocker Severity = "blocker"
)

// Warning is a structured safety finding attached to a run. RelatedSKU
// is empty for warnings that apply to the whole case rather than a
// single product.
type Warning struct {
	Code       string   `json:"code"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	RelatedSKU string   `json:"related_product_sku,omitempty"`
}

// Symptom is one normalized complaint extracted from intake text or a
// stored visit.
type Symptom struct {
	Label        string `json:"label"`
	Severity     string `json:"severity"`
	DurationDays *int   `json:"duration_days,omitempty"`
}

// Intake is the structured, de-identified case a run operates on.
// Answers holds canonicalized follow-up answers keyed by question id.
type Intake struct {
	Language          string            `json:"language"`
	PresentingProblem string            `json:"presenting_problem"`
	Symptoms          []Symptom         `json:"symptoms"`
	Conditions        []string          `json:"conditions,omitempty"`
	Medications       []string          `json:"medications,omitempty"`
	Allergies         []string          `json:"allergies,omitempty"`
	Age               *int              `json:"age,omitempty"`
	Sex               string            `json:"sex,omitempty"`
	PregnancyStatus   string            `json:"pregnancy_status,omitempty"`
	Answers           map[string]string `json:"answers,omitempty"`
}

// Question is a follow-up question rendered to the pharmacist. The id
// always comes from the closed question bank.
type Question struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Text     string   `json:"text"`
	Reason   string   `json:"reason,omitempty"`
	Priority int      `json:"priority"`
	Choices  []string `json:"choices,omitempty"`
}

// Escalation levels.
const (
	EscalationUrgent = "urgent"
	EscalationDoctor = "see_doctor_24h"
)

// Escalation is the triage verdict when red flags fire.
type Escalation struct {
	Level    string   `json:"level"`
	Reason   string   `json:"reason"`
	Advice   string   `json:"advice"`
	RedFlags []string `json:"red_flags"`
}

// RankedProduct is one OTC recommendation with its deterministic score
// and supporting evidence ids.
type RankedProduct struct {
	SKU          string   `json:"sku"`
	Name         string   `json:"name"`
	Score        int      `json:"score"`
	Why          string   `json:"why"`
	EvidenceRefs []string `json:"evidence_refs,omitempty"`
}

// EvidenceSnippet is one entry from the offline corpus.
type EvidenceSnippet struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Publisher string `json:"publisher"`
	Year      int    `json:"year"`
	URL       string `json:"url"`
	Summary   string `json:"summary"`
}

// Recommendation bundles everything a run produced for the
// pharmacist. Escalation and ranked products are mutually exclusive:
// once an escalation is recommended the product list stays empty.
type Recommendation struct {
	RankedProducts    []RankedProduct `json:"ranked_products"`
	SafetyWarnings    []Warning       `json:"safety_warnings"`
	FollowUpQuestions []Question      `json:"follow_up_questions"`
	Confidence        float64         `json:"confidence"`
	Escalation        *Escalation     `json:"escalation,omitempty"`
}

// Prebrief is the pharmacist pre-brief: at most three entries per
// list, deduplicated, language-aware defaults when a list is empty.
type Prebrief struct {
	TopActions   []string `json:"top_actions"`
	TopRisks     []string `json:"top_risks"`
	TopQuestions []string `json:"top_questions"`
	WhatChanged  []string `json:"what_changed"`
	NewRxDelta   []string `json:"new_rx_delta"`
}

// PlanStep kinds form a closed allowlist; anything outside it is
// rejected during plan coercion.
const (
	PlanKindCounselingQuestion = "counseling_question"
	PlanKindSafetyCheck        = "safety_check"
	PlanKindOTCSuggestion      = "otc_suggestion"
	PlanKindEscalation         = "escalation"
	PlanKindEvidenceReview     = "evidence_review"
)

// PlanStep is one step of a consultation plan.
type PlanStep struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// Plan is the consultation plan artifact. Mode records whether the
// generator produced it or the deterministic fallback did.
type Plan struct {
	SafetyChecks []string   `json:"safety_checks"`
	Steps        []PlanStep `json:"steps"`
	Mode         string     `json:"mode"`
	FallbackUsed bool       `json:"fallback_used"`
}

// TraceStep is one redacted entry of the run trace. It never carries
// raw text, only step names, statuses and reference ids.
type TraceStep struct {
	Seq    int64  `json:"seq"`
	Step   string `json:"step"`
	Type   string `json:"type"`
	Detail string `json:"detail,omitempty"`
}

// Trace is the contract-shaped audit trail assembled from stored run
// events.
type Trace struct {
	RunID string      `json:"run_id"`
	Steps []TraceStep `json:"steps"`
}

// ValidPlanKind reports whether kind is in the closed plan-step
// allowlist.
func ValidPlanKind(kind string) bool {
	switch kind {
	case PlanKindCounselingQuestion, PlanKindSafetyCheck, PlanKindOTCSuggestion,
		PlanKindEscalation, PlanKindEvidenceReview:
		return true
	}
	return false
}
