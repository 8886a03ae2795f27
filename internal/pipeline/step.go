// Package pipeline executes decision-assistant runs: it resolves the
// case input, drives the engine steps in order, emits the durable event
// stream and finalizes the run in exactly one terminal status. It also
// hosts the background analysis refresh worker.
package pipeline

// Step identifies one pipeline stage. The set is closed; the
// orchestrator switches over it exhaustively.
type Step string

const (
	StepPHIScrub          Step = "phi_scrub"
	StepIntakeExtraction  Step = "intake_extraction"
	StepTriage            Step = "triage"
	StepProductRanking    Step = "product_ranking"
	StepSafety            Step = "safety"
	StepEvidenceRetrieval Step = "evidence_retrieval"
	StepReport            Step = "report"
	StepHandout           Step = "handout"
	StepPrebrief          Step = "prebrief"
	StepPlanner           Step = "planner"
	StepTrace             Step = "trace"
)

// steps is the execution order. Prebrief and planner are feature-gated
// and skipped without events when disabled.
var steps = []Step{
	StepPHIScrub,
	StepIntakeExtraction,
	StepTriage,
	StepProductRanking,
	StepSafety,
	StepEvidenceRetrieval,
	StepReport,
	StepHandout,
	StepPrebrief,
	StepPlanner,
	StepTrace,
}

func (s Step) String() string { return string(s) }
