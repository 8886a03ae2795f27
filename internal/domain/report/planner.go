package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pharmassist/pharmassist/internal/platform/llm"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

// Plan modes.
const (
	PlanModeAgentic  = "agentic"
	PlanModeFallback = "fallback_deterministic"
)

const maxPlanSteps = 8

// Planner builds a consultation plan. The generator may propose one
// as strict JSON; anything that does not coerce cleanly into the
// closed step-kind allowlist falls back to the deterministic plan.
type Planner struct {
	gen    llm.Generator
	logger zerolog.Logger
}

func NewPlanner(gen llm.Generator, logger zerolog.Logger) *Planner {
	if gen == nil {
		gen = llm.Disabled{}
	}
	return &Planner{gen: gen, logger: logger}
}

func (p *Planner) Build(ctx context.Context, rec contracts.Recommendation, language string) contracts.Plan {
	prompt := plannerPrompt(rec, language)
	if out, ok := p.gen.Generate(ctx, prompt); ok {
		if plan, ok := coercePlan(out); ok {
			return plan
		}
		p.logger.Debug().Msg("planner output did not coerce, using deterministic plan")
	}
	return fallbackPlan(rec, language)
}

func plannerPrompt(rec contracts.Recommendation, language string) string {
	var b strings.Builder
	b.WriteString("Return STRICT JSON only.\n")
	b.WriteString("Allowed step kinds: counseling_question, safety_check, otc_suggestion, escalation, evidence_review.\n")
	b.WriteString("Output object with keys: safety_checks (array[string]), steps (array[{kind, description}]).\n")
	fmt.Fprintf(&b, "Language: %s\nContext summary:\n", language)

	if rec.Escalation != nil {
		fmt.Fprintf(&b, "- escalation: %s\n", rec.Escalation.Reason)
	}
	for _, w := range rec.SafetyWarnings {
		fmt.Fprintf(&b, "- warning: %s %s\n", w.Severity, w.Message)
	}
	for _, pr := range rec.RankedProducts {
		fmt.Fprintf(&b, "- product: %s why=%s refs=%v\n", productLabel(pr), pr.Why, pr.EvidenceRefs)
	}

	out := b.String()
	if len(out) > 5000 {
		out = out[:5000]
	}
	return out
}

// coercePlan accepts only a strict candidate: known top-level keys, a
// non-empty steps array, every step with an allowlisted kind and a
// description. One bad step rejects the whole candidate.
func coercePlan(raw string) (contracts.Plan, bool) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return contracts.Plan{}, false
	}
	for key := range payload {
		if key != "safety_checks" && key != "steps" {
			return contracts.Plan{}, false
		}
	}

	var rawSteps []struct {
		Kind        string `json:"kind"`
		Description string `json:"description"`
		Detail      string `json:"detail"`
	}
	if err := json.Unmarshal(payload["steps"], &rawSteps); err != nil || len(rawSteps) == 0 {
		return contracts.Plan{}, false
	}

	var steps []contracts.PlanStep
	for _, s := range rawSteps {
		desc := strings.TrimSpace(s.Description)
		if desc == "" {
			desc = strings.TrimSpace(s.Detail)
		}
		if !contracts.ValidPlanKind(s.Kind) || desc == "" {
			return contracts.Plan{}, false
		}
		if len(desc) > 600 {
			desc = desc[:600]
		}
		steps = append(steps, contracts.PlanStep{Kind: s.Kind, Description: desc})
		if len(steps) >= maxPlanSteps {
			break
		}
	}

	var checks []string
	if rawChecks, ok := payload["safety_checks"]; ok {
		var decoded []string
		if err := json.Unmarshal(rawChecks, &decoded); err == nil {
			for _, c := range decoded {
				if c = strings.TrimSpace(c); c != "" {
					checks = append(checks, c)
				}
				if len(checks) >= 6 {
					break
				}
			}
		}
	}
	if len(checks) == 0 {
		checks = defaultSafetyChecks()
	}

	return contracts.Plan{
		SafetyChecks: checks,
		Steps:        steps,
		Mode:         PlanModeAgentic,
		FallbackUsed: false,
	}, true
}

func defaultSafetyChecks() []string {
	return []string{
		"No patient identifiers in plan artifact.",
		"Closed allowlist for step kinds.",
		"No prescription-medication advice.",
	}
}

// fallbackPlan is the deterministic plan: safety checks first, then
// escalation, then OTC suggestions, then counseling questions.
func fallbackPlan(rec contracts.Recommendation, language string) contracts.Plan {
	fr := language == "fr"
	var steps []contracts.PlanStep

	for _, w := range rec.SafetyWarnings {
		if w.Message == "" {
			continue
		}
		steps = append(steps, contracts.PlanStep{Kind: contracts.PlanKindSafetyCheck, Description: w.Message})
	}
	if rec.Escalation != nil {
		steps = append(steps, contracts.PlanStep{Kind: contracts.PlanKindEscalation, Description: rec.Escalation.Reason})
	}
	for _, p := range rec.RankedProducts {
		if p.SKU == "" {
			continue
		}
		desc := p.Why
		if desc == "" {
			desc = pick(fr, "Verifier avant delivrance", "Check suitability before dispensing")
		}
		steps = append(steps, contracts.PlanStep{Kind: contracts.PlanKindOTCSuggestion, Description: productLabel(p) + ": " + desc})
		if len(steps) >= 5 {
			break
		}
	}
	for _, q := range rec.FollowUpQuestions {
		if q.Text == "" {
			continue
		}
		steps = append(steps, contracts.PlanStep{Kind: contracts.PlanKindCounselingQuestion, Description: q.Text})
		if len(steps) >= 6 {
			break
		}
	}

	if len(steps) == 0 {
		steps = []contracts.PlanStep{{
			Kind: contracts.PlanKindCounselingQuestion,
			Description: pick(fr,
				"Recueillir la chronologie des symptomes avant conseil OTC.",
				"Collect symptom chronology and blockers before OTC advice."),
		}}
	}
	if len(steps) > maxPlanSteps {
		steps = steps[:maxPlanSteps]
	}

	return contracts.Plan{
		SafetyChecks: defaultSafetyChecks(),
		Steps:        steps,
		Mode:         PlanModeFallback,
		FallbackUsed: true,
	}
}
