// Package intake turns untrusted free text into a structured case.
// Extraction never crosses the privacy boundary: text containing
// blocker-grade identifiers is rejected before any model sees it, and
// model output is re-scanned before it is trusted.
package intake

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pharmassist/pharmassist/internal/platform/llm"
	"github.com/pharmassist/pharmassist/internal/platform/privacy"
	"github.com/pharmassist/pharmassist/internal/platform/textkit"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

// Symptom severities.
const (
	SeverityUnknown  = "unknown"
	SeverityMild     = "mild"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
)

// UnspecifiedLabel is the placeholder symptom when nothing could be
// extracted. Downstream triage treats it as a low-information intake.
const UnspecifiedLabel = "unspecified symptom"

// Extractor produces a structured intake from raw text. The model
// path is optional: with llm.Disabled the deterministic fallback runs
// every time.
type Extractor struct {
	gen    llm.Generator
	logger zerolog.Logger
}

func NewExtractor(gen llm.Generator, logger zerolog.Logger) *Extractor {
	if gen == nil {
		gen = llm.Disabled{}
	}
	return &Extractor{gen: gen, logger: logger}
}

// Extract parses text into an intake. Returned violations come from
// the privacy scan of the input; callers must halt when any of them is
// a blocker, in which case the intake is the zero value.
func (e *Extractor) Extract(ctx context.Context, text, language string) (contracts.Intake, []privacy.Violation) {
	if language != "fr" {
		language = "en"
	}

	violations := privacy.ScanText("$.intake_text", text)
	if privacy.HasBlocker(violations) {
		return contracts.Intake{}, violations
	}

	if in, ok := e.modelExtract(ctx, text, language); ok {
		return in, violations
	}
	return fallbackExtract(text, language), violations
}

// modelExtract asks the generator for a JSON intake and accepts it
// only if it parses, canonicalizes cleanly and carries no identifier
// patterns of its own.
func (e *Extractor) modelExtract(ctx context.Context, text, language string) (contracts.Intake, bool) {
	raw, ok := e.gen.Generate(ctx, extractionPrompt(text, language))
	if !ok {
		return contracts.Intake{}, false
	}

	chunk := firstJSONObject(raw)
	if chunk == "" {
		e.logger.Debug().Msg("model extraction output had no JSON object")
		return contracts.Intake{}, false
	}

	var parsed struct {
		PresentingProblem string `json:"presenting_problem"`
		Symptoms          []struct {
			Label        string `json:"label"`
			Severity     string `json:"severity"`
			DurationDays *int   `json:"duration_days"`
		} `json:"symptoms"`
	}
	if err := json.Unmarshal([]byte(chunk), &parsed); err != nil {
		e.logger.Debug().Err(err).Msg("model extraction output did not decode")
		return contracts.Intake{}, false
	}

	in := contracts.Intake{Language: language, PresentingProblem: parsed.PresentingProblem}
	for _, s := range parsed.Symptoms {
		label := strings.TrimSpace(s.Label)
		if label == "" {
			continue
		}
		compact := textkit.Compact(textkit.Normalize(label))
		if canonical := canonicalLabel(textkit.Deleet(compact)); canonical != "" {
			label = canonical
		} else if canonical := canonicalLabel(compact); canonical != "" {
			label = canonical
		} else {
			label = whitespaceRe.ReplaceAllString(label, " ")
		}
		in.Symptoms = append(in.Symptoms, contracts.Symptom{
			Label:        label,
			Severity:     canonicalSeverity(s.Severity),
			DurationDays: s.DurationDays,
		})
	}
	if len(in.Symptoms) == 0 {
		return contracts.Intake{}, false
	}

	pp := textkit.Normalize(in.PresentingProblem)
	if pp == "" || strings.Contains(pp, "unspecified") || strings.Contains(pp, "non specifie") {
		in.PresentingProblem = inferPresentingProblem(symptomFlags(in.Symptoms), language)
	}

	// The model must not echo identifiers back at us.
	var payload any
	encoded, err := json.Marshal(in)
	if err != nil || json.Unmarshal(encoded, &payload) != nil {
		return contracts.Intake{}, false
	}
	if privacy.HasBlocker(privacy.ScanValue(payload)) {
		e.logger.Warn().Msg("model extraction output rejected by privacy scan")
		return contracts.Intake{}, false
	}

	return in, true
}

func extractionPrompt(text, language string) string {
	var b strings.Builder
	b.WriteString("Extract a JSON object with fields presenting_problem (string) and symptoms ")
	b.WriteString("(array of {label, severity, duration_days}) from the pharmacy intake below. ")
	b.WriteString("Severity is one of unknown, mild, moderate, severe. Language: ")
	b.WriteString(language)
	b.WriteString(". Reply with JSON only.\n\n")
	b.WriteString(text)
	return b.String()
}

func firstJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func canonicalSeverity(s string) string {
	switch textkit.Normalize(s) {
	case SeverityMild, "leger":
		return SeverityMild
	case SeverityModerate, "modere":
		return SeverityModerate
	case SeveritySevere:
		return SeveritySevere
	default:
		return SeverityUnknown
	}
}
