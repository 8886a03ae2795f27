package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pharmassist/pharmassist/internal/platform/llm"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

// ModelSelector asks a generator to order the optional questions for
// an intake. The model only ever chooses among ids the engine offers;
// malformed or surprising output falls back to priority order.
type ModelSelector struct {
	gen      llm.Generator
	fallback PrioritySelector
	logger   zerolog.Logger
}

func NewModelSelector(gen llm.Generator, logger zerolog.Logger) *ModelSelector {
	return &ModelSelector{gen: gen, logger: logger}
}

func (s *ModelSelector) SelectOptional(ctx context.Context, intake contracts.Intake, optional []BankQuestion, max int) []string {
	if len(optional) == 0 || max <= 0 {
		return nil
	}

	ids := make([]string, len(optional))
	for i, q := range optional {
		ids[i] = q.ID
	}
	prompt := fmt.Sprintf(
		"Order these follow-up question ids by usefulness for a %s-language pharmacy case about %q. "+
			"Reply with a JSON array of ids drawn only from: %s",
		intake.Language, intake.PresentingProblem, strings.Join(ids, ", "))

	text, ok := s.gen.Generate(ctx, prompt)
	if !ok {
		return s.fallback.SelectOptional(ctx, intake, optional, max)
	}

	var picked []string
	if err := json.Unmarshal([]byte(extractJSONArray(text)), &picked); err != nil {
		s.logger.Debug().Err(err).Msg("selector output not a JSON array, using priority order")
		return s.fallback.SelectOptional(ctx, intake, optional, max)
	}

	offered := map[string]bool{}
	for _, id := range ids {
		offered[id] = true
	}
	var out []string
	for _, id := range picked {
		if !offered[id] || len(out) >= max {
			continue
		}
		offered[id] = false
		out = append(out, id)
	}
	if len(out) == 0 {
		return s.fallback.SelectOptional(ctx, intake, optional, max)
	}
	return out
}

// extractJSONArray pulls the first bracketed array out of model text,
// tolerating prose around it.
func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}
