// Package llm defines the text-generation seam of the pipeline. The
// pipeline never talks to a model directly: it asks a Generator for
// text and treats an empty result as "no model output", falling back
// to its deterministic path. Every generated string is re-validated by
// the privacy gates before it can reach an artifact.
package llm

import "context"

// Generator produces free text for a prompt. An implementation
// returns ok=false when no usable output is available (model disabled,
// transport failure, empty completion); callers must then take their
// deterministic fallback. Generate must never return a partial result
// with ok=true.
type Generator interface {
	Generate(ctx context.Context, prompt string) (text string, ok bool)
}

// Disabled is the default Generator: it never produces output, so
// every caller takes its deterministic path.
type Disabled struct{}

func (Disabled) Generate(context.Context, string) (string, bool) { return "", false }

// Func adapts a plain function to the Generator interface. Tests use
// this to script model behavior.
type Func func(ctx context.Context, prompt string) (string, bool)

func (f Func) Generate(ctx context.Context, prompt string) (string, bool) { return f(ctx, prompt) }
