package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput marks failures caused by the caller's input rather
// than the pipeline itself.
var ErrInvalidInput = errors.New("invalid input")

const maxErrorKindLen = 80

// NormalizeError maps an arbitrary failure onto the closed error-kind
// vocabulary stored on runs and analysis states. Raw error text never
// leaves the process through this value.
func NormalizeError(err error) string {
	if err == nil {
		return ""
	}
	text := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(text, "timeout"):
		return "timeout"
	case strings.Contains(text, "not found"):
		return "not_found"
	case errors.Is(err, ErrInvalidInput) || strings.Contains(text, "invalid") || strings.Contains(text, "required"):
		return "invalid_input"
	}

	// Fall back to the dynamic type name, bounded and without the
	// package path.
	name := fmt.Sprintf("%T", err)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimPrefix(name, "*")
	if name == "errorString" || name == "wrapError" || name == "" {
		name = "internal_error"
	}
	if len(name) > maxErrorKindLen {
		name = name[:maxErrorKindLen]
	}
	return name
}
