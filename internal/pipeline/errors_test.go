package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type extractError struct{}

func (extractError) Error() string { return "worker gave up" }

type aVeryLongNamedErrorTypeUsedOnlyToCheckThatTheFallbackKindIsBoundedToEightyCharactersTotal struct{}

func (aVeryLongNamedErrorTypeUsedOnlyToCheckThatTheFallbackKindIsBoundedToEightyCharactersTotal) Error() string {
	return "long"
}

func TestNormalizeError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"timeout text", errors.New("dial tcp: i/o timeout"), "timeout"},
		{"not found", fmt.Errorf("visit not found for patient: %w", errors.New("no visits for patient pat_x")), "not_found"},
		{"invalid sentinel", fmt.Errorf("%w: patient id is required", ErrInvalidInput), "invalid_input"},
		{"invalid text", errors.New("invalid case fixture"), "invalid_input"},
		{"opaque stdlib error", errors.New("boom"), "internal_error"},
		{"typed fallback", extractError{}, "extractError"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeError(tc.err); got != tc.want {
				t.Errorf("NormalizeError(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestNormalizeError_BoundsTypeName(t *testing.T) {
	got := NormalizeError(aVeryLongNamedErrorTypeUsedOnlyToCheckThatTheFallbackKindIsBoundedToEightyCharactersTotal{})
	if len(got) == 0 || len(got) > maxErrorKindLen {
		t.Errorf("error kind out of bounds: %q (%d chars)", got, len(got))
	}
}
