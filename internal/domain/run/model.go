// Package run owns decision-assistant runs: their lifecycle, their
// durable event log and the HTTP surface for creating, inspecting and
// streaming them.
package run

import (
	"fmt"
	"regexp"
	"time"

	"github.com/pharmassist/pharmassist/internal/platform/privacy"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

// Run statuses. A run starts in StatusCreated, moves to StatusRunning
// when the pipeline picks it up, and ends in exactly one terminal
// status.
type Status string

const (
	StatusCreated       Status = "created"
	StatusRunning       Status = "running"
	StatusNeedsMoreInfo Status = "needs_more_info"
	StatusFailedSafe    Status = "failed_safe"
	StatusCompleted     Status = "completed"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusNeedsMoreInfo, StatusFailedSafe, StatusCompleted:
		return true
	case StatusCreated, StatusRunning:
		return false
	}
	return false
}

// CanTransition reports whether the move from s to next is legal.
// Terminal statuses never transition.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusCreated:
		return next == StatusRunning || next == StatusFailedSafe
	case StatusRunning:
		return next.Terminal()
	case StatusNeedsMoreInfo, StatusFailedSafe, StatusCompleted:
		return false
	}
	return false
}

// Run kinds.
const (
	KindConsult = "consult"
	KindRefresh = "scheduled_refresh"
)

var caseRefPattern = regexp.MustCompile(`^case_[a-z0-9_]{6,32}$`)

// ValidCaseRef reports whether ref is a well-formed case reference.
func ValidCaseRef(ref string) bool { return caseRefPattern.MatchString(ref) }

// Artifacts is the structured output of a run. Fields are filled as
// pipeline steps complete; free-text fields survive only if the final
// policy gate passes.
type Artifacts struct {
	Intake          *contracts.Intake         `json:"intake,omitempty"`
	RedFlags        []string                  `json:"red_flags,omitempty"`
	Escalation      *contracts.Escalation     `json:"escalation,omitempty"`
	Questions       []contracts.Question      `json:"questions,omitempty"`
	NeedsMoreInfo   bool                      `json:"needs_more_info"`
	Confidence      float64                   `json:"confidence"`
	Recommendations []contracts.RankedProduct `json:"recommendations,omitempty"`
	Warnings        []contracts.Warning       `json:"warnings,omitempty"`
	Evidence        []contracts.EvidenceSnippet `json:"evidence,omitempty"`
	ReportMarkdown  string                    `json:"report_markdown,omitempty"`
	HandoutText     string                    `json:"handout_text,omitempty"`
	Prebrief        *contracts.Prebrief       `json:"prebrief,omitempty"`
	Plan            *contracts.Plan           `json:"plan,omitempty"`
	Trace           *contracts.Trace          `json:"trace,omitempty"`
}

// Run is one decision-assistant run. InputHash and InputLen describe
// the raw input without retaining it: free text is hashed at the
// boundary and discarded.
type Run struct {
	ID               string              `json:"run_id"`
	Kind             string              `json:"kind"`
	CaseRef          string              `json:"case_ref,omitempty"`
	PatientID        string              `json:"patient_id,omitempty"`
	VisitID          string              `json:"visit_id,omitempty"`
	Language         string              `json:"language"`
	Status           Status              `json:"status"`
	InputHash        string              `json:"input_hash,omitempty"`
	InputLen         int                 `json:"input_len,omitempty"`
	Artifacts        Artifacts           `json:"artifacts"`
	PolicyViolations []privacy.Violation `json:"policy_violations,omitempty"`
	ErrorKind        string              `json:"error_kind,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	FinalizedAt      *time.Time          `json:"finalized_at,omitempty"`
}

// Validate checks invariants on a new run.
func (r *Run) Validate() error {
	switch r.Kind {
	case KindConsult, KindRefresh:
	default:
		return fmt.Errorf("invalid run kind %q", r.Kind)
	}
	if r.CaseRef != "" && !ValidCaseRef(r.CaseRef) {
		return fmt.Errorf("invalid case ref")
	}
	switch r.Language {
	case "en", "fr":
	default:
		return fmt.Errorf("unsupported language %q", r.Language)
	}
	return nil
}
