package pipeline

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/pharmassist/pharmassist/internal/domain/patient"
	"github.com/pharmassist/pharmassist/internal/domain/run"
)

//go:embed cases/*.json
var caseFS embed.FS

// CaseContext is the de-identified patient context shipped with a case
// fixture. It mirrors the fields merged from a stored patient on
// visit-based runs.
type CaseContext struct {
	Age             *int     `json:"age,omitempty"`
	Sex             string   `json:"sex,omitempty"`
	PregnancyStatus string   `json:"pregnancy_status,omitempty"`
	Conditions      []string `json:"conditions,omitempty"`
	Medications     []string `json:"medications,omitempty"`
	Allergies       []string `json:"allergies,omitempty"`
}

// CaseBundle is one synthetic demo case: intake text per language, the
// patient context and the product catalog the run ranks over. Fixtures
// are committed and contain no PHI.
type CaseBundle struct {
	CaseRef    string            `json:"case_ref"`
	IntakeText map[string]string `json:"intake_text"`
	Context    CaseContext       `json:"context"`
	Products   []patient.Product `json:"products"`
}

// Text returns the intake text for lang, falling back to English.
func (b *CaseBundle) Text(lang string) string {
	if t, ok := b.IntakeText[lang]; ok && t != "" {
		return t
	}
	return b.IntakeText["en"]
}

// LoadCase loads an embedded case bundle by reference. The reference
// is validated against the strict case pattern before any file access.
func LoadCase(caseRef string) (*CaseBundle, error) {
	if !run.ValidCaseRef(caseRef) {
		return nil, fmt.Errorf("case %s not found", caseRef)
	}
	data, err := caseFS.ReadFile("cases/" + caseRef + ".json")
	if err != nil {
		return nil, fmt.Errorf("case %s not found", caseRef)
	}
	var bundle CaseBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("decode case %s: %w", caseRef, err)
	}
	if bundle.CaseRef != caseRef {
		return nil, fmt.Errorf("case %s: fixture ref mismatch", caseRef)
	}
	return &bundle, nil
}
