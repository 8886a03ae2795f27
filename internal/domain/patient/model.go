// Package patient holds the pharmacy-side dataset: patients, their
// visit history with pre-extracted structured intake, the OTC
// inventory and the per-patient analysis refresh state.
package patient

import (
	"fmt"
	"regexp"
	"time"

	"github.com/pharmassist/pharmassist/pkg/contracts"
)

var patientIDPattern = regexp.MustCompile(`^pat_[a-z0-9_]{3,32}$`)

// Patient is a de-identified pharmacy patient. Only pseudonymous ids
// and clinically relevant facts are stored; names and contact details
// never enter the system.
type Patient struct {
	ID                string     `json:"patient_id"`
	Age               *int       `json:"age,omitempty"`
	Sex               string     `json:"sex,omitempty"`
	PregnancyStatus   string     `json:"pregnancy_status,omitempty"`
	ChronicConditions []string   `json:"chronic_conditions,omitempty"`
	Medications       []string   `json:"medications,omitempty"`
	Allergies         []string   `json:"allergies,omitempty"`
	LatestVisitAt     *time.Time `json:"latest_visit_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Validate checks invariants on a patient record.
func (p *Patient) Validate() error {
	if !patientIDPattern.MatchString(p.ID) {
		return fmt.Errorf("invalid patient id")
	}
	switch p.Sex {
	case "", "male", "female", "other":
	default:
		return fmt.Errorf("invalid sex %q", p.Sex)
	}
	switch p.PregnancyStatus {
	case "", "pregnant", "not_pregnant", "unknown", "not_applicable":
	default:
		return fmt.Errorf("invalid pregnancy status %q", p.PregnancyStatus)
	}
	return nil
}

// Visit is one past pharmacy visit. Intake is structured at capture
// time; visit-based runs never see raw text.
type Visit struct {
	ID               string           `json:"visit_id"`
	PatientID        string           `json:"patient_id"`
	At               time.Time        `json:"at"`
	Intake           contracts.Intake `json:"intake"`
	NewPrescriptions []string         `json:"new_prescriptions,omitempty"`
}

// Product is one OTC inventory item.
type Product struct {
	SKU         string   `json:"sku"`
	Name        string   `json:"name"`
	Brand       string   `json:"brand,omitempty"`
	Category    string   `json:"category"`
	Ingredients []string `json:"ingredients,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	InStock     bool     `json:"in_stock"`
	StockQty    int      `json:"stock_qty"`
}

// Analysis refresh states.
const (
	AnalysisRefreshPending = "refresh_pending"
	AnalysisRunning        = "running"
	AnalysisUpToDate       = "up_to_date"
	AnalysisFailed         = "failed"
)

// AnalysisState is the per-patient background analysis record
// maintained by the refresh worker.
type AnalysisState struct {
	PatientID string    `json:"patient_id"`
	Status    string    `json:"status"`
	LastRunID string    `json:"last_run_id,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
