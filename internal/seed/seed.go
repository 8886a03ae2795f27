// Package seed loads the bundled synthetic pharmacy dataset. Every
// record is fabricated; the dataset exists so a fresh install has
// patients, visit history and OTC inventory to run against.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/pharmassist/pharmassist/internal/domain/patient"
)

//go:embed dataset.json
var datasetJSON []byte

// Dataset is the bundled synthetic pharmacy data.
type Dataset struct {
	Patients  []*patient.Patient `json:"patients"`
	Visits    []*patient.Visit   `json:"visits"`
	Inventory []*patient.Product `json:"inventory"`
}

// Counts reports what a Load call wrote.
type Counts struct {
	Patients  int  `json:"patients"`
	Visits    int  `json:"visits"`
	Inventory int  `json:"inventory"`
	Skipped   bool `json:"skipped"`
}

// Default parses the embedded dataset.
func Default() (*Dataset, error) {
	var ds Dataset
	if err := json.Unmarshal(datasetJSON, &ds); err != nil {
		return nil, fmt.Errorf("parse embedded dataset: %w", err)
	}
	return &ds, nil
}

// Load writes the dataset through the repositories. It is idempotent:
// when patients already exist the store is left untouched and Skipped
// is set.
func Load(
	ctx context.Context,
	ds *Dataset,
	patients patient.PatientRepository,
	visits patient.VisitRepository,
	inventory patient.InventoryRepository,
) (Counts, error) {
	if _, total, err := patients.List(ctx, 1, 0); err != nil {
		return Counts{}, fmt.Errorf("check existing patients: %w", err)
	} else if total > 0 {
		return Counts{Skipped: true}, nil
	}

	var c Counts
	for _, p := range ds.Patients {
		if err := patients.Upsert(ctx, p); err != nil {
			return c, fmt.Errorf("seed patient %s: %w", p.ID, err)
		}
		c.Patients++
	}
	for _, v := range ds.Visits {
		if err := visits.Create(ctx, v); err != nil {
			return c, fmt.Errorf("seed visit %s: %w", v.ID, err)
		}
		c.Visits++
	}
	for _, pr := range ds.Inventory {
		if err := inventory.Upsert(ctx, pr); err != nil {
			return c, fmt.Errorf("seed product %s: %w", pr.SKU, err)
		}
		c.Inventory++
	}
	return c, nil
}
