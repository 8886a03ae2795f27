// Package document ingests prescription uploads. Only derived
// metadata ever leaves this package: a truncated content hash, page
// and length counts, and the de-identified structured intake. Raw
// document text is never persisted.
package document

import "time"

// Ingest outcomes.
const (
	StatusIngested  = "ingested"
	StatusFailedPHI = "failed_phi_boundary"
)

// Primary complaint domains inferred from extracted text.
const (
	DomainAllergyENT = "allergy_ent"
	DomainDigestive  = "digestive"
	DomainSkin       = "skin"
	DomainEye        = "eye"
	DomainUrology    = "urology"
	DomainPain       = "pain"
	DomainRespirator = "respiratory"
	DomainOther      = "other"
)

// Document is the stored metadata for one upload.
type Document struct {
	ID             string    `json:"id"`
	PatientID      string    `json:"patient_id"`
	Status         string    `json:"status"`
	SHA256Short    string    `json:"sha256_12"`
	PageCount      int       `json:"page_count"`
	TextLength     int       `json:"text_length"`
	RedactionCount int       `json:"redaction_replacements"`
	PrimaryDomain  string    `json:"primary_domain"`
	CreatedAt      time.Time `json:"created_at"`
}
