package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pharmassist/pharmassist/internal/domain/intake"
	"github.com/pharmassist/pharmassist/internal/platform/privacy"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

// IngestResult is the full outcome of one upload. The structured
// intake is only present when the privacy boundary passed.
type IngestResult struct {
	Document   *Document           `json:"document"`
	Intake     *contracts.Intake   `json:"intake,omitempty"`
	Violations []privacy.Violation `json:"violations,omitempty"`

	// RedactedText is the gate-checked text a follow-up run may use.
	// Never serialized, never persisted.
	RedactedText string `json:"-"`
}

// Service ingests prescription PDFs: size and header checks, bounded
// text extraction, redaction, the privacy gate, then structured intake
// extraction. Only metadata is persisted.
type Service struct {
	docs      DocumentRepository
	extractor TextExtractor
	intakes   *intake.Extractor
	maxBytes  int
	timeout   time.Duration
	logger    zerolog.Logger
}

func NewService(docs DocumentRepository, ex TextExtractor, intakes *intake.Extractor, maxBytes int, timeout time.Duration, logger zerolog.Logger) *Service {
	if maxBytes < MinUploadBytes || maxBytes > MaxUploadBytes {
		maxBytes = DefaultMaxUploadBytes
	}
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}
	return &Service{docs: docs, extractor: ex, intakes: intakes, maxBytes: maxBytes, timeout: timeout, logger: logger}
}

func sha256Short(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}

// Ingest processes one upload for a patient. Validation and extraction
// failures return an error; a privacy-boundary hit is not an error but
// a StatusFailedPHI document with the violations attached.
func (s *Service) Ingest(ctx context.Context, patientID, language string, data []byte) (*IngestResult, error) {
	if err := validatePDF(data, s.maxBytes); err != nil {
		return nil, err
	}

	sha := sha256Short(data)
	text, err := extractWithTimeout(ctx, s.extractor, data, s.timeout)
	if err != nil {
		s.logger.Warn().Err(err).Str("patient_id", patientID).Str("sha256_12", sha).Msg("document extraction failed")
		return nil, fmt.Errorf("extract document text: %w", err)
	}
	text = capModelText(text)
	if strings.TrimSpace(text.Full) == "" {
		return nil, fmt.Errorf("document has no extractable text layer")
	}

	redactedFull, _ := Redact(text.Full)
	redactedModel, replacements := Redact(text.Model)

	doc := &Document{
		ID:             "doc_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		PatientID:      patientID,
		SHA256Short:    sha,
		PageCount:      text.Pages,
		TextLength:     len(text.Model),
		RedactionCount: replacements,
		PrimaryDomain:  DomainOther,
	}

	// The boundary scan covers the complete redacted text, not just
	// the model slice.
	if violations := privacy.ScanText("$.document.redacted_text", redactedFull); privacy.HasBlocker(violations) {
		doc.Status = StatusFailedPHI
		if err := s.docs.Create(ctx, doc); err != nil {
			return nil, fmt.Errorf("store document: %w", err)
		}
		s.logger.Warn().Str("document_id", doc.ID).Str("patient_id", patientID).
			Int("violations", len(violations)).Msg("document rejected at privacy boundary")
		return &IngestResult{Document: doc, Violations: violations}, nil
	}

	in, violations := s.intakes.Extract(ctx, redactedModel, language)
	if privacy.HasBlocker(violations) {
		doc.Status = StatusFailedPHI
		if err := s.docs.Create(ctx, doc); err != nil {
			return nil, fmt.Errorf("store document: %w", err)
		}
		return &IngestResult{Document: doc, Violations: violations}, nil
	}

	doc.Status = StatusIngested
	doc.PrimaryDomain = PrimaryDomain(in)
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	s.logger.Info().Str("document_id", doc.ID).Str("patient_id", patientID).
		Str("sha256_12", sha).Int("pages", text.Pages).Int("redactions", replacements).
		Str("primary_domain", doc.PrimaryDomain).Msg("document ingested")

	return &IngestResult{Document: doc, Intake: &in, RedactedText: redactedModel}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.docs.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.docs.ListByPatient(ctx, patientID, limit, offset)
}

// PrimaryDomain buckets the structured intake into a coarse clinical
// domain for inbox routing.
func PrimaryDomain(in contracts.Intake) string {
	var b strings.Builder
	for _, s := range in.Symptoms {
		b.WriteString(strings.ToLower(s.Label))
		b.WriteByte(' ')
	}
	b.WriteString(strings.ToLower(in.PresentingProblem))
	blob := b.String()

	has := func(terms ...string) bool {
		for _, t := range terms {
			if strings.Contains(blob, t) {
				return true
			}
		}
		return false
	}
	switch {
	case has("sneez", "itchy eyes", "allerg"):
		return DomainAllergyENT
	case has("bloat", "digest", "nausea", "diarr"):
		return DomainDigestive
	case has("dry skin", "rash", "skin", "eczema"):
		return DomainSkin
	case has("eye", "conjunct", "ocular"):
		return DomainEye
	case has("urination", "urinary", "urolog"):
		return DomainUrology
	case has("headache", "pain", "migraine"):
		return DomainPain
	case has("cough", "sore throat", "dyspnea", "breath", "respir"):
		return DomainRespirator
	default:
		return DomainOther
	}
}
