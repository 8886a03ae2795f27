package report

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pharmassist/pharmassist/internal/platform/llm"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

func sampleIntake() contracts.Intake {
	return contracts.Intake{
		Language:          "en",
		PresentingProblem: "Sneezing and itchy eyes",
		Symptoms: []contracts.Symptom{
			{Label: "sneezing", Severity: "mild"},
			{Label: "itchy eyes", Severity: "mild"},
		},
	}
}

func sampleRecommendation() contracts.Recommendation {
	return contracts.Recommendation{
		RankedProducts: []contracts.RankedProduct{
			{SKU: "sku_cet", Name: "Cetirizine 10mg", Score: 100, Why: "Category match: allergy", EvidenceRefs: []string{"ev_allergy_001"}},
		},
		SafetyWarnings: []contracts.Warning{
			{Code: "PREGNANCY_STATUS_UNKNOWN", Severity: contracts.SeverityWarn, Message: "Pregnancy status is unknown."},
		},
		Confidence: 0.5,
	}
}

func sampleEvidence() []contracts.EvidenceSnippet {
	return []contracts.EvidenceSnippet{
		{ID: "ev_allergy_001", Title: "Allergic rhinitis", Publisher: "NHS", URL: "https://example.org/ar"},
	}
}

func newComposer(gen llm.Generator, useModel bool) *Composer {
	return NewComposer(gen, useModel, zerolog.Nop())
}

func TestReport_TemplateSections(t *testing.T) {
	md := newComposer(nil, false).Report(context.Background(), sampleIntake(), sampleRecommendation(), sampleEvidence(), "en")
	for _, want := range []string{
		"# Pharmacist report",
		"## Summary",
		"## Recommendations",
		"## Safety",
		"## Evidence",
		"Cetirizine 10mg (sku_cet)",
		"[ev_allergy_001]",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestReport_FrenchTemplate(t *testing.T) {
	md := newComposer(nil, false).Report(context.Background(), sampleIntake(), sampleRecommendation(), sampleEvidence(), "fr")
	for _, want := range []string{"# Rapport pharmacien", "## Synthese", "## Recommandations", "## Securite", "## Sources"} {
		if !strings.Contains(md, want) {
			t.Errorf("french report missing %q", want)
		}
	}
}

func TestReport_EscalationSection(t *testing.T) {
	rec := contracts.Recommendation{
		Escalation: &contracts.Escalation{Level: contracts.EscalationUrgent, Reason: "red flags indicate a possible emergency"},
	}
	md := newComposer(nil, false).Report(context.Background(), sampleIntake(), rec, nil, "en")
	if !strings.Contains(md, "## Escalation") {
		t.Error("missing escalation section")
	}
	if !strings.Contains(md, "- (none)") {
		t.Error("escalating report should list no products")
	}
}

func TestReport_HTMLNeutralized(t *testing.T) {
	in := sampleIntake()
	in.PresentingProblem = "<script>alert(1)</script>"
	md := newComposer(nil, false).Report(context.Background(), in, contracts.Recommendation{}, nil, "en")
	if strings.Contains(md, "<script>") {
		t.Error("raw HTML survived into markdown")
	}
}

func TestReport_ModelOutputAccepted(t *testing.T) {
	gen := llm.Func(func(_ context.Context, _ string) (string, bool) {
		return "# Report\n\nAntihistamines help [ev_allergy_001].", true
	})
	md := newComposer(gen, true).Report(context.Background(), sampleIntake(), sampleRecommendation(), sampleEvidence(), "en")
	if !strings.HasPrefix(md, "# Report") {
		t.Errorf("model output not used: %q", md)
	}
}

func TestReport_ModelOutputRejected(t *testing.T) {
	cases := []struct {
		name string
		out  string
	}{
		{"unknown citation", "See [ev_not_real] for details."},
		{"rx advice", "Stop taking your prescription medication right away."},
		{"identifier", "Contact jean.dupont@example.com for follow up."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := llm.Func(func(_ context.Context, _ string) (string, bool) { return tc.out, true })
			md := newComposer(gen, true).Report(context.Background(), sampleIntake(), sampleRecommendation(), sampleEvidence(), "en")
			if md == tc.out {
				t.Error("unsafe model output was accepted")
			}
			if !strings.Contains(md, "# Pharmacist report") {
				t.Error("template fallback missing")
			}
		})
	}
}

func TestHandout_Sections(t *testing.T) {
	md := newComposer(nil, false).Handout(sampleRecommendation(), "en")
	for _, want := range []string{"# Patient handout", "## Suggested products", "## What to do now", "sku_cet"} {
		if !strings.Contains(md, want) {
			t.Errorf("handout missing %q", want)
		}
	}
}

func TestHandout_EscalationOnly(t *testing.T) {
	rec := contracts.Recommendation{
		Escalation: &contracts.Escalation{Level: contracts.EscalationUrgent, Advice: "Call emergency services now."},
	}
	md := newComposer(nil, false).Handout(rec, "en")
	if !strings.Contains(md, "## When to seek care") {
		t.Error("missing seek-care section")
	}
	if strings.Contains(md, "## Suggested products") {
		t.Error("escalation-only handout should not suggest products")
	}
}

func TestHandout_French(t *testing.T) {
	md := newComposer(nil, false).Handout(contracts.Recommendation{}, "fr")
	if !strings.Contains(md, "# Fiche patient") || !strings.Contains(md, "## A faire") {
		t.Errorf("french handout: %q", md)
	}
}
