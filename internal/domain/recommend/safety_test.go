package recommend

import (
	"testing"

	"github.com/pharmassist/pharmassist/internal/domain/patient"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

func TestSafetyWarnings_RecheckRankedList(t *testing.T) {
	bySKU := map[string]patient.Product{
		"sku_cet": {SKU: "sku_cet", Name: "Cetirizine 10mg", Ingredients: []string{"cetirizine"}},
		"sku_b":   {SKU: "sku_b", Name: "B", Tags: []string{TagPregnancyUnknown}},
	}
	in := contracts.Intake{Sex: "female", Allergies: []string{"cetirizine"}}
	ranked := []contracts.RankedProduct{{SKU: "sku_cet"}, {SKU: "sku_b"}, {SKU: "sku_gone"}}

	got := SafetyWarnings(in, bySKU, ranked, nil)
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	if got[0].Code != WarnAllergyMatch || got[0].RelatedSKU != "sku_cet" {
		t.Errorf("got[0] = %v", got[0])
	}
	if got[1].Code != WarnPregnancyUnknown || got[1].RelatedSKU != "sku_b" {
		t.Errorf("got[1] = %v", got[1])
	}
}

func TestSafetyWarnings_Escalation(t *testing.T) {
	esc := &contracts.Escalation{Level: contracts.EscalationUrgent, Reason: "red flags indicate a possible emergency"}
	got := SafetyWarnings(contracts.Intake{}, nil, nil, esc)
	if len(got) != 1 || got[0].Code != WarnEscalationRecommended || got[0].Message != esc.Reason {
		t.Fatalf("got %v", got)
	}
}

func TestDedupeWarnings(t *testing.T) {
	in := []contracts.Warning{
		{Code: "A", RelatedSKU: "s1", Message: "first"},
		{Code: "A", RelatedSKU: "s1", Message: "dup"},
		{Code: "A", RelatedSKU: "s2"},
		{Code: "B", Message: "global"},
		{Code: "B", RelatedSKU: "s1"},
		{Code: "B"},
	}
	got := DedupeWarnings(in)
	if len(got) != 3 {
		t.Fatalf("got %v", got)
	}
	if got[0].Message != "first" {
		t.Error("dedupe should keep the first occurrence")
	}
	if got[1].RelatedSKU != "s2" {
		t.Errorf("got[1] = %v", got[1])
	}
	if got[2].Code != "B" || got[2].RelatedSKU != "" {
		t.Errorf("got[2] = %v", got[2])
	}
}

func TestDedupeWarnings_Empty(t *testing.T) {
	if got := DedupeWarnings(nil); got != nil {
		t.Errorf("got %v", got)
	}
}
