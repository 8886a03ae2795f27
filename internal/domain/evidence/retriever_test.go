package evidence

import (
	"testing"

	"github.com/pharmassist/pharmassist/pkg/contracts"
)

func allergyIntake() contracts.Intake {
	return contracts.Intake{
		PresentingProblem: "sneezing and itchy eyes for one week",
		Symptoms: []contracts.Symptom{
			{Label: "sneezing", Severity: "mild"},
			{Label: "itchy eyes", Severity: "mild"},
		},
	}
}

func TestCorpusLoads(t *testing.T) {
	items, err := Corpus()
	if err != nil {
		t.Fatalf("Corpus: %v", err)
	}
	if len(items) < DefaultK {
		t.Fatalf("corpus too small: %d", len(items))
	}
	seen := map[string]bool{}
	for _, item := range items {
		if seen[item.ID] {
			t.Errorf("duplicate evidence id %s", item.ID)
		}
		seen[item.ID] = true
	}
}

func TestRetrieve_TopKAndCategoryBonus(t *testing.T) {
	got, err := Retrieve(allergyIntake(), DefaultK)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != DefaultK {
		t.Fatalf("len = %d, want %d", len(got), DefaultK)
	}
	if got[0].ID != "ev_allergy_001" && got[0].ID != "ev_allergy_002" && got[0].ID != "ev_allergy_003" {
		t.Errorf("top snippet %s is not allergy guidance", got[0].ID)
	}
}

func TestRetrieve_Idempotent(t *testing.T) {
	a, err := Retrieve(allergyIntake(), DefaultK)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Retrieve(allergyIntake(), DefaultK)
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("ordering changed between calls: %v vs %v", a, b)
		}
	}
}

func TestRetrieve_KClamp(t *testing.T) {
	got, err := Retrieve(contracts.Intake{PresentingProblem: "tired"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("k=0 should clamp to 1, got %d", len(got))
	}
}

func TestAttachRefs(t *testing.T) {
	snippets := []contracts.EvidenceSnippet{{ID: "ev_a"}, {ID: "ev_b"}, {ID: "ev_c"}}
	ranked := []contracts.RankedProduct{{SKU: "s1"}, {SKU: "s2"}}
	got := AttachRefs(ranked, snippets)
	for _, r := range got {
		if len(r.EvidenceRefs) != AttachLimit || r.EvidenceRefs[0] != "ev_a" || r.EvidenceRefs[1] != "ev_b" {
			t.Fatalf("refs = %v", r.EvidenceRefs)
		}
	}
	if ranked[0].EvidenceRefs != nil {
		t.Error("input slice mutated")
	}
}

func TestAllowedIDs(t *testing.T) {
	ids := AllowedIDs([]contracts.EvidenceSnippet{{ID: "ev_a"}, {ID: "ev_b"}})
	if !ids["ev_a"] || !ids["ev_b"] || ids["ev_c"] {
		t.Fatalf("ids = %v", ids)
	}
}
