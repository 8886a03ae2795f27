package recommend

import (
	"github.com/pharmassist/pharmassist/internal/domain/patient"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

// SafetyWarnings re-runs the allergy and pregnancy checks against the
// final ranked list. The ranker already applied the same rules while
// filtering, but running them a second time over what actually gets
// surfaced catches any product that slipped through a ranking change.
func SafetyWarnings(in contracts.Intake, bySKU map[string]patient.Product, ranked []contracts.RankedProduct, esc *contracts.Escalation) []contracts.Warning {
	preg := PregnancyStatus(in)
	terms := allergyTerms(in)

	var out []contracts.Warning

	if esc != nil {
		out = append(out, contracts.Warning{
			Code:     WarnEscalationRecommended,
			Severity: contracts.SeverityWarn,
			Message:  esc.Reason,
		})
	}

	for _, item := range ranked {
		p, ok := bySKU[item.SKU]
		if !ok {
			continue
		}
		if matchesAllergy(p, terms) {
			out = append(out, contracts.Warning{
				Code:       WarnAllergyMatch,
				Severity:   contracts.SeverityBlocker,
				Message:    "Patient allergy may match a product ingredient.",
				RelatedSKU: p.SKU,
			})
		}
		if preg == "unknown" && hasTag(p, TagPregnancyUnknown) {
			out = append(out, contracts.Warning{
				Code:       WarnPregnancyUnknown,
				Severity:   contracts.SeverityWarn,
				Message:    "Pregnancy status is unknown. Confirm before recommending if relevant.",
				RelatedSKU: p.SKU,
			})
		}
		if preg == "pregnant" && hasTag(p, TagPregnancyContraindicated) {
			out = append(out, contracts.Warning{
				Code:       WarnPregnancyContraindicate,
				Severity:   contracts.SeverityBlocker,
				Message:    "Contraindicated in pregnancy.",
				RelatedSKU: p.SKU,
			})
		}
	}

	return out
}

// DedupeWarnings keeps the first warning per (code, related sku) pair
// in input order. A code with no SKU is global: it swallows every
// later instance of that code regardless of SKU.
func DedupeWarnings(warnings []contracts.Warning) []contracts.Warning {
	type key struct {
		code string
		sku  string
	}
	seen := make(map[key]bool, len(warnings))
	global := make(map[string]bool)

	var out []contracts.Warning
	for _, w := range warnings {
		if global[w.Code] {
			continue
		}
		k := key{code: w.Code, sku: w.RelatedSKU}
		if seen[k] {
			continue
		}
		seen[k] = true
		if w.RelatedSKU == "" {
			global[w.Code] = true
		}
		out = append(out, w)
	}
	return out
}
