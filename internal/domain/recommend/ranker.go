// Package recommend scores OTC products against a structured intake
// and raises safety warnings. Both the ranker and the safety engine
// are deterministic rule tables so that identical input always yields
// the identical ranked list.
package recommend

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pharmassist/pharmassist/internal/domain/patient"
	"github.com/pharmassist/pharmassist/internal/platform/textkit"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

// Warning codes shared by the ranker and the safety engine.
const (
	WarnAllergyMatch            = "ALLERGY_MATCH"
	WarnPregnancyUnknown        = "PREGNANCY_STATUS_UNKNOWN"
	WarnPregnancyContraindicate = "PREGNANCY_CONTRAINDICATED"
	WarnEscalationRecommended   = "ESCALATION_RECOMMENDED"
)

// Product contraindication tags.
const (
	TagPregnancyUnknown         = "pregnancy_unknown"
	TagPregnancyContraindicated = "pregnancy_contraindicated"
)

// Clinical categories inferred from symptoms.
const (
	CategoryAllergy     = "allergy"
	CategoryDigestion   = "digestion"
	CategoryDermatology = "dermatology"
	CategoryGeneral     = "general"
)

// MaxRanked caps the number of products surfaced per run.
const MaxRanked = 3

var whitespaceRe = regexp.MustCompile(`\s+`)

// TargetCategory infers a clinical category from the symptom labels
// and presenting problem.
func TargetCategory(in contracts.Intake) string {
	var b strings.Builder
	for _, s := range in.Symptoms {
		b.WriteString(strings.ToLower(s.Label))
		b.WriteByte(' ')
	}
	b.WriteString(strings.ToLower(in.PresentingProblem))
	blob := b.String()

	switch {
	case containsAny(blob, "sneez", "itchy eye", "allergic", "eternu"):
		return CategoryAllergy
	case containsAny(blob, "bloat", "ballonn", "gas", "indigestion"):
		return CategoryDigestion
	case containsAny(blob, "dry skin", "peau", "eczema", "itchy skin"):
		return CategoryDermatology
	default:
		return CategoryGeneral
	}
}

func containsAny(blob string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(blob, t) {
			return true
		}
	}
	return false
}

// PregnancyStatus resolves the effective status for safety checks.
// Male patients never generate pregnancy warnings. An explicit status
// on the intake wins over follow-up answers.
func PregnancyStatus(in contracts.Intake) string {
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(in.Sex)), "M") {
		return "not_applicable"
	}
	if in.PregnancyStatus != "" {
		return in.PregnancyStatus
	}
	if ans, ok := in.Answers["q_pregnancy"]; ok && strings.TrimSpace(ans) != "" {
		if yes, err := textkit.ParseYesNo(ans); err == nil && yes == "yes" {
			return "pregnant"
		}
		switch textkit.Normalize(ans) {
		case "pregnant":
			return "pregnant"
		case "unknown":
			return "unknown"
		}
		return "not_pregnant"
	}
	return "unknown"
}

func allergyTerms(in contracts.Intake) []string {
	var terms []string
	for _, a := range in.Allergies {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			terms = append(terms, a)
		}
	}
	return terms
}

func matchesAllergy(p patient.Product, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	haystack := strings.ToLower(p.Name + " " + p.Brand + " " + strings.Join(p.Ingredients, " "))
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}

func hasTag(p patient.Product, tag string) bool {
	for _, t := range p.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func ingredientKeywords(category string) []string {
	switch category {
	case CategoryAllergy:
		return []string{"cetirizine", "loratadine", "antihist"}
	case CategoryDigestion:
		return []string{"simethicone", "probiotic", "antacid"}
	case CategoryDermatology:
		return []string{"glycerin", "urea", "emollient"}
	default:
		return nil
	}
}

func scoreProduct(p patient.Product, target string) (int, string) {
	category := strings.ToLower(p.Category)

	categoryScore := 20
	if target != CategoryGeneral {
		switch {
		case category == target:
			categoryScore = 60
		case strings.Contains(category, target):
			categoryScore = 40
		default:
			categoryScore = 10
		}
	}

	ingredientScore := 0
	if kw := ingredientKeywords(target); len(kw) > 0 {
		ingredients := strings.ToLower(strings.Join(p.Ingredients, " "))
		ingredientScore = 10
		for _, k := range kw {
			if strings.Contains(ingredients, k) {
				ingredientScore = 30
				break
			}
		}
	}

	stockScore := 0
	if p.StockQty > 0 {
		qty := p.StockQty
		if qty > 50 {
			qty = 50
		}
		stockScore = (qty*10 + 25) / 50
		if stockScore > 10 {
			stockScore = 10
		}
	}

	score := categoryScore + ingredientScore + stockScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	parts := []string{fmt.Sprintf("Category match: %s", target)}
	if ingredientScore >= 30 {
		parts = append(parts, "Key ingredient match")
	}
	if stockScore > 0 {
		parts = append(parts, "In stock")
	}
	why := whitespaceRe.ReplaceAllString(strings.Join(parts, "; "), " ")

	return score, strings.TrimSpace(why)
}

// Rank filters and scores the catalog for one intake. Out-of-stock
// products are skipped, allergy matches and pregnancy-contraindicated
// products are hard-excluded with a blocker warning, and the top
// MaxRanked survivors come back sorted by descending score with input
// order breaking ties.
func Rank(in contracts.Intake, products []patient.Product) ([]contracts.RankedProduct, []contracts.Warning) {
	target := TargetCategory(in)
	preg := PregnancyStatus(in)
	terms := allergyTerms(in)

	type scored struct {
		product patient.Product
		score   int
		why     string
	}
	var ranked []scored
	var warnings []contracts.Warning

	for _, p := range products {
		if !p.InStock || p.SKU == "" {
			continue
		}
		if matchesAllergy(p, terms) {
			warnings = append(warnings, contracts.Warning{
				Code:       WarnAllergyMatch,
				Severity:   contracts.SeverityBlocker,
				Message:    "Patient allergy may match a product ingredient; excluded from ranking.",
				RelatedSKU: p.SKU,
			})
			continue
		}
		if preg == "pregnant" && hasTag(p, TagPregnancyContraindicated) {
			warnings = append(warnings, contracts.Warning{
				Code:       WarnPregnancyContraindicate,
				Severity:   contracts.SeverityBlocker,
				Message:    "Contraindicated in pregnancy; excluded from ranking.",
				RelatedSKU: p.SKU,
			})
			continue
		}
		if preg == "unknown" && hasTag(p, TagPregnancyUnknown) {
			warnings = append(warnings, contracts.Warning{
				Code:       WarnPregnancyUnknown,
				Severity:   contracts.SeverityWarn,
				Message:    "Pregnancy status is unknown. Confirm before recommending if relevant.",
				RelatedSKU: p.SKU,
			})
		}
		score, why := scoreProduct(p, target)
		ranked = append(ranked, scored{product: p, score: score, why: why})
	}

	// Stable sort keeps catalog order among equal scores.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	if len(ranked) > MaxRanked {
		ranked = ranked[:MaxRanked]
	}

	out := make([]contracts.RankedProduct, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, contracts.RankedProduct{
			SKU:   r.product.SKU,
			Name:  r.product.Name,
			Score: r.score,
			Why:   r.why,
		})
	}
	return out, warnings
}
