// Package report renders the pharmacist report, the patient handout,
// the pre-brief and the consultation plan from run artifacts. All
// renderers are deterministic templates; the optional generator path
// only ever replaces a template when its output passes the same
// privacy, prescription-advice and citation gates.
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pharmassist/pharmassist/internal/platform/llm"
	"github.com/pharmassist/pharmassist/internal/platform/privacy"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

const maxMarkdownLen = 20000

// safeText neutralizes raw HTML so markdown renderers stay inert.
func safeText(v string) string {
	v = strings.ReplaceAll(v, "<", "‹")
	v = strings.ReplaceAll(v, ">", "›")
	return strings.TrimSpace(v)
}

func productLabel(p contracts.RankedProduct) string {
	name := safeText(p.Name)
	sku := safeText(p.SKU)
	if name != "" && sku != "" {
		return fmt.Sprintf("%s (%s)", name, sku)
	}
	if name != "" {
		return name
	}
	return sku
}

// Composer renders run artifacts into markdown.
type Composer struct {
	gen      llm.Generator
	useModel bool
	logger   zerolog.Logger
}

func NewComposer(gen llm.Generator, useModel bool, logger zerolog.Logger) *Composer {
	if gen == nil {
		gen = llm.Disabled{}
	}
	return &Composer{gen: gen, useModel: useModel, logger: logger}
}

// Report builds the pharmacist-facing report. The generator path is
// attempted only when enabled, and its output must carry no blocker
// findings before it replaces the template.
func (c *Composer) Report(ctx context.Context, in contracts.Intake, rec contracts.Recommendation, evidence []contracts.EvidenceSnippet, language string) string {
	allowed := make(map[string]bool, len(evidence))
	for _, ev := range evidence {
		allowed[ev.ID] = true
	}

	if c.useModel {
		prompt := reportPrompt(in, rec, evidence, language)
		if privacy.HasBlocker(privacy.ScanText("$.report_prompt", prompt)) {
			prompt = ""
		}
		if prompt != "" {
			if out, ok := c.gen.Generate(ctx, prompt); ok {
				md := strings.TrimSpace(out)
				if md != "" && safeMarkdown(md, allowed) {
					return md
				}
				c.logger.Debug().Msg("generated report rejected, using template")
			}
		}
	}

	return renderReport(in, rec, evidence, language)
}

func safeMarkdown(md string, allowed map[string]bool) bool {
	if privacy.HasBlocker(privacy.ScanText("$.report_markdown", md)) {
		return false
	}
	if privacy.HasBlocker(privacy.LintRxAdvice("$.report_markdown", md)) {
		return false
	}
	if privacy.HasBlocker(privacy.LintCitations("$.report_markdown", md, allowed)) {
		return false
	}
	return true
}

func reportPrompt(in contracts.Intake, rec contracts.Recommendation, evidence []contracts.EvidenceSnippet, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n\nIntake (structured):\n", language)
	fmt.Fprintf(&b, "- presenting_problem: %s\n- symptoms:\n", safeText(in.PresentingProblem))
	for _, s := range in.Symptoms {
		fmt.Fprintf(&b, "  - %s (severity=%s)\n", safeText(s.Label), safeText(s.Severity))
	}
	b.WriteString("\nRecommendation (structured):\n")
	for _, p := range rec.RankedProducts {
		fmt.Fprintf(&b, "- product %s: score=%d why=%s\n", productLabel(p), p.Score, safeText(p.Why))
		if len(p.EvidenceRefs) > 0 {
			fmt.Fprintf(&b, "  evidence_refs: %s\n", strings.Join(p.EvidenceRefs, ", "))
		}
	}
	if rec.Escalation != nil {
		fmt.Fprintf(&b, "- escalation: %s reason=%s\n", safeText(rec.Escalation.Level), safeText(rec.Escalation.Reason))
	}
	b.WriteString("\nEvidence (allowed citations):\n")
	for i, ev := range evidence {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&b, "- [%s] %s (%s)\n  summary: %s\n", safeText(ev.ID), safeText(ev.Title), safeText(ev.Publisher), safeText(ev.Summary))
	}
	b.WriteString("\nWrite a concise pharmacist report in markdown with sections: Summary, Recommendations, Safety, Evidence.")

	out := b.String()
	if len(out) > 7000 {
		out = out[:7000]
	}
	return out
}

func renderReport(in contracts.Intake, rec contracts.Recommendation, evidence []contracts.EvidenceSnippet, language string) string {
	fr := language == "fr"
	var lines []string

	if fr {
		lines = append(lines, "# Rapport pharmacien", "",
			"- Scope: Aide a la decision OTC/parapharmacie uniquement.",
			"- Note: Ne modifiez pas votre traitement sur ordonnance sans avis medical.", "")
	} else {
		lines = append(lines, "# Pharmacist report", "",
			"- Scope: OTC/parapharmacy decision support only.",
			"- Note: Do not change prescription treatment without medical advice.", "")
	}

	lines = append(lines, pick(fr, "## Synthese", "## Summary"))
	lines = append(lines, fmt.Sprintf("- Presenting problem: %s", safeText(in.PresentingProblem)))
	if len(in.Symptoms) > 0 {
		labels := make([]string, 0, len(in.Symptoms))
		for _, s := range in.Symptoms {
			labels = append(labels, safeText(s.Label))
		}
		lines = append(lines, fmt.Sprintf("- Symptoms: %s", strings.Join(labels, ", ")))
	}

	if rec.Escalation != nil {
		lines = append(lines, "", pick(fr, "## Escalade", "## Escalation"))
		lines = append(lines, fmt.Sprintf("- %s: %s", safeText(rec.Escalation.Level), safeText(rec.Escalation.Reason)))
	}

	lines = append(lines, "", pick(fr, "## Recommandations", "## Recommendations"))
	if len(rec.RankedProducts) == 0 {
		lines = append(lines, "- (none)")
	} else {
		for _, p := range rec.RankedProducts {
			cites := make([]string, 0, len(p.EvidenceRefs))
			for _, r := range p.EvidenceRefs {
				cites = append(cites, "["+r+"]")
			}
			line := fmt.Sprintf("- %s (score %d): %s %s", productLabel(p), p.Score, safeText(p.Why), strings.Join(cites, " "))
			lines = append(lines, strings.TrimSpace(line))
		}
	}

	lines = append(lines, "", pick(fr, "## Securite", "## Safety"))
	if len(rec.SafetyWarnings) == 0 {
		lines = append(lines, "- (none)")
	} else {
		for _, w := range rec.SafetyWarnings {
			lines = append(lines, fmt.Sprintf("- %s: %s - %s", safeText(string(w.Severity)), safeText(w.Code), safeText(w.Message)))
		}
	}

	lines = append(lines, "", pick(fr, "## Sources", "## Evidence"))
	if len(evidence) == 0 {
		lines = append(lines, "- (none)")
	} else {
		for _, ev := range evidence {
			lines = append(lines, fmt.Sprintf("- [%s] %s, %s (%s)", safeText(ev.ID), safeText(ev.Title), safeText(ev.Publisher), safeText(ev.URL)))
		}
	}

	md := strings.Join(lines, "\n")
	if len(md) > maxMarkdownLen {
		md = md[:maxMarkdownLen]
	}
	return md
}

func pick(fr bool, french, english string) string {
	if fr {
		return french
	}
	return english
}

// Handout builds the one-page patient handout. If the rendered text
// somehow trips the prescription-advice lint, a minimal fixed handout
// is returned instead.
func (c *Composer) Handout(rec contracts.Recommendation, language string) string {
	fr := language == "fr"
	var lines []string

	lines = append(lines, pick(fr, "# Fiche patient", "# Patient handout"), "")
	lines = append(lines, pick(fr,
		"- Scope: OTC/parapharmacie uniquement.",
		"- Scope: OTC/parapharmacy decision support only."))
	lines = append(lines, pick(fr,
		"- Ne modifiez pas votre traitement sur ordonnance sans avis medical.",
		"- Do not change prescription treatment without medical advice."))

	if rec.Escalation != nil {
		lines = append(lines, "", pick(fr, "## Quand consulter", "## When to seek care"))
		lines = append(lines, "- "+safeText(rec.Escalation.Advice))
		lines = append(lines, "- Service: "+safeText(rec.Escalation.Level))
	}

	if len(rec.RankedProducts) > 0 {
		lines = append(lines, "", pick(fr, "## Produits proposes", "## Suggested products"))
		for i, p := range rec.RankedProducts {
			if i >= 3 {
				break
			}
			lines = append(lines, fmt.Sprintf("- %s: %s", safeText(p.SKU), safeText(p.Why)))
		}
	}

	lines = append(lines, "", pick(fr, "## A faire", "## What to do now"))
	lines = append(lines, pick(fr,
		"- Suivez les conseils du pharmacien.",
		"- Follow your pharmacist instructions."))
	lines = append(lines, pick(fr,
		"- Surveillez les symptomes; si aggravation, consultez.",
		"- Monitor symptoms; if worsening, seek care."))

	md := strings.Join(lines, "\n")
	if len(md) > maxMarkdownLen {
		md = md[:maxMarkdownLen]
	}

	if privacy.HasBlocker(privacy.LintRxAdvice("$.handout", md)) {
		if fr {
			return "# Fiche patient\n\n" +
				"- Suivez les conseils du pharmacien.\n" +
				"- Si aggravation, consultez un medecin.\n" +
				"- Ne modifiez pas votre traitement sur ordonnance sans avis medical.\n"
		}
		return "# Patient handout\n\n" +
			"- Follow your pharmacist instructions.\n" +
			"- If symptoms worsen, consult a doctor.\n" +
			"- Do not change prescription treatment without medical advice.\n"
	}
	return md
}
