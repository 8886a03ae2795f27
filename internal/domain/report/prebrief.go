package report

import (
	"fmt"
	"strings"

	"github.com/pharmassist/pharmassist/pkg/contracts"
)

const prebriefMaxItems = 3

// Prebrief condenses a finished run into the pharmacist pre-brief:
// top three actions, risks, questions, changes and Rx deltas, each
// list deduplicated with language-aware defaults when empty.
func Prebrief(rec contracts.Recommendation, trace *contracts.Trace, visitRef, language string) contracts.Prebrief {
	fr := language == "fr"

	var actions, risks, questions, changed, rxDelta []string

	if rec.Escalation != nil {
		actions = append(actions, pick(fr,
			"Escalade recommandee: "+safeText(rec.Escalation.Level),
			"Escalation recommended: "+safeText(rec.Escalation.Level)))
		if rec.Escalation.Reason != "" {
			risks = append(risks, rec.Escalation.Reason)
		}
	}

	for _, p := range rec.RankedProducts {
		if p.SKU == "" {
			continue
		}
		actions = append(actions, strings.TrimSpace(p.SKU+": "+p.Why))
		if len(p.EvidenceRefs) > 0 {
			n := len(p.EvidenceRefs)
			if n > 2 {
				n = 2
			}
			rxDelta = append(rxDelta, fmt.Sprintf("%s evidence: %s", p.SKU, strings.Join(p.EvidenceRefs[:n], ", ")))
		}
	}

	for _, w := range rec.SafetyWarnings {
		if w.Message == "" {
			continue
		}
		risks = append(risks, fmt.Sprintf("%s: %s", w.Severity, w.Message))
		if w.Severity == contracts.SeverityBlocker {
			rxDelta = append(rxDelta, "Blocker: "+w.Message)
		}
	}

	for _, q := range rec.FollowUpQuestions {
		if q.Text != "" {
			questions = append(questions, q.Text)
		}
	}

	if visitRef != "" {
		changed = append(changed, pick(fr,
			"Nouvelle visite analysee: "+visitRef,
			"New visit analyzed: "+visitRef))
	}
	if trace != nil {
		for _, step := range trace.Steps {
			switch step.Type {
			case "tool_result":
				if step.Detail != "" {
					changed = append(changed, step.Detail)
				}
			case "policy_violation":
				if step.Detail != "" {
					risks = append(risks, step.Detail)
				}
			}
		}
	}

	return contracts.Prebrief{
		TopActions: topUnique(actions, pick(fr,
			"Confirmer l'evolution des symptomes avec le patient.",
			"Confirm symptom evolution with the patient.")),
		TopRisks: topUnique(risks, pick(fr,
			"Aucun risque majeur detecte.",
			"No major risk detected.")),
		TopQuestions: topUnique(questions, pick(fr,
			"Depuis quand les symptomes ont-ils commence?",
			"When did the symptoms start?")),
		WhatChanged: topUnique(changed, pick(fr,
			"Aucun changement notable depuis la derniere analyse.",
			"No notable change since last analysis.")),
		NewRxDelta: topUnique(rxDelta, pick(fr,
			"Aucun delta Rx critique.",
			"No critical Rx delta.")),
	}
}

// topUnique keeps the first prebriefMaxItems distinct non-blank
// entries, or the fallback when nothing survives.
func topUnique(items []string, fallback string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, item := range items {
		text := strings.TrimSpace(item)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, text)
		if len(out) >= prebriefMaxItems {
			break
		}
	}
	if len(out) == 0 {
		return []string{fallback}
	}
	return out
}
