package privacy

// FreeText is one generated free-text artifact to check before a run
// may complete.
type FreeText struct {
	Path string
	Text string
}

// FinalGate re-checks every generated free text against the PHI
// detectors, the prescription-advice lint and the citation lint.
// It runs immediately before a run is persisted as completed; any
// blocker forces the run to fail safe.
func FinalGate(texts []FreeText, allowedEvidence map[string]bool) []Violation {
	var out []Violation
	for _, ft := range texts {
		if ft.Text == "" {
			continue
		}
		out = append(out, ScanText(ft.Path, ft.Text)...)
		out = append(out, LintRxAdvice(ft.Path, ft.Text)...)
		out = append(out, LintCitations(ft.Path, ft.Text, allowedEvidence)...)
	}
	return out
}
