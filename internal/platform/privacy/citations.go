package privacy

import "regexp"

var citationRe = regexp.MustCompile(`\[(ev_[a-z0-9_]+)\]`)

// LintCitations checks that every bracketed evidence citation in text
// refers to an id in the allowed set. Citations of unknown ids are
// blockers: a generator must not invent sources.
func LintCitations(path, text string, allowed map[string]bool) []Violation {
	var out []Violation
	seen := map[string]bool{}
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		id := m[1]
		if allowed[id] || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Violation{
			Code:     CodeBadCitation,
			Severity: SeverityBlocker,
			Path:     path,
			Detail:   "citation of unknown evidence id " + id,
		})
	}
	return out
}
