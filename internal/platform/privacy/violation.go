// Package privacy is the PHI boundary: scanners and lints that run on
// every payload crossing into the pipeline and on every generated text
// before it is persisted. Violations carry JSON paths and codes but
// never the offending text itself.
package privacy

// Violation severities. A blocker halts the run; a warn is recorded
// and surfaced.
const (
	SeverityWarn    = "warn"
	SeverityBlocker = "blocker"
)

// Violation codes.
const (
	CodePHIKey        = "PHI_KEY"
	CodePHIEmail      = "PHI_EMAIL"
	CodePHIPhoneFR    = "PHI_PHONE_FR"
	CodePHINIR        = "PHI_NIR"
	CodePHIPostalCode = "PHI_POSTAL_CODE"
	CodePHILabel      = "PHI_LABEL"
	CodeRxAdvice      = "RX_ADVICE"
	CodeBadCitation   = "UNKNOWN_CITATION"
)

// Violation is one policy finding. Path is a JSON-path-like locator
// into the scanned payload; Detail is a redacted description and must
// never contain scanned text.
type Violation struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Path     string `json:"path"`
	Detail   string `json:"detail"`
}

// HasBlocker reports whether any violation in vs is a blocker.
func HasBlocker(vs []Violation) bool {
	for _, v := range vs {
		if v.Severity == SeverityBlocker {
			return true
		}
	}
	return false
}
