package privacy

import (
	"regexp"

	"github.com/pharmassist/pharmassist/internal/platform/textkit"
)

// Disclaimer phrases that explicitly tell the patient NOT to change
// their prescription are allowed even though they mention stopping or
// changing a treatment.
var rxAllowRes = []*regexp.Regexp{
	regexp.MustCompile(`\bne\b[^.!?\n]{0,80}\b(modifiez|arretez|changez|augmentez|diminuez)\b[^.!?\n]{0,80}\b(traitement|posologie|dose|ordonnance)\b[^.!?\n]{0,80}\bsans\s+avis\b`),
	regexp.MustCompile(`\bdo\s+not\b[^.!?\n]{0,80}\b(change|stop|increase|decrease|adjust)\b[^.!?\n]{0,80}\b(prescription|medication|dose)\b`),
}

// Phrases that instruct the patient to alter prescription treatment.
var rxBlockRes = []*regexp.Regexp{
	regexp.MustCompile(`\b(arreter|arretez|stopper|stoppez|modifier|modifiez|augmenter|augmentez|diminuer|diminuez|changer|changez)\b[^.!?\n]{0,80}\b(traitement|posologie|dose|ordonnance|antibiotique|corticoide|anticoagulant|insuline|antidepresseur|chimiotherapie)\b`),
	regexp.MustCompile(`\b(stop|discontinue|change|increase|decrease)\b[^.!?\n]{0,80}\b(prescription|medication|dose)\b`),
}

// LintRxAdvice scans generated text for instructions to start, stop or
// change prescription medication. Sentences shaped as "do not change
// your treatment without medical advice" pass; direct instructions
// produce a blocker at path.
func LintRxAdvice(path, text string) []Violation {
	norm := textkit.Normalize(text)
	for _, re := range rxAllowRes {
		norm = re.ReplaceAllString(norm, " ")
	}
	for _, re := range rxBlockRes {
		if re.MatchString(norm) {
			return []Violation{{
				Code:     CodeRxAdvice,
				Severity: SeverityBlocker,
				Path:     path,
				Detail:   "prescription-change instruction",
			}}
		}
	}
	return nil
}
