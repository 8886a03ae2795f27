package document

import "regexp"

var (
	redactEmailRe = regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`)
	redactPhoneRe = regexp.MustCompile(`\b(?:\+33|0)[1-9](?:[ .-]?\d{2}){4}\b`)
	redactNIRRe   = regexp.MustCompile(`\b[12]\s?\d{2}\s?(?:0[1-9]|1[0-2])\s?\d{2}\s?\d{3}\s?\d{3}\s?\d{2}\b`)
	redactLabelRe = regexp.MustCompile(`(?im)\b(nom|prenom|name|first[\s-]*name|last[\s-]*name|surname|date\s*de\s*naissance|date\s*of\s*birth|dob|adresse|address|telephone|phone|email|mail)\s*:\s*[^` + "\n\r" + `]+`)
)

// Redact strips label/value identifier lines and email, phone and
// insurance-number patterns before the privacy boundary sees the text.
// Returns the redacted text and how many replacements were made.
func Redact(text string) (string, int) {
	count := 0

	count += len(redactLabelRe.FindAllString(text, -1))
	text = redactLabelRe.ReplaceAllString(text, "$1: [REDACTED]")

	count += len(redactEmailRe.FindAllString(text, -1))
	text = redactEmailRe.ReplaceAllString(text, "[REDACTED_EMAIL]")

	count += len(redactPhoneRe.FindAllString(text, -1))
	text = redactPhoneRe.ReplaceAllString(text, "[REDACTED_PHONE]")

	count += len(redactNIRRe.FindAllString(text, -1))
	text = redactNIRRe.ReplaceAllString(text, "[REDACTED_NIR]")

	return text, count
}
