package privacy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// forbiddenKeys are payload keys that indicate direct identifiers,
// English and French forms alike. Matching is exact on the normalized
// key.
var forbiddenKeys = map[string]bool{
	"surname": true, "first_name": true, "last_name": true, "full_name": true,
	"patient_name": true, "patient_first_name": true, "patient_last_name": true,
	"email": true, "phone": true, "address": true,
	"street": true, "city": true, "postal_code": true, "zip": true,
	"dob": true, "date_of_birth": true, "nir": true, "ssn": true,
	"nom": true, "prenom": true, "adresse": true, "telephone": true,
	"téléphone": true, "mail": true, "code_postal": true, "ville": true,
	"date_naissance": true,
}

var (
	emailRe  = regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`)
	phoneFRRe = regexp.MustCompile(`\b(?:\+33|0)[1-9](?:[ .-]?\d{2}){4}\b`)
	nirRe    = regexp.MustCompile(`\b[12]\s?\d{2}\s?(?:0[1-9]|1[0-2])\s?\d{2}\s?\d{3}\s?\d{3}\s?\d{2}\b`)
	postalRe = regexp.MustCompile(`^\d{5}$`)
	labelRe  = regexp.MustCompile(`(?i)\b(nom|pr[eé]nom|adresse|email|mail|t[eé]l[eé]phone|telephone|nir|ssn)\s*:`)
)

// ScanText runs the PHI detectors over a single free-text value and
// returns violations located at path.
func ScanText(path, text string) []Violation {
	var out []Violation
	if emailRe.MatchString(text) {
		out = append(out, Violation{Code: CodePHIEmail, Severity: SeverityBlocker, Path: path, Detail: "email address pattern"})
	}
	if phoneFRRe.MatchString(text) {
		out = append(out, Violation{Code: CodePHIPhoneFR, Severity: SeverityBlocker, Path: path, Detail: "french phone number pattern"})
	}
	if nirRe.MatchString(text) {
		out = append(out, Violation{Code: CodePHINIR, Severity: SeverityBlocker, Path: path, Detail: "social security (NIR) pattern"})
	}
	if postalRe.MatchString(strings.TrimSpace(text)) {
		out = append(out, Violation{Code: CodePHIPostalCode, Severity: SeverityWarn, Path: path, Detail: "standalone 5-digit value"})
	}
	if labelRe.MatchString(text) {
		out = append(out, Violation{Code: CodePHILabel, Severity: SeverityBlocker, Path: path, Detail: "identity label pattern"})
	}
	return out
}

// ScanValue walks an arbitrary decoded JSON payload (maps, slices,
// strings) and applies the key and text detectors. The path of each
// violation uses dotted keys and bracketed indexes rooted at "$".
func ScanValue(payload interface{}) []Violation {
	return scan("$", payload)
}

func scan(path string, v interface{}) []Violation {
	var out []Violation
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := path + "." + k
			if forbiddenKeys[strings.ToLower(strings.TrimSpace(k))] {
				out = append(out, Violation{Code: CodePHIKey, Severity: SeverityBlocker, Path: child, Detail: "forbidden identifier key"})
			}
			out = append(out, scan(child, val[k])...)
		}
	case []interface{}:
		for i, item := range val {
			out = append(out, scan(fmt.Sprintf("%s[%d]", path, i), item)...)
		}
	case string:
		out = append(out, ScanText(path, val)...)
	}
	return out
}
