package intake

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pharmassist/pharmassist/internal/platform/textkit"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	symptomLineRe = regexp.MustCompile(`^\s*-\s*([^()]{1,80})\s*\(([^)]{1,80})\)\s*$`)
	durationRe    = regexp.MustCompile(`\b(\d{1,4})\s*(?:d|j|jour|jours)\b`)
)

type flags struct {
	sneezing  bool
	itchyEyes bool
	drySkin   bool
	bloating  bool
}

// fallbackExtract is the deterministic path: coarse keyword flags over
// compacted text, plus structured "- label (severity, 7d)" lines.
func fallbackExtract(text, language string) contracts.Intake {
	compact := textkit.Compact(textkit.Normalize(text))

	f := flags{
		sneezing:  strings.Contains(compact, "sneez") || strings.Contains(compact, "eternu"),
		itchyEyes: (strings.Contains(compact, "itchy") && strings.Contains(compact, "eye")) || frenchItchyEyes(compact),
		drySkin:   strings.Contains(compact, "dryskin") || strings.Contains(compact, "peausech"),
		bloating:  strings.Contains(compact, "bloat") || strings.Contains(compact, "ballonn"),
	}

	var symptoms []contracts.Symptom
	for _, line := range strings.Split(text, "\n") {
		if s, ok := parseSymptomLine(line); ok {
			symptoms = append(symptoms, s)
		}
	}

	if len(symptoms) > 0 {
		lf := symptomFlags(symptoms)
		f.sneezing = f.sneezing || lf.sneezing
		f.itchyEyes = f.itchyEyes || lf.itchyEyes
		f.drySkin = f.drySkin || lf.drySkin
		f.bloating = f.bloating || lf.bloating
	} else {
		if f.sneezing {
			symptoms = append(symptoms, contracts.Symptom{Label: "sneezing", Severity: SeverityUnknown})
		}
		if f.itchyEyes {
			symptoms = append(symptoms, contracts.Symptom{Label: "itchy eyes", Severity: SeverityUnknown})
		}
		if f.drySkin {
			symptoms = append(symptoms, contracts.Symptom{Label: "dry skin", Severity: SeverityUnknown})
		}
		if f.bloating {
			symptoms = append(symptoms, contracts.Symptom{Label: "bloating", Severity: SeverityUnknown})
		}
	}

	if len(symptoms) == 0 {
		symptoms = []contracts.Symptom{{Label: UnspecifiedLabel, Severity: SeverityUnknown}}
	}

	return contracts.Intake{
		Language:          language,
		PresentingProblem: inferPresentingProblem(f, language),
		Symptoms:          symptoms,
	}
}

func frenchItchyEyes(compact string) bool {
	return strings.Contains(compact, "gratt") &&
		(strings.Contains(compact, "yeux") || strings.Contains(compact, "oeil"))
}

func symptomFlags(symptoms []contracts.Symptom) flags {
	var b strings.Builder
	for _, s := range symptoms {
		b.WriteString(s.Label)
		b.WriteByte(' ')
	}
	compact := textkit.Compact(textkit.Normalize(b.String()))
	return flags{
		sneezing:  strings.Contains(compact, "sneez") || strings.Contains(compact, "eternu"),
		itchyEyes: strings.Contains(compact, "itchyeyes") || frenchItchyEyes(compact),
		drySkin:   strings.Contains(compact, "dryskin") || strings.Contains(compact, "peausech"),
		bloating:  strings.Contains(compact, "bloat") || strings.Contains(compact, "ballonn"),
	}
}

func parseSymptomLine(line string) (contracts.Symptom, bool) {
	m := symptomLineRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return contracts.Symptom{}, false
	}

	labelRaw := strings.TrimSpace(m[1])
	meta := strings.ToLower(m[2])

	compact := textkit.Compact(textkit.Normalize(labelRaw))
	label := canonicalLabel(textkit.Deleet(compact))
	if label == "" {
		label = canonicalLabel(compact)
	}
	if label == "" {
		label = labelRaw
	}

	severity := SeverityUnknown
	switch {
	case strings.Contains(meta, "mild") || strings.Contains(meta, "leger"):
		severity = SeverityMild
	case strings.Contains(meta, "moderate") || strings.Contains(meta, "modere"):
		severity = SeverityModerate
	case strings.Contains(meta, "sever"):
		severity = SeveritySevere
	}

	s := contracts.Symptom{Label: label, Severity: severity}
	if m := durationRe.FindStringSubmatch(meta); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v >= 0 && v <= 3650 {
			s.DurationDays = &v
		}
	}
	return s, true
}

func canonicalLabel(compact string) string {
	switch {
	case strings.Contains(compact, "sneez") || strings.Contains(compact, "eternu"):
		return "sneezing"
	case strings.Contains(compact, "itchy") && strings.Contains(compact, "eye"),
		strings.Contains(compact, "gratt") && (strings.Contains(compact, "yeux") || strings.Contains(compact, "oeil")):
		return "itchy eyes"
	case strings.Contains(compact, "dryskin") || strings.Contains(compact, "peausech"):
		return "dry skin"
	case strings.Contains(compact, "bloat") || strings.Contains(compact, "ballonn"):
		return "bloating"
	default:
		return ""
	}
}

func inferPresentingProblem(f flags, language string) string {
	fr := language == "fr"
	switch {
	case f.sneezing && f.itchyEyes:
		if fr {
			return "Eternuements et yeux qui grattent"
		}
		return "Sneezing and itchy eyes"
	case f.drySkin:
		if fr {
			return "Peau seche"
		}
		return "Dry skin"
	case f.bloating:
		if fr {
			return "Ballonnements"
		}
		return "Bloating after meals"
	default:
		if fr {
			return "Symptomes non specifie(s)"
		}
		return "Unspecified symptoms"
	}
}
