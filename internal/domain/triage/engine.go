package triage

import (
	"context"
	"strings"

	"github.com/pharmassist/pharmassist/internal/platform/textkit"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

// Red flag codes, in deterministic output order.
const (
	RFBreathingDifficulty = "RF_BREATHING_DIFFICULTY"
	RFChestPain           = "RF_CHEST_PAIN"
	RFAnaphylaxis         = "RF_ANAPHYLAXIS"
	RFNeuro               = "RF_NEURO"
	RFBlood               = "RF_BLOOD"
	RFHighFever           = "RF_HIGH_FEVER"
)

var redFlagOrder = []string{
	RFBreathingDifficulty, RFChestPain, RFAnaphylaxis, RFNeuro, RFBlood, RFHighFever,
}

// HighFeverThreshold is the escalating temperature in Celsius.
const HighFeverThreshold = 39.0

var redFlagTerms = map[string][]string{
	RFBreathingDifficulty: {
		"shortness of breath", "difficulty breathing", "breathing difficulty",
		"dyspnee", "dyspne", "gene respiratoire", "essouff",
	},
	RFChestPain: {
		"chest pain", "douleur thorac", "oppression thorac",
	},
	RFAnaphylaxis: {
		"anaphyla", "angioedem", "angio-oedem", "quincke",
		"lip swelling", "swollen lips", "swelling of the lips",
		"tongue swelling", "swollen tongue", "face swelling", "swollen face",
		"gonflement des levres", "gonflement de la langue", "gonflement du visage",
	},
	RFNeuro: {
		"confusion", "seizure", "convulsion", "loss of consciousness",
		"perte de connaissance", "syncope", "fainted",
	},
	RFBlood: {
		"blood in stool", "blood in vomit", "coughing blood", "vomiting blood",
		"sang dans les selles", "vomissement de sang", "crache du sang",
		"hemoptysie", "rectorragie",
	},
}

// Result is the triage verdict for one intake.
type Result struct {
	RedFlags      []string
	Escalation    *contracts.Escalation
	Questions     []contracts.Question
	NeedsMoreInfo bool
	Confidence    float64
	Warnings      []contracts.Warning
}

// QuestionSelector picks which optional questions to append after the
// required ones. Implementations may consult a model; the engine
// enforces the cap and the required set regardless of what the
// selector returns.
type QuestionSelector interface {
	SelectOptional(ctx context.Context, intake contracts.Intake, optional []BankQuestion, max int) []string
}

// PrioritySelector is the deterministic default: optional questions in
// bank priority order.
type PrioritySelector struct{}

func (PrioritySelector) SelectOptional(_ context.Context, _ contracts.Intake, optional []BankQuestion, max int) []string {
	var out []string
	for _, q := range optional {
		if len(out) >= max {
			break
		}
		out = append(out, q.ID)
	}
	return out
}

// Engine evaluates intakes. The zero Engine is not usable; construct
// with NewEngine.
type Engine struct {
	selector QuestionSelector
}

func NewEngine(selector QuestionSelector) *Engine {
	if selector == nil {
		selector = PrioritySelector{}
	}
	return &Engine{selector: selector}
}

// searchText builds the normalized, de-leeted haystack scanned for
// red flag terms.
func searchText(intake contracts.Intake) string {
	parts := []string{intake.PresentingProblem}
	for _, s := range intake.Symptoms {
		parts = append(parts, s.Label)
	}
	parts = append(parts, intake.Conditions...)
	return textkit.Deleet(textkit.Normalize(strings.Join(parts, " ")))
}

// detectRedFlags scans text and answers.
func detectRedFlags(intake contracts.Intake) []string {
	found := map[string]bool{}
	hay := searchText(intake)
	for code, terms := range redFlagTerms {
		for _, term := range terms {
			if strings.Contains(hay, term) {
				found[code] = true
				break
			}
		}
	}

	if intake.Answers[QBreathing] == "yes" {
		found[RFBreathingDifficulty] = true
	}
	if intake.Answers[QChestPain] == "yes" {
		found[RFChestPain] = true
	}
	if t, ok := intake.Answers[QTemperature]; ok {
		if v, err := textkit.ParseTemperature(t); err == nil && v >= HighFeverThreshold {
			found[RFHighFever] = true
		}
	}

	var out []string
	for _, code := range redFlagOrder {
		if found[code] {
			out = append(out, code)
		}
	}
	return out
}

// lowInformation reports whether the intake is too thin to recommend
// anything. Labels are compared in compact form so padded spellings of
// "unspecified" still match.
func lowInformation(intake contracts.Intake) bool {
	if len(intake.Symptoms) == 0 {
		return true
	}
	for _, s := range intake.Symptoms {
		compact := textkit.Compact(textkit.Normalize(s.Label))
		if strings.Contains(compact, "unspecified") || strings.Contains(compact, "nonspecifi") {
			return true
		}
	}
	return false
}

func escalationFor(flags []string, lang string) *contracts.Escalation {
	if len(flags) == 0 {
		return nil
	}
	has := map[string]bool{}
	for _, f := range flags {
		has[f] = true
	}

	urgent := has[RFAnaphylaxis] || (has[RFBreathingDifficulty] && has[RFChestPain])
	esc := &contracts.Escalation{RedFlags: flags}
	if urgent {
		esc.Level = contracts.EscalationUrgent
		esc.Reason = "red flags indicate a possible emergency: " + strings.Join(flags, ", ")
		if lang == "fr" {
			esc.Advice = "Appelez le SAMU (15) ou le 112 immediatement."
		} else {
			esc.Advice = "Call emergency services now."
		}
		return esc
	}

	esc.Level = contracts.EscalationDoctor
	esc.Reason = "red flags require medical review: " + strings.Join(flags, ", ")
	if lang == "fr" {
		esc.Advice = "Consultez un medecin dans les 24 heures."
	} else {
		esc.Advice = "See a doctor within 24 hours."
	}
	return esc
}

// optionalPool builds the optional questions applicable to this
// intake, in priority order.
func optionalPool(intake contracts.Intake) []BankQuestion {
	var out []BankQuestion
	if _, answered := intake.Answers[QDuration]; !answered {
		q, _ := Lookup(QDuration)
		out = append(out, q)
	}
	if intake.Answers[QFever] == "yes" {
		if _, answered := intake.Answers[QTemperature]; !answered {
			q, _ := Lookup(QTemperature)
			out = append(out, q)
		}
	}
	if intake.Sex == "female" && (intake.PregnancyStatus == "" || intake.PregnancyStatus == "unknown") {
		if _, answered := intake.Answers[QPregnancy]; !answered {
			q, _ := Lookup(QPregnancy)
			out = append(out, q)
		}
	}
	return out
}

// Assess runs triage over an intake. Follow-up questions are only
// produced for low-information intakes; a resolved intake yields no
// questions even when optional ones could apply.
func (e *Engine) Assess(ctx context.Context, intake contracts.Intake) Result {
	lang := intake.Language
	flags := detectRedFlags(intake)
	esc := escalationFor(flags, lang)

	res := Result{RedFlags: flags, Escalation: esc}
	if esc != nil {
		msg := "Escalation recommended: " + esc.Advice
		res.Warnings = append(res.Warnings, contracts.Warning{
			Code:     "ESCALATION_RECOMMENDED",
			Severity: contracts.SeverityWarn,
			Message:  msg,
		})
	}

	// A red flag escalates immediately; no further questions are asked.
	lowInfo := lowInformation(intake)
	if lowInfo && len(flags) == 0 {
		var questions []contracts.Question
		for _, id := range requiredOrder {
			if _, answered := intake.Answers[id]; answered {
				continue
			}
			q, _ := Lookup(id)
			questions = append(questions, Render(q, lang))
		}
		res.NeedsMoreInfo = len(questions) > 0

		if room := MaxQuestions - len(questions); room > 0 {
			pool := optionalPool(intake)
			picked := e.selector.SelectOptional(ctx, intake, pool, room)
			// the selector may only pick from the offered pool
			allowed := map[string]BankQuestion{}
			for _, q := range pool {
				allowed[q.ID] = q
			}
			for _, id := range picked {
				if len(questions) >= MaxQuestions {
					break
				}
				q, ok := allowed[id]
				if !ok {
					continue
				}
				questions = append(questions, Render(q, lang))
				delete(allowed, id)
			}
		}
		res.Questions = questions
	}

	switch {
	case lowInfo:
		res.Confidence = 0.1
	case len(flags) == 0 && len(res.Questions) == 0:
		res.Confidence = 0.5
	default:
		res.Confidence = 0.2
	}
	return res
}
