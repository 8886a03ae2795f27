// Package triage contains the deterministic rule engines around the
// follow-up funnel: the closed question bank, answer validation, red
// flag detection and escalation.
package triage

import "github.com/pharmassist/pharmassist/pkg/contracts"

// Question answer types.
const (
	TypeYesNo  = "yes_no"
	TypeChoice = "choice"
	TypeNumber = "number"
)

// BankQuestion is one entry of the closed question bank. Only bank
// questions can ever be rendered or answered; the bank is the single
// source of question ids.
type BankQuestion struct {
	ID       string
	Type     string
	Text     map[string]string // language -> text
	Reason   map[string]string // language -> why this question is asked
	Choices  []string
	Priority int
	Required bool
	// NumberMin/Max bound numeric answers.
	NumberMin float64
	NumberMax float64
}

// Question ids.
const (
	QPrimaryDomain   = "q_primary_domain"
	QOverallSeverity = "q_overall_severity"
	QFever           = "q_fever"
	QBreathing       = "q_breathing"
	QChestPain       = "q_chest_pain"
	QDuration        = "q_duration"
	QTemperature     = "q_temperature"
	QPregnancy       = "q_pregnancy"
)

// MaxQuestions caps how many questions one response may carry.
const MaxQuestions = 5

var bank = map[string]BankQuestion{
	QPrimaryDomain: {
		ID:   QPrimaryDomain,
		Type: TypeChoice,
		Text: map[string]string{
			"en": "Which area best matches the problem?",
			"fr": "Quel domaine correspond le mieux au probleme ?",
		},
		Reason: map[string]string{
			"en": "Routes the advice to the right product category.",
			"fr": "Oriente le conseil vers la bonne categorie de produits.",
		},
		Choices:  []string{"allergy", "digestion", "dermatology", "pain", "respiratory", "other"},
		Priority: 1,
		Required: true,
	},
	QOverallSeverity: {
		ID:   QOverallSeverity,
		Type: TypeChoice,
		Text: map[string]string{
			"en": "How severe is it overall?",
			"fr": "Quelle est la gravite globale ?",
		},
		Reason: map[string]string{
			"en": "Severe symptoms point to a consultation rather than self-care.",
			"fr": "Des symptomes severes orientent vers une consultation plutot que l'automedication.",
		},
		Choices:  []string{"mild", "moderate", "severe"},
		Priority: 2,
		Required: true,
	},
	QFever: {
		ID:   QFever,
		Type: TypeYesNo,
		Text: map[string]string{
			"en": "Is there a fever?",
			"fr": "Y a-t-il de la fievre ?",
		},
		Reason: map[string]string{
			"en": "Fever may indicate infection or the need for medical evaluation.",
			"fr": "La fievre peut orienter vers une infection ou une evaluation medicale.",
		},
		Priority: 3,
		Required: true,
	},
	QBreathing: {
		ID:   QBreathing,
		Type: TypeYesNo,
		Text: map[string]string{
			"en": "Any difficulty breathing?",
			"fr": "Des difficultes a respirer ?",
		},
		Reason: map[string]string{
			"en": "Breathing difficulty is a red flag.",
			"fr": "Une gene respiratoire est un signe d'alerte.",
		},
		Priority: 4,
		Required: true,
	},
	QChestPain: {
		ID:   QChestPain,
		Type: TypeYesNo,
		Text: map[string]string{
			"en": "Any chest pain?",
			"fr": "Des douleurs thoraciques ?",
		},
		Reason: map[string]string{
			"en": "Chest pain is a red flag.",
			"fr": "La douleur thoracique est un signe d'alerte.",
		},
		Priority: 5,
		Required: true,
	},
	QDuration: {
		ID:   QDuration,
		Type: TypeNumber,
		Text: map[string]string{
			"en": "For how many days?",
			"fr": "Depuis combien de jours ?",
		},
		Reason: map[string]string{
			"en": "Duration helps distinguish self-limited issues from those needing evaluation.",
			"fr": "La duree aide a differencier une situation benigne d'un probleme a evaluer.",
		},
		Priority:  10,
		NumberMin: 0,
		NumberMax: 3650,
	},
	QTemperature: {
		ID:   QTemperature,
		Type: TypeNumber,
		Text: map[string]string{
			"en": "What is the measured temperature (Celsius)?",
			"fr": "Quelle est la temperature mesuree (Celsius) ?",
		},
		Reason: map[string]string{
			"en": "High temperature (>= 39 C) is a red flag.",
			"fr": "Une temperature elevee (>= 39 C) est un signe d'alerte.",
		},
		Priority:  11,
		NumberMin: 30,
		NumberMax: 45,
	},
	QPregnancy: {
		ID:   QPregnancy,
		Type: TypeChoice,
		Text: map[string]string{
			"en": "Is there an ongoing pregnancy?",
			"fr": "Y a-t-il une grossesse en cours ?",
		},
		Reason: map[string]string{
			"en": "Some products require caution in pregnancy.",
			"fr": "Certains produits necessitent des precautions en cas de grossesse.",
		},
		Choices:  []string{"pregnant", "not_pregnant", "unknown"},
		Priority: 12,
	},
}

// requiredOrder lists the required ids in priority order.
var requiredOrder = []string{QPrimaryDomain, QOverallSeverity, QFever, QBreathing, QChestPain}

// Lookup returns a bank question by id.
func Lookup(id string) (BankQuestion, bool) {
	q, ok := bank[id]
	return q, ok
}

// Render converts a bank question to its wire form in the given
// language, falling back to English.
func Render(q BankQuestion, lang string) contracts.Question {
	text := q.Text[lang]
	if text == "" {
		text = q.Text["en"]
	}
	reason := q.Reason[lang]
	if reason == "" {
		reason = q.Reason["en"]
	}
	return contracts.Question{
		ID:       q.ID,
		Type:     q.Type,
		Text:     text,
		Reason:   reason,
		Priority: q.Priority,
		Choices:  q.Choices,
	}
}
