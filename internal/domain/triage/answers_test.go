package triage

import "testing"

func TestValidateAnswers_Canonicalization(t *testing.T) {
	issues, canonical := ValidateAnswers([]AnswerItem{
		{QuestionID: QFever, Answer: "OUI"},
		{QuestionID: QBreathing, Answer: " Non "},
		{QuestionID: QPrimaryDomain, Answer: "Allergy"},
		{QuestionID: QTemperature, Answer: "38,50"},
		{QuestionID: QDuration, Answer: "7"},
	})
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	want := map[string]string{
		QFever:         "yes",
		QBreathing:     "no",
		QPrimaryDomain: "allergy",
		QTemperature:   "38.5",
		QDuration:      "7",
	}
	for id, v := range want {
		if canonical[id] != v {
			t.Errorf("canonical[%s] = %q, want %q", id, canonical[id], v)
		}
	}
}

func TestValidateAnswers_IssueCodes(t *testing.T) {
	cases := []struct {
		name string
		item AnswerItem
		code string
	}{
		{"missing id", AnswerItem{Answer: "yes"}, IssueMissingQuestionID},
		{"missing answer", AnswerItem{QuestionID: QFever}, IssueMissingAnswer},
		{"unknown id", AnswerItem{QuestionID: "q_nope", Answer: "yes"}, IssueUnknownQuestionID},
		{"bad yes/no", AnswerItem{QuestionID: QFever, Answer: "maybe"}, IssueInvalidYesNo},
		{"bad choice", AnswerItem{QuestionID: QPrimaryDomain, Answer: "plumbing"}, IssueInvalidChoice},
		{"bad number", AnswerItem{QuestionID: QTemperature, Answer: "hot"}, IssueInvalidNumber},
		{"out of range", AnswerItem{QuestionID: QTemperature, Answer: "55"}, IssueNumberOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			issues, canonical := ValidateAnswers([]AnswerItem{tc.item})
			if len(issues) != 1 || issues[0].Code != tc.code {
				t.Fatalf("issues = %v, want single %s", issues, tc.code)
			}
			if canonical != nil {
				t.Error("canonical map must be nil when issues exist")
			}
		})
	}
}

func TestValidateAnswers_OneBadItemRejectsAll(t *testing.T) {
	issues, canonical := ValidateAnswers([]AnswerItem{
		{QuestionID: QFever, Answer: "yes"},
		{QuestionID: QChestPain, Answer: "dunno"},
	})
	if len(issues) != 1 {
		t.Fatalf("issues = %v", issues)
	}
	if canonical != nil {
		t.Error("valid items must not survive a rejected submission")
	}
}
