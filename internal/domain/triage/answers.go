package triage

import (
	"strconv"

	"github.com/pharmassist/pharmassist/internal/platform/textkit"
)

// Answer validation issue codes.
const (
	IssueInvalidItem       = "INVALID_ITEM"
	IssueMissingQuestionID = "MISSING_QUESTION_ID"
	IssueMissingAnswer     = "MISSING_ANSWER"
	IssueUnknownQuestionID = "UNKNOWN_QUESTION_ID"
	IssueInvalidYesNo      = "INVALID_YES_NO"
	IssueInvalidChoice     = "INVALID_CHOICE"
	IssueInvalidNumber     = "INVALID_NUMBER"
	IssueNumberOutOfRange  = "NUMBER_OUT_OF_RANGE"
)

// AnswerItem is one submitted follow-up answer.
type AnswerItem struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// AnswerIssue describes why a submitted answer was rejected.
type AnswerIssue struct {
	Code       string `json:"code"`
	QuestionID string `json:"question_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// ValidateAnswers checks submitted answers against the question bank
// and returns issues plus the canonical map of accepted answers.
// Yes/no answers canonicalize to "yes"/"no", numbers to their decimal
// form, choices to the exact bank member. A non-empty issue list means
// the whole submission is rejected.
func ValidateAnswers(items []AnswerItem) ([]AnswerIssue, map[string]string) {
	var issues []AnswerIssue
	canonical := make(map[string]string, len(items))

	for _, item := range items {
		if item.QuestionID == "" {
			issues = append(issues, AnswerIssue{Code: IssueMissingQuestionID})
			continue
		}
		if item.Answer == "" {
			issues = append(issues, AnswerIssue{Code: IssueMissingAnswer, QuestionID: item.QuestionID})
			continue
		}
		q, ok := Lookup(item.QuestionID)
		if !ok {
			issues = append(issues, AnswerIssue{Code: IssueUnknownQuestionID, QuestionID: item.QuestionID})
			continue
		}

		switch q.Type {
		case TypeYesNo:
			v, err := textkit.ParseYesNo(item.Answer)
			if err != nil {
				issues = append(issues, AnswerIssue{Code: IssueInvalidYesNo, QuestionID: q.ID})
				continue
			}
			canonical[q.ID] = v
		case TypeChoice:
			matched := ""
			norm := textkit.Normalize(item.Answer)
			for _, c := range q.Choices {
				if norm == c {
					matched = c
					break
				}
			}
			if matched == "" {
				issues = append(issues, AnswerIssue{Code: IssueInvalidChoice, QuestionID: q.ID})
				continue
			}
			canonical[q.ID] = matched
		case TypeNumber:
			v, err := textkit.ParseNumber(item.Answer)
			if err != nil {
				issues = append(issues, AnswerIssue{Code: IssueInvalidNumber, QuestionID: q.ID})
				continue
			}
			if v < q.NumberMin || v > q.NumberMax {
				issues = append(issues, AnswerIssue{Code: IssueNumberOutOfRange, QuestionID: q.ID})
				continue
			}
			canonical[q.ID] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			issues = append(issues, AnswerIssue{Code: IssueInvalidItem, QuestionID: q.ID, Detail: "unsupported question type"})
		}
	}

	if len(issues) > 0 {
		return issues, nil
	}
	return nil, canonical
}
