package routing

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/stemsi/survey-backend/internal/model"
	"github.com/stemsi/survey-backend/internal/validator"
)

// Validation messages shown next to a question.
const (
	MsgRequired        = "This question is required"
	MsgInvalidEmail    = "Please enter a valid email address"
	MsgInvalidNumber   = "Please enter a valid number"
	MsgSelectEachRow   = "Please make a selection for each row"
	msgMinLength       = "Answer must be at least %d characters"
	msgMaxLength       = "Answer must be at most %d characters"
	msgMinValue        = "Value must be at least %s"
	msgMaxValue        = "Value must be at most %s"
	msgMaxPerRow       = "Please select at most %d options per row"
	msgMaxSelections   = "Please select at most %d options"
	validationTypeMail = "email"
)

// FieldErrors maps a snapshot key to its validation message.
type FieldErrors map[string]string

// ValidateVisible validates the visible questions of a section.
func (e *Engine) ValidateVisible(sectionID string, visible QuestionSet, answers model.Snapshot) FieldErrors {
	sec, ok := e.survey.Section(sectionID)
	if !ok {
		return nil
	}
	var errs FieldErrors
	for _, qid := range e.questionOrder[sectionID] {
		if !visible.Has(qid) {
			continue
		}
		key := model.FQID(sectionID, qid)
		if msg := ValidateAnswer(sec.Questions[qid], answers[key]); msg != "" {
			if errs == nil {
				errs = make(FieldErrors)
			}
			errs[key] = msg
		}
	}
	return errs
}

// ValidateAnswer returns the validation message for v, or "" when valid.
func ValidateAnswer(q *model.Question, v model.Answer) string {
	if q.Type == model.QuestionTypeInformation {
		return ""
	}
	if q.Type == model.QuestionTypeMatrix || v.Kind == model.AnswerMatrix {
		return validateMatrix(q, v)
	}
	if !v.IsAnswered() {
		if q.Required() {
			return MsgRequired
		}
		return ""
	}

	p := q.Properties
	switch {
	case q.Type == model.QuestionTypeNumber:
		n, ok := answerNumber(v)
		if !ok {
			return MsgInvalidNumber
		}
		if p.LowerLimit.Valid && n < p.LowerLimit.Value {
			return fmt.Sprintf(msgMinValue, formatNumber(p.LowerLimit.Value))
		}
		if p.UpperLimit.Valid && n > p.UpperLimit.Value {
			return fmt.Sprintf(msgMaxValue, formatNumber(p.UpperLimit.Value))
		}

	case q.Type.IsMultiSelect():
		if limit := p.MaxSelections.Int(); p.MaxSelections.Valid && limit > 0 && len(v.Selections()) > limit {
			return fmt.Sprintf(msgMaxSelections, limit)
		}

	case v.Kind == model.AnswerText:
		n := utf8.RuneCountInString(v.Text)
		if limit := p.MinLength.Int(); limit > 0 && n < limit {
			return fmt.Sprintf(msgMinLength, limit)
		}
		if limit := p.MaxLength.Int(); limit > 0 && n > limit {
			return fmt.Sprintf(msgMaxLength, limit)
		}
		if strings.EqualFold(p.ValidationType, validationTypeMail) && !validator.Email(strings.TrimSpace(v.Text)) {
			return MsgInvalidEmail
		}
	}
	return ""
}

// validateMatrix requires either no selection at all or a selection in
// every row.
func validateMatrix(q *model.Question, v model.Answer) string {
	if !v.IsAnswered() || v.MatrixAllEmpty() {
		if q.Required() {
			return MsgRequired
		}
		return ""
	}

	selected := make(map[string]int, len(v.Matrix))
	for _, r := range v.Matrix {
		selected[r.Key] = len(r.Value)
	}

	rows := q.Rows()
	if len(rows) > 0 {
		for _, title := range rows {
			if selected[title] == 0 {
				return MsgSelectEachRow
			}
		}
	} else {
		for _, r := range v.Matrix {
			if len(r.Value) == 0 {
				return MsgSelectEachRow
			}
		}
	}

	p := q.Properties
	if limit := p.MaxSelectionsPerRow.Int(); p.MaxSelectionsPerRow.Valid && limit > 0 {
		for _, r := range v.Matrix {
			if len(r.Value) > limit {
				return fmt.Sprintf(msgMaxPerRow, limit)
			}
		}
	}
	return ""
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
