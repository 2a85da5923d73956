package routing

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/stemsi/survey-backend/internal/model"
)

// Condition function tags.
const (
	FuncGreaterThan      = "is_greater_than"
	FuncLesserThan       = "is_lesser_than"
	FuncEqual            = "is_equal"
	FuncInequal          = "is_inequal"
	FuncGreaterThanEqual = "is_greater_than_equal"
	FuncLesserThanEqual  = "is_lesser_than_equal"
	FuncInRangeInclusive = "in_range_inclusive"
	FuncInRangeExclusive = "in_range_exclusive"
	FuncIsAfter          = "is_after"
	FuncIsBefore         = "is_before"
	FuncIfSelected       = "if_selected"
	FuncIfSelectedMulti  = "if_selected_multiple"
	FuncKeywords         = "keywords"
	FuncIfAnswered       = "if_answered"
	FuncIfNotAnswered    = "if_not_answered"
	FuncIfUploaded       = "if_uploaded"
	FuncIfNotUploaded    = "if_not_uploaded"
)

var functionAliases = map[string]string{
	"ifSelected":         FuncIfSelected,
	"ifSelectedMultiple": FuncIfSelectedMulti,
	"ifAnswered":         FuncIfAnswered,
	"ifNotAnswered":      FuncIfNotAnswered,
	"isUploaded":         FuncIfUploaded,
	"isNotUploaded":      FuncIfNotUploaded,
}

// CanonicalFunction folds camelCase aliases onto the snake_case tag.
func CanonicalFunction(name string) string {
	name = strings.TrimSpace(name)
	if c, ok := functionAliases[name]; ok {
		return c
	}
	return name
}

// EvaluateCondition decides whether a single routing condition holds for
// the given answer. A non-nil error describes why the condition could not
// be evaluated; the result is always false in that case.
func EvaluateCondition(q *model.Question, v model.Answer, c model.RouteCondition) (bool, error) {
	fn := CanonicalFunction(c.Function)
	switch fn {
	case FuncGreaterThan:
		return compare(q, v, c, func(d int) bool { return d > 0 })
	case FuncLesserThan:
		return compare(q, v, c, func(d int) bool { return d < 0 })
	case FuncEqual:
		return compare(q, v, c, func(d int) bool { return d == 0 })
	case FuncInequal:
		return compare(q, v, c, func(d int) bool { return d != 0 })
	case FuncGreaterThanEqual:
		return compare(q, v, c, func(d int) bool { return d >= 0 })
	case FuncLesserThanEqual:
		return compare(q, v, c, func(d int) bool { return d <= 0 })

	case FuncInRangeInclusive, FuncInRangeExclusive:
		lo, hi, err := parseRange(string(c.MainValue))
		if err != nil {
			return false, err
		}
		n, ok := answerNumber(v)
		if !ok {
			return false, fmt.Errorf("%w: answer %q is not a number", ErrInvalidOperand, v.String())
		}
		if fn == FuncInRangeInclusive {
			return n >= lo && n <= hi, nil
		}
		return n > lo && n < hi, nil

	case FuncIsAfter:
		return compareDates(v, c, func(d int) bool { return d > 0 })
	case FuncIsBefore:
		return compareDates(v, c, func(d int) bool { return d < 0 })

	case FuncIfSelected:
		if c.OptionID == "" {
			return false, fmt.Errorf("%w: option_id is empty", ErrInvalidOperand)
		}
		switch v.Kind {
		case model.AnswerText:
			return v.Text == string(c.OptionID), nil
		case model.AnswerChoice:
			return v.Choice.OptionID == string(c.OptionID), nil
		}
		return false, nil

	case FuncIfSelectedMulti:
		if v.Kind != model.AnswerChoices {
			return false, nil
		}
		selected := v.Selections()
		if len(selected) == 1 && c.OptionID != "" {
			return selected[0] == string(c.OptionID), nil
		}
		if len(c.OptionIDs) > 0 {
			return sameSet(selected, c.OptionIDs), nil
		}
		return false, nil

	case FuncKeywords:
		if len(c.Keywords) == 0 {
			return false, fmt.Errorf("%w: keywords list is empty", ErrInvalidOperand)
		}
		if v.Kind != model.AnswerText {
			return false, nil
		}
		text := strings.ToLower(v.Text)
		for _, k := range c.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(text, k) {
				return true, nil
			}
		}
		return false, nil

	case FuncIfAnswered:
		return v.IsAnswered(), nil
	case FuncIfNotAnswered:
		return !v.IsAnswered(), nil
	case FuncIfUploaded:
		return v.HasValue(), nil
	case FuncIfNotUploaded:
		return !v.HasValue(), nil
	}

	return false, fmt.Errorf("%w: %q", ErrUnknownFunction, c.Function)
}

// compare applies a comparator to numeric questions numerically and to
// everything else as calendar dates.
func compare(q *model.Question, v model.Answer, c model.RouteCondition, op func(int) bool) (bool, error) {
	if !isNumeric(q) {
		return compareDates(v, c, op)
	}
	lhs, ok := answerNumber(v)
	if !ok {
		return false, fmt.Errorf("%w: answer %q is not a number", ErrInvalidOperand, v.String())
	}
	rhs, err := strconv.ParseFloat(strings.TrimSpace(string(c.MainValue)), 64)
	if err != nil {
		return false, fmt.Errorf("%w: main_value %q is not a number", ErrInvalidOperand, c.MainValue)
	}
	return op(cmp.Compare(lhs, rhs)), nil
}

func compareDates(v model.Answer, c model.RouteCondition, op func(int) bool) (bool, error) {
	if v.Kind != model.AnswerText {
		return false, fmt.Errorf("%w: answer is a %s", ErrInvalidDate, v.Kind)
	}
	lhs, err := DateOnly(v.Text)
	if err != nil {
		return false, err
	}
	rhs, err := DateOnly(string(c.MainValue))
	if err != nil {
		return false, err
	}
	return op(lhs.Compare(rhs)), nil
}

func isNumeric(q *model.Question) bool {
	return q != nil && (q.Type == model.QuestionTypeNumber || q.Type == model.QuestionTypeRating)
}

func answerNumber(v model.Answer) (float64, bool) {
	switch v.Kind {
	case model.AnswerNumber:
		return v.Number, true
	case model.AnswerText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		return f, err == nil
	}
	return 0, false
}

// parseRange parses "lo, hi".
func parseRange(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: range %q", ErrInvalidOperand, s)
	}
	lo, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	hi, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("%w: range %q", ErrInvalidOperand, s)
	}
	return lo, hi, nil
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// DateOnly parses a date or timestamp string and truncates it to the
// calendar day it names.
func DateOnly(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// sameSet reports whether a and b hold the same ids with the same
// multiplicity.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	return slices.Equal(slices.Sorted(slices.Values(a)), slices.Sorted(slices.Values(b)))
}
