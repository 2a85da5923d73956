package routing

import (
	"fmt"
	"slices"
	"strings"

	"github.com/stemsi/survey-backend/internal/model"
)

// Severity grades a lint issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a problem found in a survey definition.
type Issue struct {
	Severity   Severity `json:"severity"`
	SectionID  string   `json:"section_id,omitempty"`
	QuestionID string   `json:"question_id,omitempty"`
	Condition  int      `json:"condition"`
	Message    string   `json:"message"`
}

func (i Issue) String() string {
	loc := i.SectionID
	if i.QuestionID != "" {
		loc = model.FQID(i.SectionID, i.QuestionID)
	}
	return fmt.Sprintf("%s %s: %s", i.Severity, loc, i.Message)
}

var knownFunctions = []string{
	FuncGreaterThan, FuncLesserThan, FuncEqual, FuncInequal,
	FuncGreaterThanEqual, FuncLesserThanEqual, FuncInRangeInclusive,
	FuncInRangeExclusive, FuncIsAfter, FuncIsBefore, FuncIfSelected,
	FuncIfSelectedMulti, FuncKeywords, FuncIfAnswered, FuncIfNotAnswered,
	FuncIfUploaded, FuncIfNotUploaded,
}

// Lint reports routing problems of a survey: route targets that match no
// question or section, unknown condition functions, conditions missing
// their operand and sections without questions. Nothing reported here
// stops the engine from running; a survey with errors routes as if the
// broken targets were absent.
func Lint(s *model.Survey) []Issue {
	if s == nil || len(s.Sections) == 0 {
		return []Issue{{Severity: SeverityError, Message: ErrNoSections.Error()}}
	}

	var issues []Issue
	for _, sid := range s.SortedSectionIDs() {
		sec := s.Sections[sid]
		if len(sec.Questions) == 0 {
			issues = append(issues, Issue{Severity: SeverityWarning, SectionID: sid, Condition: -1, Message: "section has no questions"})
			continue
		}
		for _, qid := range OrderedQuestionIDs(sec) {
			issues = append(issues, lintQuestion(s, sid, sec.Questions[qid])...)
		}
	}
	return issues
}

func lintQuestion(s *model.Survey, sectionID string, q *model.Question) []Issue {
	var issues []Issue
	add := func(sev Severity, i int, format string, args ...any) {
		issues = append(issues, Issue{
			Severity:   sev,
			SectionID:  sectionID,
			QuestionID: q.ID,
			Condition:  i,
			Message:    fmt.Sprintf(format, args...),
		})
	}

	if q.Properties.Branching && len(q.Properties.Conditions) == 0 {
		add(SeverityWarning, -1, "branching is enabled but no conditions are defined")
	}
	if !q.Properties.Branching && len(q.Properties.Conditions) > 0 {
		add(SeverityWarning, -1, "conditions are ignored because branching is disabled")
	}

	sec := s.Sections[sectionID]
	for i, c := range q.Properties.Conditions {
		fn := CanonicalFunction(c.Function)
		if !slices.Contains(knownFunctions, fn) {
			add(SeverityError, i, "unknown function %q", c.Function)
			continue
		}
		if msg := missingOperand(fn, c); msg != "" {
			add(SeverityError, i, "%s", msg)
		}

		r := routeOf(c)
		for _, t := range r.Questions {
			if t == q.ID {
				add(SeverityWarning, i, "routes to itself")
				continue
			}
			if _, ok := sec.Questions[t]; !ok {
				add(SeverityError, i, "route target %q is not a question of this section", t)
			}
		}
		for _, t := range r.Sections {
			if _, ok := s.ResolveSection(t); !ok {
				add(SeverityError, i, "section target %q matches no section", t)
			}
		}
		if r.Empty() {
			add(SeverityWarning, i, "condition has no route")
		}
	}
	return issues
}

func missingOperand(fn string, c model.RouteCondition) string {
	switch fn {
	case FuncIfSelected:
		if c.OptionID == "" {
			return "option_id is required"
		}
	case FuncIfSelectedMulti:
		if len(c.OptionIDs) == 0 && c.OptionID == "" {
			return "option_ids is required"
		}
	case FuncKeywords:
		if len(c.Keywords) == 0 {
			return "keywords is required"
		}
	case FuncInRangeInclusive, FuncInRangeExclusive:
		if _, _, err := parseRange(string(c.MainValue)); err != nil {
			return "main_value must be a range like \"10, 20\""
		}
	case FuncIfAnswered, FuncIfNotAnswered, FuncIfUploaded, FuncIfNotUploaded:
	default:
		if strings.TrimSpace(string(c.MainValue)) == "" {
			return "main_value is required"
		}
	}
	return ""
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	return slices.ContainsFunc(issues, func(i Issue) bool { return i.Severity == SeverityError })
}
