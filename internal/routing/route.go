package routing

import (
	"regexp"
	"slices"
	"strings"

	"github.com/stemsi/survey-backend/internal/model"
)

// EndTarget is the route target that ends the survey.
const EndTarget = "End"

// Route is the outcome of the first matching condition of a branching
// question. Sections holds the raw section targets; use ResolveSections to
// map them to section ids.
type Route struct {
	Questions []string
	Sections  []string
	End       bool
}

// Empty reports whether the route has no effect.
func (r Route) Empty() bool {
	return len(r.Questions) == 0 && len(r.Sections) == 0 && !r.End
}

var questionSegment = regexp.MustCompile(`^Q\d+$`)

// ExtractQuestionID reduces a route path such as "S1/Q3" to a question id:
// the last segment shaped like Q<digits>, otherwise the last segment.
func ExtractQuestionID(path string) string {
	parts := strings.Split(path, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(parts[i]); questionSegment.MatchString(p) {
			return p
		}
	}
	return strings.TrimSpace(parts[len(parts)-1])
}

// Resolve returns the route of the first condition that holds for v.
// Non-branching questions, and multi-select answers with more than one
// selection when no condition is written for multiple selections, resolve
// to the empty route. Conditions that cannot be evaluated are skipped.
func (e *Engine) Resolve(q *model.Question, v model.Answer) Route {
	if q == nil || !q.Branching() {
		return Route{}
	}

	conds := q.Properties.Conditions
	if q.Type.IsMultiSelect() && len(v.Selections()) > 1 && !slices.ContainsFunc(conds, handlesMultiple) {
		return Route{}
	}

	for i, c := range conds {
		ok, err := EvaluateCondition(q, v, c)
		if err != nil {
			e.log.Debug().Err(err).
				Str("question_id", q.ID).
				Int("condition", i).
				Str("function", c.Function).
				Msg("Condition skipped")
			continue
		}
		if ok {
			return routeOf(c)
		}
	}
	return Route{}
}

// ResolveSections maps raw section targets to section ids, dropping targets
// that match no section.
func (e *Engine) ResolveSections(targets []string) []string {
	var out []string
	for _, t := range targets {
		id, ok := e.survey.ResolveSection(t)
		if !ok {
			e.log.Debug().Str("target", t).Err(ErrUnresolvedSection).Msg("Section target dropped")
			continue
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func handlesMultiple(c model.RouteCondition) bool {
	switch CanonicalFunction(c.Function) {
	case FuncIfAnswered, FuncIfSelectedMulti:
		return true
	}
	return false
}

func routeOf(c model.RouteCondition) Route {
	var r Route
	for _, path := range c.Route {
		if strings.EqualFold(strings.TrimSpace(path), EndTarget) {
			r.End = true
			continue
		}
		id := ExtractQuestionID(path)
		switch {
		case id == "":
		case strings.EqualFold(id, EndTarget):
			r.End = true
		case !slices.Contains(r.Questions, id):
			r.Questions = append(r.Questions, id)
		}
	}
	for _, s := range c.SectionTargets() {
		if s = strings.TrimSpace(s); s != "" {
			r.Sections = append(r.Sections, s)
		}
	}
	return r
}
