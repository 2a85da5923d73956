package routing

import (
	"slices"

	"github.com/stemsi/survey-backend/internal/model"
)

// QuestionSet is a set of question ids within one section.
type QuestionSet map[string]struct{}

// NewQuestionSet returns a set holding ids.
func NewQuestionSet(ids ...string) QuestionSet {
	s := make(QuestionSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s QuestionSet) Add(id string) { s[id] = struct{}{} }

func (s QuestionSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Visibility is the visible question set of a section together with the
// routing side effects that fired while computing it.
type Visibility struct {
	Questions QuestionSet
	// Order lists the visible questions in canonical order.
	Order []string
	// Sections are resolved section targets fired by answered questions.
	Sections []string
	// EndReached is set when a fired route targets the end of the survey.
	EndReached bool
}

// ComputeVisible derives the visible questions of a section from the
// answers. Questions no route targets are always visible; route targets
// become visible when an answered branching question routes to them. A
// section never renders empty: if nothing is visible the first question
// is.
func (e *Engine) ComputeVisible(sectionID string, answers model.Snapshot) Visibility {
	sec, ok := e.survey.Section(sectionID)
	if !ok {
		e.log.Debug().Str("section_id", sectionID).Msg("Visibility requested for unknown section")
		return Visibility{Questions: QuestionSet{}}
	}

	order := e.questionOrder[sectionID]
	routed := e.routedQuestions[sectionID]

	vis := Visibility{Questions: make(QuestionSet, len(order))}
	for _, id := range order {
		if !routed.Has(id) {
			vis.Questions.Add(id)
		}
	}

	for _, id := range order {
		q := sec.Questions[id]
		if !q.Branching() {
			continue
		}
		ans, ok := answers[model.FQID(sectionID, id)]
		if !ok || !ans.HasValue() {
			continue
		}

		r := e.Resolve(q, ans)
		for _, t := range r.Questions {
			if _, exists := sec.Questions[t]; !exists {
				e.log.Debug().Str("section_id", sectionID).Str("target", t).Msg("Route target not in section")
				continue
			}
			vis.Questions.Add(t)
		}
		for _, sid := range e.ResolveSections(r.Sections) {
			if !slices.Contains(vis.Sections, sid) {
				vis.Sections = append(vis.Sections, sid)
			}
		}
		if r.End {
			vis.EndReached = true
		}
	}

	if len(vis.Questions) == 0 && len(order) > 0 {
		vis.Questions.Add(order[0])
	}

	vis.Order = filterOrder(order, vis.Questions)
	return vis
}

// InitialVisible is the visible set shown on entering a section before any
// recomputation: every question no route targets plus the first branching
// question.
func (e *Engine) InitialVisible(sectionID string) Visibility {
	sec, ok := e.survey.Section(sectionID)
	if !ok {
		e.log.Debug().Str("section_id", sectionID).Msg("Visibility requested for unknown section")
		return Visibility{Questions: QuestionSet{}}
	}

	order := e.questionOrder[sectionID]
	routed := e.routedQuestions[sectionID]

	set := make(QuestionSet, len(order))
	for _, id := range order {
		if !routed.Has(id) {
			set.Add(id)
		}
	}
	for _, id := range order {
		if sec.Questions[id].Branching() {
			set.Add(id)
			break
		}
	}
	if len(set) == 0 && len(order) > 0 {
		set.Add(order[0])
	}

	return Visibility{Questions: set, Order: filterOrder(order, set)}
}

// VisibleBySection computes the visible questions of each listed section.
func (e *Engine) VisibleBySection(sectionIDs []string, answers model.Snapshot) map[string]QuestionSet {
	out := make(map[string]QuestionSet, len(sectionIDs))
	for _, id := range sectionIDs {
		out[id] = e.ComputeVisible(id, answers).Questions
	}
	return out
}

func filterOrder(order []string, set QuestionSet) []string {
	out := make([]string, 0, len(set))
	for _, id := range order {
		if set.Has(id) {
			out = append(out, id)
		}
	}
	return out
}
