// Package routing evaluates a survey graph against an answer snapshot:
// condition evaluation, route resolution, question visibility, section
// reachability, answer change propagation, validation and progress.
//
// Every operation is a pure function of the survey and the snapshot it is
// given; snapshots passed in are never mutated.
package routing

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/stemsi/survey-backend/internal/model"
)

var (
	ErrNoSections        = errors.New("survey has no sections")
	ErrSectionNotFound   = errors.New("section not found")
	ErrQuestionNotFound  = errors.New("question not found")
	ErrUnknownFunction   = errors.New("unknown condition function")
	ErrInvalidOperand    = errors.New("invalid condition operand")
	ErrInvalidDate       = errors.New("invalid date")
	ErrUnresolvedSection = errors.New("unresolved section target")
)

// Engine answers routing and visibility questions for a single survey.
// It is immutable after construction and safe for concurrent use.
type Engine struct {
	survey *model.Survey
	log    zerolog.Logger

	// sections by ascending order
	order []string
	index map[string]int

	questionOrder   map[string][]string
	routedQuestions map[string]QuestionSet
	// sections that are the target of at least one routing condition
	routedSections map[string]bool
}

// NewEngine indexes the survey. A survey without sections is rejected.
func NewEngine(survey *model.Survey, log zerolog.Logger) (*Engine, error) {
	if survey == nil || len(survey.Sections) == 0 {
		return nil, ErrNoSections
	}

	e := &Engine{
		survey:          survey,
		log:             log.With().Str("component", "routing").Logger(),
		order:           survey.SortedSectionIDs(),
		index:           make(map[string]int, len(survey.Sections)),
		questionOrder:   make(map[string][]string, len(survey.Sections)),
		routedQuestions: make(map[string]QuestionSet, len(survey.Sections)),
		routedSections:  make(map[string]bool),
	}

	for i, id := range e.order {
		e.index[id] = i
		sec := survey.Sections[id]
		e.questionOrder[id] = OrderedQuestionIDs(sec)

		routed := QuestionSet{}
		for _, q := range sec.Questions {
			if !q.Branching() {
				continue
			}
			for _, c := range q.Properties.Conditions {
				r := routeOf(c)
				for _, t := range r.Questions {
					routed.Add(t)
				}
				for _, t := range c.SectionTargets() {
					if sid, ok := survey.ResolveSection(t); ok {
						e.routedSections[sid] = true
					}
				}
			}
		}
		e.routedQuestions[id] = routed
	}

	return e, nil
}

// Survey returns the survey the engine was built for.
func (e *Engine) Survey() *model.Survey {
	return e.survey
}

// SectionIDs returns every section id by ascending order.
func (e *Engine) SectionIDs() []string {
	return append([]string(nil), e.order...)
}

// StartSection returns the lowest-order section.
func (e *Engine) StartSection() string {
	return e.order[0]
}

// HasSection reports whether the section exists.
func (e *Engine) HasSection(id string) bool {
	_, ok := e.index[id]
	return ok
}

// QuestionOrder returns the canonical question order of a section.
func (e *Engine) QuestionOrder(sectionID string) []string {
	return e.questionOrder[sectionID]
}

// SectionTitle returns the title of a section, or its id when untitled.
func (e *Engine) SectionTitle(id string) string {
	if sec, ok := e.survey.Sections[id]; ok && sec.Title != "" {
		return sec.Title
	}
	return id
}

// NextSection returns the section that follows id by order.
func (e *Engine) NextSection(id string) (string, bool) {
	i, ok := e.index[id]
	if !ok || i+1 >= len(e.order) {
		return "", false
	}
	return e.order[i+1], true
}

// Before reports whether section a is ordered before section b.
func (e *Engine) Before(a, b string) bool {
	return e.index[a] < e.index[b]
}
