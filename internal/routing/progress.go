package routing

import (
	"github.com/stemsi/survey-backend/internal/model"
)

// countsTowardProgress reports whether a question can hold an answer.
func countsTowardProgress(q *model.Question) bool {
	return q.Type != model.QuestionTypeInformation
}

// TotalVisibleRequired counts required questions that are visible in the
// listed sections. visibleQuestions is keyed by section id.
func (e *Engine) TotalVisibleRequired(visibleSections []string, visibleQuestions map[string]QuestionSet) int {
	total := 0
	e.eachVisibleRequired(visibleSections, visibleQuestions, func(string, string) {
		total++
	})
	return total
}

// AnsweredVisibleRequired counts the answered subset of TotalVisibleRequired.
func (e *Engine) AnsweredVisibleRequired(answers model.Snapshot, visibleSections []string, visibleQuestions map[string]QuestionSet) int {
	answered := 0
	e.eachVisibleRequired(visibleSections, visibleQuestions, func(sid, qid string) {
		if answers[model.FQID(sid, qid)].IsAnswered() {
			answered++
		}
	})
	return answered
}

func (e *Engine) eachVisibleRequired(visibleSections []string, visibleQuestions map[string]QuestionSet, fn func(sid, qid string)) {
	for _, sid := range visibleSections {
		sec, ok := e.survey.Section(sid)
		if !ok {
			continue
		}
		vis := visibleQuestions[sid]
		for _, qid := range e.questionOrder[sid] {
			q := sec.Questions[qid]
			if vis.Has(qid) && q.Required() && countsTowardProgress(q) {
				fn(sid, qid)
			}
		}
	}
}

// Progress returns answered/total as a percentage, 0 when total is 0.
func Progress(answered, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(answered) / float64(total) * 100
}

// IsSectionComplete reports whether every question of the section holds an
// answer, visible or not and required or not. Unlike progress it does not
// skip Information questions, so a section carrying one only completes
// once something is stored under it.
func (e *Engine) IsSectionComplete(sectionID string, answers model.Snapshot) bool {
	sec, ok := e.survey.Section(sectionID)
	if !ok {
		return false
	}
	for qid := range sec.Questions {
		if !answers[model.FQID(sectionID, qid)].IsAnswered() {
			return false
		}
	}
	return true
}
