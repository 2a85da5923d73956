package routing

import (
	"fmt"
	"maps"
	"slices"

	"github.com/stemsi/survey-backend/internal/model"
)

// ChangeResult is the outcome of applying an answer to a snapshot.
type ChangeResult struct {
	// Answers is the new snapshot. It is the input snapshot when nothing
	// changed.
	Answers model.Snapshot
	// Changed is false when the new value equals the stored one.
	Changed bool
	// Value is the value as stored, after normalisation.
	Value model.Answer
	// Cleared lists the snapshot keys removed because they were route
	// targets of the changed question.
	Cleared []string
}

// ApplyAnswer stores v for the question and propagates the change.
//
// Matrix values are copied and an all-empty matrix is stored as an empty
// one, which equals no answer. When a branching question really changes,
// the answers of the question targets of both its previous and its new
// route are deleted so no stale answer survives behind a route. A None
// value deletes the answer.
func (e *Engine) ApplyAnswer(sectionID, questionID string, v model.Answer, answers model.Snapshot) (ChangeResult, error) {
	q, ok := e.survey.Question(sectionID, questionID)
	if !ok {
		return ChangeResult{Answers: answers}, fmt.Errorf("%w: %s", ErrQuestionNotFound, model.FQID(sectionID, questionID))
	}

	key := model.FQID(sectionID, questionID)
	prev, had := answers[key]

	v = v.Clone()
	if v.Kind == model.AnswerMatrix && v.MatrixAllEmpty() {
		v = model.MatrixAnswer()
	}

	changed := !prev.Equal(v)
	if v.Kind == model.AnswerMatrix && len(v.Matrix) == 0 && !prev.IsAnswered() {
		changed = false
	}
	if !changed {
		return ChangeResult{Answers: answers, Value: v}, nil
	}

	next := maps.Clone(answers)
	if next == nil {
		next = model.Snapshot{}
	}
	if v.Kind == model.AnswerNone {
		delete(next, key)
	} else {
		next[key] = v
	}

	res := ChangeResult{Answers: next, Changed: true, Value: v}
	if !q.Branching() {
		return res, nil
	}

	targets := e.Resolve(q, v).Questions
	if had {
		for _, t := range e.Resolve(q, prev).Questions {
			if !slices.Contains(targets, t) {
				targets = append(targets, t)
			}
		}
	}
	for _, t := range targets {
		if t == questionID {
			continue
		}
		k := model.FQID(sectionID, t)
		if _, ok := next[k]; ok {
			delete(next, k)
			res.Cleared = append(res.Cleared, k)
		}
	}

	return res, nil
}
