package session

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/survey-backend/internal/model"
	"github.com/stemsi/survey-backend/internal/routing"
)

// pathway lets the first answer pick the path: "a" goes through Detail,
// "b" skips straight to Wrap up and "c" ends the survey.
const pathway = `{
  "title": "Pathway",
  "S1": {
    "section_title": "Intro",
    "order": 1,
    "Q1": {
      "question": "<b>Pick</b> a path",
      "type": "MCQ (Single Choice)",
      "properties": {
        "branching": true,
        "route_evaluation_conditions": [
          {"function": "if_selected", "option_id": "a", "section_routing": ["S2"]},
          {"function": "if_selected", "option_id": "b", "section_routing": ["Wrap up"]},
          {"function": "if_selected", "option_id": "c", "route": ["End"]}
        ]
      }
    }
  },
  "S2": {
    "section_title": "Detail",
    "order": 2,
    "Q1": {"question": "Describe it", "type": "Small Answer"},
    "Q2": {"question": "How many?", "type": "Number", "isRequired": false, "properties": {"lower_limit": 1}}
  },
  "S3": {
    "section_title": "Wrap up",
    "order": 3,
    "Q1": {"question": "Anything else?", "type": "Large Answer", "isRequired": false}
  }
}`

var testCtx = model.SessionContext{
	FormID:      "F1",
	SessionID:   "sess-1",
	TerritoryID: "T1",
	StoreID:     "ST1",
	Region:      "IN",
}

func mustEngine(t *testing.T) *routing.Engine {
	t.Helper()
	return engineFor(t, pathway)
}

func engineFor(t *testing.T, definition string) *routing.Engine {
	t.Helper()
	s, err := model.ParseSurvey([]byte(definition))
	require.NoError(t, err)
	e, err := routing.NewEngine(s, zerolog.Nop())
	require.NoError(t, err)
	return e
}

func reduce(t *testing.T, e *routing.Engine, s State, ev Event) (State, Effects) {
	t.Helper()
	next, eff, err := Reduce(e, s, ev)
	require.NoError(t, err)
	return next, eff
}

func answer(sectionID, questionID string, v model.Answer) AnswerChanged {
	return AnswerChanged{SectionID: sectionID, QuestionID: questionID, Value: v}
}

type submitCall struct {
	Submitted []model.SubmittedQuestion
	Removed   []model.RemovedQuestionRef
}

// fakePersistence records calls; block, when set, delays SubmitAnswers
// until the context is done.
type fakePersistence struct {
	mu        sync.Mutex
	calls     []submitCall
	completed int
	err       error
	block     bool
	progress  *model.Progress
}

func (f *fakePersistence) SubmitAnswers(ctx context.Context, _ model.SessionContext, submitted []model.SubmittedQuestion, removed []model.RemovedQuestionRef) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, submitCall{Submitted: submitted, Removed: removed})
	return nil
}

func (f *fakePersistence) FetchProgress(context.Context, model.SessionContext) (*model.Progress, error) {
	if f.progress == nil {
		return &model.Progress{}, nil
	}
	return f.progress, nil
}

func (f *fakePersistence) CompleteSession(context.Context, model.SessionContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.completed++
	return nil
}

func (f *fakePersistence) Calls() []submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitCall(nil), f.calls...)
}
