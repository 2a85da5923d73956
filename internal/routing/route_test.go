package routing

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/survey-backend/internal/model"
)

func TestExtractQuestionID(t *testing.T) {
	assert.Equal(t, "Q3", ExtractQuestionID("S1/Q3"))
	assert.Equal(t, "Q12", ExtractQuestionID("survey/S2/Q12/details"))
	assert.Equal(t, "intro", ExtractQuestionID("S1/intro"))
	assert.Equal(t, "Q7", ExtractQuestionID("Q7"))
}

func TestResolveFirstMatchWins(t *testing.T) {
	q := &model.Question{
		ID:   "Q1",
		Type: model.QuestionTypeNumber,
		Properties: model.Properties{
			Branching: true,
			Conditions: []model.RouteCondition{
				{Function: FuncGreaterThan, MainValue: "10", Route: model.StringList{"S1/Q2"}},
				{Function: FuncGreaterThan, MainValue: "5", Route: model.StringList{"S1/Q3"}},
			},
		},
	}
	e := mustEngine(t, storeAudit)

	assert.Equal(t, []string{"Q2"}, e.Resolve(q, model.NumberAnswer(20)).Questions)
	assert.Equal(t, []string{"Q3"}, e.Resolve(q, model.NumberAnswer(7)).Questions)
	assert.True(t, e.Resolve(q, model.NumberAnswer(1)).Empty())
}

func TestResolveSkipsMalformedConditions(t *testing.T) {
	q := &model.Question{
		ID:   "Q1",
		Type: model.QuestionTypeNumber,
		Properties: model.Properties{
			Branching: true,
			Conditions: []model.RouteCondition{
				{Function: "is_divisible_by", MainValue: "2", Route: model.StringList{"S1/Q2"}},
				{Function: FuncIfAnswered, Route: model.StringList{"S1/Q3"}},
			},
		},
	}
	e := mustEngine(t, storeAudit)
	assert.Equal(t, []string{"Q3"}, e.Resolve(q, model.NumberAnswer(4)).Questions)
}

func TestResolveRequiresExplicitBranching(t *testing.T) {
	q := &model.Question{
		ID:   "Q1",
		Type: model.QuestionTypeShortText,
		Properties: model.Properties{
			Conditions: []model.RouteCondition{{Function: FuncIfAnswered, Route: model.StringList{"S1/Q2"}}},
		},
	}
	e := mustEngine(t, storeAudit)
	assert.True(t, e.Resolve(q, model.TextAnswer("x")).Empty())
}

func TestResolveMultiSelectBypass(t *testing.T) {
	e := mustEngine(t, storeAudit)
	base := model.Question{
		ID:   "Q1",
		Type: model.QuestionTypeMultipleChoice,
		Properties: model.Properties{
			Branching: true,
			Conditions: []model.RouteCondition{
				{Function: FuncIfSelected, OptionID: "a", Route: model.StringList{"S1/Q2"}},
			},
		},
	}

	t.Run("several selections without a multi condition", func(t *testing.T) {
		q := base
		assert.True(t, e.Resolve(&q, model.ChoicesAnswer("a", "b")).Empty())
	})

	t.Run("several selections with if_answered", func(t *testing.T) {
		q := base
		q.Properties.Conditions = append([]model.RouteCondition{}, base.Properties.Conditions...)
		q.Properties.Conditions = append(q.Properties.Conditions,
			model.RouteCondition{Function: FuncIfAnswered, Route: model.StringList{"S1/Q3"}})
		assert.Equal(t, []string{"Q3"}, e.Resolve(&q, model.ChoicesAnswer("a", "b")).Questions)
	})
}

func TestResolveEndTarget(t *testing.T) {
	q := &model.Question{
		ID:   "Q1",
		Type: model.QuestionTypeSingleChoice,
		Properties: model.Properties{
			Branching: true,
			Conditions: []model.RouteCondition{
				{Function: FuncIfSelected, OptionID: "closed", Route: model.StringList{"End"}},
			},
		},
	}
	e := mustEngine(t, storeAudit)

	r := e.Resolve(q, model.TextAnswer("closed"))
	assert.True(t, r.End)
	assert.Empty(t, r.Questions)
}

func TestResolveSections(t *testing.T) {
	e := mustEngine(t, storeAudit)
	assert.Equal(t, []string{"S3", "S4"}, e.ResolveSections([]string{"Competitors", "S4", "nowhere", "competitors"}))
}

func TestNewEngineRejectsEmptySurvey(t *testing.T) {
	_, err := NewEngine(&model.Survey{Title: "empty"}, zerolog.Nop())
	require.ErrorIs(t, err, ErrNoSections)
}
