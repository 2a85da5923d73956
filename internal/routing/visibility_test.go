package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/survey-backend/internal/model"
)

func TestComputeVisibleNumericBranch(t *testing.T) {
	e := mustEngine(t, storeAudit)

	t.Run("above threshold reveals the target", func(t *testing.T) {
		vis := e.ComputeVisible("S1", model.Snapshot{"S1/Q1": model.NumberAnswer(60)})
		assert.Equal(t, []string{"Q1", "Q2", "Q3"}, vis.Order)
	})

	t.Run("below threshold keeps it hidden", func(t *testing.T) {
		vis := e.ComputeVisible("S1", model.Snapshot{"S1/Q1": model.NumberAnswer(40)})
		assert.Equal(t, []string{"Q1", "Q3"}, vis.Order)
	})
}

func TestComputeVisibleCollectsSectionRoutes(t *testing.T) {
	e := mustEngine(t, storeAudit)

	vis := e.ComputeVisible("S1", model.Snapshot{"S1/Q3": model.TextAnswer("yes")})
	assert.Equal(t, []string{"Q1", "Q3", "Q4"}, vis.Order)
	assert.Equal(t, []string{"S3"}, vis.Sections)
	assert.False(t, vis.EndReached)
}

func TestComputeVisibleRoutedSetExclusivity(t *testing.T) {
	e := mustEngine(t, storeAudit)

	// Q2 and Q4 are route targets; an answer alone never makes them visible.
	vis := e.ComputeVisible("S1", model.Snapshot{
		"S1/Q2": model.TextAnswer("stale"),
		"S1/Q4": model.TextAnswer("stale"),
	})
	assert.ElementsMatch(t, []string{"Q1", "Q3"}, ids(vis.Questions))
}

func TestComputeVisibleIsIdempotent(t *testing.T) {
	e := mustEngine(t, storeAudit)
	answers := model.Snapshot{"S1/Q1": model.NumberAnswer(70), "S1/Q3": model.TextAnswer("no")}

	first := e.ComputeVisible("S1", answers)
	second := e.ComputeVisible("S1", answers)
	assert.Equal(t, first, second)
}

func TestComputeVisibleForcesFirstQuestion(t *testing.T) {
	e := mustEngine(t, `{
	  "S1": {
	    "section_title": "Loop",
	    "order": 1,
	    "Q1": {"question": "a", "type": "Dropdown", "properties": {"branching": true,
	      "route_evaluation_conditions": [{"function": "if_answered", "route": ["S1/Q2"]}]}},
	    "Q2": {"question": "b", "type": "Dropdown", "properties": {"branching": true,
	      "route_evaluation_conditions": [{"function": "if_answered", "route": ["S1/Q1"]}]}}
	  }
	}`)

	vis := e.ComputeVisible("S1", model.Snapshot{})
	assert.Equal(t, []string{"Q1"}, vis.Order)
}

func TestComputeVisibleUnknownSection(t *testing.T) {
	e := mustEngine(t, storeAudit)
	vis := e.ComputeVisible("S9", model.Snapshot{})
	assert.Empty(t, vis.Questions)
}

func TestInitialVisible(t *testing.T) {
	e := mustEngine(t, storeAudit)
	vis := e.InitialVisible("S1")
	assert.Equal(t, []string{"Q1", "Q3"}, vis.Order)
}

func TestOrderedQuestionIDs(t *testing.T) {
	sec := &model.Section{
		QOrder: []string{"Q10", "Q2"},
		Questions: map[string]*model.Question{
			"Q1": {}, "Q2": {}, "Q10": {}, "Q3": {}, "notes": {},
		},
	}
	assert.Equal(t, []string{"Q10", "Q2", "Q1", "Q3", "notes"}, OrderedQuestionIDs(sec))
}
