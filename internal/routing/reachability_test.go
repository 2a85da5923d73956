package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/survey-backend/internal/model"
)

func TestVisibleSectionsWithoutAnswers(t *testing.T) {
	e := mustEngine(t, storeAudit)
	assert.Equal(t, []string{"S1", "S2"}, e.VisibleSections(model.Snapshot{}, nil, "S1"))
}

func TestVisibleSectionsSkipRoute(t *testing.T) {
	e := mustEngine(t, storeAudit)
	answers := model.Snapshot{"S1/Q3": model.TextAnswer("yes")}

	assert.Equal(t, []string{"S1", "S3"}, e.VisibleSections(answers, []string{"S1"}, "S1"))
	assert.False(t, e.IsReachable("S2", answers))
	assert.True(t, e.IsReachable("S3", answers))
	// implicit edge after the routed section
	assert.True(t, e.IsReachable("S4", answers))
}

func TestVisibleSectionsIncludesCurrentAndVisited(t *testing.T) {
	e := mustEngine(t, storeAudit)

	// S4 was visited through the "no" route; with the route gone it is
	// still reachable by falling through S2 and S3.
	got := e.VisibleSections(model.Snapshot{}, []string{"S1", "S4"}, "S1")
	assert.Equal(t, []string{"S1", "S2", "S4"}, got)

	got = e.VisibleSections(model.Snapshot{}, nil, "S3")
	assert.Equal(t, []string{"S1", "S2", "S3"}, got)
}

func TestIsReachableUnknownSection(t *testing.T) {
	e := mustEngine(t, storeAudit)
	assert.False(t, e.IsReachable("S42", model.Snapshot{}))
}

func TestPruneUnreachable(t *testing.T) {
	e := mustEngine(t, storeAudit)

	answers := model.Snapshot{
		"S1/Q3": model.TextAnswer("yes"),
		"S2/Q1": model.TextAnswer("notes from the first pass"),
		"S3/Q1": model.NumberAnswer(30),
	}

	p := e.PruneUnreachable(answers, []string{"S1", "S2", "S3"}, []string{"S1", "S2"})

	assert.NotContains(t, p.Answers, "S2/Q1")
	assert.Contains(t, p.Answers, "S3/Q1")
	assert.Equal(t, []string{"S1"}, p.History)
	assert.Equal(t, []model.RemovedQuestionRef{
		{SectionID: "S2", Section: "Filler", QuestionNo: "Q1"},
	}, p.Removed)
	// input untouched
	assert.Contains(t, answers, "S2/Q1")
}

func TestPruneUnreachableRevert(t *testing.T) {
	e := mustEngine(t, storeAudit)

	// The respondent routed to Competitors, answered there, then went back
	// and picked "no", which routes to Display instead.
	answers := model.Snapshot{
		"S1/Q3": model.TextAnswer("no"),
		"S3/Q1": model.NumberAnswer(30),
	}
	p := e.PruneUnreachable(answers, []string{"S1", "S3"}, []string{"S1", "S3"})

	assert.Empty(t, p.Answers["S3/Q1"])
	assert.NotContains(t, p.Answers, "S3/Q1")
	assert.Equal(t, []string{"S1"}, p.History)
	assert.Equal(t, []model.RemovedQuestionRef{
		{SectionID: "S3", Section: "Competitors", QuestionNo: "Q1"},
	}, p.Removed)
}

func TestPruneNothingUnreachable(t *testing.T) {
	e := mustEngine(t, storeAudit)
	answers := model.Snapshot{"S1/Q1": model.NumberAnswer(3)}

	p := e.PruneUnreachable(answers, []string{"S1"}, []string{"S1"})
	assert.Empty(t, p.Removed)
	assert.Equal(t, answers, p.Answers)
}

const danglingRoute = `{
  "A": {
    "section_title": "Entry", "order": 1,
    "Q1": {"question": "Open?", "type": "MCQ (Single Choice)",
      "properties": {"branching": true, "route_evaluation_conditions": [
        {"function": "if_selected", "option_id": "yes", "section_routing": ["Archived section"]}]}}
  },
  "B": {
    "section_title": "Next", "order": 2,
    "Q1": {"question": "Count", "type": "Number"}
  }
}`

func TestUnresolvedSectionRouteKeepsImplicitEdge(t *testing.T) {
	e := mustEngine(t, danglingRoute)
	answers := model.Snapshot{"A/Q1": model.TextAnswer("yes")}

	// Every target of the fired route was dropped, so the respondent
	// falls through to the next section by order.
	assert.True(t, e.IsReachable("B", answers))
	assert.Equal(t, []string{"A", "B"}, e.VisibleSections(answers, []string{"A"}, "A"))

	p := e.PruneUnreachable(model.Snapshot{"A/Q1": model.TextAnswer("yes"), "B/Q1": model.NumberAnswer(4)}, []string{"A", "B"}, nil)
	assert.Empty(t, p.Removed)
}
