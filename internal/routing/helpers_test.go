package routing

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/survey-backend/internal/model"
)

// storeAudit is a four-section survey: the first section routes to either
// "Competitors" or "Display" depending on whether the store stocks rivals.
const storeAudit = `{
  "title": "Store audit",
  "S1": {
    "section_title": "Store",
    "order": {"order": 1},
    "q_order": {"q_order": ["Q1", "Q2", "Q3", "Q4"]},
    "Q1": {
      "question": "How many units are on display?",
      "type": "Number",
      "properties": {
        "branching": true,
        "route_evaluation_conditions": [
          {"function": "is_greater_than", "main_value": "50", "route": ["S1/Q2"]}
        ]
      }
    },
    "Q2": {"question": "Why so many?", "type": "Small Answer"},
    "Q3": {
      "question": "Do you stock competitor brands?",
      "type": "MCQ (Single Choice)",
      "isRequired": false,
      "properties": {
        "branching": true,
        "route_evaluation_conditions": [
          {"function": "ifSelected", "option_id": "yes", "route": "S1/Q4", "section_routing": ["competitors"]},
          {"function": "if_selected", "option_id": "no", "section_routing": "S4"}
        ]
      }
    },
    "Q4": {"question": "Which ones?", "type": "Large Answer", "isRequired": false}
  },
  "S2": {
    "section_title": "Filler",
    "order": 2,
    "Q1": {"question": "Notes", "type": "Text", "isRequired": false}
  },
  "S3": {
    "section_title": "Competitors",
    "order": 3,
    "Q1": {"question": "Competitor share", "type": "Number"}
  },
  "S4": {
    "section_title": "Display",
    "order": 4,
    "Q1": {"question": "Display photo", "type": "File Upload"}
  }
}`

func mustSurvey(t *testing.T, raw string) *model.Survey {
	t.Helper()
	s, err := model.ParseSurvey([]byte(raw))
	require.NoError(t, err)
	return s
}

func mustEngine(t *testing.T, raw string) *Engine {
	t.Helper()
	e, err := NewEngine(mustSurvey(t, raw), zerolog.Nop())
	require.NoError(t, err)
	return e
}

func question(t *testing.T, e *Engine, sectionID, questionID string) *model.Question {
	t.Helper()
	q, ok := e.Survey().Question(sectionID, questionID)
	require.True(t, ok, "missing %s/%s", sectionID, questionID)
	return q
}

func ids(set QuestionSet) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
