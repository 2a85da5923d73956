package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyDefinition = `{
  "title": "Retail visit",
  "description": "Monthly audit",
  "S2": {
    "section_title": "Shelf",
    "order": "2",
    "Q1": {"question": "Facings", "type": "Number", "properties": {"lower_limit": "0", "upper_limit": ""}}
  },
  "S1": {
    "section_title": "Intro",
    "order": {"order": 1},
    "q_order": {"q_order": [{"id": "Q2", "order": 2}, {"id": "Q1", "order": 1}]},
    "Q1": {"question": "Store open?", "type": "Text", "isRequired": false,
      "properties": {"branching": true, "route_evaluation_conditions": [
        {"function": "ifSelected", "option_id": 1, "route": "S1/Q2", "sections": "Shelf"}
      ]}},
    "Q2": {"question": "Rows", "type": "Matrix", "y_axis_titles": ["A", "B"]}
  }
}`

func TestParseSurveyLegacyShapes(t *testing.T) {
	s, err := ParseSurvey([]byte(legacyDefinition))
	require.NoError(t, err)

	assert.Equal(t, "Retail visit", s.Title)
	assert.Equal(t, []string{"S1", "S2"}, s.SortedSectionIDs())
	assert.Equal(t, []string{"Q1", "Q2"}, s.Sections["S1"].QOrder)

	q1, ok := s.Question("S1", "Q1")
	require.True(t, ok)
	assert.Equal(t, "Q1", q1.ID)
	assert.Equal(t, QuestionTypeShortText, q1.Type)
	assert.False(t, q1.Required())
	assert.True(t, q1.Branching())

	c := q1.Properties.Conditions[0]
	assert.Equal(t, FlexString("1"), c.OptionID)
	assert.Equal(t, StringList{"S1/Q2"}, c.Route)
	assert.Equal(t, []string{"Shelf"}, c.SectionTargets())

	q2, _ := s.Question("S1", "Q2")
	assert.True(t, q2.Required())
	assert.Equal(t, []string{"A", "B"}, q2.Rows())

	facings, _ := s.Question("S2", "Q1")
	assert.Equal(t, Num(0), facings.Properties.LowerLimit)
	assert.False(t, facings.Properties.UpperLimit.Valid)
}

func TestResolveSection(t *testing.T) {
	s, err := ParseSurvey([]byte(legacyDefinition))
	require.NoError(t, err)

	id, ok := s.ResolveSection("shelf")
	assert.True(t, ok)
	assert.Equal(t, "S2", id)

	id, ok = s.ResolveSection("S1")
	assert.True(t, ok)
	assert.Equal(t, "S1", id)

	_, ok = s.ResolveSection("Checkout")
	assert.False(t, ok)
}

func TestSurveyRoundTrip(t *testing.T) {
	s, err := ParseSurvey([]byte(legacyDefinition))
	require.NoError(t, err)

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	again, err := ParseSurvey(raw)
	require.NoError(t, err)
	assert.Equal(t, s, again)
}

func TestParseSurveyYAML(t *testing.T) {
	doc := `
title: Retail visit
S1:
  section_title: Intro
  order: 1
  Q1:
    question: Store open?
    type: MCQ (Single Choice)
    properties:
      branching: true
      route_evaluation_conditions:
        - function: if_selected
          option_id: "no"
          route: [End]
`
	s, err := ParseSurveyYAML([]byte(doc))
	require.NoError(t, err)

	q, ok := s.Question("S1", "Q1")
	require.True(t, ok)
	assert.Equal(t, QuestionTypeSingleChoice, q.Type)
	assert.Equal(t, StringList{"End"}, q.Properties.Conditions[0].Route)
}

func TestSplitFQID(t *testing.T) {
	sid, qid, ok := SplitFQID(FQID("S1", "Q3"))
	assert.True(t, ok)
	assert.Equal(t, "S1", sid)
	assert.Equal(t, "Q3", qid)

	_, _, ok = SplitFQID("orphan")
	assert.False(t, ok)
}
