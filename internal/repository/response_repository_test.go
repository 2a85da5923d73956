package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/survey-backend/internal/model"
)

func TestCollapseKeepsLastOperation(t *testing.T) {
	sc := model.SessionContext{FormID: "F1", SessionID: "A"}
	other := model.SessionContext{FormID: "F1", SessionID: "B"}

	batches := []*model.ResponseBatch{
		{Session: sc, Submitted: []model.SubmittedQuestion{
			{SectionID: "S1", QuestionNo: "Q1", AnswerText: "first"},
			{SectionID: "S1", QuestionNo: "Q2", AnswerText: "kept"},
		}},
		{Session: sc, Removed: []model.RemovedQuestionRef{{SectionID: "S1", QuestionNo: "Q1"}}},
		{Session: other, Submitted: []model.SubmittedQuestion{{SectionID: "S1", QuestionNo: "Q1", AnswerText: "b"}}},
		{Session: sc, Submitted: []model.SubmittedQuestion{{SectionID: "S1", QuestionNo: "Q2", AnswerText: "last"}}},
	}

	keys, ops := collapse(batches)
	require.Len(t, keys, 3)
	assert.Equal(t, responseKey{"F1", "A", "S1", "Q1"}, keys[0])
	assert.Nil(t, ops[keys[0]].submit)

	require.NotNil(t, ops[keys[1]].submit)
	assert.Equal(t, "last", ops[keys[1]].submit.AnswerText)

	assert.Equal(t, "B", keys[2].sessionID)
}

func TestCollapseResubmitAfterRemoval(t *testing.T) {
	sc := model.SessionContext{FormID: "F1", SessionID: "A"}
	batches := []*model.ResponseBatch{
		{Session: sc, Removed: []model.RemovedQuestionRef{{SectionID: "S2", QuestionNo: "Q1"}}},
		{Session: sc, Submitted: []model.SubmittedQuestion{{SectionID: "S2", QuestionNo: "Q1", AnswerText: "back"}}},
	}

	keys, ops := collapse(batches)
	require.Len(t, keys, 1)
	require.NotNil(t, ops[keys[0]].submit)
	assert.Equal(t, "back", ops[keys[0]].submit.AnswerText)
}
