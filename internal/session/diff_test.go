package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/survey-backend/internal/model"
)

func TestTimestamp(t *testing.T) {
	at := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-02 01:30:00", Timestamp(at, "IN"))
	assert.Equal(t, "2024-03-02 01:30:00", Timestamp(at, "in"))
	assert.Equal(t, "2024-03-01T20:00:00Z", Timestamp(at, "ID"))
	assert.Equal(t, "2024-03-01T20:00:00Z", Timestamp(at, ""))
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Pick a path", PlainText("<b>Pick</b> a path"))
	assert.Equal(t, "Tom & Jerry", PlainText(" <p>Tom &amp; Jerry</p> "))
}

func TestDiff(t *testing.T) {
	e := mustEngine(t)
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	saved := model.Snapshot{
		"S1/Q1": model.TextAnswer("a"),
		"S2/Q1": model.TextAnswer("shelf"),
		"S2/Q2": model.NumberAnswer(4),
	}
	current := model.Snapshot{
		"S1/Q1": model.TextAnswer("a"),
		"S2/Q1": model.TextAnswer("rack"),
		"S2/Q2": model.MatrixAnswer(),
		"S3/Q1": model.TextAnswer("all good"),
	}

	submitted, removed := Diff(e, saved, current, "IN", now)

	require.Len(t, submitted, 2)
	assert.Equal(t, model.SubmittedQuestion{
		SectionID:  "S2",
		Section:    "Detail",
		QuestionNo: "Q1",
		Question:   "Describe it",
		AnswerText: "rack",
		Answer:     model.TextAnswer("rack"),
		Timestamp:  "2024-03-01 13:30:00",
	}, submitted[0])
	assert.Equal(t, "S3", submitted[1].SectionID)
	assert.Equal(t, "Wrap up", submitted[1].Section)

	assert.Equal(t, []model.RemovedQuestionRef{
		{SectionID: "S2", Section: "Detail", QuestionNo: "Q2"},
	}, removed)
}

func TestDiffNothingChanged(t *testing.T) {
	e := mustEngine(t)
	snap := model.Snapshot{"S1/Q1": model.TextAnswer("a")}

	submitted, removed := Diff(e, snap, snap.Clone(), "", time.Now())
	assert.Empty(t, submitted)
	assert.Empty(t, removed)
}

func TestDiffStripsQuestionMarkup(t *testing.T) {
	e := mustEngine(t)

	submitted, _ := Diff(e, model.Snapshot{}, model.Snapshot{"S1/Q1": model.TextAnswer("b")}, "", time.Now())
	require.Len(t, submitted, 1)
	assert.Equal(t, "Pick a path", submitted[0].Question)
}
