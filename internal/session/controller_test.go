package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/survey-backend/internal/metrics"
	"github.com/stemsi/survey-backend/internal/model"
	"github.com/stemsi/survey-backend/internal/routing"
)

func newController(t *testing.T, p *fakePersistence, opts Options) (*Controller, *metrics.Metrics) {
	t.Helper()
	return controllerFor(t, mustEngine(t), p, opts)
}

func controllerFor(t *testing.T, e *routing.Engine, p *fakePersistence, opts Options) (*Controller, *metrics.Metrics) {
	t.Helper()
	m := metrics.Nop()
	c := NewController(e, NewState(e, testCtx), p, opts, m, zerolog.Nop())
	t.Cleanup(c.Close)
	return c, m
}

func TestControllerAnswerIsDebounced(t *testing.T) {
	c, m := newController(t, &fakePersistence{}, Options{Delays: Delays{
		Text: 20 * time.Millisecond, Number: 20 * time.Millisecond,
		Matrix: 20 * time.Millisecond, Default: 20 * time.Millisecond,
	}})

	view, err := c.Answer("S1", "Q1", model.TextAnswer("a"), false)
	require.NoError(t, err)
	require.Len(t, view.Questions, 1)
	assert.Equal(t, model.TextAnswer("a"), *view.Questions[0].Answer)

	assert.Eventually(t, func() bool {
		return len(c.View().Sections) == 2
	}, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, testutil.ToFloat64(m.AnswerChanges.WithLabelValues("true")))
}

func TestControllerAnswerFlush(t *testing.T) {
	c, m := newController(t, &fakePersistence{}, Options{})

	view, err := c.Answer("S1", "Q1", model.TextAnswer("a"), true)
	require.NoError(t, err)
	assert.Len(t, view.Sections, 2)
	assert.InDelta(t, 50.0, view.Progress, 0.001)
	assert.EqualValues(t, 1, testutil.ToFloat64(m.Recomputations))

	// Same value again is not a change.
	_, err = c.Answer("S1", "Q1", model.TextAnswer("a"), true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, testutil.ToFloat64(m.AnswerChanges.WithLabelValues("false")))
}

func TestControllerAnswerUnknownQuestion(t *testing.T) {
	c, _ := newController(t, &fakePersistence{}, Options{})

	_, err := c.Answer("S1", "Q9", model.TextAnswer("a"), true)
	assert.Error(t, err)
}

func TestControllerNextAutosaves(t *testing.T) {
	p := &fakePersistence{}
	c, _ := newController(t, p, Options{})
	ctx := context.Background()

	_, err := c.Answer("S1", "Q1", model.TextAnswer("a"), false)
	require.NoError(t, err)

	view, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "S2", view.CurrentSection)
	assert.True(t, view.CanGoBack)
	assert.Empty(t, view.AutosaveError)

	calls := p.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Submitted, 1)
	assert.Equal(t, "S1", calls[0].Submitted[0].SectionID)
	assert.Equal(t, "Intro", calls[0].Submitted[0].Section)
	assert.Contains(t, c.State().Saved, "S1/Q1")

	// Going back does not save, and nothing changed since the last save.
	_, err = c.Back(ctx)
	require.NoError(t, err)
	assert.Len(t, p.Calls(), 1)
}

func TestControllerNextValidation(t *testing.T) {
	p := &fakePersistence{}
	c, m := newController(t, p, Options{})

	view, err := c.Next(context.Background())
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "S1", view.CurrentSection)
	assert.NotEmpty(t, view.Errors["S1/Q1"])
	assert.NotEmpty(t, view.Questions[0].Error)
	assert.Empty(t, p.Calls())
	assert.EqualValues(t, 1, testutil.ToFloat64(m.Navigations.WithLabelValues("next", "rejected")))
}

func TestControllerAutosaveTimeoutDoesNotBlockNavigation(t *testing.T) {
	p := &fakePersistence{block: true}
	c, m := newController(t, p, Options{AutosaveTimeout: 20 * time.Millisecond})

	_, err := c.Answer("S1", "Q1", model.TextAnswer("a"), false)
	require.NoError(t, err)

	view, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "S2", view.CurrentSection)
	assert.NotEmpty(t, view.AutosaveError)
	assert.Empty(t, c.State().Saved)
	assert.EqualValues(t, 1, testutil.ToFloat64(m.AutosaveFailures.WithLabelValues("timeout")))
}

func TestControllerRetriesRemovalsAfterFailure(t *testing.T) {
	p := &fakePersistence{}
	c, _ := newController(t, p, Options{})
	ctx := context.Background()

	_, err := c.Answer("S1", "Q1", model.TextAnswer("a"), false)
	require.NoError(t, err)
	_, err = c.Next(ctx)
	require.NoError(t, err)
	_, err = c.Answer("S2", "Q1", model.TextAnswer("shelf"), false)
	require.NoError(t, err)
	_, err = c.Back(ctx)
	require.NoError(t, err)
	_, err = c.Answer("S1", "Q1", model.TextAnswer("b"), true)
	require.NoError(t, err)
	require.NotEmpty(t, c.State().PendingRemoved)

	p.err = errors.New("redis down")
	_, err = c.Next(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, c.State().PendingRemoved)

	p.err = nil
	_, err = c.Reset(ctx)
	require.NoError(t, err)
	assert.Empty(t, c.State().PendingRemoved)

	calls := p.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].Removed, model.RemovedQuestionRef{SectionID: "S2", Section: "Detail", QuestionNo: "Q1"})
	assert.Contains(t, calls[1].Removed, model.RemovedQuestionRef{SectionID: "S1", Section: "Intro", QuestionNo: "Q1"})
}

func TestControllerSubmit(t *testing.T) {
	t.Run("completes the session", func(t *testing.T) {
		p := &fakePersistence{}
		c, _ := newController(t, p, Options{})

		_, err := c.Answer("S1", "Q1", model.TextAnswer("c"), true)
		require.NoError(t, err)

		view, err := c.Submit(context.Background())
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusCompleted, view.Status)
		assert.False(t, view.CanSubmit)
		assert.Equal(t, 1, p.completed)

		_, err = c.Next(context.Background())
		assert.ErrorIs(t, err, ErrCompleted)
	})

	t.Run("persistence failure keeps it open", func(t *testing.T) {
		p := &fakePersistence{err: errors.New("db down")}
		c, _ := newController(t, p, Options{})

		_, err := c.Answer("S1", "Q1", model.TextAnswer("c"), true)
		require.NoError(t, err)

		view, err := c.Submit(context.Background())
		require.Error(t, err)
		assert.Equal(t, model.SessionStatusInProgress, view.Status)
		assert.NotEmpty(t, view.AutosaveError)
		assert.Zero(t, p.completed)
	})
}

func TestControllerSubscribe(t *testing.T) {
	c, _ := newController(t, &fakePersistence{}, Options{})

	views, cancel := c.Subscribe()
	_, err := c.Answer("S1", "Q1", model.TextAnswer("a"), true)
	require.NoError(t, err)

	select {
	case v := <-views:
		assert.Len(t, v.Sections, 2)
	case <-time.After(time.Second):
		t.Fatal("no view published")
	}

	cancel()
	cancel()
	_, open := <-views
	assert.False(t, open)
}

func TestControllerCloseEndsSubscriptions(t *testing.T) {
	c, _ := newController(t, &fakePersistence{}, Options{})

	views, _ := c.Subscribe()
	c.Close()
	_, open := <-views
	assert.False(t, open)

	late, _ := c.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

// followUp reveals Q3 once Q2 is answered "y".
const followUp = `{
  "title": "Follow up",
  "S1": {
    "section_title": "Visit",
    "order": 1,
    "Q1": {"question": "Store name", "type": "Small Answer", "isRequired": false},
    "Q2": {
      "question": "Any complaints?",
      "type": "MCQ (Single Choice)",
      "properties": {
        "branching": true,
        "route_evaluation_conditions": [
          {"function": "if_selected", "option_id": "y", "route": ["S1/Q3"]}
        ]
      }
    },
    "Q3": {"question": "Describe the complaint", "type": "Large Answer"}
  }
}`

var slowDelays = Delays{Text: time.Hour, Number: time.Hour, Matrix: time.Hour, Default: time.Hour}

func questionIDs(v View) []string {
	ids := make([]string, 0, len(v.Questions))
	for _, q := range v.Questions {
		ids = append(ids, q.ID)
	}
	return ids
}

func TestControllerRecomputeRetriesAfterConcurrentChange(t *testing.T) {
	c, m := controllerFor(t, engineFor(t, followUp), &fakePersistence{}, Options{Delays: slowDelays})

	// A run that read the state before the answer landed.
	c.mu.Lock()
	gen, base := c.gen, c.state
	c.mu.Unlock()

	_, err := c.Answer("S1", "Q2", model.TextAnswer("y"), false)
	require.NoError(t, err)

	assert.False(t, c.commitRecompute(gen, base))
	assert.False(t, c.State().Visible.Questions.Has("Q3"))

	c.recompute()
	assert.True(t, c.State().Visible.Questions.Has("Q3"))
	assert.EqualValues(t, 1, testutil.ToFloat64(m.Recomputations))

	// Already derived: nothing to do.
	c.recompute()
	assert.EqualValues(t, 1, testutil.ToFloat64(m.Recomputations))
}

func TestControllerFlushWaitsForRunningRecompute(t *testing.T) {
	c, _ := controllerFor(t, engineFor(t, followUp), &fakePersistence{}, Options{Delays: slowDelays})

	c.recomputing.Lock()
	done := make(chan View, 1)
	go func() {
		v, err := c.Answer("S1", "Q2", model.TextAnswer("y"), true)
		assert.NoError(t, err)
		done <- v
	}()

	require.Eventually(t, func() bool {
		_, ok := c.State().Answers["S1/Q2"]
		return ok
	}, time.Second, time.Millisecond)
	c.recomputing.Unlock()

	select {
	case v := <-done:
		assert.Equal(t, []string{"Q1", "Q2", "Q3"}, questionIDs(v))
	case <-time.After(time.Second):
		t.Fatal("flushed answer did not return")
	}
	assert.True(t, c.State().Visible.Questions.Has("Q3"))
}

func TestControllerNavigationCancelsPendingRecompute(t *testing.T) {
	delay := 30 * time.Millisecond
	c, m := newController(t, &fakePersistence{}, Options{Delays: Delays{
		Text: delay, Number: delay, Matrix: delay, Default: delay,
	}})

	_, err := c.Answer("S1", "Q1", model.TextAnswer("a"), false)
	require.NoError(t, err)
	require.Equal(t, 1, c.debounce.Pending())

	view, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "S2", view.CurrentSection)
	assert.Zero(t, c.debounce.Pending())

	time.Sleep(3 * delay)
	assert.Zero(t, testutil.ToFloat64(m.Recomputations))
	assert.Zero(t, c.debounce.Pending())
	assert.Equal(t, "S2", c.State().CurrentSection)
}
