package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/survey-backend/internal/metrics"
	"github.com/stemsi/survey-backend/internal/model"
	"github.com/stemsi/survey-backend/internal/routing"
)

// Persistence stores responses outside the process.
type Persistence interface {
	SubmitAnswers(ctx context.Context, sc model.SessionContext, submitted []model.SubmittedQuestion, removed []model.RemovedQuestionRef) error
	FetchProgress(ctx context.Context, sc model.SessionContext) (*model.Progress, error)
	CompleteSession(ctx context.Context, sc model.SessionContext) error
}

// Options tune a Controller.
type Options struct {
	Delays          Delays
	AutosaveTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Delays == (Delays{}) {
		o.Delays = DefaultDelays
	}
	if o.AutosaveTimeout <= 0 {
		o.AutosaveTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

const subscriberBuffer = 8

// Controller owns the state of one session. Every mutation goes through it.
type Controller struct {
	engine  *routing.Engine
	persist Persistence
	opts    Options
	metrics *metrics.Metrics
	log     zerolog.Logger

	debounce *Debouncer
	// recomputing serializes recomputation runs.
	recomputing sync.Mutex
	// saving serializes autosaves so Saved advances in order.
	saving sync.Mutex

	mu         sync.Mutex
	state      State
	gen        uint64 // bumped on every state change
	derivedGen uint64 // gen of the last recompute result
	subs       map[uint64]chan View
	nextSub    uint64
	lastActive time.Time
	closed     bool
}

// NewController wraps state for concurrent use.
func NewController(e *routing.Engine, state State, persist Persistence, opts Options, m *metrics.Metrics, log zerolog.Logger) *Controller {
	opts = opts.withDefaults()
	if m == nil {
		m = metrics.Nop()
	}
	return &Controller{
		engine:  e,
		persist: persist,
		opts:    opts,
		metrics: m,
		log: log.With().
			Str("component", "session").
			Str("session_id", state.Context.SessionID).
			Str("form_id", state.Context.FormID).
			Logger(),
		debounce:   NewDebouncer(),
		state:      state,
		subs:       make(map[uint64]chan View),
		lastActive: opts.Now(),
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// View returns the current client projection.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return BuildView(c.engine, c.state)
}

// LastActive reports when the session last received a request.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Answer stores an answer and schedules a recomputation. With flush the
// recomputation runs before returning.
func (c *Controller) Answer(sectionID, questionID string, v model.Answer, flush bool) (View, error) {
	c.mu.Lock()
	next, eff, err := Reduce(c.engine, c.state, AnswerChanged{SectionID: sectionID, QuestionID: questionID, Value: v})
	if err != nil {
		c.mu.Unlock()
		return View{}, err
	}
	c.lastActive = c.opts.Now()
	c.metrics.AnswerChanges.WithLabelValues(fmt.Sprint(eff.Changed)).Inc()
	if !eff.Changed {
		view := BuildView(c.engine, c.state)
		c.mu.Unlock()
		return view, nil
	}
	c.state = next
	c.gen++
	c.mu.Unlock()

	if len(eff.Cleared) > 0 {
		c.log.Debug().Strs("cleared", eff.Cleared).Str("question_id", questionID).Msg("Cleared route targets")
	}

	if flush {
		c.debounce.Cancel(questionID)
		c.recompute()
	} else {
		c.debounce.Schedule(questionID, c.opts.Delays.For(eff.Question.Type), c.recompute)
	}
	return c.View(), nil
}

// recompute refreshes derived state. Runs are serialized; a run that raced
// with a change retries against the newer state, and a run finding the
// state already derived returns at once.
func (c *Controller) recompute() {
	c.recomputing.Lock()
	defer c.recomputing.Unlock()

	for {
		c.mu.Lock()
		if c.closed || c.gen == c.derivedGen {
			c.mu.Unlock()
			return
		}
		gen, base := c.gen, c.state
		c.mu.Unlock()

		if c.commitRecompute(gen, base) {
			return
		}
	}
}

// commitRecompute derives state from base and stores it unless the state
// moved past gen meanwhile. It reports false when the result was stale.
func (c *Controller) commitRecompute(gen uint64, base State) bool {
	next, eff, err := Reduce(c.engine, base, Recompute{})
	if err != nil {
		if !errors.Is(err, ErrCompleted) {
			c.log.Warn().Err(err).Msg("Recompute failed")
		}
		return true
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.log.Debug().Msg("Recompute raced with a change, retrying")
		return false
	}
	c.state = next
	c.gen++
	c.derivedGen = c.gen
	view := BuildView(c.engine, c.state)
	c.mu.Unlock()

	c.metrics.Recomputations.Inc()
	c.metrics.PrunedAnswers.Add(float64(eff.Pruned))
	c.publish(view)
	return true
}

// Next validates the current section and moves forward.
func (c *Controller) Next(ctx context.Context) (View, error) {
	return c.navigate(ctx, "next", NavigateNext{})
}

// Back returns to the previous section in history.
func (c *Controller) Back(ctx context.Context) (View, error) {
	return c.navigate(ctx, "back", NavigateBack{})
}

// Jump moves to a visible section.
func (c *Controller) Jump(ctx context.Context, sectionID string) (View, error) {
	return c.navigate(ctx, "jump", JumpTo{SectionID: sectionID})
}

// Reset clears every answer and returns to the start section.
func (c *Controller) Reset(ctx context.Context) (View, error) {
	return c.navigate(ctx, "reset", Reset{})
}

// Submit validates every visited section, saves and completes the session.
// Unlike navigation, a failed save or completion fails the submit and leaves
// the session in progress.
func (c *Controller) Submit(ctx context.Context) (View, error) {
	c.debounce.CancelAll()

	c.mu.Lock()
	next, eff, err := Reduce(c.engine, c.state, Submit{})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			c.state.Errors = next.Errors
			c.gen++
		}
		view := BuildView(c.engine, c.state)
		c.mu.Unlock()
		c.metrics.ObserveNavigation("submit", err)
		c.publish(view)
		return view, err
	}
	c.lastActive = c.opts.Now()
	c.mu.Unlock()

	if eff.Save {
		if err := c.save(ctx, next); err != nil {
			c.metrics.ObserveNavigation("submit", err)
			return c.View(), err
		}
	}
	if eff.Complete {
		if err := c.persist.CompleteSession(ctx, next.Context); err != nil {
			c.metrics.ObserveNavigation("submit", err)
			return c.View(), fmt.Errorf("complete session: %w", err)
		}
	}

	c.mu.Lock()
	next.Saved = c.state.Saved
	next.PendingRemoved = c.state.PendingRemoved
	next.SaveError = ""
	c.state = next
	c.gen++
	view := BuildView(c.engine, c.state)
	c.mu.Unlock()

	c.metrics.ObserveNavigation("submit", nil)
	c.log.Info().Msg("Session submitted")
	c.publish(view)
	return view, nil
}

func (c *Controller) navigate(ctx context.Context, action string, ev Event) (View, error) {
	// Pending recomputations would run against a section the user left.
	c.debounce.CancelAll()

	c.mu.Lock()
	next, eff, err := Reduce(c.engine, c.state, ev)
	c.metrics.ObserveNavigation(action, err)
	if err != nil && !errors.Is(err, ErrValidation) {
		c.mu.Unlock()
		return View{}, err
	}
	// Validation failures keep their error markers but not the move.
	c.state = next
	c.gen++
	c.lastActive = c.opts.Now()
	c.mu.Unlock()
	c.metrics.PrunedAnswers.Add(float64(eff.Pruned))

	if err == nil && eff.Save {
		if serr := c.save(ctx, next); serr != nil {
			c.log.Warn().Err(serr).Str("action", action).Msg("Autosave failed, continuing navigation")
		}
	}

	view := c.View()
	c.publish(view)
	return view, err
}

// save persists the difference between the last saved snapshot and
// target.Answers, bounded by the autosave timeout. The outcome is recorded
// on the live state.
func (c *Controller) save(ctx context.Context, target State) error {
	c.saving.Lock()
	defer c.saving.Unlock()

	c.mu.Lock()
	saved := c.state.Saved
	pending := slices.Clone(c.state.PendingRemoved)
	c.mu.Unlock()

	submitted, removed := Diff(c.engine, saved, target.Answers, target.Context.Region, c.opts.Now())
	for _, ref := range pending {
		removed = appendRef(removed, ref)
	}
	if len(submitted) == 0 && len(removed) == 0 {
		return nil
	}

	started := time.Now()
	sctx, cancel := context.WithTimeout(ctx, c.opts.AutosaveTimeout)
	defer cancel()
	err := c.persist.SubmitAnswers(sctx, target.Context, submitted, removed)

	reason := ""
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case err != nil:
		reason = "error"
	}
	c.metrics.ObserveAutosave(started, reason)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state.SaveError = "Your latest answers could not be saved. They will be retried on the next step."
		return fmt.Errorf("submit answers: %w", err)
	}
	c.state.Saved = target.Answers.Clone()
	c.state.PendingRemoved = slices.DeleteFunc(c.state.PendingRemoved, func(r model.RemovedQuestionRef) bool {
		return slices.Contains(pending, r)
	})
	c.state.SaveError = ""
	c.log.Debug().Int("submitted", len(submitted)).Int("removed", len(removed)).Msg("Autosaved")
	return nil
}

// Flush runs pending recomputation and saves answers changed since the
// last autosave.
func (c *Controller) Flush(ctx context.Context) error {
	c.debounce.CancelAll()
	c.recompute()

	c.mu.Lock()
	target := c.state
	c.mu.Unlock()
	if target.Status == model.SessionStatusCompleted {
		return nil
	}
	return c.save(ctx, target)
}

// Subscribe returns a channel receiving a view after every change. Slow
// subscribers miss intermediate views. The returned func unsubscribes.
func (c *Controller) Subscribe() (<-chan View, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan View, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

func (c *Controller) publish(v View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Close stops pending work and closes every subscription.
func (c *Controller) Close() {
	c.debounce.CancelAll()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}
