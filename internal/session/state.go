// Package session drives a respondent through a survey: a value-object
// state with pure transitions, a per-session controller that debounces
// recomputation and awaits autosave on navigation, and subscriptions for
// pushing updates to clients.
package session

import (
	"errors"
	"fmt"
	"slices"

	"github.com/stemsi/survey-backend/internal/model"
	"github.com/stemsi/survey-backend/internal/routing"
)

var (
	ErrValidation        = errors.New("section has validation errors")
	ErrCompleted         = errors.New("session already completed")
	ErrSectionNotVisible = errors.New("section is not available")
)

// State is the complete state of one respondent session. Transitions never
// mutate a State in place; Reduce returns a new one.
type State struct {
	Context        model.SessionContext
	Status         model.SessionStatus
	CurrentSection string
	Answers        model.Snapshot
	// Saved is the snapshot last acknowledged by persistence.
	Saved model.Snapshot
	// PendingRemoved holds removals not yet sent to persistence.
	PendingRemoved []model.RemovedQuestionRef
	// Dropped lists visited sections already found unreachable, so their
	// removals are queued once.
	Dropped []string
	Visible        routing.Visibility
	Sections       []string
	Visited        []string
	History        []string
	Errors         routing.FieldErrors
	Progress       float64
	CanSubmit      bool
	// Touched is set once an answer in the current section changes after
	// entering it.
	Touched   bool
	SaveError string
	Version   uint64
}

// Event is a state transition request.
type Event interface{ event() }

type (
	// AnswerChanged stores an answer. An empty SectionID means the current
	// section.
	AnswerChanged struct {
		SectionID  string
		QuestionID string
		Value      model.Answer
	}
	// Recompute refreshes visibility, reachability and progress.
	Recompute struct{}
	NavigateNext struct{}
	NavigateBack struct{}
	JumpTo       struct{ SectionID string }
	Reset        struct{}
	Submit       struct{}
	// Restore loads previously persisted answers.
	Restore struct {
		Answers   model.Snapshot
		Completed bool
	}
)

func (AnswerChanged) event() {}
func (Recompute) event()     {}
func (NavigateNext) event()  {}
func (NavigateBack) event()  {}
func (JumpTo) event()        {}
func (Reset) event()         {}
func (Submit) event()        {}
func (Restore) event()       {}

// Effects describe the side effects a transition asks the caller to run.
type Effects struct {
	// Changed is set when an AnswerChanged event altered the snapshot.
	Changed bool
	// Question is the question an AnswerChanged event targeted.
	Question *model.Question
	// Cleared lists keys removed because they were route targets.
	Cleared []string
	// Pruned counts answers removed because their section became
	// unreachable.
	Pruned int
	// Save asks for the snapshot to be persisted before continuing.
	Save bool
	// Complete asks for the session to be marked complete.
	Complete bool
}

// NewState returns the state of a fresh session positioned on the start
// section.
func NewState(e *routing.Engine, ctx model.SessionContext) State {
	start := e.StartSection()
	s := State{
		Context:        ctx,
		Status:         model.SessionStatusInProgress,
		CurrentSection: start,
		Answers:        model.Snapshot{},
		Saved:          model.Snapshot{},
		Visited:        []string{start},
	}
	s, _ = refresh(e, s)
	return s
}

// Reduce applies ev to s.
func Reduce(e *routing.Engine, s State, ev Event) (State, Effects, error) {
	if s.Status == model.SessionStatusCompleted {
		if _, ok := ev.(Restore); !ok {
			return s, Effects{}, ErrCompleted
		}
	}

	s = s.clone()
	s.Version++

	switch ev := ev.(type) {
	case AnswerChanged:
		return applyAnswer(e, s, ev)

	case Recompute:
		s, pruned := refresh(e, s)
		return s, Effects{Pruned: pruned}, nil

	case NavigateNext:
		s, pruned := refresh(e, s)
		if err := checkSection(e, &s); err != nil {
			return s, Effects{Pruned: pruned}, err
		}
		target, ok := nextTarget(e, s)
		if !ok {
			s.CanSubmit = true
			return s, Effects{Pruned: pruned, Save: true}, nil
		}
		s.History = append(s.History, s.CurrentSection)
		s = enter(e, s, target)
		return s, Effects{Pruned: pruned, Save: true}, nil

	case NavigateBack:
		if len(s.History) == 0 {
			return s, Effects{}, nil
		}
		prev := s.History[len(s.History)-1]
		s.History = s.History[:len(s.History)-1]
		s.Errors = nil
		return enter(e, s, prev), Effects{}, nil

	case JumpTo:
		if ev.SectionID == s.CurrentSection {
			return s, Effects{}, nil
		}
		s, pruned := refresh(e, s)
		if !slices.Contains(s.Sections, ev.SectionID) {
			return s, Effects{Pruned: pruned}, fmt.Errorf("%w: %s", ErrSectionNotVisible, ev.SectionID)
		}
		forward := e.Before(s.CurrentSection, ev.SectionID)
		if forward {
			if err := checkSection(e, &s); err != nil {
				return s, Effects{Pruned: pruned}, err
			}
		}
		s.Errors = nil
		s.History = append(s.History, s.CurrentSection)
		return enter(e, s, ev.SectionID), Effects{Pruned: pruned, Save: forward}, nil

	case Reset:
		// Diffing the empty snapshot against Saved on the next autosave
		// reports every persisted answer as removed.
		fresh := NewState(e, s.Context)
		fresh.Version = s.Version
		fresh.Saved = s.Saved
		fresh.PendingRemoved = s.PendingRemoved
		return fresh, Effects{Save: true}, nil

	case Submit:
		s, pruned := refresh(e, s)
		if err := checkAll(e, &s); err != nil {
			return s, Effects{Pruned: pruned}, err
		}
		s.Status = model.SessionStatusCompleted
		s.CanSubmit = false
		return s, Effects{Pruned: pruned, Save: true, Complete: true}, nil

	case Restore:
		s.Answers = ev.Answers.Clone()
		s.Saved = ev.Answers.Clone()
		for _, sid := range e.SectionIDs() {
			if hasAnswersIn(s.Answers, sid) && !slices.Contains(s.Visited, sid) {
				s.Visited = append(s.Visited, sid)
			}
		}
		if ev.Completed {
			s.Status = model.SessionStatusCompleted
		}
		s, pruned := refresh(e, s)
		return s, Effects{Pruned: pruned}, nil
	}

	return s, Effects{}, fmt.Errorf("unsupported event %T", ev)
}

func applyAnswer(e *routing.Engine, s State, ev AnswerChanged) (State, Effects, error) {
	sid := ev.SectionID
	if sid == "" {
		sid = s.CurrentSection
	}
	res, err := e.ApplyAnswer(sid, ev.QuestionID, ev.Value, s.Answers)
	if err != nil {
		return s, Effects{}, err
	}
	q, _ := e.Survey().Question(sid, ev.QuestionID)

	s.Answers = res.Answers
	if res.Changed && sid == s.CurrentSection {
		s.Touched = true
	}
	if res.Changed && s.Errors != nil {
		key := model.FQID(sid, ev.QuestionID)
		if _, ok := s.Errors[key]; ok && routing.ValidateAnswer(q, res.Value) == "" {
			delete(s.Errors, key)
		}
	}
	return s, Effects{Changed: res.Changed, Question: q, Cleared: res.Cleared}, nil
}

// refresh prunes unreachable answers and recomputes everything derived
// from the snapshot.
func refresh(e *routing.Engine, s State) (State, int) {
	p := e.PruneUnreachable(s.Answers, s.Visited, s.History)
	pruned := len(s.Answers) - len(p.Answers)
	var dropped []string
	for _, ref := range p.Removed {
		_, held := s.Answers[model.FQID(ref.SectionID, ref.QuestionNo)]
		if held || !slices.Contains(s.Dropped, ref.SectionID) {
			s.PendingRemoved = appendRef(s.PendingRemoved, ref)
		}
		if !slices.Contains(dropped, ref.SectionID) {
			dropped = append(dropped, ref.SectionID)
		}
	}
	s.Answers = p.Answers
	s.History = p.History
	s.Dropped = dropped

	vis := e.ComputeVisible(s.CurrentSection, s.Answers)
	if !s.Touched {
		vis = withEntryQuestions(e, s.CurrentSection, vis)
	}
	s.Visible = vis
	s.Sections = e.VisibleSections(s.Answers, s.Visited, s.CurrentSection)

	bySection := e.VisibleBySection(s.Sections, s.Answers)
	bySection[s.CurrentSection] = vis.Questions
	s.Progress = routing.Progress(
		e.AnsweredVisibleRequired(s.Answers, s.Sections, bySection),
		e.TotalVisibleRequired(s.Sections, bySection),
	)

	for key := range s.Errors {
		sid, qid, _ := model.SplitFQID(key)
		q, ok := e.Survey().Question(sid, qid)
		if !ok || sid != s.CurrentSection || !vis.Questions.Has(qid) || routing.ValidateAnswer(q, s.Answers[key]) == "" {
			delete(s.Errors, key)
		}
	}
	if len(s.Errors) == 0 {
		s.Errors = nil
	}

	_, hasNext := nextTarget(e, s)
	s.CanSubmit = vis.EndReached || !hasNext
	return s, pruned
}

// withEntryQuestions adds the questions shown on first entering a section.
func withEntryQuestions(e *routing.Engine, sectionID string, vis routing.Visibility) routing.Visibility {
	initial := e.InitialVisible(sectionID)
	merged := routing.NewQuestionSet()
	for id := range vis.Questions {
		merged.Add(id)
	}
	for id := range initial.Questions {
		merged.Add(id)
	}
	vis.Questions = merged
	vis.Order = make([]string, 0, len(merged))
	for _, id := range e.QuestionOrder(sectionID) {
		if merged.Has(id) {
			vis.Order = append(vis.Order, id)
		}
	}
	return vis
}

func enter(e *routing.Engine, s State, sectionID string) State {
	s.CurrentSection = sectionID
	s.Touched = false
	if !slices.Contains(s.Visited, sectionID) {
		s.Visited = append(s.Visited, sectionID)
	}
	s, _ = refresh(e, s)
	return s
}

// nextTarget is the first section routed to by a visible answered
// branching question of the current section, otherwise the next visible
// section after it.
func nextTarget(e *routing.Engine, s State) (string, bool) {
	if s.Visible.EndReached {
		return "", false
	}
	sec, ok := e.Survey().Section(s.CurrentSection)
	if !ok {
		return "", false
	}
	for _, qid := range s.Visible.Order {
		q := sec.Questions[qid]
		if !q.Branching() {
			continue
		}
		ans, ok := s.Answers[model.FQID(s.CurrentSection, qid)]
		if !ok || !ans.HasValue() {
			continue
		}
		if targets := e.ResolveSections(e.Resolve(q, ans).Sections); len(targets) > 0 {
			return targets[0], true
		}
	}
	for _, sid := range s.Sections {
		if e.Before(s.CurrentSection, sid) {
			return sid, true
		}
	}
	return "", false
}

func checkSection(e *routing.Engine, s *State) error {
	errs := e.ValidateVisible(s.CurrentSection, s.Visible.Questions, s.Answers)
	if len(errs) > 0 {
		s.Errors = errs
		return ErrValidation
	}
	s.Errors = nil
	return nil
}

// checkAll validates every visited section still listed in navigation.
func checkAll(e *routing.Engine, s *State) error {
	errs := routing.FieldErrors{}
	for _, sid := range s.Sections {
		if !slices.Contains(s.Visited, sid) {
			continue
		}
		vis := e.ComputeVisible(sid, s.Answers).Questions
		if sid == s.CurrentSection {
			vis = s.Visible.Questions
		}
		for k, msg := range e.ValidateVisible(sid, vis, s.Answers) {
			errs[k] = msg
		}
	}
	if len(errs) > 0 {
		s.Errors = errs
		return ErrValidation
	}
	s.Errors = nil
	return nil
}

func (s State) clone() State {
	out := s
	out.Answers = s.Answers.Clone()
	out.Visited = slices.Clone(s.Visited)
	out.History = slices.Clone(s.History)
	out.PendingRemoved = slices.Clone(s.PendingRemoved)
	out.Sections = slices.Clone(s.Sections)
	out.Dropped = slices.Clone(s.Dropped)
	if s.Errors != nil {
		out.Errors = make(routing.FieldErrors, len(s.Errors))
		for k, v := range s.Errors {
			out.Errors[k] = v
		}
	}
	return out
}

func hasAnswersIn(answers model.Snapshot, sectionID string) bool {
	for k, v := range answers {
		if sid, _, ok := model.SplitFQID(k); ok && sid == sectionID && v.IsAnswered() {
			return true
		}
	}
	return false
}

func appendRef(refs []model.RemovedQuestionRef, ref model.RemovedQuestionRef) []model.RemovedQuestionRef {
	for _, r := range refs {
		if r.SectionID == ref.SectionID && r.QuestionNo == ref.QuestionNo {
			return refs
		}
	}
	return append(refs, ref)
}
