package routing

import (
	"slices"
	"sort"

	"github.com/stemsi/survey-backend/internal/model"
)

// activeTargets returns the resolved section targets fired by the answered
// branching questions of a section, in question order.
func (e *Engine) activeTargets(sectionID string, answers model.Snapshot) []string {
	sec, ok := e.survey.Section(sectionID)
	if !ok {
		return nil
	}
	var out []string
	for _, qid := range e.questionOrder[sectionID] {
		q := sec.Questions[qid]
		if !q.Branching() {
			continue
		}
		ans, ok := answers[model.FQID(sectionID, qid)]
		if !ok || !ans.HasValue() {
			continue
		}
		for _, sid := range e.ResolveSections(e.Resolve(q, ans).Sections) {
			if !slices.Contains(out, sid) {
				out = append(out, sid)
			}
		}
	}
	return out
}

// edges returns the outgoing navigation edges of a section. Fired section
// routes are exclusive; otherwise the next section by order is the only
// edge. A fired route whose targets all fail to resolve does not count as
// fired.
func (e *Engine) edges(sectionID string, answers model.Snapshot) []string {
	if targets := e.activeTargets(sectionID, answers); len(targets) > 0 {
		return targets
	}
	if next, ok := e.NextSection(sectionID); ok {
		return []string{next}
	}
	return nil
}

// ReachableSections returns every section reachable from the start section
// under the current answers.
func (e *Engine) ReachableSections(answers model.Snapshot) map[string]bool {
	start := e.order[0]
	seen := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range e.edges(cur, answers) {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// IsReachable reports whether target can be reached from the start section.
// Unknown sections are never reachable.
func (e *Engine) IsReachable(target string, answers model.Snapshot) bool {
	if !e.HasSection(target) {
		e.log.Debug().Str("section_id", target).Msg("Reachability requested for unknown section")
		return false
	}
	return e.ReachableSections(answers)[target]
}

// VisibleSections lists the sections shown in navigation, by order.
//
// A section is listed when it is the start section, the current section, a
// target of a currently firing route, or visited and still reachable. A
// section that no route ever targets is also listed when it directly
// follows a listed section whose fired routes do not point elsewhere.
func (e *Engine) VisibleSections(answers model.Snapshot, visited []string, current string) []string {
	reach := e.ReachableSections(answers)

	active := make(map[string][]string, len(e.order))
	firing := make(map[string]bool)
	for _, id := range e.order {
		targets := e.activeTargets(id, answers)
		active[id] = targets
		for _, t := range targets {
			firing[t] = true
		}
	}

	wasVisited := make(map[string]bool, len(visited))
	for _, id := range visited {
		wasVisited[id] = true
	}

	shown := make(map[string]bool, len(e.order))
	out := make([]string, 0, len(e.order))
	for i, id := range e.order {
		include := false
		switch {
		case i == 0, id == current, firing[id]:
			include = true
		case wasVisited[id] && reach[id]:
			include = true
		case !e.routedSections[id]:
			prev := e.order[i-1]
			include = shown[prev] && !pointsElsewhere(active[prev], id)
		}
		if include {
			shown[id] = true
			out = append(out, id)
		}
	}
	return out
}

func pointsElsewhere(targets []string, id string) bool {
	return len(targets) > 0 && !slices.Contains(targets, id)
}

// Prune is the result of removing answers that became unreachable.
type Prune struct {
	Answers model.Snapshot
	History []string
	Removed []model.RemovedQuestionRef
}

// PruneUnreachable drops answers held by unreachable sections and filters
// the back-navigation history down to reachable sections. Removed lists the
// answered questions of unreachable sections plus every question of a
// visited section that became unreachable. The visited list is only read.
func (e *Engine) PruneUnreachable(answers model.Snapshot, visited, history []string) Prune {
	reach := e.ReachableSections(answers)

	var (
		out     model.Snapshot
		removed []model.RemovedQuestionRef
		seen    = make(map[string]bool)
	)

	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sid, qid, ok := model.SplitFQID(k)
		if ok && reach[sid] {
			continue
		}
		if out == nil {
			out = answers.Clone()
		}
		delete(out, k)
		if ok && answers[k].IsAnswered() && !seen[k] {
			seen[k] = true
			removed = append(removed, e.removedRef(sid, qid))
		}
	}

	for _, sid := range visited {
		if reach[sid] || !e.HasSection(sid) {
			continue
		}
		for _, qid := range e.questionOrder[sid] {
			k := model.FQID(sid, qid)
			if !seen[k] {
				seen[k] = true
				removed = append(removed, e.removedRef(sid, qid))
			}
		}
	}

	if out == nil {
		out = answers
	}

	hist := make([]string, 0, len(history))
	for _, sid := range history {
		if reach[sid] {
			hist = append(hist, sid)
		}
	}

	return Prune{Answers: out, History: hist, Removed: removed}
}

func (e *Engine) removedRef(sectionID, questionID string) model.RemovedQuestionRef {
	return model.RemovedQuestionRef{
		SectionID:  sectionID,
		Section:    e.SectionTitle(sectionID),
		QuestionNo: questionID,
	}
}
