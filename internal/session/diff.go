package session

import (
	"html"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/stemsi/survey-backend/internal/model"
	"github.com/stemsi/survey-backend/internal/routing"
)

// ist is India Standard Time; it has no daylight saving.
var ist = time.FixedZone("IST", 5*60*60+30*60)

const istLayout = "2006-01-02 15:04:05"

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// Timestamp formats t the way the response store expects for region.
func Timestamp(t time.Time, region string) string {
	if strings.EqualFold(region, "IN") {
		return t.In(ist).Format(istLayout)
	}
	return t.UTC().Format(time.RFC3339)
}

// PlainText strips markup from question text.
func PlainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(htmlTag.ReplaceAllString(s, "")))
}

// Diff compares the last saved snapshot with the current one. New and
// changed answers are submitted; answers that disappeared or were emptied
// are removed.
func Diff(e *routing.Engine, saved, current model.Snapshot, region string, now time.Time) ([]model.SubmittedQuestion, []model.RemovedQuestionRef) {
	var (
		submitted []model.SubmittedQuestion
		removed   []model.RemovedQuestionRef
	)
	ts := Timestamp(now, region)

	for _, k := range sortedKeys(current) {
		cur := current[k]
		if !cur.IsAnswered() {
			continue
		}
		if prev, ok := saved[k]; ok && prev.Equal(cur) {
			continue
		}
		sid, qid, ok := model.SplitFQID(k)
		if !ok {
			continue
		}
		q, ok := e.Survey().Question(sid, qid)
		if !ok {
			continue
		}
		submitted = append(submitted, model.SubmittedQuestion{
			SectionID:  sid,
			Section:    e.SectionTitle(sid),
			QuestionNo: qid,
			Question:   PlainText(q.Text),
			AnswerText: cur.String(),
			Answer:     cur,
			Timestamp:  ts,
		})
	}

	for _, k := range sortedKeys(saved) {
		if !saved[k].IsAnswered() || current[k].IsAnswered() {
			continue
		}
		sid, qid, ok := model.SplitFQID(k)
		if !ok {
			continue
		}
		removed = append(removed, model.RemovedQuestionRef{
			SectionID:  sid,
			Section:    e.SectionTitle(sid),
			QuestionNo: qid,
		})
	}

	return submitted, removed
}

func sortedKeys(s model.Snapshot) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
