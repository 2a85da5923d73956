package session

import (
	"sync"
	"time"

	"github.com/stemsi/survey-backend/internal/model"
)

// Delays are the debounce windows applied to answer changes by question type.
type Delays struct {
	Text    time.Duration
	Number  time.Duration
	Matrix  time.Duration
	Default time.Duration
}

// DefaultDelays matches typing cadence: text waits longest, discrete
// selections recompute almost immediately.
var DefaultDelays = Delays{
	Text:    300 * time.Millisecond,
	Number:  250 * time.Millisecond,
	Matrix:  150 * time.Millisecond,
	Default: 150 * time.Millisecond,
}

// For returns the delay for a question type.
func (d Delays) For(t model.QuestionType) time.Duration {
	switch {
	case t.IsText():
		return d.Text
	case t == model.QuestionTypeNumber:
		return d.Number
	case t == model.QuestionTypeMatrix:
		return d.Matrix
	}
	return d.Default
}

// Debouncer runs at most one pending task per key. Scheduling a key again
// before its task fires replaces the pending task.
type Debouncer struct {
	mu     sync.Mutex
	seq    uint64
	timers map[string]pendingTask
}

type pendingTask struct {
	id    uint64
	timer *time.Timer
}

func NewDebouncer() *Debouncer {
	return &Debouncer{timers: make(map[string]pendingTask)}
}

// Schedule runs fn after delay unless key is scheduled or cancelled again
// first.
func (d *Debouncer) Schedule(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.timers[key]; ok {
		p.timer.Stop()
	}
	d.seq++
	id := d.seq
	t := time.AfterFunc(delay, func() {
		d.mu.Lock()
		p, ok := d.timers[key]
		if !ok || p.id != id {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
	d.timers[key] = pendingTask{id: id, timer: t}
}

// Cancel drops the pending task of key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.timers[key]; ok {
		p.timer.Stop()
		delete(d.timers, key)
	}
}

// CancelAll drops every pending task.
func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, p := range d.timers {
		p.timer.Stop()
		delete(d.timers, k)
	}
}

// Pending returns the number of scheduled tasks.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
