package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/survey-backend/internal/model"
)

func TestDebouncerCoalescesPerKey(t *testing.T) {
	d := NewDebouncer()
	var runs, last atomic.Int32

	for i := 1; i <= 5; i++ {
		d.Schedule("Q1", 20*time.Millisecond, func() {
			runs.Add(1)
			last.Store(int32(i))
		})
	}

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.EqualValues(t, 1, runs.Load())
	assert.EqualValues(t, 5, last.Load())
	assert.Zero(t, d.Pending())
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := NewDebouncer()
	var runs atomic.Int32

	d.Schedule("Q1", 10*time.Millisecond, func() { runs.Add(1) })
	d.Schedule("Q2", 10*time.Millisecond, func() { runs.Add(1) })

	assert.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer()
	var runs atomic.Int32

	d.Schedule("Q1", 20*time.Millisecond, func() { runs.Add(1) })
	d.Schedule("Q2", 20*time.Millisecond, func() { runs.Add(1) })
	assert.Equal(t, 2, d.Pending())

	d.Cancel("Q1")
	assert.Equal(t, 1, d.Pending())
	d.CancelAll()
	assert.Zero(t, d.Pending())

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, runs.Load())
}

func TestDelaysFor(t *testing.T) {
	d := DefaultDelays
	assert.Equal(t, d.Text, d.For(model.QuestionTypeShortText))
	assert.Equal(t, d.Number, d.For(model.QuestionTypeNumber))
	assert.Equal(t, d.Matrix, d.For(model.QuestionTypeMatrix))
	assert.Equal(t, d.Default, d.For(model.QuestionTypeSingleChoice))
}
