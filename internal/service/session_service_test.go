package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionLockSerializesPerID(t *testing.T) {
	s := &SessionService{loading: make(map[string]*restoreLock)}

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.lock("sess-1")
			defer unlock()

			n := inside.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxSeen.Load())
	assert.Empty(t, s.loading)
}

func TestSessionLockKeepsEntryWhileWaitersRemain(t *testing.T) {
	s := &SessionService{loading: make(map[string]*restoreLock)}

	unlock := s.lock("sess-1")
	acquired := make(chan func())
	go func() { acquired <- s.lock("sess-1") }()

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.loading["sess-1"].holders == 2
	}, time.Second, time.Millisecond)

	unlock()
	second := <-acquired

	s.mu.Lock()
	l, ok := s.loading["sess-1"]
	s.mu.Unlock()
	if assert.True(t, ok) {
		assert.Equal(t, 1, l.holders)
	}

	second()
	assert.Empty(t, s.loading)

	// Other ids never wait on each other.
	a := s.lock("a")
	b := s.lock("b")
	a()
	b()
}
