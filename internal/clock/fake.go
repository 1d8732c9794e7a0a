package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually-advanced Clock for deterministic tests. Advance
// fires any pending timers whose deadline has passed, in deadline
// order, synchronously on the calling goroutine.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	nextSeq int
}

type fakeTimer struct {
	clk      *Fake
	deadline time.Time
	seq      int
	fn       func()
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	wasRunning := !t.stopped
	t.stopped = true
	return wasRunning
}

// NewFake creates a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{clk: f, deadline: f.now.Add(d), seq: f.nextSeq, fn: fn}
	f.nextSeq++
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer whose
// deadline is now due, in (deadline, registration-order) order. Firing
// a timer may itself register new timers; those are eligible to fire
// within the same Advance if their deadline also falls at or before the
// new time.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	target := f.now
	f.mu.Unlock()

	for {
		f.mu.Lock()
		sort.Slice(f.timers, func(i, j int) bool {
			if f.timers[i].deadline.Equal(f.timers[j].deadline) {
				return f.timers[i].seq < f.timers[j].seq
			}
			return f.timers[i].deadline.Before(f.timers[j].deadline)
		})
		var due *fakeTimer
		var idx int
		for i, t := range f.timers {
			if t.stopped {
				continue
			}
			if !t.deadline.After(target) {
				due = t
				idx = i
				break
			}
		}
		if due == nil {
			f.mu.Unlock()
			return
		}
		f.timers = append(f.timers[:idx], f.timers[idx+1:]...)
		due.stopped = true
		f.mu.Unlock()

		due.fn()
	}
}
