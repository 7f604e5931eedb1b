package loop

import (
	"sort"
	"sync"
	"time"
)

type dummyEvent struct {
	at  time.Time
	seq uint64
	f   func()
}

// DummyTimer is a manually advanced clock for tests. It starts at the epoch.
type DummyTimer struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	events []*dummyEvent
}

func NewDummyTimer() *DummyTimer {
	return &DummyTimer{now: time.Unix(0, 0).UTC()}
}

func (tm *DummyTimer) Now() time.Time {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.now
}

// Pending returns the number of scheduled events that have not fired.
func (tm *DummyTimer) Pending() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.events)
}

func (tm *DummyTimer) Schedule(d time.Duration, f func()) func() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.seq++
	ev := &dummyEvent{at: tm.now.Add(d), seq: tm.seq, f: f}
	tm.events = append(tm.events, ev)
	sort.SliceStable(tm.events, func(i, j int) bool {
		if tm.events[i].at.Equal(tm.events[j].at) {
			return tm.events[i].seq < tm.events[j].seq
		}
		return tm.events[i].at.Before(tm.events[j].at)
	})

	return func() error {
		tm.mu.Lock()
		defer tm.mu.Unlock()
		for i, e := range tm.events {
			if e == ev {
				tm.events = append(tm.events[:i], tm.events[i+1:]...)
				return nil
			}
		}
		return ErrCanceled
	}
}

// MoveForward advances the clock by d and runs every event that became due,
// in time order. Events scheduled by those callbacks also run if due.
func (tm *DummyTimer) MoveForward(d time.Duration) {
	tm.mu.Lock()
	target := tm.now.Add(d)
	tm.mu.Unlock()

	for {
		tm.mu.Lock()
		if len(tm.events) == 0 || tm.events[0].at.After(target) {
			tm.now = target
			tm.mu.Unlock()
			return
		}
		ev := tm.events[0]
		tm.events = tm.events[1:]
		if ev.at.After(tm.now) {
			tm.now = ev.at
		}
		tm.mu.Unlock()

		ev.f()
	}
}
