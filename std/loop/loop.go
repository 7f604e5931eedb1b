// Package loop provides the single-threaded cooperative main loop.
// All tree mutations, session transitions and notification checks run
// as tasks on the loop goroutine, so they never need locks.
package loop

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/catawampus/cwmpd/std/log"
)

const taskQueueSize = 1024

type Loop struct {
	timer Timer

	// tasks is the task queue for the loop goroutine.
	tasks chan func()
	// close signals the loop goroutine to stop.
	close chan struct{}
	// done is closed when the loop goroutine returns.
	done    chan struct{}
	running atomic.Bool

	// idle work, coalesced by key and drained when the task queue is empty
	idleMu    sync.Mutex
	idle      map[any]func()
	idleOrder []any
}

func New(timer Timer) *Loop {
	if timer == nil {
		timer = NewTimer()
	}
	return &Loop{
		timer: timer,
		tasks: make(chan func(), taskQueueSize),
		close: make(chan struct{}),
		done:  make(chan struct{}),
		idle:  make(map[any]func()),
	}
}

func (l *Loop) String() string {
	return "loop"
}

func (l *Loop) Now() time.Time {
	return l.timer.Now()
}

// Post queues a task for the loop goroutine. It never blocks.
func (l *Loop) Post(task func()) {
	select {
	case l.tasks <- task:
	default:
		// queue is full; do not block the caller, which may be the loop itself
		go func() { l.tasks <- task }()
	}
}

// Schedule runs f on the loop goroutine after d.
func (l *Loop) Schedule(d time.Duration, f func()) func() error {
	return l.timer.Schedule(d, func() { l.Post(f) })
}

// WhenIdle registers f to run once the loop has no queued tasks.
// A second registration with the same key replaces the first one but keeps
// its position, so repeated writes to one resource collapse into one.
func (l *Loop) WhenIdle(key any, f func()) {
	l.idleMu.Lock()
	defer l.idleMu.Unlock()
	if _, ok := l.idle[key]; !ok {
		l.idleOrder = append(l.idleOrder, key)
	}
	l.idle[key] = f
}

// IdlePending reports whether key has idle work queued.
func (l *Loop) IdlePending(key any) bool {
	l.idleMu.Lock()
	defer l.idleMu.Unlock()
	_, ok := l.idle[key]
	return ok
}

// RunIdle drains the idle queue and returns the number of functions run.
func (l *Loop) RunIdle() int {
	n := 0
	for {
		l.idleMu.Lock()
		if len(l.idleOrder) == 0 {
			l.idleMu.Unlock()
			return n
		}
		key := l.idleOrder[0]
		l.idleOrder = l.idleOrder[1:]
		f := l.idle[key]
		delete(l.idle, key)
		l.idleMu.Unlock()

		l.runTask(f)
		n++
	}
}

// Start runs the loop in a new goroutine.
func (l *Loop) Start() error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("loop is already running")
	}

	go func() {
		defer close(l.done)
		defer l.running.Store(false)

		for {
			select {
			case <-l.close:
				l.RunIdle()
				return
			case task := <-l.tasks:
				l.runTask(task)
				if len(l.tasks) == 0 {
					l.RunIdle()
				}
			}
		}
	}()
	return nil
}

// Stop terminates the loop after flushing idle work, and waits for it.
func (l *Loop) Stop() error {
	if !l.IsRunning() {
		return errors.New("loop is not running")
	}
	l.close <- struct{}{}
	<-l.done
	return nil
}

func (l *Loop) IsRunning() bool {
	return l.running.Load()
}

func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(l, "Task panicked", "panic", r)
		}
	}()
	task()
}
