package loop

import (
	"errors"
	"sync"
	"time"
)

// ErrCanceled is returned when canceling an event that already fired or was canceled.
var ErrCanceled = errors.New("event has already been canceled")

// Timer abstracts the clock so that protocol logic can be driven by tests.
type Timer interface {
	// Now returns the current time.
	Now() time.Time
	// Schedule runs f after d; the returned function cancels it.
	Schedule(d time.Duration, f func()) func() error
}

type wallTimer struct{}

// NewTimer returns a Timer backed by the system clock.
func NewTimer() Timer {
	return wallTimer{}
}

func (wallTimer) Now() time.Time {
	return time.Now()
}

func (wallTimer) Schedule(d time.Duration, f func()) func() error {
	var once sync.Once
	t := time.AfterFunc(d, f)
	return func() (err error) {
		err = ErrCanceled
		once.Do(func() {
			if t.Stop() {
				err = nil
			}
		})
		return err
	}
}
