package poller

import "time"

// Clock schedules the delay between rounds.
type Clock interface {
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of *time.Timer the poller relies on.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type systemClock struct{}

func (systemClock) NewTimer(d time.Duration) Timer {
	return systemTimer{timer: time.NewTimer(d)}
}

type systemTimer struct {
	timer *time.Timer
}

func (t systemTimer) C() <-chan time.Time { return t.timer.C }
func (t systemTimer) Stop() bool          { return t.timer.Stop() }
