package session

import "time"

// Clock abstracts time for the Manager so tests can drive the background
// timers deterministically instead of waiting on real intervals.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the Manager uses.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{Ticker: time.NewTicker(d)}
}

type realTicker struct {
	*time.Ticker
}

func (t *realTicker) Chan() <-chan time.Time { return t.C }

// RealClock returns a Clock backed by the time package. This is the default
// for Managers constructed without WithClock.
func RealClock() Clock { return realClock{} }
