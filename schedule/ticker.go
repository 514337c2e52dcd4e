package schedule

import (
	"context"
	"time"
)

// Defaults for the independent periodic ticks.
const (
	DefaultControlLogPoll = 15 * time.Second
	DefaultStaleSweep     = 1 * time.Second
)

// Ticker drives a set of independent periodic callbacks, each its own
// goroutine/timer. Run blocks until ctx is cancelled, at which point
// every timer stops.
type Ticker struct {
	ControlLogPoll time.Duration
	StaleSweep     time.Duration

	OnControlLogPoll func(ctx context.Context)
	OnStaleSweep     func(ctx context.Context)
}

func NewTicker() *Ticker {
	return &Ticker{
		ControlLogPoll: DefaultControlLogPoll,
		StaleSweep:     DefaultStaleSweep,
	}
}

// Run starts every configured timer and blocks until ctx is done.
func (t *Ticker) Run(ctx context.Context) {
	var stop []chan struct{}

	start := func(interval time.Duration, fn func(ctx context.Context)) {
		if interval <= 0 || fn == nil {
			return
		}
		done := make(chan struct{})
		stop = append(stop, done)
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-done:
					return
				case <-ticker.C:
					fn(ctx)
				}
			}
		}()
	}

	start(t.ControlLogPoll, t.OnControlLogPoll)
	start(t.StaleSweep, t.OnStaleSweep)

	<-ctx.Done()
	for _, done := range stop {
		close(done)
	}
}
