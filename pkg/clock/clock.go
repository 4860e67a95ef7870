package clock

import (
	"context"
	"time"
)

// Clock ticks at a fixed interval, starting immediately.
type Clock struct {
	interval time.Duration
	now      func() time.Time
}

func New(interval time.Duration) *Clock {
	return &Clock{interval: interval, now: time.Now}
}

func (c *Clock) Interval() time.Duration {
	return c.interval
}

// Tick sends the current time once right away and then every interval. The
// channel is closed when ctx is done. A slow reader skips ticks.
func (c *Clock) Tick(ctx context.Context) <-chan time.Time {
	ch := make(chan time.Time, 1)
	go func() {
		defer close(ch)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		ch <- c.now()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case ch <- t:
				default:
				}
			}
		}
	}()
	return ch
}
