package countdown

import (
	"sync"
	"time"
)

// Tick is one countdown update. Expired is set on the terminal tick, after
// which no further ticks are delivered.
type Tick struct {
	Remaining int
	Expired   bool
}

// Countdown bounds a listening window. Arm starts a fresh countdown and
// returns its tick channel; Disarm cancels with no further ticks and no
// expiry. Re-arming without disarming replaces the previous countdown.
type Countdown struct {
	mu       sync.Mutex
	interval time.Duration
	gen      int
	cancel   chan struct{}
}

// New creates a countdown with 1-second tick resolution.
func New() *Countdown {
	return NewWithInterval(time.Second)
}

// NewWithInterval creates a countdown ticking at the given resolution. Tests
// use short intervals; production uses New.
func NewWithInterval(interval time.Duration) *Countdown {
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{interval: interval}
}

// Arm starts a countdown of the given number of ticks and returns the channel
// it reports on. The channel is closed after the expired tick or on Disarm.
func (c *Countdown) Arm(seconds int) <-chan Tick {
	c.mu.Lock()
	if c.cancel != nil {
		close(c.cancel)
	}
	c.gen++
	cancel := make(chan struct{})
	c.cancel = cancel
	interval := c.interval
	c.mu.Unlock()

	ticks := make(chan Tick, seconds+1)
	if seconds <= 0 {
		ticks <- Tick{Remaining: 0, Expired: true}
		close(ticks)
		return ticks
	}

	go func() {
		defer close(ticks)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		remaining := seconds
		for {
			select {
			case <-cancel:
				return
			case <-ticker.C:
				remaining--
				if remaining <= 0 {
					// The buffered channel guarantees the expired tick is
					// never lost even if the consumer is mid-transition.
					select {
					case ticks <- Tick{Remaining: 0, Expired: true}:
					case <-cancel:
					}
					return
				}
				select {
				case ticks <- Tick{Remaining: remaining}:
				case <-cancel:
					return
				}
			}
		}
	}()
	return ticks
}

// Disarm cancels a running countdown. Idempotent: disarming an inactive
// countdown is a no-op.
func (c *Countdown) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		close(c.cancel)
		c.cancel = nil
	}
}
