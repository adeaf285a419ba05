package countdown

import (
	"testing"
	"time"
)

func collect(t *testing.T, ticks <-chan Tick, deadline time.Duration) []Tick {
	t.Helper()
	var out []Tick
	timeout := time.After(deadline)
	for {
		select {
		case tick, ok := <-ticks:
			if !ok {
				return out
			}
			out = append(out, tick)
		case <-timeout:
			t.Fatalf("timed out collecting ticks, got %v", out)
		}
	}
}

func TestCountdownTicksDownAndExpires(t *testing.T) {
	c := NewWithInterval(5 * time.Millisecond)
	ticks := collect(t, c.Arm(3), time.Second)

	if len(ticks) != 3 {
		t.Fatalf("len(ticks) = %d, want 3: %v", len(ticks), ticks)
	}
	if ticks[0].Remaining != 2 || ticks[1].Remaining != 1 {
		t.Fatalf("remaining sequence = %v, want 2, 1, expiry", ticks)
	}
	last := ticks[len(ticks)-1]
	if !last.Expired || last.Remaining != 0 {
		t.Fatalf("last tick = %+v, want expired with 0 remaining", last)
	}
}

func TestCountdownDisarmStopsTicks(t *testing.T) {
	c := NewWithInterval(10 * time.Millisecond)
	ticks := c.Arm(100)

	<-ticks
	c.Disarm()

	// Drain whatever was already in flight; the channel must close without an
	// expired tick.
	for tick := range ticks {
		if tick.Expired {
			t.Fatalf("got expired tick after Disarm")
		}
	}
}

func TestCountdownDisarmIdempotent(t *testing.T) {
	c := NewWithInterval(time.Millisecond)
	c.Disarm()
	_ = c.Arm(1)
	c.Disarm()
	c.Disarm()
}

func TestCountdownRearmReplaces(t *testing.T) {
	c := NewWithInterval(5 * time.Millisecond)
	first := c.Arm(100)
	second := c.Arm(2)

	// The first countdown is replaced: its channel closes with no expiry.
	for tick := range first {
		if tick.Expired {
			t.Fatalf("replaced countdown expired")
		}
	}

	ticks := collect(t, second, time.Second)
	if len(ticks) == 0 || !ticks[len(ticks)-1].Expired {
		t.Fatalf("re-armed countdown ticks = %v, want terminal expiry", ticks)
	}
}

func TestCountdownZeroDurationExpiresImmediately(t *testing.T) {
	c := NewWithInterval(time.Millisecond)
	ticks := collect(t, c.Arm(0), time.Second)
	if len(ticks) != 1 || !ticks[0].Expired {
		t.Fatalf("ticks = %v, want single immediate expiry", ticks)
	}
}
