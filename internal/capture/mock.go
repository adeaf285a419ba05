package capture

import (
	"context"
	"sync"
	"time"

	"github.com/dmarini/asklet/internal/transcript"
)

// MockDevice is a scripted capture device for local/dev use and tests. Each
// Start replays the configured fragments at the configured interval, then
// ends the session.
type MockDevice struct {
	mu       sync.Mutex
	script   []transcript.Fragment
	interval time.Duration
}

func NewMockDevice() *MockDevice {
	return &MockDevice{
		script: []transcript.Fragment{
			{Seq: 0, Text: "simulated"},
			{Seq: 1, Text: "simulated voice"},
			{Seq: 2, Text: "simulated voice input", IsFinal: true},
		},
		interval: 400 * time.Millisecond,
	}
}

// SetScript replaces the fragments replayed by subsequent sessions.
func (d *MockDevice) SetScript(fragments []transcript.Fragment, interval time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append([]transcript.Fragment(nil), fragments...)
	if interval > 0 {
		d.interval = interval
	}
}

func (d *MockDevice) Available() bool { return true }

func (d *MockDevice) Start(ctx context.Context) (DeviceSession, <-chan Event, error) {
	d.mu.Lock()
	script := append([]transcript.Fragment(nil), d.script...)
	interval := d.interval
	d.mu.Unlock()

	events := make(chan Event, len(script)+8)
	s := &mockDeviceSession{stopped: make(chan struct{})}

	go func() {
		defer close(events)
		events <- Event{Type: EventStarted}
		for _, f := range script {
			select {
			case <-ctx.Done():
				events <- Event{Type: EventEnded}
				return
			case <-s.stopped:
				events <- Event{Type: EventEnded}
				return
			case <-time.After(interval):
			}
			events <- Event{Type: EventFragment, Fragment: f}
			if f.IsFinal {
				break
			}
		}
		events <- Event{Type: EventEnded}
	}()

	return s, events, nil
}

type mockDeviceSession struct {
	once    sync.Once
	stopped chan struct{}
}

func (s *mockDeviceSession) Stop() error {
	s.once.Do(func() { close(s.stopped) })
	return nil
}
