package capture

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Adapter wraps a Device into a typed, cancellable session with two
// guarantees the raw device contract does not make: EventEnded is delivered
// exactly once per successful Start, and Stop is an idempotent no-op when no
// session is active. The orchestrator relies on both to release the countdown
// and session state exactly once.
type Adapter struct {
	device Device
	logger *zap.Logger

	mu     sync.Mutex
	active *activeSession
}

type activeSession struct {
	session  DeviceSession
	stopOnce sync.Once
}

func NewAdapter(device Device, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{device: device, logger: logger}
}

// Start begins a capture session. It fails with ErrUnsupported when no device
// exists and ErrStartFailed when the device rejects activation or a session
// is already active. A second Start while active never reaches the device.
func (a *Adapter) Start(ctx context.Context) (<-chan Event, error) {
	if a.device == nil || !a.device.Available() {
		return nil, ErrUnsupported
	}

	a.mu.Lock()
	if a.active != nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: capture already active", ErrStartFailed)
	}
	// Reserve the slot before dialing the device so a concurrent Start cannot
	// open a second device session.
	placeholder := &activeSession{}
	a.active = placeholder
	a.mu.Unlock()

	session, deviceEvents, err := a.device.Start(ctx)
	if err != nil {
		a.mu.Lock()
		a.active = nil
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrStartFailed, err)
	}

	a.mu.Lock()
	placeholder.session = session
	a.mu.Unlock()

	out := make(chan Event, 64)
	go a.forward(placeholder, deviceEvents, out)
	return out, nil
}

// forward relays device events and enforces the exactly-once Ended guarantee:
// whether the device ends by Stop, error, final fragment, or just closes its
// channel, the consumer sees one EventEnded followed by channel close.
func (a *Adapter) forward(as *activeSession, deviceEvents <-chan Event, out chan<- Event) {
	endedSent := false
	defer func() {
		a.mu.Lock()
		if a.active == as {
			a.active = nil
		}
		a.mu.Unlock()
		if !endedSent {
			out <- Event{Type: EventEnded}
		}
		close(out)
	}()

	for evt := range deviceEvents {
		if evt.Type == EventEnded {
			if endedSent {
				continue
			}
			endedSent = true
		}
		out <- evt
		if evt.Type == EventEnded {
			return
		}
	}
}

// Stop requests graceful termination of the active session. Calling it with
// no active session is a no-op, never an error.
func (a *Adapter) Stop() {
	a.mu.Lock()
	as := a.active
	a.mu.Unlock()
	if as == nil || as.session == nil {
		return
	}
	as.stopOnce.Do(func() {
		if err := as.session.Stop(); err != nil {
			a.logger.Warn("capture stop failed", zap.Error(err))
		}
	})
}

// Active reports whether a capture session is currently open.
func (a *Adapter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active != nil
}
