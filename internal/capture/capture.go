package capture

import (
	"context"
	"errors"

	"github.com/dmarini/asklet/internal/transcript"
)

type EventType string

const (
	EventStarted  EventType = "started"
	EventFragment EventType = "fragment"
	EventError    EventType = "error"
	EventEnded    EventType = "ended"
)

// Event is one typed update from a capture session.
type Event struct {
	Type      EventType
	Fragment  transcript.Fragment
	Code      string
	Detail    string
	Retryable bool
}

var (
	// ErrUnsupported means the host environment offers no capture device.
	ErrUnsupported = errors.New("no capture device available")
	// ErrStartFailed means the device rejected activation.
	ErrStartFailed = errors.New("capture device rejected start")
)

// Device is a black-box speech capture capability. Start opens one device
// session; the device emits fragments and errors on the returned channel and
// closes it when the session ends, whether by Stop, device error, or a final
// fragment.
type Device interface {
	Available() bool
	Start(ctx context.Context) (DeviceSession, <-chan Event, error)
}

// DeviceSession controls one active capture. Stop requests graceful
// termination; devices may deliver already-buffered events afterwards.
type DeviceSession interface {
	Stop() error
}
