package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrUnsupported means the host environment offers no synthesis device.
	ErrUnsupported = errors.New("no synthesis device available")
	// ErrSpeakFailed means the device rejected the utterance.
	ErrSpeakFailed = errors.New("synthesis device rejected utterance")
)

// Synthesizer is a black-box speech synthesis capability. Speak enqueues
// vocalization and returns without waiting for playback to finish; whether
// concurrent utterances queue or replace is the device's policy.
type Synthesizer interface {
	Available() bool
	Speak(ctx context.Context, text string) error
}

// Adapter wraps a Synthesizer with availability checks and error
// normalization. Callers never block on speech completion and must not assume
// a previous utterance has finished.
type Adapter struct {
	synth  Synthesizer
	logger *zap.Logger
}

func NewAdapter(synth Synthesizer, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{synth: synth, logger: logger}
}

// Speak vocalizes text. Empty text is a no-op.
func (a *Adapter) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if a.synth == nil || !a.synth.Available() {
		return ErrUnsupported
	}
	if err := a.synth.Speak(ctx, text); err != nil {
		a.logger.Warn("speak rejected", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSpeakFailed, err)
	}
	return nil
}
