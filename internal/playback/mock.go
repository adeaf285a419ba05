package playback

import (
	"context"
	"sync"
)

// MockSynthesizer records utterances instead of producing audio.
type MockSynthesizer struct {
	mu         sync.Mutex
	unavail    bool
	speakErr   error
	utterances []string
}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (s *MockSynthesizer) SetUnavailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavail = v
}

func (s *MockSynthesizer) SetSpeakError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speakErr = err
}

func (s *MockSynthesizer) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.unavail
}

func (s *MockSynthesizer) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speakErr != nil {
		return s.speakErr
	}
	s.utterances = append(s.utterances, text)
	return nil
}

// Utterances returns a copy of everything spoken so far.
func (s *MockSynthesizer) Utterances() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.utterances...)
}
