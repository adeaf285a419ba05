package playback

import (
	"context"
	"errors"
	"testing"
)

func TestAdapterSpeakRecordsUtterance(t *testing.T) {
	synth := NewMockSynthesizer()
	a := NewAdapter(synth, nil)

	if err := a.Speak(context.Background(), "Paris."); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	got := synth.Utterances()
	if len(got) != 1 || got[0] != "Paris." {
		t.Fatalf("utterances = %v, want [Paris.]", got)
	}
}

func TestAdapterSpeakEmptyTextNoOp(t *testing.T) {
	synth := NewMockSynthesizer()
	a := NewAdapter(synth, nil)

	if err := a.Speak(context.Background(), "   "); err != nil {
		t.Fatalf("Speak(blank) error = %v", err)
	}
	if len(synth.Utterances()) != 0 {
		t.Fatalf("blank text reached the device")
	}
}

func TestAdapterSpeakUnsupported(t *testing.T) {
	synth := NewMockSynthesizer()
	synth.SetUnavailable(true)
	a := NewAdapter(synth, nil)

	if err := a.Speak(context.Background(), "hello"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Speak() error = %v, want ErrUnsupported", err)
	}
}

func TestAdapterSpeakDeviceRejection(t *testing.T) {
	synth := NewMockSynthesizer()
	synth.SetSpeakError(errors.New("device busy"))
	a := NewAdapter(synth, nil)

	if err := a.Speak(context.Background(), "hello"); !errors.Is(err, ErrSpeakFailed) {
		t.Fatalf("Speak() error = %v, want ErrSpeakFailed", err)
	}
}
