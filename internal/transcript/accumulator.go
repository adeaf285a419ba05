package transcript

import "errors"

// ErrFragmentAfterFinal is returned when a fragment arrives after one marked
// final. Callers drop these fragments instead of surfacing them.
var ErrFragmentAfterFinal = errors.New("fragment applied after final transcript")

// Fragment is one incremental speech-to-text update. The capture device emits
// the full best-guess text so far in each fragment; Seq preserves emission
// order, IsFinal signals that no more fragments follow for this session.
type Fragment struct {
	Seq     int    `json:"seq"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// Accumulator merges capture fragments into the current best-guess question
// text. It is not safe for concurrent use; the orchestrator applies fragments
// from a single event loop.
type Accumulator struct {
	text    string
	lastSeq int
	final   bool
}

func NewAccumulator() *Accumulator {
	return &Accumulator{lastSeq: -1}
}

// Reset clears accumulated text and finality for a fresh capture session.
func (a *Accumulator) Reset() {
	a.text = ""
	a.lastSeq = -1
	a.final = false
}

// Apply merges one fragment and returns the updated text plus whether the
// transcript is now final. Fragments after finality are rejected with
// ErrFragmentAfterFinal and leave the accumulated text untouched. A stale Seq
// never replaces newer text, but its IsFinal flag still counts: a device may
// reorder the final marker behind a later partial, and the session must still
// close out.
func (a *Accumulator) Apply(f Fragment) (string, bool, error) {
	if a.final {
		return a.text, true, ErrFragmentAfterFinal
	}
	if f.Seq <= a.lastSeq {
		if f.IsFinal {
			a.final = true
		}
		return a.text, a.final, nil
	}
	a.lastSeq = f.Seq
	a.text = f.Text
	if f.IsFinal {
		a.final = true
	}
	return a.text, a.final, nil
}

// Text returns the current best-guess transcript.
func (a *Accumulator) Text() string { return a.text }

// Final reports whether a final fragment has been applied.
func (a *Accumulator) Final() bool { return a.final }
