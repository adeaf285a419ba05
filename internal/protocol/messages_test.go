package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageSubmit(t *testing.T) {
	raw := []byte(`{"type":"submit","session_id":"s1","text":"What is the capital of France?"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	submit, ok := msg.(Submit)
	if !ok {
		t.Fatalf("message type = %T, want Submit", msg)
	}
	if submit.SessionID != "s1" || submit.Text != "What is the capital of France?" {
		t.Fatalf("unexpected submit: %+v", submit)
	}
}

func TestParseClientMessageStartListening(t *testing.T) {
	raw := []byte(`{"type":"start_listening","session_id":"s1"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if _, ok := msg.(StartListening); !ok {
		t.Fatalf("message type = %T, want StartListening", msg)
	}
}

func TestParseClientMessageSetQuestionAllowsEmptyText(t *testing.T) {
	raw := []byte(`{"type":"set_question","session_id":"s1","text":""}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	set, ok := msg.(SetQuestion)
	if !ok {
		t.Fatalf("message type = %T, want SetQuestion", msg)
	}
	if set.Text != "" {
		t.Fatalf("Text = %q, want empty", set.Text)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsMissingSession(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"submit","text":"hi"}`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}
