package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeStartListening MessageType = "start_listening"
	TypeStopListening  MessageType = "stop_listening"
	TypeSetQuestion    MessageType = "set_question"
	TypeSubmit         MessageType = "submit"

	TypeSessionState     MessageType = "session_state"
	TypeQuestionText     MessageType = "question_text"
	TypeCountdownTick    MessageType = "countdown_tick"
	TypeAnswer           MessageType = "answer"
	TypeSpeechAudioChunk MessageType = "speech_audio_chunk"
	TypeErrorEvent       MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type StartListening struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type StopListening struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

// SetQuestion carries manual edits to the question text field. The text may
// be empty (the user cleared the field).
type SetQuestion struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

// Submit asks the orchestrator to send the current question. When Text is
// set it replaces the question first, mirroring a submit from the text field.
type Submit struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text,omitempty"`
}

type SessionState struct {
	Type             MessageType `json:"type"`
	SessionID        string      `json:"session_id"`
	State            string      `json:"state"`
	RemainingSeconds int         `json:"remaining_seconds"`
}

type QuestionText struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	Final     bool        `json:"final"`
}

type CountdownTick struct {
	Type             MessageType `json:"type"`
	SessionID        string      `json:"session_id"`
	RemainingSeconds int         `json:"remaining_seconds"`
}

type Answer struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type SpeechAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Seq         int         `json:"seq"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeStartListening:
		var msg StartListening
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid start_listening")
		}
		return msg, nil
	case TypeStopListening:
		var msg StopListening
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid stop_listening")
		}
		return msg, nil
	case TypeSetQuestion:
		var msg SetQuestion
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid set_question")
		}
		return msg, nil
	case TypeSubmit:
		var msg Submit
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid submit")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
