package device

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dmarini/asklet/internal/capture"
	"github.com/dmarini/asklet/internal/reliability"
	"github.com/dmarini/asklet/internal/transcript"
)

// Config holds the realtime speech service connection parameters. One service
// backs both directions: speech-to-text sessions for capture and per-utterance
// text-to-speech streams for playback.
type Config struct {
	WSBaseURL    string
	APIKey       string
	STTModelID   string
	TTSVoiceID   string
	SampleRate   int
	OutputFormat string
}

// AudioChunk is one block of synthesized audio from a Speak call.
type AudioChunk struct {
	Seq         int
	Format      string
	AudioBase64 string
}

// RealtimeDevice is a websocket-backed speech device. It implements both the
// capture.Device and playback.Synthesizer contracts against the same remote
// service. Synthesized audio is delivered to the registered sink, since the
// service streams audio back to us rather than playing it host-side.
type RealtimeDevice struct {
	cfg    Config
	logger *zap.Logger

	mu   sync.Mutex
	sink func(AudioChunk)
}

func NewRealtimeDevice(cfg Config, logger *zap.Logger) *RealtimeDevice {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.scribe.dev"
	}
	if strings.TrimSpace(cfg.STTModelID) == "" {
		cfg.STTModelID = "scribe_v1"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "pcm_16000"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeDevice{cfg: cfg, logger: logger}
}

// SetAudioSink registers the consumer of synthesized audio chunks. The device
// is singular, so a single sink suffices; replacing it affects subsequent
// Speak calls only.
func (d *RealtimeDevice) SetAudioSink(fn func(AudioChunk)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = fn
}

func (d *RealtimeDevice) Available() bool {
	return strings.TrimSpace(d.cfg.APIKey) != ""
}

// Start opens a speech-to-text session. The service pushes growing partial
// transcripts; each becomes a fragment, and the committed transcript becomes
// the final fragment that ends the session.
func (d *RealtimeDevice) Start(ctx context.Context) (capture.DeviceSession, <-chan capture.Event, error) {
	u, err := url.Parse(strings.TrimRight(d.cfg.WSBaseURL, "/") + "/v1/speech-to-text/realtime")
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("model_id", d.cfg.STTModelID)
	q.Set("sample_rate", strconv.Itoa(d.cfg.SampleRate))
	q.Set("commit_strategy", "vad")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", d.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, nil, fmt.Errorf("dial stt websocket: %w", err)
	}

	events := make(chan capture.Event, 256)
	s := &sttSession{conn: conn, events: events}
	events <- capture.Event{Type: capture.EventStarted}
	go s.readLoop()
	return s, events, nil
}

type sttSession struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan capture.Event
	seq       int
}

func (s *sttSession) readLoop() {
	defer s.safeClose()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		switch messageType := asString(raw["message_type"]); messageType {
		case "partial_transcript":
			s.events <- capture.Event{
				Type:     capture.EventFragment,
				Fragment: transcript.Fragment{Seq: s.nextSeq(), Text: asString(raw["text"])},
			}
		case "committed_transcript":
			s.events <- capture.Event{
				Type:     capture.EventFragment,
				Fragment: transcript.Fragment{Seq: s.nextSeq(), Text: asString(raw["text"]), IsFinal: true},
			}
			return
		case "session_started", "", "input_audio_chunk":
			// control traffic
		default:
			s.events <- capture.Event{
				Type:      capture.EventError,
				Code:      messageType,
				Detail:    asString(raw["error"]),
				Retryable: reliability.IsRetryableDeviceCode(messageType),
			}
		}
	}
}

func (s *sttSession) nextSeq() int {
	n := s.seq
	s.seq++
	return n
}

// Stop asks the service to end the session, then closes the socket. Only the
// read loop finalizes the event channel, so Stop never races a pending send.
func (s *sttSession) Stop() error {
	s.writeMu.Lock()
	_ = s.conn.WriteJSON(map[string]any{"message_type": "end_session"})
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (s *sttSession) safeClose() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		s.events <- capture.Event{Type: capture.EventEnded}
		close(s.events)
	})
}

// Speak opens a per-utterance text-to-speech stream and forwards the audio it
// returns to the registered sink. It returns once the utterance is accepted;
// audio arrives asynchronously.
func (d *RealtimeDevice) Speak(ctx context.Context, text string) error {
	voiceID := d.cfg.TTSVoiceID
	if strings.TrimSpace(voiceID) == "" {
		voiceID = "narrator"
	}

	u, err := url.Parse(strings.TrimRight(d.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input")
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("output_format", d.cfg.OutputFormat)
	q.Set("auto_mode", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", d.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return fmt.Errorf("dial tts websocket: %w", err)
	}

	if err := conn.WriteJSON(map[string]any{"text": text, "try_trigger_generation": true}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send utterance: %w", err)
	}
	// Empty text closes the input side; the service flushes remaining audio.
	if err := conn.WriteJSON(map[string]any{"text": ""}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("close utterance input: %w", err)
	}

	go d.drainAudio(conn)
	return nil
}

func (d *RealtimeDevice) drainAudio(conn *websocket.Conn) {
	defer conn.Close()
	seq := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		if audio := asString(raw["audio"]); audio != "" {
			d.mu.Lock()
			sink := d.sink
			d.mu.Unlock()
			if sink != nil {
				sink(AudioChunk{Seq: seq, Format: d.cfg.OutputFormat, AudioBase64: audio})
			}
			seq++
		}
		if errMsg := asString(raw["error"]); errMsg != "" {
			d.logger.Warn("tts stream error",
				zap.String("code", asString(raw["message_type"])),
				zap.String("detail", errMsg))
			return
		}
		if asBool(raw["is_final"]) || asBool(raw["isFinal"]) {
			return
		}
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
