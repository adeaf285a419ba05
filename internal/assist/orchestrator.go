package assist

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dmarini/asklet/internal/agentlink"
	"github.com/dmarini/asklet/internal/capture"
	"github.com/dmarini/asklet/internal/countdown"
	"github.com/dmarini/asklet/internal/device"
	"github.com/dmarini/asklet/internal/history"
	"github.com/dmarini/asklet/internal/observability"
	"github.com/dmarini/asklet/internal/playback"
	"github.com/dmarini/asklet/internal/policy"
	"github.com/dmarini/asklet/internal/protocol"
	"github.com/dmarini/asklet/internal/reliability"
	"github.com/dmarini/asklet/internal/session"
	"github.com/dmarini/asklet/internal/transcript"
)

// State is the orchestrator's per-connection phase. Error is transient: it is
// surfaced as an ErrorEvent and the machine settles back to Idle in the same
// dispatch, so it never appears as a resting state.
type State string

const (
	StateIdle             State = "idle"
	StateListening        State = "listening"
	StateSubmitting       State = "submitting"
	StateAwaitingResponse State = "awaiting_response"
	StateError            State = "error"
)

const historySaveTimeout = 2 * time.Second

// Orchestrator composes capture, countdown, transcript accumulation, the
// agent channel, and playback into one session state machine. All per-session
// state lives inside RunConnection, which processes every event source in a
// single select loop; nothing here needs locking.
type Orchestrator struct {
	sessions *session.Manager
	capture  *capture.Adapter
	playback *playback.Adapter
	agent    agentlink.Channel
	history  history.Store
	metrics  *observability.Metrics
	logger   *zap.Logger

	listenSeconds int
	tickInterval  time.Duration
	audio         AudioStreamer
}

// AudioStreamer exposes the synthesized audio feed of a speech device. The
// device is singular, so the feed follows whichever connection is active.
type AudioStreamer interface {
	SetAudioSink(func(device.AudioChunk))
}

// AttachAudioStreamer forwards synthesized audio chunks to connected clients.
func (o *Orchestrator) AttachAudioStreamer(s AudioStreamer) {
	o.audio = s
}

func NewOrchestrator(
	sessions *session.Manager,
	captureAdapter *capture.Adapter,
	playbackAdapter *playback.Adapter,
	agent agentlink.Channel,
	historyStore history.Store,
	metrics *observability.Metrics,
	logger *zap.Logger,
	listenWindow time.Duration,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	seconds := int(listenWindow / time.Second)
	if seconds <= 0 {
		seconds = 60
	}
	return &Orchestrator{
		sessions:      sessions,
		capture:       captureAdapter,
		playback:      playbackAdapter,
		agent:         agent,
		history:       historyStore,
		metrics:       metrics,
		logger:        logger,
		listenSeconds: seconds,
		tickInterval:  time.Second,
	}
}

// RunConnection drives one client connection until the context ends or the
// inbound channel closes. Inbound carries parsed protocol client messages;
// outbound receives protocol server messages.
func (o *Orchestrator) RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error {
	var (
		state         = StateIdle
		acc           = transcript.NewAccumulator()
		timer         = countdown.NewWithInterval(o.tickInterval)
		questionText  string
		remaining     int
		captureEvents <-chan capture.Event
		ticks         <-chan countdown.Tick
		pending       <-chan agentlink.Result
		// submittedQuestion is the text the outstanding request actually
		// carried. questionText keeps tracking edits while awaiting, so the
		// persisted exchange must use this snapshot instead.
		submittedQuestion string
		submittedAt       time.Time
	)

	setState := func(next State) {
		state = next
		o.metrics.StateChanges.WithLabelValues(string(next)).Inc()
		o.send(ctx, outbound, protocol.SessionState{
			Type:             protocol.TypeSessionState,
			SessionID:        s.ID,
			State:            string(next),
			RemainingSeconds: remaining,
		})
	}

	// All four listening exits (final fragment, expiry, user stop, capture
	// error) converge here. Disarm and Stop are both idempotent, so the
	// convergence cannot double-release anything.
	endListening := func() {
		timer.Disarm()
		o.capture.Stop()
		ticks = nil
		remaining = 0
	}

	surfaceError := func(code, source, detail string, retryable bool) {
		o.metrics.AdapterErrors.WithLabelValues(source, code).Inc()
		o.metrics.StateChanges.WithLabelValues(string(StateError)).Inc()
		o.send(ctx, outbound, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: s.ID,
			Code:      code,
			Source:    source,
			Retryable: retryable,
			Detail:    detail,
		})
	}

	defer func() {
		timer.Disarm()
		o.capture.Stop()
	}()

	if o.audio != nil {
		o.audio.SetAudioSink(func(chunk device.AudioChunk) {
			msg := protocol.SpeechAudioChunk{
				Type:        protocol.TypeSpeechAudioChunk,
				SessionID:   s.ID,
				Seq:         chunk.Seq,
				Format:      chunk.Format,
				AudioBase64: chunk.AudioBase64,
			}
			// Audio is advisory; never let a slow client stall the device's
			// read loop.
			select {
			case outbound <- msg:
			default:
			}
		})
		defer o.audio.SetAudioSink(nil)
	}

	setState(StateIdle)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			o.sessions.Touch(s.ID)

			switch m := msg.(type) {
			case protocol.StartListening:
				if state != StateIdle {
					surfaceError("capture_start_failed", "capture", "listening or request already active", false)
					continue
				}
				acc.Reset()
				evs, err := o.capture.Start(ctx)
				if err != nil {
					code := "capture_start_failed"
					if errors.Is(err, capture.ErrUnsupported) {
						code = "capture_unsupported"
					}
					surfaceError(code, "capture", err.Error(), false)
					setState(StateIdle)
					continue
				}
				captureEvents = evs
				remaining = o.listenSeconds
				ticks = timer.Arm(o.listenSeconds)
				o.metrics.SessionEvents.WithLabelValues("listening_started").Inc()
				setState(StateListening)

			case protocol.StopListening:
				if state != StateListening {
					continue
				}
				endListening()
				setState(StateIdle)

			case protocol.SetQuestion:
				questionText = m.Text
				o.send(ctx, outbound, protocol.QuestionText{
					Type:      protocol.TypeQuestionText,
					SessionID: s.ID,
					Text:      questionText,
				})

			case protocol.Submit:
				if m.Text != "" {
					questionText = m.Text
				}
				if pending != nil {
					o.metrics.SessionEvents.WithLabelValues("submit_rejected").Inc()
					surfaceError("request_in_flight", "channel", "a request is already awaiting a response", true)
					continue
				}
				if strings.TrimSpace(questionText) == "" {
					surfaceError("empty_question", "channel", "question text is empty", false)
					continue
				}
				if state == StateListening {
					endListening()
				}
				setState(StateSubmitting)
				results, err := o.agent.Send(ctx, questionText)
				if err != nil {
					code := "channel_send_failed"
					retryable := false
					switch {
					case errors.Is(err, agentlink.ErrNotReady):
						code = "channel_not_ready"
						retryable = true
					case errors.Is(err, agentlink.ErrBusy):
						code = "request_in_flight"
						retryable = true
					}
					surfaceError(code, "channel", err.Error(), retryable)
					setState(StateIdle)
					continue
				}
				pending = results
				submittedQuestion = questionText
				submittedAt = time.Now()
				o.metrics.SessionEvents.WithLabelValues("question_sent").Inc()
				setState(StateAwaitingResponse)

			default:
				o.logger.Warn("unhandled client message", zap.String("session_id", s.ID))
			}

		case evt, ok := <-captureEvents:
			if !ok {
				captureEvents = nil
				if state == StateListening {
					endListening()
					setState(StateIdle)
				}
				continue
			}
			switch evt.Type {
			case capture.EventStarted:
				o.logger.Debug("capture started", zap.String("session_id", s.ID))

			case capture.EventFragment:
				text, final, err := acc.Apply(evt.Fragment)
				if errors.Is(err, transcript.ErrFragmentAfterFinal) {
					o.logger.Debug("fragment after final dropped", zap.String("session_id", s.ID))
					continue
				}
				questionText = text
				o.send(ctx, outbound, protocol.QuestionText{
					Type:      protocol.TypeQuestionText,
					SessionID: s.ID,
					Text:      text,
					Final:     final,
				})
				if final && state == StateListening {
					o.metrics.SessionEvents.WithLabelValues("transcript_final").Inc()
					endListening()
					setState(StateIdle)
				}

			case capture.EventError:
				code := evt.Code
				if code == "" {
					code = "capture_device_error"
				}
				surfaceError(code, "capture", evt.Detail, evt.Retryable)
				// Devices may deliver buffered errors after Stop. Only a live
				// listening session transitions; an error arriving while a
				// request is outstanding must not report Idle early.
				if state == StateListening {
					endListening()
					setState(StateIdle)
				}

			case capture.EventEnded:
				if state == StateListening {
					endListening()
					setState(StateIdle)
				}
			}

		case tick, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			remaining = tick.Remaining
			o.send(ctx, outbound, protocol.CountdownTick{
				Type:             protocol.TypeCountdownTick,
				SessionID:        s.ID,
				RemainingSeconds: tick.Remaining,
			})
			if tick.Expired {
				o.metrics.SessionEvents.WithLabelValues("listen_window_expired").Inc()
				endListening()
				if state == StateListening {
					setState(StateIdle)
				}
			}

		case res := <-pending:
			// Exactly one result resolves each accepted send, so clearing
			// here keeps PendingRequest and AwaitingResponse in lockstep.
			pending = nil
			if res.Err != nil {
				var (
					agentErr      *agentlink.AgentError
					disconnectErr *agentlink.DisconnectError
				)
				code, source, retryable := "channel_disconnected", "channel", true
				switch {
				case errors.As(res.Err, &agentErr):
					code, source, retryable = "agent_error", "agent", false
				case errors.As(res.Err, &disconnectErr) && disconnectErr.Code != "":
					retryable = reliability.IsRetryableAgentClose(disconnectErr.Code)
				}
				surfaceError(code, source, res.Err.Error(), retryable)
				o.saveExchange(s.ID, submittedQuestion, "", res.Err.Error())
				setState(StateIdle)
				continue
			}

			o.metrics.ObserveAnswerLatency(time.Since(submittedAt))
			o.metrics.SessionEvents.WithLabelValues("exchange_completed").Inc()
			o.send(ctx, outbound, protocol.Answer{
				Type:      protocol.TypeAnswer,
				SessionID: s.ID,
				Text:      res.Answer,
			})
			if err := o.playback.Speak(ctx, res.Answer); err != nil {
				code := "playback_failed"
				if errors.Is(err, playback.ErrUnsupported) {
					code = "playback_unsupported"
				}
				surfaceError(code, "playback", err.Error(), false)
			}
			o.saveExchange(s.ID, submittedQuestion, res.Answer, "")
			o.sessions.RecordExchange(s.ID)
			setState(StateIdle)
		}
	}
}

// saveExchange persists one completed round trip off the event loop. History
// is best effort: a store failure is logged and never surfaced to the client.
func (o *Orchestrator) saveExchange(sessionID, question, answer, errorText string) {
	if o.history == nil {
		return
	}
	redactedQuestion, changedQ := policy.RedactPII(question)
	redactedAnswer, changedA := policy.RedactPII(answer)
	ex := history.Exchange{
		SessionID: sessionID,
		Question:  redactedQuestion,
		Answer:    redactedAnswer,
		ErrorText: errorText,
		Redacted:  changedQ || changedA,
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		saveCtx, cancel := context.WithTimeout(context.Background(), historySaveTimeout)
		defer cancel()
		if err := o.history.SaveExchange(saveCtx, ex); err != nil {
			o.logger.Warn("history save failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()
}

func (o *Orchestrator) send(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	case <-ctx.Done():
	}
}
