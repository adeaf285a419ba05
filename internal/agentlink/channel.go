package agentlink

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotReady means the persistent channel is not connected. It is a
// retryable precondition, not a fatal failure: the channel keeps
// reconnecting on its own and a later send may succeed.
var ErrNotReady = errors.New("agent channel not connected")

// ErrBusy means a previous send has not resolved yet. The wire carries no
// request identifier, so the channel refuses a second outstanding request
// rather than risk attributing a reply to the wrong question.
var ErrBusy = errors.New("agent request already in flight")

// AgentError is a failure the remote agent reported for one request.
type AgentError struct {
	Message string
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent error: %s", e.Message)
}

// DisconnectError means the channel dropped before the agent replied. Code
// names the websocket close reason when the peer supplied one; callers use it
// to decide whether a retry is worthwhile.
type DisconnectError struct {
	Code  string
	Cause error
}

func (e *DisconnectError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("agent channel disconnected (%s): %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("agent channel disconnected: %v", e.Cause)
}

func (e *DisconnectError) Unwrap() error { return e.Cause }

// Result is the single outcome of one accepted send: an answer, or an error.
// Exactly one Result is delivered per accepted send, including when the
// connection drops before the agent replies.
type Result struct {
	Answer string
	Err    error
}

// Channel is a persistent duplex connection to the remote agent. The wire
// carries no request identifier, so correlation is purely temporal; the
// channel enforces at most one outstanding request and Send returns ErrBusy
// while a previous one is unresolved.
type Channel interface {
	Connect(ctx context.Context) error
	Connected() bool
	Send(ctx context.Context, question string) (<-chan Result, error)
	Close() error
}
