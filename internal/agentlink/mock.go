package agentlink

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockChannel answers locally without a remote agent. Used in dev mode and
// tests; the answer function may be replaced per instance. It enforces the
// same single-outstanding contract as the websocket channel.
type MockChannel struct {
	mu        sync.Mutex
	connected bool
	inFlight  bool
	answerFn  func(question string) Result
}

func NewMockChannel() *MockChannel {
	return &MockChannel{
		answerFn: func(question string) Result {
			return Result{Answer: fmt.Sprintf("You asked: %s", strings.TrimSpace(question))}
		},
	}
}

func (c *MockChannel) SetAnswerFunc(fn func(question string) Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answerFn = fn
}

func (c *MockChannel) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *MockChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *MockChannel) Send(_ context.Context, question string) (<-chan Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, ErrNotReady
	}
	if c.inFlight {
		return nil, ErrBusy
	}
	c.inFlight = true
	fn := c.answerFn

	out := make(chan Result, 1)
	go func() {
		res := fn(question)
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
		out <- res
	}()
	return out, nil
}

func (c *MockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}
