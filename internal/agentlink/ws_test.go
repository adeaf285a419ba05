package agentlink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeAgent is a websocket server that exposes received questions and lets
// tests script replies.
type fakeAgent struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
	asks     chan string
}

func newFakeAgent(t *testing.T) *fakeAgent {
	t.Helper()
	a := &fakeAgent{
		conns: make(chan *websocket.Conn, 4),
		asks:  make(chan string, 16),
	}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := a.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		a.conns <- conn
		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var frame askFrame
				if err := json.Unmarshal(data, &frame); err != nil {
					continue
				}
				if frame.Type == "ask" {
					a.asks <- frame.Text
				}
			}
		}()
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *fakeAgent) wsURL() string {
	return "ws" + strings.TrimPrefix(a.srv.URL, "http")
}

func (a *fakeAgent) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-a.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for agent connection")
		return nil
	}
}

func (a *fakeAgent) reply(t *testing.T, conn *websocket.Conn, frame replyFrame) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("reply write error = %v", err)
	}
}

func newTestChannel(t *testing.T, url string) *WSChannel {
	t.Helper()
	c, err := NewWSChannel(Config{URL: url}, nil)
	if err != nil {
		t.Fatalf("NewWSChannel() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func awaitResult(t *testing.T, res <-chan Result) Result {
	t.Helper()
	select {
	case r := <-res:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for result")
		return Result{}
	}
}

func TestWSChannelSendBeforeConnect(t *testing.T) {
	agent := newFakeAgent(t)
	c := newTestChannel(t, agent.wsURL())

	if _, err := c.Send(context.Background(), "hello"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Send() error = %v, want ErrNotReady", err)
	}
}

func TestWSChannelAnswerResolvesSend(t *testing.T) {
	agent := newFakeAgent(t)
	c := newTestChannel(t, agent.wsURL())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := agent.conn(t)

	res, err := c.Send(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case ask := <-agent.asks:
		if ask != "What is the capital of France?" {
			t.Fatalf("agent received %q, want the exact question", ask)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("agent never received the question")
	}

	agent.reply(t, conn, replyFrame{Type: "answer", Text: "Paris."})
	r := awaitResult(t, res)
	if r.Err != nil || r.Answer != "Paris." {
		t.Fatalf("result = %+v, want answer Paris.", r)
	}
}

func TestWSChannelErrorFrameResolvesSend(t *testing.T) {
	agent := newFakeAgent(t)
	c := newTestChannel(t, agent.wsURL())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := agent.conn(t)

	res, err := c.Send(context.Background(), "bad question")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	agent.reply(t, conn, replyFrame{Type: "error", Message: "model overloaded"})
	r := awaitResult(t, res)
	var agentErr *AgentError
	if !errors.As(r.Err, &agentErr) {
		t.Fatalf("result error = %v, want AgentError", r.Err)
	}
	if agentErr.Message != "model overloaded" {
		t.Fatalf("agent error message = %q", agentErr.Message)
	}
}

func TestWSChannelDisconnectFailsPendingSend(t *testing.T) {
	agent := newFakeAgent(t)
	c := newTestChannel(t, agent.wsURL())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := agent.conn(t)

	res, err := c.Send(context.Background(), "will never be answered")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	_ = conn.Close()

	r := awaitResult(t, res)
	var disconnectErr *DisconnectError
	if !errors.As(r.Err, &disconnectErr) {
		t.Fatalf("result error = %v, want DisconnectError", r.Err)
	}
	if c.Connected() {
		t.Fatalf("channel still connected after server close")
	}
}

func TestWSChannelRejectsSecondOutstandingSend(t *testing.T) {
	agent := newFakeAgent(t)
	c := newTestChannel(t, agent.wsURL())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := agent.conn(t)

	first, err := c.Send(context.Background(), "first")
	if err != nil {
		t.Fatalf("Send(first) error = %v", err)
	}

	// The wire has no request ids, so a second send while the first is
	// unresolved must be refused instead of queued.
	if _, err := c.Send(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("Send(second) error = %v, want ErrBusy", err)
	}

	agent.reply(t, conn, replyFrame{Type: "answer", Text: "A1"})
	if r := awaitResult(t, first); r.Answer != "A1" {
		t.Fatalf("first result = %+v, want A1", r)
	}

	third, err := c.Send(context.Background(), "third")
	if err != nil {
		t.Fatalf("Send(third) after resolution error = %v", err)
	}
	agent.reply(t, conn, replyFrame{Type: "answer", Text: "A3"})
	if r := awaitResult(t, third); r.Answer != "A3" {
		t.Fatalf("third result = %+v, want A3", r)
	}
}

func TestMockChannelRejectsSecondOutstandingSend(t *testing.T) {
	c := NewMockChannel()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	block := make(chan struct{})
	c.SetAnswerFunc(func(string) Result {
		<-block
		return Result{Answer: "done"}
	})

	res, err := c.Send(context.Background(), "one")
	if err != nil {
		t.Fatalf("Send(one) error = %v", err)
	}
	if _, err := c.Send(context.Background(), "two"); !errors.Is(err, ErrBusy) {
		t.Fatalf("Send(two) error = %v, want ErrBusy", err)
	}

	close(block)
	if r := awaitResult(t, res); r.Err != nil || r.Answer != "done" {
		t.Fatalf("result = %+v", r)
	}
}

func TestWSChannelBusySpansReconnect(t *testing.T) {
	agent := newFakeAgent(t)
	c := newTestChannel(t, agent.wsURL())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := agent.conn(t)

	orphan, err := c.Send(context.Background(), "lost to a reconnect")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	_ = conn.Close()

	// The drop fails the outstanding send before a new connection can
	// accept another, so no reply from the next connection can be
	// attributed to the dead request.
	r := awaitResult(t, orphan)
	if r.Err == nil {
		t.Fatalf("orphaned send resolved with answer %q, want error", r.Answer)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	conn2 := agent.conn(t)

	res, err := c.Send(context.Background(), "fresh question")
	if err != nil {
		t.Fatalf("Send() after reconnect error = %v", err)
	}
	agent.reply(t, conn2, replyFrame{Type: "answer", Text: "fresh answer"})
	if r := awaitResult(t, res); r.Err != nil || r.Answer != "fresh answer" {
		t.Fatalf("result after reconnect = %+v", r)
	}
}
