package agentlink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dmarini/asklet/internal/reliability"
)

const wsWriteTimeout = 5 * time.Second

// askFrame is the client→agent wire format: one question string, no
// request identifier.
type askFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// replyFrame is the agent→client wire format: an answer string or an error
// string, again with no identifier.
type replyFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// Config controls the websocket channel.
type Config struct {
	URL            string
	ConnectTimeout time.Duration
	BackoffBase    time.Duration
	BackoffCap     time.Duration
}

// WSChannel maintains a persistent websocket to the remote agent. At most one
// send may be outstanding; the next reply resolves it, and a connection drop
// fails it so each accepted send still resolves exactly once.
type WSChannel struct {
	cfg    Config
	logger *zap.Logger
	dialer websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	waiters []chan Result
	closed  bool
}

func NewWSChannel(cfg Config, logger *zap.Logger) (*WSChannel, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("agent websocket url is required")
	}
	cfg.URL = url
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffCap < cfg.BackoffBase {
		cfg.BackoffCap = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSChannel{
		cfg:    cfg,
		logger: logger,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
		},
	}, nil
}

// Connect dials the agent once. Run is the usual entry point; Connect exists
// for callers that want an eager first attempt with a real error.
func (c *WSChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("channel closed")
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial agent websocket: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("channel closed")
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Run keeps the channel connected until ctx is cancelled, redialing with
// capped exponential backoff. Reconnection is the channel's own concern;
// consumers only ever see Connected flipping.
func (c *WSChannel) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if c.Connected() {
			time.Sleep(c.cfg.BackoffBase)
			continue
		}
		if err := c.Connect(ctx); err != nil {
			wait := reliability.ExponentialBackoff(attempt, c.cfg.BackoffBase, c.cfg.BackoffCap)
			c.logger.Warn("agent connect failed",
				zap.Error(err),
				zap.Duration("retry_in", wait))
			attempt++
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		c.logger.Info("agent channel connected", zap.String("url", c.cfg.URL))
		attempt = 0
	}
}

func (c *WSChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send transmits one question. It fails synchronously with ErrNotReady when
// disconnected and with ErrBusy while an earlier send is unresolved; an
// accepted send resolves on the returned channel exactly once. The busy check
// spans reconnects: a waiter from a dropped connection fails via dropConn
// before a new send can be accepted.
func (c *WSChannel) Send(_ context.Context, question string) (<-chan Result, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotReady
	}
	if len(c.waiters) > 0 {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	waiter := make(chan Result, 1)
	c.waiters = append(c.waiters, waiter)
	c.mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(askFrame{Type: "ask", Text: question}); err != nil {
		c.removeWaiter(waiter)
		c.dropConn(conn, err)
		return nil, ErrNotReady
	}
	return waiter, nil
}

func (c *WSChannel) readLoop(conn *websocket.Conn) {
	for {
		var frame replyFrame
		if err := conn.ReadJSON(&frame); err != nil {
			c.dropConn(conn, err)
			return
		}
		switch frame.Type {
		case "answer":
			c.resolvePending(Result{Answer: frame.Text})
		case "error":
			c.resolvePending(Result{Err: &AgentError{Message: frame.Message}})
		default:
			// Unknown frame types are ignored; the agent may add
			// informational events the client does not consume.
		}
	}
}

// resolvePending delivers a reply to the pending send. Temporal correlation
// is all the wire offers.
func (c *WSChannel) resolvePending(res Result) {
	c.mu.Lock()
	var waiter chan Result
	if len(c.waiters) > 0 {
		waiter = c.waiters[0]
		c.waiters = c.waiters[1:]
	}
	c.mu.Unlock()
	if waiter == nil {
		c.logger.Warn("agent reply with no pending request dropped")
		return
	}
	waiter <- res
}

func (c *WSChannel) removeWaiter(waiter chan Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == waiter {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// dropConn closes the connection and fails every pending waiter so accepted
// sends never hang forever on a dead socket.
func (c *WSChannel) dropConn(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	pending := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	_ = conn.Close()
	if cause != nil && !c.isClosed() {
		c.logger.Warn("agent channel disconnected", zap.Error(cause))
	}
	code := closeCodeName(cause)
	for _, w := range pending {
		w <- Result{Err: &DisconnectError{Code: code, Cause: cause}}
	}
}

func closeCodeName(err error) string {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return ""
	}
	switch closeErr.Code {
	case websocket.CloseGoingAway:
		return "going_away"
	case websocket.CloseAbnormalClosure:
		return "abnormal_closure"
	case websocket.CloseServiceRestart:
		return "service_restart"
	case websocket.CloseTryAgainLater:
		return "try_again_later"
	default:
		return fmt.Sprintf("close_%d", closeErr.Code)
	}
}

func (c *WSChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *WSChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		c.dropConn(conn, errors.New("channel closed"))
	}
	return nil
}
