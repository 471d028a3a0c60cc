// Package wsconn provides a WebSocket client with ordered message delivery
// built on coder/websocket.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/fd1az/chainprobe/internal/apperror"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosed       State = "closed"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration // 0 disables keep-alive pings
	PingTimeout    time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		DialTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
		PingInterval:   30 * time.Second,
		PingTimeout:    10 * time.Second,
		MaxMessageSize: 4 << 20,
	}
}

// MessageHandler receives every inbound data frame, in arrival order.
type MessageHandler func(ctx context.Context, msg []byte)

// StateHandler observes state transitions. err is set when the transition
// was caused by a failure.
type StateHandler func(state State, err error)

// Client is a single-connection WebSocket client. It does not reconnect:
// a dropped connection moves it to StateDisconnected and reports the cause.
type Client struct {
	config Config

	mu           sync.RWMutex
	state        State
	conn         *websocket.Conn
	onMessage    MessageHandler
	onState      StateHandler
	cancel       context.CancelFunc
	closeOnce    sync.Once
	disconnectMu sync.Mutex
}

// New creates a new WebSocket client.
func New(config Config) (*Client, error) {
	u, err := url.Parse(config.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, apperror.New(apperror.CodeConfigInvalid,
			apperror.WithContextf("websocket url %q", config.URL),
			apperror.WithCause(err))
	}

	return &Client{
		config: config,
		state:  StateDisconnected,
	}, nil
}

// OnMessage sets the inbound message handler. Call before Connect.
func (c *Client) OnMessage(h MessageHandler) {
	c.mu.Lock()
	c.onMessage = h
	c.mu.Unlock()
}

// OnStateChange sets the state transition handler. Call before Connect.
func (c *Client) OnStateChange(h StateHandler) {
	c.mu.Lock()
	c.onState = h
	c.mu.Unlock()
}

// Connect dials the server and starts the read and keep-alive loops.
func (c *Client) Connect(ctx context.Context) error {
	if c.State() == StateClosed {
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
	}
	c.setState(StateConnecting, nil)

	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.config.URL, nil)
	if err != nil {
		wrapped := apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithContext(c.config.Name),
			apperror.WithCause(err))
		c.setState(StateDisconnected, wrapped)
		return wrapped
	}
	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.cancel = loopCancel
	c.mu.Unlock()

	c.setState(StateConnected, nil)

	go c.readLoop(loopCtx, conn)
	if c.config.PingInterval > 0 {
		go c.pingLoop(loopCtx, conn)
	}

	return nil
}

// Send writes a text frame.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if conn == nil || state != StateConnected {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithContextf("%s: not connected", c.config.Name))
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.config.WriteTimeout)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, msg); err != nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithContext(c.config.Name),
			apperror.WithCause(err))
	}
	return nil
}

// SendJSON encodes v and writes it as a text frame.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal websocket message: %w", err)
	}
	return c.Send(ctx, data)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		cancel := c.cancel
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			if closeErr := conn.Close(websocket.StatusNormalClosure, "client closing"); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
				err = apperror.New(apperror.CodeWebSocketClosed,
					apperror.WithContext(c.config.Name),
					apperror.WithCause(closeErr))
			}
		}
		if cancel != nil {
			cancel()
		}
		c.setState(StateClosed, nil)
	})
	return err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.disconnected(conn, err)
			return
		}

		c.mu.RLock()
		handler := c.onMessage
		c.mu.RUnlock()

		if handler != nil {
			handler(ctx, data)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.config.PingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				conn.CloseNow()
				return
			}
		}
	}
}

// disconnected records the loss of conn unless the client was closed.
func (c *Client) disconnected(conn *websocket.Conn, cause error) {
	c.disconnectMu.Lock()
	defer c.disconnectMu.Unlock()

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.setState(StateDisconnected, apperror.New(apperror.CodeWebSocketClosed,
		apperror.WithContext(c.config.Name),
		apperror.WithCause(cause)))
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = state
	handler := c.onState
	c.mu.Unlock()

	if handler != nil {
		handler(state, err)
	}
}
