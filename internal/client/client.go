package client

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/flitsinc/chatwire/internal/idgen"
	"github.com/flitsinc/chatwire/internal/wire"
)

// Connection states. Transitions: Disconnected -> Connecting -> Open,
// and any state -> Disconnected on transport close.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

const (
	keepaliveInterval     = 15 * time.Second
	connectPollInterval   = 50 * time.Millisecond
	defaultConnectTimeout = 10 * time.Second
	defaultModel          = "gemini-2.5-flash"
)

// ConnectTimeoutError reports that a send gave up waiting for the
// connection to open.
type ConnectTimeoutError struct {
	Timeout time.Duration
}

func (e *ConnectTimeoutError) Error() string {
	return fmt.Sprintf("connection not open after %s", e.Timeout)
}

// Dialer opens a websocket to the given URL. Tests substitute their own.
type Dialer func(ctx context.Context, url string) (*websocket.Conn, error)

func defaultDialer(ctx context.Context, url string) (*websocket.Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	return ws, err
}

// SessionClient drives one protocol session over a websocket.
// Reconnection is lazy: a dropped connection is only re-established by
// the next Send.
type SessionClient struct {
	URL            string
	Model          string
	IDToken        string
	SessionID      string
	ConnectTimeout time.Duration

	// OnUpdate fires after each applied server message.
	OnUpdate func()

	reducer *Reducer
	dial    Dialer

	mu         sync.Mutex
	state      State
	ws         *websocket.Conn
	stopPing   context.CancelFunc
	mcpServers []string
}

func NewSessionClient(url string, reducer *Reducer) *SessionClient {
	return &SessionClient{
		URL:            url,
		Model:          defaultModel,
		SessionID:      "ws-" + idgen.New(),
		ConnectTimeout: defaultConnectTimeout,
		reducer:        reducer,
		dial:           defaultDialer,
	}
}

// SetDialer overrides the transport dialer.
func (c *SessionClient) SetDialer(d Dialer) {
	c.mu.Lock()
	c.dial = d
	c.mu.Unlock()
}

func (c *SessionClient) SetMCPServers(ids []string) {
	c.mu.Lock()
	c.mcpServers = append([]string(nil), ids...)
	c.mu.Unlock()
}

func (c *SessionClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SessionClient) Reducer() *Reducer {
	return c.reducer
}

// Send transmits one prompt, connecting first if needed. It returns a
// *ConnectTimeoutError when the transport does not open in time.
func (c *SessionClient) Send(ctx context.Context, prompt string) error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.state = StateConnecting
		go c.connect()
	}
	c.mu.Unlock()

	if err := c.waitForOpen(ctx); err != nil {
		return err
	}

	c.reducer.AddPrompt(prompt)

	c.mu.Lock()
	ws := c.ws
	servers := append([]string(nil), c.mcpServers...)
	c.mu.Unlock()

	return wsjson.Write(ctx, ws, wire.ClientMessage{
		Type:       wire.TypeStartProcess,
		SessionID:  c.SessionID,
		Prompt:     prompt,
		Model:      c.Model,
		MCPServers: servers,
		IDToken:    c.IDToken,
	})
}

func (c *SessionClient) connect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.ConnectTimeout)
	ws, err := c.dial(ctx, c.URL)
	cancel()
	if err != nil {
		log.Printf("client: connect %s: %v", c.URL, err)
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}

	pingCtx, stopPing := context.WithCancel(context.Background())
	c.mu.Lock()
	c.ws = ws
	c.state = StateOpen
	c.stopPing = stopPing
	c.mu.Unlock()
	c.reducer.SetConnected(true)

	go c.keepalive(pingCtx, ws)
	go c.readLoop(ws)
}

// waitForOpen polls until the connection opens, the context ends, or the
// configured timeout elapses.
func (c *SessionClient) waitForOpen(ctx context.Context) error {
	deadline := time.Now().Add(c.ConnectTimeout)
	for {
		if c.State() == StateOpen {
			return nil
		}
		if time.Now().After(deadline) {
			return &ConnectTimeoutError{Timeout: c.ConnectTimeout}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectPollInterval):
		}
	}
}

func (c *SessionClient) keepalive(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := wire.ClientMessage{Type: wire.TypePing, SessionID: c.SessionID}
			if err := wsjson.Write(ctx, ws, msg); err != nil {
				return
			}
		}
	}
}

func (c *SessionClient) readLoop(ws *websocket.Conn) {
	ctx := context.Background()
	for {
		var msg wire.ServerMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			c.handleClose(ws)
			return
		}
		if err := c.reducer.Apply(&msg); err != nil {
			log.Printf("client: apply message: %v", err)
		}
		if c.OnUpdate != nil {
			c.OnUpdate()
		}
	}
}

// handleClose tears down connection state exactly once per connection.
func (c *SessionClient) handleClose(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.state = StateDisconnected
	stopPing := c.stopPing
	c.stopPing = nil
	c.mu.Unlock()

	if stopPing != nil {
		stopPing()
	}
	c.reducer.NoteClosed()
	if c.OnUpdate != nil {
		c.OnUpdate()
	}
}

// Close shuts the transport down. The read loop observes the close and
// runs the usual teardown.
func (c *SessionClient) Close() {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "client closed")
	}
}
