// Package gateway accepts websocket connections, authenticates them and
// drives one session runtime per connection.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/flitsinc/chatwire/internal/auth"
	"github.com/flitsinc/chatwire/internal/engine"
	"github.com/flitsinc/chatwire/internal/metrics"
	"github.com/flitsinc/chatwire/internal/normalize"
	"github.com/flitsinc/chatwire/internal/session"
	"github.com/flitsinc/chatwire/internal/tokenizer"
	"github.com/flitsinc/chatwire/internal/tools"
	"github.com/flitsinc/chatwire/internal/wire"
)

// Gateway owns the transport edge. All collaborators are injected; a nil
// Verifier means no identity requirement is configured, and a nil
// Tokenizer skips the post-run token count.
type Gateway struct {
	Engine   engine.Engine
	Registry *tools.Registry
	Verifier auth.Verifier

	Tokenizer      tokenizer.Tokenizer
	TokenizerModel string

	// AllowedOrigins is the origin allow-list. Connections from other
	// origins are rejected with a 403 before the handshake completes.
	AllowedOrigins []string

	// CredentialConfigured reports whether an execution credential (the
	// model API key) exists at the process level.
	CredentialConfigured bool

	Metrics *metrics.Set
}

// Handler serves the websocket endpoint.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/client-ws", g.handleWS)
	return mux
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.AllowedOrigins,
	})
	if err != nil {
		log.Printf("gateway: rejected connection from origin %q: %v", r.Header.Get("Origin"), err)
		return
	}

	if g.Metrics != nil {
		g.Metrics.ConnectionsTotal.Inc()
		g.Metrics.ConnectionsActive.Inc()
		defer g.Metrics.ConnectionsActive.Dec()
	}
	log.Printf("gateway: client connected")

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{gateway: g, ws: ws, sess: session.New(), norm: normalize.New(), cancel: cancel}
	defer c.teardown()

	c.send(ctx, &wire.ServerMessage{
		Type:   wire.TypeConfig,
		Config: &wire.Config{MCPServers: g.Registry.Describe()},
	})

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		c.handleMessage(ctx, data)
	}
}

// conn is the server side of one connection: the websocket, the session
// state and the write lock serializing the read loop and the run
// goroutine.
type conn struct {
	gateway *Gateway
	ws      *websocket.Conn
	sess    *session.Session
	norm    *normalize.Normalizer
	cancel  context.CancelFunc

	writeMu sync.Mutex
}

func (c *conn) handleMessage(ctx context.Context, data []byte) {
	var msg wire.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.send(ctx, &wire.ServerMessage{Error: "Invalid JSON"})
		return
	}

	switch msg.Type {
	case wire.TypePing:
		c.send(ctx, &wire.ServerMessage{Type: wire.TypePong, EchoSessionID: msg.SessionID})
	case wire.TypeStartProcess:
		if err := c.sess.BeginRun(); err != nil {
			c.send(ctx, &wire.ServerMessage{SessionID: msg.SessionID, Error: err.Error()})
			return
		}
		go c.runProcess(ctx, msg)
	}
}

func (c *conn) send(ctx context.Context, msg *wire.ServerMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("gateway: encode message: %v", err)
		return false
	}
	c.writeMu.Lock()
	err = c.ws.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if err != nil {
		return false
	}
	if c.gateway.Metrics != nil {
		c.gateway.Metrics.MessagesSent.Inc()
	}
	return true
}

// close ends the connection with a status; used when authentication
// fails.
func (c *conn) close(status websocket.StatusCode, reason string) {
	_ = c.ws.Close(status, reason)
	c.cancel()
}

// teardown runs exactly once when the read loop exits: it cancels the run
// context so an in-flight engine call stops, and discards session state.
func (c *conn) teardown() {
	c.cancel()
	c.sess.Close()
	_ = c.ws.Close(websocket.StatusNormalClosure, "closed")
	log.Printf("gateway: client disconnected")
}
