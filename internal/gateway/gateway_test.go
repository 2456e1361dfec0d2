package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/flitsinc/chatwire/internal/auth"
	"github.com/flitsinc/chatwire/internal/engine"
	"github.com/flitsinc/chatwire/internal/gateway"
	"github.com/flitsinc/chatwire/internal/session"
	"github.com/flitsinc/chatwire/internal/tools"
	"github.com/flitsinc/chatwire/internal/wire"
)

type fakeEngine struct {
	run func(ctx context.Context, input engine.Input) (*engine.Stream, error)
}

func (f *fakeEngine) Run(ctx context.Context, input engine.Input) (*engine.Stream, error) {
	return f.run(ctx, input)
}

type fakeVerifier struct {
	identity *auth.Identity
	err      error
}

func (f *fakeVerifier) Verify(_ context.Context, _ string) (*auth.Identity, error) {
	return f.identity, f.err
}

func newTestServer(t *testing.T, g *gateway.Gateway) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return srv, strings.Replace(srv.URL, "http", "ws", 1) + "/client-ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "test done") })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) wire.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var msg wire.ServerMessage
	if err := wsjson.Read(ctx, ws, &msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestGatewaySendsConfigFirst(t *testing.T) {
	registry := tools.NewRegistry()
	registry.AddExternal("weather", tools.NewHTTPTool("weather", "Weather", "http://localhost:1"))
	g := &gateway.Gateway{
		Engine:               &fakeEngine{},
		Registry:             registry,
		CredentialConfigured: true,
	}
	_, url := newTestServer(t, g)
	ws := dial(t, url)

	msg := readMessage(t, ws)
	if msg.Type != wire.TypeConfig || msg.Config == nil {
		t.Fatalf("first message is not config: %+v", msg)
	}
	if msg.Config.MCPServers["weather"] != "Weather" {
		t.Fatalf("config missing external tool: %+v", msg.Config)
	}
}

func TestGatewayPingPong(t *testing.T) {
	g := &gateway.Gateway{
		Engine:               &fakeEngine{},
		Registry:             tools.NewRegistry(),
		CredentialConfigured: true,
	}
	_, url := newTestServer(t, g)
	ws := dial(t, url)
	readMessage(t, ws) // config

	ctx := context.Background()
	if err := wsjson.Write(ctx, ws, wire.ClientMessage{Type: wire.TypePing, SessionID: "ws-test"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	msg := readMessage(t, ws)
	if msg.Type != wire.TypePong || msg.EchoSessionID != "ws-test" {
		t.Fatalf("expected pong echo, got %+v", msg)
	}
}

func TestGatewayInvalidJSONKeepsConnectionOpen(t *testing.T) {
	g := &gateway.Gateway{
		Engine:               &fakeEngine{},
		Registry:             tools.NewRegistry(),
		CredentialConfigured: true,
	}
	_, url := newTestServer(t, g)
	ws := dial(t, url)
	readMessage(t, ws) // config

	ctx := context.Background()
	if err := ws.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	msg := readMessage(t, ws)
	if msg.Error != "Invalid JSON" {
		t.Fatalf("expected Invalid JSON error, got %+v", msg)
	}

	// Connection survives the malformed frame.
	if err := wsjson.Write(ctx, ws, wire.ClientMessage{Type: wire.TypePing, SessionID: "s"}); err != nil {
		t.Fatalf("write ping after error: %v", err)
	}
	if msg := readMessage(t, ws); msg.Type != wire.TypePong {
		t.Fatalf("expected pong after malformed frame, got %+v", msg)
	}
}

func TestGatewayRejectsDisallowedOrigin(t *testing.T) {
	g := &gateway.Gateway{
		Engine:               &fakeEngine{},
		Registry:             tools.NewRegistry(),
		AllowedOrigins:       []string{"app.example.com"},
		CredentialConfigured: true,
	}
	_, url := newTestServer(t, g)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err == nil {
		_ = ws.Close(websocket.StatusNormalClosure, "")
		t.Fatalf("expected handshake rejection for disallowed origin")
	}
}

func TestGatewayRunStream(t *testing.T) {
	eng := &fakeEngine{run: func(ctx context.Context, input engine.Input) (*engine.Stream, error) {
		if input.Prompt != "2+2" {
			t.Errorf("prompt = %q, want 2+2 (no prefix on empty history)", input.Prompt)
		}
		stream := engine.NewStream()
		go func() {
			stream.Emit(ctx, engine.FinalMessage{Text: "4"})
			stream.Finish([]session.Item{
				session.UserMessage("2+2"),
				session.AssistantMessage("4"),
			})
		}()
		return stream, nil
	}}
	g := &gateway.Gateway{
		Engine:               eng,
		Registry:             tools.NewRegistry(),
		CredentialConfigured: true,
	}
	_, url := newTestServer(t, g)
	ws := dial(t, url)
	readMessage(t, ws) // config

	ctx := context.Background()
	err := wsjson.Write(ctx, ws, wire.ClientMessage{
		Type:      wire.TypeStartProcess,
		SessionID: "ws-a",
		Prompt:    "2+2",
	})
	if err != nil {
		t.Fatalf("write start-process: %v", err)
	}

	intermediate := readMessage(t, ws)
	if intermediate.Output != "4" || !intermediate.Intermediate {
		t.Fatalf("expected intermediate output, got %+v", intermediate)
	}
	done := readMessage(t, ws)
	if !done.Done || done.Output != "4" {
		t.Fatalf("expected done message, got %+v", done)
	}
	if done.ContextSize <= 0 {
		t.Fatalf("done message missing context size: %+v", done)
	}
	if done.SessionID != "ws-a" {
		t.Fatalf("done message session id = %q", done.SessionID)
	}
}

func TestGatewayRejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	eng := &fakeEngine{run: func(_ context.Context, _ engine.Input) (*engine.Stream, error) {
		stream := engine.NewStream()
		go func() {
			<-release
			stream.Finish(nil)
		}()
		return stream, nil
	}}
	g := &gateway.Gateway{
		Engine:               eng,
		Registry:             tools.NewRegistry(),
		CredentialConfigured: true,
	}
	_, url := newTestServer(t, g)
	ws := dial(t, url)
	readMessage(t, ws) // config

	ctx := context.Background()
	start := wire.ClientMessage{Type: wire.TypeStartProcess, SessionID: "ws-b", Prompt: "slow"}
	if err := wsjson.Write(ctx, ws, start); err != nil {
		t.Fatalf("write first start: %v", err)
	}
	if err := wsjson.Write(ctx, ws, start); err != nil {
		t.Fatalf("write second start: %v", err)
	}

	msg := readMessage(t, ws)
	if msg.Error != session.ErrRunActive.Error() {
		t.Fatalf("expected run-active rejection, got %+v", msg)
	}
	close(release)
}

func TestGatewayMissingCredential(t *testing.T) {
	g := &gateway.Gateway{
		Engine:   &fakeEngine{},
		Registry: tools.NewRegistry(),
	}
	_, url := newTestServer(t, g)
	ws := dial(t, url)
	readMessage(t, ws) // config

	ctx := context.Background()
	err := wsjson.Write(ctx, ws, wire.ClientMessage{Type: wire.TypeStartProcess, SessionID: "s", Prompt: "hi"})
	if err != nil {
		t.Fatalf("write start: %v", err)
	}
	msg := readMessage(t, ws)
	if msg.Error == "" || !strings.Contains(msg.Error, "API key") {
		t.Fatalf("expected credential error, got %+v", msg)
	}

	// Connection stays open for a later retry.
	if err := wsjson.Write(ctx, ws, wire.ClientMessage{Type: wire.TypePing, SessionID: "s"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if msg := readMessage(t, ws); msg.Type != wire.TypePong {
		t.Fatalf("expected pong, got %+v", msg)
	}
}

func TestGatewayAuthRequired(t *testing.T) {
	g := &gateway.Gateway{
		Engine:               &fakeEngine{},
		Registry:             tools.NewRegistry(),
		Verifier:             &fakeVerifier{err: auth.ErrTokenInvalid},
		CredentialConfigured: true,
	}
	_, url := newTestServer(t, g)
	ws := dial(t, url)
	readMessage(t, ws) // config

	ctx := context.Background()
	err := wsjson.Write(ctx, ws, wire.ClientMessage{Type: wire.TypeStartProcess, SessionID: "s", Prompt: "hi"})
	if err != nil {
		t.Fatalf("write start: %v", err)
	}
	msg := readMessage(t, ws)
	if msg.Error != auth.ErrTokenMissing.Error() {
		t.Fatalf("expected token-missing error, got %+v", msg)
	}

	// The gateway closes the connection after the auth failure.
	readCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var next wire.ServerMessage
	if err := wsjson.Read(readCtx, ws, &next); err == nil {
		t.Fatalf("expected closed connection, read %+v", next)
	}
}

func TestGatewayAuthSuccess(t *testing.T) {
	eng := &fakeEngine{run: func(ctx context.Context, _ engine.Input) (*engine.Stream, error) {
		stream := engine.NewStream()
		go func() {
			stream.Emit(ctx, engine.FinalMessage{Text: "ok"})
			stream.Finish([]session.Item{session.AssistantMessage("ok")})
		}()
		return stream, nil
	}}
	g := &gateway.Gateway{
		Engine:               eng,
		Registry:             tools.NewRegistry(),
		Verifier:             &fakeVerifier{identity: &auth.Identity{Subject: "123", Email: "a@b.c", Name: "A"}},
		CredentialConfigured: true,
	}
	_, url := newTestServer(t, g)
	ws := dial(t, url)
	readMessage(t, ws) // config

	ctx := context.Background()
	err := wsjson.Write(ctx, ws, wire.ClientMessage{
		Type:      wire.TypeStartProcess,
		SessionID: "s",
		Prompt:    "hi",
		IDToken:   "token",
	})
	if err != nil {
		t.Fatalf("write start: %v", err)
	}
	if msg := readMessage(t, ws); msg.Output != "ok" || !msg.Intermediate {
		t.Fatalf("expected intermediate output, got %+v", msg)
	}
	if msg := readMessage(t, ws); !msg.Done {
		t.Fatalf("expected done, got %+v", msg)
	}
}

func TestGatewayCancelsRunOnClose(t *testing.T) {
	runCtx := make(chan context.Context, 1)
	eng := &fakeEngine{run: func(ctx context.Context, _ engine.Input) (*engine.Stream, error) {
		runCtx <- ctx
		stream := engine.NewStream()
		go func() {
			stream.Emit(ctx, engine.TextDelta{Text: "thinking"})
			<-ctx.Done()
			stream.Fail(ctx.Err())
		}()
		return stream, nil
	}}
	g := &gateway.Gateway{
		Engine:               eng,
		Registry:             tools.NewRegistry(),
		CredentialConfigured: true,
	}
	_, url := newTestServer(t, g)
	ws := dial(t, url)
	readMessage(t, ws) // config

	ctx := context.Background()
	err := wsjson.Write(ctx, ws, wire.ClientMessage{Type: wire.TypeStartProcess, SessionID: "s", Prompt: "hi"})
	if err != nil {
		t.Fatalf("write start: %v", err)
	}
	if msg := readMessage(t, ws); msg.Delta != "thinking" {
		t.Fatalf("expected first delta, got %+v", msg)
	}

	_ = ws.Close(websocket.StatusNormalClosure, "bye")

	select {
	case rc := <-runCtx:
		select {
		case <-rc.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("run context not cancelled after transport close")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("engine was never invoked")
	}
}
