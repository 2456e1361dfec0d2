package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/flitsinc/chatwire/internal/client"
	"github.com/flitsinc/chatwire/internal/engine"
	"github.com/flitsinc/chatwire/internal/gateway"
	"github.com/flitsinc/chatwire/internal/session"
	"github.com/flitsinc/chatwire/internal/tools"
)

type fakeEngine struct {
	run func(ctx context.Context, input engine.Input) (*engine.Stream, error)
}

func (f *fakeEngine) Run(ctx context.Context, input engine.Input) (*engine.Stream, error) {
	return f.run(ctx, input)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionClientConnectTimeout(t *testing.T) {
	reducer := client.NewReducer()
	c := client.NewSessionClient("ws://localhost:1/client-ws", reducer)
	c.ConnectTimeout = 200 * time.Millisecond
	c.SetDialer(func(ctx context.Context, url string) (*websocket.Conn, error) {
		return nil, errors.New("refused")
	})

	err := c.Send(context.Background(), "hello")
	var timeoutErr *client.ConnectTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected ConnectTimeoutError, got %v", err)
	}
}

func TestSessionClientRoundTrip(t *testing.T) {
	eng := &fakeEngine{run: func(ctx context.Context, input engine.Input) (*engine.Stream, error) {
		stream := engine.NewStream()
		go func() {
			stream.Emit(ctx, engine.TextDelta{Text: "4"})
			stream.Emit(ctx, engine.FinalMessage{Text: "4"})
			stream.Finish([]session.Item{
				session.UserMessage(input.Prompt),
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
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()
	wsURL := strings.Replace(srv.URL, "http", "ws", 1) + "/client-ws"

	reducer := client.NewReducer()
	c := client.NewSessionClient(wsURL, reducer)
	defer c.Close()

	if err := c.Send(context.Background(), "2+2"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, "run completion", func() bool { return !reducer.Sending() })

	turns := reducer.Turns()
	if len(turns) != 1 || turns[0].Prompt != "2+2" {
		t.Fatalf("turns = %+v", turns)
	}
	if turns[0].Response.Text != "4" {
		t.Fatalf("response text = %q, want 4", turns[0].Response.Text)
	}
	if c.State() != client.StateOpen {
		t.Fatalf("expected open connection after run")
	}
}

func TestSessionClientNotesClose(t *testing.T) {
	eng := &fakeEngine{run: func(_ context.Context, _ engine.Input) (*engine.Stream, error) {
		stream := engine.NewStream()
		go stream.Finish(nil)
		return stream, nil
	}}
	g := &gateway.Gateway{
		Engine:               eng,
		Registry:             tools.NewRegistry(),
		CredentialConfigured: true,
	}
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()
	wsURL := strings.Replace(srv.URL, "http", "ws", 1) + "/client-ws"

	reducer := client.NewReducer()
	c := client.NewSessionClient(wsURL, reducer)

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, "open connection", func() bool { return c.State() == client.StateOpen })

	srv.CloseClientConnections()
	waitFor(t, "disconnect", func() bool { return c.State() == client.StateDisconnected })

	turns := reducer.Turns()
	last := turns[len(turns)-1].Response.Text
	if !strings.Contains(last, "Connection closed. History cleared.") {
		t.Fatalf("missing close note: %q", last)
	}
	if reducer.Connected() {
		t.Fatalf("reducer still connected after close")
	}
}
