package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/coder/websocket"
	"github.com/flitsinc/chatwire/internal/auth"
	"github.com/flitsinc/chatwire/internal/engine"
	"github.com/flitsinc/chatwire/internal/wire"
)

// promptPrefix nudges the model into sequential tool use once a session
// already has history.
const promptPrefix = "Call tools one by one. "

const missingCredentialError = "LLM API key is not configured. Set CHATWIRE_LLM_API_KEY in the environment."

// runProcess executes one prompt against the engine and streams the
// normalized events back over the websocket. It runs on its own
// goroutine; ctx is the connection context and cancels when the client
// disconnects.
func (c *conn) runProcess(ctx context.Context, msg wire.ClientMessage) {
	defer c.sess.EndRun()

	if !c.gateway.CredentialConfigured {
		c.send(ctx, &wire.ServerMessage{SessionID: msg.SessionID, Error: missingCredentialError})
		return
	}
	if !c.authenticate(ctx, msg) {
		return
	}
	c.sess.ID = msg.SessionID

	history := c.sess.Context.History()
	prompt := msg.Prompt
	if len(history) > 0 {
		prompt = promptPrefix + prompt
	}

	if c.gateway.Metrics != nil {
		c.gateway.Metrics.RunsStarted.Inc()
	}
	stream, err := c.gateway.Engine.Run(ctx, engine.Input{
		Prompt:  prompt,
		History: history,
		Model:   msg.Model,
		ToolIDs: msg.MCPServers,
	})
	if err != nil {
		c.fail(ctx, msg.SessionID, err)
		return
	}

	norm := c.norm
	var full strings.Builder
	for ev := range stream.Events() {
		if ctx.Err() != nil {
			// Client is gone; drop the rest of the run.
			return
		}
		if _, ok := ev.(engine.ToolStart); ok && c.gateway.Metrics != nil {
			c.gateway.Metrics.ToolCalls.Inc()
		}
		res := norm.Normalize(ev)
		full.WriteString(res.Fragment)
		if res.Message != nil {
			res.Message.SessionID = msg.SessionID
			if !c.send(ctx, res.Message) {
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		c.fail(ctx, msg.SessionID, err)
		return
	}
	if ctx.Err() != nil {
		return
	}

	c.sess.Context.SetHistory(stream.History())
	c.send(ctx, &wire.ServerMessage{
		SessionID:   msg.SessionID,
		Output:      full.String(),
		Done:        true,
		ContextSize: c.sess.Context.SizeBytes(),
	})

	go c.reportTokens(ctx, msg.SessionID)
}

// authenticate enforces the identity gate. Without a verifier every
// connection runs as the anonymous identity. With one, the first
// start-process must carry a valid token; failures send an error and
// close the connection. The resolved identity is cached for the life of
// the connection.
func (c *conn) authenticate(ctx context.Context, msg wire.ClientMessage) bool {
	if c.gateway.Verifier == nil {
		if c.sess.Identity() == nil {
			c.sess.SetIdentity(auth.Anonymous())
		}
		return true
	}
	if c.sess.Identity() != nil {
		return true
	}
	if msg.IDToken == "" {
		c.send(ctx, &wire.ServerMessage{SessionID: msg.SessionID, Error: auth.ErrTokenMissing.Error()})
		c.close(websocket.StatusPolicyViolation, "authentication required")
		return false
	}
	identity, err := c.gateway.Verifier.Verify(ctx, msg.IDToken)
	if err != nil {
		log.Printf("gateway: token verification failed: %v", err)
		c.send(ctx, &wire.ServerMessage{SessionID: msg.SessionID, Error: auth.ErrTokenInvalid.Error()})
		c.close(websocket.StatusPolicyViolation, "authentication failed")
		return false
	}
	log.Printf("gateway: authenticated %s (%s)", identity.Name, identity.Email)
	c.sess.SetIdentity(identity)
	return true
}

func (c *conn) fail(ctx context.Context, sessionID string, err error) {
	log.Printf("gateway: run failed: %v", err)
	if c.gateway.Metrics != nil {
		c.gateway.Metrics.RunsFailed.Inc()
	}
	c.send(ctx, &wire.ServerMessage{SessionID: sessionID, Error: "Internal server error: " + err.Error()})
}

// reportTokens counts the serialized history with the tokenizer and
// pushes a state message. Counting happens off the run path; failures
// are logged and swallowed so a tokenizer outage never degrades chat.
func (c *conn) reportTokens(ctx context.Context, sessionID string) {
	if c.gateway.Tokenizer == nil {
		return
	}
	data, err := json.Marshal(c.sess.Context.History())
	if err != nil {
		log.Printf("gateway: serialize history for token count: %v", err)
		return
	}
	n, err := c.gateway.Tokenizer.CountTokens(ctx, c.gateway.TokenizerModel, string(data))
	if err != nil {
		log.Printf("gateway: token count failed: %v", err)
		return
	}
	c.send(ctx, &wire.ServerMessage{
		SessionID:         sessionID,
		State:             true,
		ContextSizeTokens: n,
	})
}
