// Package wire defines the JSON envelope exchanged between a client and
// the session gateway over the websocket transport.
package wire

// Client message types.
const (
	TypePing         = "ping"
	TypeStartProcess = "start-process"
)

// Server message types. Streaming messages (delta, toolOutput, done, state,
// error) carry no type field; their shape identifies them.
const (
	TypeConfig = "config"
	TypePong   = "pong"
)

// ClientMessage is a frame sent by the peer.
type ClientMessage struct {
	Type       string   `json:"type"`
	SessionID  string   `json:"session_id,omitempty"`
	Prompt     string   `json:"prompt,omitempty"`
	Model      string   `json:"model,omitempty"`
	MCPServers []string `json:"mcpServers,omitempty"`
	IDToken    string   `json:"id_token,omitempty"`
}

// ServerMessage is a frame sent to the peer. Exactly one logical variant is
// populated at a time; unset fields are omitted from the encoding.
type ServerMessage struct {
	Type string `json:"type,omitempty"`

	// Pong echoes the session id of the ping under its wire name.
	EchoSessionID string `json:"session_id,omitempty"`

	SessionID string  `json:"sessionId,omitempty"`
	Config    *Config `json:"config,omitempty"`

	Delta string `json:"delta,omitempty"`
	Tool  *Tool  `json:"tool,omitempty"`

	// Tool output correlation: ID names the originating tool call,
	// ToolOutput the tool, Output its normalized items.
	ID         string `json:"id,omitempty"`
	ToolOutput string `json:"toolOutput,omitempty"`

	// Output is a string for intermediate/final assistant text and a
	// []OutputItem for tool output messages.
	Output       any  `json:"output,omitempty"`
	Intermediate bool `json:"intermediate,omitempty"`

	Done        bool `json:"done,omitempty"`
	ContextSize int  `json:"contextSize,omitempty"`

	State             bool `json:"state,omitempty"`
	ContextSizeTokens int  `json:"contextSizeTokens,omitempty"`

	Error string `json:"error,omitempty"`
}

// Config announces the tool registry entries available for a session.
type Config struct {
	MCPServers map[string]string `json:"mcpServers"`
}

// Tool describes a tool invocation lifecycle edge inside a delta message.
type Tool struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Started   bool   `json:"started,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// OutputItem is one normalized element of a tool's output.
type OutputItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}
