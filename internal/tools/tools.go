// Package tools holds the registry of capabilities the agent engine may
// invoke during a run: built-in tools that ship with the server and
// external tool servers declared in a config file.
package tools

import (
	"context"
	"encoding/json"

	llmtools "github.com/flitsinc/go-llms/tools"
)

// Item is one element of a tool's output. Text items carry their payload
// in Text; binary items carry base64 in Data with a MimeType.
type Item struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

func TextItem(text string) Item {
	return Item{Type: "text", Text: text}
}

// Tool is a named capability with an argument schema.
type Tool interface {
	Name() string
	Title() string
	Schema() llmtools.FunctionSchema
	Invoke(ctx context.Context, args json.RawMessage) ([]Item, error)
}
