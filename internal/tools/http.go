package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	llmtools "github.com/flitsinc/go-llms/tools"
)

// HTTPTool forwards an invocation to an external tool server as a JSON
// POST and maps the response content back to output items.
type HTTPTool struct {
	id     string
	title  string
	url    string
	Client *http.Client
}

func NewHTTPTool(id, title, url string) *HTTPTool {
	return &HTTPTool{id: id, title: title, url: url}
}

func (t *HTTPTool) Name() string  { return t.id }
func (t *HTTPTool) Title() string { return t.title }

func (t *HTTPTool) Schema() llmtools.FunctionSchema {
	return llmtools.FunctionSchema{
		Name:        t.id,
		Description: t.title + " (external tool server; pass arguments as a JSON object)",
		Parameters:  llmtools.ValueSchema{Type: "object"},
	}
}

type httpToolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type httpToolResponse struct {
	Content []Item `json:"content"`
	Error   string `json:"error,omitempty"`
}

func (t *HTTPTool) Invoke(ctx context.Context, args json.RawMessage) ([]Item, error) {
	payload, err := json.Marshal(httpToolRequest{Name: t.id, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("encode tool request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call tool server %s: %w", t.id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read tool response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool server %s: status %d", t.id, resp.StatusCode)
	}

	var decoded httpToolResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		// Not the structured shape; surface the raw body as text.
		return []Item{TextItem(string(body))}, nil
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("tool server %s: %s", t.id, decoded.Error)
	}
	if len(decoded.Content) == 0 {
		return []Item{TextItem(string(body))}, nil
	}
	out := make([]Item, 0, len(decoded.Content))
	for _, item := range decoded.Content {
		if item.Type == "" {
			item.Type = "text"
		}
		out = append(out, item)
	}
	return out, nil
}
