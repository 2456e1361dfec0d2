package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flitsinc/go-llms/content"
	"github.com/flitsinc/go-llms/llms"
	llmtools "github.com/flitsinc/go-llms/tools"
)

// CodePreviewName is special-cased by protocol consumers: its output is
// rendered as an embedded page preview instead of raw text.
const CodePreviewName = "html_page_code_preview"

const coderSystemPrompt = `You are a senior frontend developer. Turn the
request into one complete, production-ready, single-file HTML document
that runs in a browser without modification.

Rules:
- Vanilla HTML, CSS and JavaScript. For 2D drawings, games or animations
  use a canvas element. For 3D you may import Three.js from a CDN inside
  a module script tag; no other external dependency is allowed.
- All CSS goes in a single style block in the head. All JavaScript goes
  in a single script block just before the closing body tag.
- Output the raw HTML document and nothing else. No introduction, no
  summary, no code fences.`

// CodingAgent builds a self-contained HTML/CSS/JavaScript page from a
// description by delegating to a dedicated coding model session. The
// result is a JSON payload with the page source and its title.
type CodingAgent struct {
	Source SessionSource
}

func NewCodingAgent(source SessionSource) *CodingAgent {
	return &CodingAgent{Source: source}
}

func (g *CodingAgent) Name() string  { return CodePreviewName }
func (g *CodingAgent) Title() string { return "Web Page Generator" }

func (g *CodingAgent) Schema() llmtools.FunctionSchema {
	return llmtools.FunctionSchema{
		Name: CodePreviewName,
		Description: "Creates a single self-contained HTML/JavaScript/CSS web page " +
			"from a description. Use this when the user asks for a web page " +
			"application, when something is best demonstrated visually, or for " +
			"interactive calculations that suit a page. " +
			"Arguments: {\"prompt\": string describing the page to build, " +
			"\"title\": short title for the page}.",
		Parameters: llmtools.ValueSchema{Type: "object"},
	}
}

type coderArgs struct {
	Prompt string `json:"prompt"`
	Title  string `json:"title"`
}

type codePreview struct {
	HTML  string `json:"html"`
	Title string `json:"title"`
}

func (g *CodingAgent) Invoke(ctx context.Context, args json.RawMessage) ([]Item, error) {
	var parsed coderArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("decode coder arguments: %w", err)
	}
	if parsed.Prompt == "" {
		return nil, fmt.Errorf("page description is required")
	}

	llm, err := g.Source.NewSession()
	if err != nil {
		return nil, fmt.Errorf("coder session: %w", err)
	}
	llm.SystemPrompt = func() content.Content {
		return content.FromText(coderSystemPrompt)
	}

	updates := llm.ChatUsingMessages(ctx, []llms.Message{
		{Role: "user", Content: content.FromText(parsed.Prompt)},
	})
	var sb strings.Builder
	for update := range updates {
		if textUpdate, ok := update.(llms.TextUpdate); ok {
			sb.WriteString(textUpdate.Text)
		}
	}
	if err := llm.Err(); err != nil {
		return nil, fmt.Errorf("page generation: %w", err)
	}

	page := strings.TrimSpace(sb.String())
	page = strings.TrimPrefix(page, "```html")
	page = strings.TrimPrefix(page, "```")
	page = strings.TrimSuffix(page, "```")
	page = strings.TrimSpace(page)
	if page == "" {
		return nil, fmt.Errorf("page generation returned no output")
	}

	payload, err := json.Marshal(codePreview{HTML: page, Title: parsed.Title})
	if err != nil {
		return nil, fmt.Errorf("encode page preview: %w", err)
	}
	return []Item{TextItem(string(payload))}, nil
}
