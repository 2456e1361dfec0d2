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

// ChartGeneratorName is special-cased by protocol consumers: its output is
// rendered as a chart turn instead of raw text.
const ChartGeneratorName = "data_chart_generator"

const chartSystemPrompt = `You generate chart configurations from tabular data.
Input is a JSON object with "prompt", "cols" and "rows". Respond with a single
JSON object and nothing else, with this exact shape:
{"config":{"type":"<line|bar>","xAxis":[{"key":"...","name":"..."}],"yAxis":[{"key":"...","name":"..."}]},"title":"...","description":"<textual range of the X axis>","chartData":[[...],[...]],"error":""}
Pick axis keys from the given columns. Put every data row into chartData in
column order. Set "error" to a short message if the data cannot be charted,
otherwise leave it empty.`

// SessionSource yields fresh LLM sessions; satisfied by ai.Client.
type SessionSource interface {
	NewSession() (*llms.LLM, error)
}

// ChartGenerator turns tabular data plus a natural language prompt into a
// chart configuration by delegating to a dedicated chart model session.
type ChartGenerator struct {
	Source SessionSource
}

func NewChartGenerator(source SessionSource) *ChartGenerator {
	return &ChartGenerator{Source: source}
}

func (g *ChartGenerator) Name() string  { return ChartGeneratorName }
func (g *ChartGenerator) Title() string { return "Data Chart Generator" }

func (g *ChartGenerator) Schema() llmtools.FunctionSchema {
	return llmtools.FunctionSchema{
		Name: ChartGeneratorName,
		Description: "Generates a chart based on prompt, columns, and rows. " +
			"Arguments: {\"prompt\": string describing the desired chart, " +
			"\"cols\": array of column key strings, " +
			"\"rows\": array of data rows, each an array of values}.",
		Parameters: llmtools.ValueSchema{Type: "object"},
	}
}

type chartArgs struct {
	Prompt string   `json:"prompt"`
	Cols   []string `json:"cols"`
	Rows   [][]any  `json:"rows"`
}

func (g *ChartGenerator) Invoke(ctx context.Context, args json.RawMessage) ([]Item, error) {
	var parsed chartArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return nil, fmt.Errorf("decode chart arguments: %w", err)
	}
	if parsed.Prompt == "" {
		return nil, fmt.Errorf("chart prompt is required")
	}

	input, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("encode chart input: %w", err)
	}

	llm, err := g.Source.NewSession()
	if err != nil {
		return nil, fmt.Errorf("chart session: %w", err)
	}
	llm.SystemPrompt = func() content.Content {
		return content.FromText(chartSystemPrompt)
	}

	updates := llm.ChatUsingMessages(ctx, []llms.Message{
		{Role: "user", Content: content.FromText(string(input))},
	})
	var sb strings.Builder
	for update := range updates {
		if textUpdate, ok := update.(llms.TextUpdate); ok {
			sb.WriteString(textUpdate.Text)
		}
	}
	if err := llm.Err(); err != nil {
		return nil, fmt.Errorf("chart generation: %w", err)
	}

	out := strings.TrimSpace(sb.String())
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, fmt.Errorf("chart generation returned no output")
	}
	return []Item{TextItem(out)}, nil
}
