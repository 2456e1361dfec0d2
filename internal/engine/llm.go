package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/flitsinc/chatwire/internal/idgen"
	"github.com/flitsinc/chatwire/internal/session"
	"github.com/flitsinc/chatwire/internal/tools"
	"github.com/flitsinc/go-llms/content"
	"github.com/flitsinc/go-llms/llms"
	llmtools "github.com/flitsinc/go-llms/tools"
)

// SessionSource yields fresh LLM sessions; satisfied by ai.Client.
type SessionSource interface {
	NewSessionWithModel(model string) (*llms.LLM, error)
}

// LLM is the production engine: one fresh go-llms session per run, with
// the selected registry tools attached as external tools.
type LLM struct {
	Source   SessionSource
	Registry *tools.Registry
}

func NewLLM(source SessionSource, registry *tools.Registry) *LLM {
	return &LLM{Source: source, Registry: registry}
}

func (e *LLM) Run(ctx context.Context, input Input) (*Stream, error) {
	llm, err := e.Source.NewSessionWithModel(input.Model)
	if err != nil {
		return nil, fmt.Errorf("new llm session: %w", err)
	}

	runID := idgen.RunID()
	stream := NewStream()
	run := &llmRun{stream: stream}
	run.history = append(run.history, input.History...)
	run.history = append(run.history, session.UserMessage(input.Prompt))

	selected := e.Registry.Select(input.ToolIDs)
	if len(selected) > 0 {
		byName := make(map[string]tools.Tool, len(selected))
		schemas := make([]llmtools.FunctionSchema, 0, len(selected))
		for _, t := range selected {
			byName[t.Name()] = t
			schemas = append(schemas, t.Schema())
		}
		llm.AddExternalTools(schemas, func(r llmtools.Runner, params json.RawMessage) llmtools.Result {
			toolCall, ok := llms.GetToolCall(r.Context())
			if !ok {
				return llmtools.Errorf("missing tool call")
			}
			tool, ok := byName[toolCall.Name]
			if !ok {
				return llmtools.Errorf("unknown tool %q", toolCall.Name)
			}
			return run.invoke(r.Context(), tool, toolCall, params)
		})
	}

	messages := messagesFromHistory(run.history)

	go func() {
		log.Printf("engine: run %s started (model=%q tools=%d)", runID, input.Model, len(selected))
		var full strings.Builder
		updates := llm.ChatUsingMessages(ctx, messages)
		for update := range updates {
			if textUpdate, ok := update.(llms.TextUpdate); ok {
				stream.Emit(ctx, TextDelta{Text: textUpdate.Text})
				full.WriteString(textUpdate.Text)
			}
		}
		if err := llm.Err(); err != nil {
			log.Printf("engine: run %s failed: %v", runID, err)
			stream.Fail(err)
			return
		}
		log.Printf("engine: run %s finished", runID)
		text := full.String()
		if text != "" {
			run.append(session.AssistantMessage(text))
			stream.Emit(ctx, FinalMessage{Text: text})
		}
		stream.Finish(run.snapshot())
	}()

	return stream, nil
}

// llmRun tracks one run's growing history. Tool callbacks may fire on a
// different goroutine than the update loop, so appends are guarded.
type llmRun struct {
	stream *Stream

	mu      sync.Mutex
	history []session.Item
}

func (r *llmRun) append(items ...session.Item) {
	r.mu.Lock()
	r.history = append(r.history, items...)
	r.mu.Unlock()
}

func (r *llmRun) snapshot() []session.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.Item, len(r.history))
	copy(out, r.history)
	return out
}

func (r *llmRun) invoke(ctx context.Context, tool tools.Tool, call llms.ToolCall, params json.RawMessage) llmtools.Result {
	arguments := string(params)
	callID := call.ID
	if callID == "" {
		callID = idgen.ToolCallID()
	}

	r.stream.Emit(ctx, ToolStart{Name: call.Name, Arguments: arguments})
	r.append(session.ToolCall(callID, call.Name, arguments))

	items, err := tool.Invoke(ctx, params)
	r.stream.Emit(ctx, ToolEnd{Name: call.Name})
	if err != nil {
		r.append(session.ToolResult(callID, "error: "+err.Error()))
		return llmtools.Error(err)
	}

	r.append(session.ToolResult(callID, itemsText(items)))
	r.stream.Emit(ctx, ToolOutput{Name: call.Name, Items: items})
	return llmtools.Success(map[string]any{"content": items})
}

func itemsText(items []tools.Item) string {
	var sb strings.Builder
	for _, item := range items {
		if item.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(item.Text)
	}
	if sb.Len() == 0 {
		data, err := json.Marshal(items)
		if err == nil {
			return string(data)
		}
	}
	return sb.String()
}

func messagesFromHistory(items []session.Item) []llms.Message {
	out := make([]llms.Message, 0, len(items))
	for _, item := range items {
		switch item.Type {
		case session.ItemMessage:
			out = append(out, llms.Message{Role: item.Role, Content: content.FromText(item.Content)})
		case session.ItemToolCall:
			out = append(out, llms.Message{
				Role: "assistant",
				ToolCalls: []llms.ToolCall{{
					ID:        item.ID,
					Name:      item.Name,
					Arguments: json.RawMessage(item.Arguments),
				}},
			})
		case session.ItemToolResult:
			text := ""
			if item.Output != nil {
				text = item.Output.Text
			}
			out = append(out, llms.Message{
				Role:    "tool",
				Content: content.FromText(text),
			})
		}
	}
	return out
}
