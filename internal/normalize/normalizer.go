// Package normalize translates raw engine run events into canonical wire
// messages and correlates tool calls with their eventual outputs.
package normalize

import (
	"log"
	"strings"
	"time"

	"github.com/flitsinc/chatwire/internal/engine"
	"github.com/flitsinc/chatwire/internal/tools"
	"github.com/flitsinc/chatwire/internal/wire"
)

const toolCallDelta = "tool_call"

// Normalizer maps one raw engine event to at most one wire message. It is
// stateful across one run: the embedded correlator tracks the single
// in-flight tool call.
type Normalizer struct {
	Correlator Correlator

	// now is swappable for tests.
	now func() time.Time
}

func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Result is the outcome of normalizing one event: the wire message to
// transmit (nil when the event is suppressed or ignored) and the text
// fragment the event contributes to the run's full output buffer.
type Result struct {
	Message  *wire.ServerMessage
	Fragment string
}

// Normalize applies the translation rules in priority order. Events that
// match no rule are ignored.
func (n *Normalizer) Normalize(ev engine.Event) Result {
	if n.now == nil {
		n.now = time.Now
	}
	switch ev := ev.(type) {
	case engine.TextDelta:
		if strings.TrimSpace(ev.Text) == "" {
			return Result{}
		}
		return Result{Message: &wire.ServerMessage{Delta: ev.Text}}

	case engine.ToolStart:
		at := n.now()
		record := n.Correlator.Begin(ev.Name, ev.Arguments, at)
		return Result{Message: &wire.ServerMessage{
			Delta: toolCallDelta,
			Tool: &wire.Tool{
				Name:      ev.Name,
				Arguments: ev.Arguments,
				Started:   true,
				ID:        record.ID,
				Timestamp: at.UnixMilli(),
			},
		}}

	case engine.ToolEnd:
		at := n.now()
		record := n.Correlator.Finish(at)
		if record == nil {
			log.Printf("normalize: tool end for %s with no open record", ev.Name)
			return Result{}
		}
		return Result{Message: &wire.ServerMessage{
			Delta: toolCallDelta,
			Tool: &wire.Tool{
				Finished:  true,
				ID:        record.ID,
				Timestamp: at.UnixMilli(),
			},
		}}

	case engine.ToolOutput:
		items := NormalizeItems(ev.Items)
		record := n.Correlator.Resolve(items)
		if record == nil {
			log.Printf("normalize: tool output for %s with no open record", ev.Name)
			return Result{}
		}
		return Result{Message: &wire.ServerMessage{
			ID:         record.ID,
			ToolOutput: ev.Name,
			Output:     items,
		}}

	case engine.FinalMessage:
		return Result{
			Message:  &wire.ServerMessage{Output: ev.Text, Intermediate: true},
			Fragment: ev.Text,
		}
	}
	return Result{}
}

// NormalizeItems maps raw tool output elements to the wire shape, filling
// in defaults the way consumers expect them.
func NormalizeItems(raw []tools.Item) []wire.OutputItem {
	out := make([]wire.OutputItem, 0, len(raw))
	for _, item := range raw {
		kind := item.Type
		if kind == "" {
			kind = "text"
		}
		mime := item.MimeType
		if mime == "" && item.Data == "" {
			mime = "text/plain"
		}
		out = append(out, wire.OutputItem{
			Type:     kind,
			Text:     item.Text,
			Data:     item.Data,
			MimeType: mime,
		})
	}
	return out
}
