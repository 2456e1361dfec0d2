package engine

import "github.com/flitsinc/chatwire/internal/tools"

// Event is one element of a run's heterogeneous event stream. Variants are
// closed over by the runEvent marker.
type Event interface {
	runEvent()
}

// TextDelta is an incremental fragment of assistant text.
type TextDelta struct {
	Text string
}

// ToolStart signals the engine decided to invoke a tool.
type ToolStart struct {
	Name      string
	Arguments string
}

// ToolEnd signals the invoking item reached terminal status.
type ToolEnd struct {
	Name string
}

// ToolOutput carries a tool's normalized output items.
type ToolOutput struct {
	Name  string
	Items []tools.Item
}

// FinalMessage is the completed top-level assistant response text.
type FinalMessage struct {
	Text string
}

func (TextDelta) runEvent()    {}
func (ToolStart) runEvent()    {}
func (ToolEnd) runEvent()      {}
func (ToolOutput) runEvent()   {}
func (FinalMessage) runEvent() {}
