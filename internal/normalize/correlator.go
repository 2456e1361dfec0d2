package normalize

import (
	"fmt"
	"log"
	"time"

	"github.com/flitsinc/chatwire/internal/idgen"
	"github.com/flitsinc/chatwire/internal/wire"
)

// ToolCallRecord tracks one tool invocation from decision to output.
type ToolCallRecord struct {
	ID          string
	Name        string
	Arguments   string
	StartedAt   time.Time
	FinishedAt  time.Time
	OutputItems []wire.OutputItem
}

// Runtime formats the call's wall time in seconds to one decimal, for
// display.
func (r *ToolCallRecord) Runtime() string {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return ""
	}
	return fmt.Sprintf("%.1f", r.FinishedAt.Sub(r.StartedAt).Seconds())
}

// Correlator matches a run's asynchronous tool result back to the record
// that initiated it. Parallel tool calls are disallowed upstream, so the
// slot holds at most one open record; a second concurrent open is a
// protocol defect that is logged and replaces the prior record.
type Correlator struct {
	open *ToolCallRecord
}

// Begin opens a new record. If one is already open it is discarded with a
// warning.
func (c *Correlator) Begin(name, arguments string, at time.Time) *ToolCallRecord {
	if c.open != nil {
		log.Printf("correlator: tool call %s (%s) still open when %s began; replacing", c.open.ID, c.open.Name, name)
	}
	c.open = &ToolCallRecord{
		ID:        idgen.ToolCallID(),
		Name:      name,
		Arguments: arguments,
		StartedAt: at,
	}
	return c.open
}

// Finish marks the open record's terminal status. Returns nil if no record
// is open.
func (c *Correlator) Finish(at time.Time) *ToolCallRecord {
	if c.open == nil {
		return nil
	}
	c.open.FinishedAt = at
	return c.open
}

// Resolve attaches the output items to the open record, clears the slot
// and returns the closed record. Returns nil if no record is open.
func (c *Correlator) Resolve(items []wire.OutputItem) *ToolCallRecord {
	if c.open == nil {
		return nil
	}
	record := c.open
	record.OutputItems = items
	c.open = nil
	return record
}

// Open returns the currently open record, or nil.
func (c *Correlator) Open() *ToolCallRecord {
	return c.open
}
