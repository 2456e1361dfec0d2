package session

import (
	"encoding/json"
	"log"
	"sync"
)

// PurgeThreshold is the serialized size above which a tool result payload
// is replaced during compaction.
const PurgeThreshold = 1024 * 3

// PurgeSentinel replaces oversized tool result text. It instructs the model
// to re-invoke the originating tool if it still needs the raw data.
const PurgeSentinel = "[RAW RESULT PURGED. USE DATA FROM NEXT ITEMS IN HISTORY. CALL TOOL AGAIN IF NEED RAW DATA WHICH IS NOT AVAILABLE IN NEXT HISTORY ITEMS]"

// Manager owns one session's conversation history. After each run the
// engine hands back the authoritative full history, which replaces (never
// appends to) the held one; compaction is applied on the way in.
type Manager struct {
	mu      sync.Mutex
	history []Item
}

func NewManager() *Manager {
	return &Manager{}
}

// SetHistory replaces the held history with the engine's post-run history,
// compacting oversized tool results.
func (m *Manager) SetHistory(items []Item) {
	compacted := Compact(items)
	m.mu.Lock()
	m.history = compacted
	m.mu.Unlock()
}

// History returns a copy of the current history.
func (m *Manager) History() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return nil
	}
	out := make([]Item, len(m.history))
	copy(out, m.history)
	return out
}

// SizeBytes is the serialized length of the full history.
func (m *Manager) SizeBytes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return serializedSize(m.history)
}

// Flush discards the history entirely. Called on connection close; the
// session is not resumable.
func (m *Manager) Flush() {
	m.mu.Lock()
	size := serializedSize(m.history)
	m.history = nil
	m.mu.Unlock()
	log.Printf("session: flushed history (was %d bytes)", size)
}

// Compact replaces the text payload of every tool result larger than
// PurgeThreshold with PurgeSentinel. Item count and order are preserved;
// untouched items are returned as-is. Running Compact on already compacted
// history is a no-op.
func Compact(items []Item) []Item {
	if len(items) == 0 {
		return nil
	}
	out := make([]Item, len(items))
	for i, item := range items {
		if item.Type == ItemToolResult && item.Output != nil && len(item.Output.Text) > PurgeThreshold {
			output := *item.Output
			output.Text = PurgeSentinel
			item.Output = &output
		}
		out[i] = item
	}
	return out
}

func serializedSize(items []Item) int {
	if len(items) == 0 {
		return 0
	}
	data, err := json.Marshal(items)
	if err != nil {
		return 0
	}
	return len(data)
}
