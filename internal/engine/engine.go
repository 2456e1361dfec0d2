// Package engine defines the agent engine contract: given a prompt and
// prior history, produce an ordered stream of run events and a final
// authoritative history.
package engine

import (
	"context"
	"sync"

	"github.com/flitsinc/chatwire/internal/session"
)

// Input describes one run. History is the session's existing history; the
// engine appends the prompt as a user message and returns the full updated
// history when the run completes.
type Input struct {
	Prompt  string
	History []session.Item
	Model   string
	ToolIDs []string
}

// Engine runs one prompt against the model. The stream stops when the
// passed context is cancelled; cancellation propagates into the underlying
// provider call.
type Engine interface {
	Run(ctx context.Context, input Input) (*Stream, error)
}

// Stream is the consumable side of a run: an ordered event channel, then
// after the channel closes, the run error and the authoritative post-run
// history.
type Stream struct {
	events chan Event

	mu      sync.Mutex
	err     error
	history []session.Item
}

func NewStream() *Stream {
	return &Stream{events: make(chan Event, 64)}
}

// Events yields run events in order. The channel closes when the run
// finishes or fails.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Emit queues one event. When the consumer lags behind the buffer it
// blocks until there is room or ctx is cancelled; a false return means
// the event was dropped because the run is being abandoned.
func (s *Stream) Emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Finish closes the stream successfully with the authoritative history.
func (s *Stream) Finish(history []session.Item) {
	s.mu.Lock()
	s.history = history
	s.mu.Unlock()
	close(s.events)
}

// Fail closes the stream with an error.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.events)
}

// Err reports the run error, if any. Valid once Events is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// History is the engine's full replacement history. Valid once Events is
// closed without error.
func (s *Stream) History() []session.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history
}
