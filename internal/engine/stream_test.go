package engine

import (
	"context"
	"testing"
	"time"
)

func TestStreamEmitDelivers(t *testing.T) {
	s := NewStream()
	if !s.Emit(context.Background(), TextDelta{Text: "a"}) {
		t.Fatalf("emit on empty stream should succeed")
	}
	ev := <-s.Events()
	if delta, ok := ev.(TextDelta); !ok || delta.Text != "a" {
		t.Fatalf("got %#v, want TextDelta a", ev)
	}
}

func TestStreamEmitStopsWhenAbandoned(t *testing.T) {
	s := NewStream()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fill the buffer with nobody reading, the way an abandoned run
	// keeps producing after its consumer has returned.
	for {
		ok := make(chan bool, 1)
		go func() { ok <- s.Emit(ctx, TextDelta{Text: "x"}) }()
		select {
		case accepted := <-ok:
			if !accepted {
				t.Fatalf("emit rejected before cancellation")
			}
		case <-time.After(100 * time.Millisecond):
			// Buffer is full and the emit is blocked. Cancelling must
			// release it promptly with a false return.
			cancel()
			select {
			case accepted := <-ok:
				if accepted {
					t.Fatalf("blocked emit reported delivery after cancel")
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("emit still blocked after cancellation")
			}
			return
		}
	}
}
