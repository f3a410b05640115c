package relay

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type emitted struct {
	Event   string
	Payload any
}

type recordingSink struct {
	mu     sync.Mutex
	events []emitted
	fail   error

	// started is signalled when Emit is entered, block holds it there.
	started chan struct{}
	block   chan struct{}
}

func (s *recordingSink) Emit(event string, payload any) error {
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.events = append(s.events, emitted{Event: event, Payload: payload})
	return nil
}

func (s *recordingSink) Events() []emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]emitted, len(s.events))
	copy(out, s.events)
	return out
}

// waitForEvents polls until sink has recorded n events or fails the test.
func waitForEvents(t *testing.T, sink *recordingSink, n int) []emitted {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := sink.Events(); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d events, got %d", n, len(sink.Events()))
	return nil
}

// settle gives writer goroutines a moment, then asserts nothing arrived.
func assertNoEvents(t *testing.T, sink *recordingSink) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	if events := sink.Events(); len(events) != 0 {
		t.Errorf("Expected no events, got %v", events)
	}
}

var errSinkClosed = errors.New("sink closed")

// panicSink blows up on every write.
type panicSink struct{}

func (panicSink) Emit(event string, payload any) error {
	panic("encoder fault")
}
