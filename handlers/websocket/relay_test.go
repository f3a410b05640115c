package websocket

import (
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"socket-relay/core"
	"socket-relay/relay"
)

type captureSink struct {
	mu     sync.Mutex
	events []string
}

func (c *captureSink) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureSink) waitFor(t *testing.T, event string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		for _, ev := range c.events {
			if ev == event {
				c.mu.Unlock()
				return
			}
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %s event", event)
}

func newHandler(t *testing.T) (*eventHandler, *relay.Server) {
	t.Helper()
	srv := relay.NewServer(relay.Options{SendQueueSize: 8, MaxNameLength: 64}, nil, nil)
	t.Cleanup(srv.Close)
	return &eventHandler{relay: srv}, srv
}

func TestHandle_JoinAcksMemberCount(t *testing.T) {
	h, srv := newHandler(t)
	sess, _ := srv.Connect(&captureSink{})

	var acked map[string]any
	ack := func(args []any, err error) {
		acked, _ = args[0].(map[string]any)
	}

	err := h.handle(sess, relay.EventJoin, []any{map[string]any{"username": "A", "room": "r1"}, ack})
	if err != nil {
		t.Fatalf("handle() failed: %v", err)
	}
	if acked["status"] != "ok" {
		t.Errorf("Expected ok ack, got %v", acked)
	}
	if acked["members"] != 1 {
		t.Errorf("Expected 1 member in ack, got %v", acked["members"])
	}
	if acked["room"] != "r1" {
		t.Errorf("Expected room r1 in ack, got %v", acked["room"])
	}
}

func TestHandle_ErrorIsAckedAndReported(t *testing.T) {
	h, srv := newHandler(t)
	sink := &captureSink{}
	sess, _ := srv.Connect(sink)

	var acked map[string]any
	ack := func(args []any, err error) {
		acked, _ = args[0].(map[string]any)
	}

	err := h.handle(sess, relay.EventData, []any{map[string]any{"data": 1}, ack})
	if !errors.Is(err, core.ErrNotInRoom) {
		t.Fatalf("Expected ErrNotInRoom, got %v", err)
	}
	if acked["status"] != "error" {
		t.Errorf("Expected error ack, got %v", acked)
	}
	sink.waitFor(t, relay.EventError)

	if srv.ConnectionCount() != 1 {
		t.Errorf("Connection should stay alive, got %d", srv.ConnectionCount())
	}
}

func TestHandle_WithoutAck(t *testing.T) {
	h, srv := newHandler(t)
	a := &captureSink{}
	b := &captureSink{}
	sessA, _ := srv.Connect(a)
	sessB, _ := srv.Connect(b)

	h.handle(sessA, relay.EventJoin, []any{map[string]any{"username": "A", "room": "r1"}})
	h.handle(sessB, relay.EventJoin, []any{map[string]any{"username": "B", "room": "r1"}})
	a.waitFor(t, relay.EventReady)

	if err := h.handle(sessB, relay.EventData, []any{map[string]any{"data": "hi"}}); err != nil {
		t.Fatalf("handle() failed: %v", err)
	}
	a.waitFor(t, relay.EventData)
}

func TestCorsOrigins(t *testing.T) {
	origins, ok := corsOrigins(nil).([]any)
	if !ok || len(origins) != 1 {
		t.Fatalf("Expected default localhost origin, got %v", corsOrigins(nil))
	}
	re, ok := origins[0].(*regexp.Regexp)
	if !ok || !re.MatchString("http://localhost:3000") || re.MatchString("http://evil.test") {
		t.Errorf("Unexpected default origin matcher %v", origins[0])
	}

	origins, ok = corsOrigins([]string{"https://a.test", "https://b.test"}).([]any)
	if !ok || len(origins) != 2 || origins[0] != "https://a.test" {
		t.Errorf("Expected configured origins, got %v", origins)
	}

	if got := corsOrigins([]string{"https://a.test", "*"}); got != "*" {
		t.Errorf("Expected wildcard origin, got %v", got)
	}
}
