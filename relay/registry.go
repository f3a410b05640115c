package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"socket-relay/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// DefaultDrainTimeout bounds how long Close waits for writers to flush.
const DefaultDrainTimeout = 5 * time.Second

type outbound struct {
	event   string
	payload any
}

type connection struct {
	id     core.ConnectionID
	sink   core.Sink
	queue  chan outbound
	closed bool
	done   chan struct{}
}

// Registry tracks live connections and owns their outbound sinks. Each
// connection gets a bounded queue drained by its own writer goroutine, so
// Send never blocks on a slow client.
type Registry struct {
	mu          sync.RWMutex
	connections map[core.ConnectionID]*connection
	queueSize   int
	closed      bool
	metrics     *Metrics

	// leave is called with the id before it is removed, so the room
	// directory never keeps a member the registry has forgotten.
	leave func(core.ConnectionID)
}

func NewRegistry(queueSize int, metrics *Metrics, leave func(core.ConnectionID)) *Registry {
	if queueSize < 1 {
		queueSize = 1
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Registry{
		connections: make(map[core.ConnectionID]*connection),
		queueSize:   queueSize,
		metrics:     metrics,
		leave:       leave,
	}
}

// Register assigns a new id to sink and makes it deliverable.
func (r *Registry) Register(sink core.Sink) (core.ConnectionID, error) {
	c := &connection{
		id:    core.ConnectionID(ulid.Make().String()),
		sink:  sink,
		queue: make(chan outbound, r.queueSize),
		done:  make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", core.ErrServerClosed
	}
	r.connections[c.id] = c
	count := len(r.connections)
	r.mu.Unlock()

	r.metrics.Connections.Set(float64(count))
	go r.writeLoop(c)

	logrus.WithFields(logrus.Fields{
		"connection_id": c.id,
		"connections":   count,
	}).Debug("Connection registered")
	return c.id, nil
}

// Unregister removes the connection and its room membership. Unknown ids
// are ignored.
func (r *Registry) Unregister(id core.ConnectionID) {
	if r.leave != nil {
		r.leave(id)
	}

	r.mu.Lock()
	c, ok := r.connections[id]
	if ok {
		delete(r.connections, id)
		close(c.queue)
	}
	count := len(r.connections)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.metrics.Connections.Set(float64(count))
	logrus.WithFields(logrus.Fields{
		"connection_id": id,
		"connections":   count,
	}).Debug("Connection unregistered")
}

// Send enqueues an event for id without blocking. It fails with a
// *core.DeliveryError when the connection is unknown, closed or backed up.
func (r *Registry) Send(id core.ConnectionID, event string, payload any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connections[id]
	if !ok {
		return &core.DeliveryError{ConnectionID: id, Err: core.ErrUnknownConnection}
	}
	if c.closed {
		return &core.DeliveryError{ConnectionID: id, Err: core.ErrConnectionClosed}
	}

	// The read lock keeps Unregister from closing the queue under us.
	select {
	case c.queue <- outbound{event: event, payload: payload}:
		return nil
	default:
		return &core.DeliveryError{ConnectionID: id, Err: core.ErrQueueFull}
	}
}

// Has reports whether id is registered.
func (r *Registry) Has(id core.ConnectionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connections[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Close is CloseContext with DefaultDrainTimeout.
func (r *Registry) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultDrainTimeout)
	defer cancel()
	_ = r.CloseContext(ctx)
}

// CloseContext unregisters every connection, waits for their writers to
// finish and refuses further registrations. Writers still stuck in their
// sink when ctx ends are abandoned and ctx's error is returned.
func (r *Registry) CloseContext(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	ids := make([]core.ConnectionID, 0, len(r.connections))
	dones := make([]chan struct{}, 0, len(r.connections))
	for id, c := range r.connections {
		ids = append(ids, id)
		dones = append(dones, c.done)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Unregister(id)
	}
	for i, done := range dones {
		select {
		case <-done:
		case <-ctx.Done():
			logrus.WithFields(logrus.Fields{
				"connections": len(ids),
				"stalled":     len(dones) - i,
			}).Warn("Gave up waiting for connection writers")
			return fmt.Errorf("drain connections: %w", ctx.Err())
		}
	}
	logrus.WithField("connections", len(ids)).Info("Connection registry closed")
	return nil
}

func (r *Registry) writeLoop(c *connection) {
	defer close(c.done)

	for msg := range c.queue {
		if r.isClosed(c) {
			continue
		}
		if err := emit(c.sink, msg); err != nil {
			logrus.WithFields(logrus.Fields{
				"connection_id": c.id,
				"event":         msg.event,
			}).WithError(err).Warn("Sink rejected write, closing connection")
			r.metrics.Deliveries.WithLabelValues("write_failed").Inc()
			r.markClosed(c)
		}
	}
}

// emit writes one message, turning a panicking sink into an error.
func emit(sink core.Sink, msg outbound) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sink panicked: %v", rec)
		}
	}()
	return sink.Emit(msg.event, msg.payload)
}

func (r *Registry) isClosed(c *connection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return c.closed
}

func (r *Registry) markClosed(c *connection) {
	r.mu.Lock()
	c.closed = true
	r.mu.Unlock()
}
