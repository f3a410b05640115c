// Package relay implements the room relay: a connection registry, a room
// directory, a best-effort broadcast dispatcher and the per-connection event
// router, all owned by a Server constructed once at startup.
package relay

import (
	"context"
	"sync"

	"socket-relay/core"

	"github.com/sirupsen/logrus"
)

type Options struct {
	SendQueueSize  int
	MaxRoomMembers int
	MaxNameLength  int
}

// Server owns the relay state for one process.
type Server struct {
	registry   *Registry
	directory  *Directory
	dispatcher *Dispatcher
	router     *Router
	metrics    *Metrics

	closeOnce sync.Once
}

// NewServer wires the relay components together. activity may be nil.
func NewServer(opts Options, activity core.ActivityStore, metrics *Metrics) *Server {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	directory := NewDirectory(opts.MaxRoomMembers, metrics)
	registry := NewRegistry(opts.SendQueueSize, metrics, func(id core.ConnectionID) {
		directory.Leave(id)
	})
	dispatcher := NewDispatcher(registry, directory, metrics)
	router := NewRouter(registry, directory, dispatcher, activity, metrics, opts.MaxNameLength)

	return &Server{
		registry:   registry,
		directory:  directory,
		dispatcher: dispatcher,
		router:     router,
		metrics:    metrics,
	}
}

// Connect registers sink and returns a fresh, unjoined session for it.
func (s *Server) Connect(sink core.Sink) (*Session, error) {
	id, err := s.registry.Register(sink)
	if err != nil {
		return nil, err
	}
	return NewSession(id), nil
}

// Dispatch routes one inbound event for sess.
func (s *Server) Dispatch(sess *Session, event string, args ...any) (Reply, error) {
	return s.router.Dispatch(sess, event, args...)
}

// Disconnect tears down sess. Safe to call more than once.
func (s *Server) Disconnect(sess *Session) {
	_, _ = s.router.Dispatch(sess, EventDisconnect)
}

// Notify sends event to sess's own connection through the registry.
func (s *Server) Notify(sess *Session, event string, payload any) error {
	return s.registry.Send(sess.ID(), event, payload)
}

// Rooms returns the member count of every live room.
func (s *Server) Rooms() map[string]int {
	return s.directory.Rooms()
}

func (s *Server) RoomSize(room string) int {
	return s.directory.Size(room)
}

func (s *Server) ConnectionCount() int {
	return s.registry.Len()
}

func (s *Server) RoomCount() int {
	return s.directory.Len()
}

// Close is Shutdown bounded by DefaultDrainTimeout.
func (s *Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultDrainTimeout)
	defer cancel()
	_ = s.Shutdown(ctx)
}

// Shutdown drains every connection until ctx ends and refuses new ones.
// Only the first call does any work.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		logrus.Info("Shutting down relay server")
		err = s.registry.CloseContext(ctx)
	})
	return err
}
