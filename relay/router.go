package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"socket-relay/core"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

const (
	EventJoin       = "join"
	EventDisconnect = "disconnect"
)

type State int

const (
	StateUnjoined State = iota
	StateInRoom
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session is the router's per-connection state. Room and username are set
// once at join and are the only identity the router trusts afterwards.
type Session struct {
	id core.ConnectionID

	mu       sync.Mutex
	state    State
	username string
	room     string
}

func NewSession(id core.ConnectionID) *Session {
	return &Session{id: id}
}

func (s *Session) ID() core.ConnectionID { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Reply is what a handled event reports back to the transport.
type Reply struct {
	Room      string
	Members   int
	Delivered int
	Failed    int
}

type joinEvent struct {
	Username string `mapstructure:"username"`
	Room     string `mapstructure:"room"`
}

// Router maps inbound events onto the registry, directory and dispatcher.
type Router struct {
	registry      *Registry
	directory     *Directory
	dispatcher    *Dispatcher
	activity      core.ActivityStore
	metrics       *Metrics
	maxNameLength int
	storeTimeout  time.Duration
}

func NewRouter(registry *Registry, directory *Directory, dispatcher *Dispatcher, activity core.ActivityStore, metrics *Metrics, maxNameLength int) *Router {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Router{
		registry:      registry,
		directory:     directory,
		dispatcher:    dispatcher,
		activity:      activity,
		metrics:       metrics,
		maxNameLength: maxNameLength,
		storeTimeout:  2 * time.Second,
	}
}

// Dispatch handles one inbound event for s. A panic inside a handler is
// recovered and reported as core.ErrHandlerFault; only the caller's
// connection is affected.
func (r *Router) Dispatch(s *Session, event string, args ...any) (reply Reply, err error) {
	log := logrus.WithFields(logrus.Fields{
		"connection_id": s.id,
		"event":         event,
	})

	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.HandlerFaults.Inc()
			r.metrics.DroppedEvents.WithLabelValues("fault").Inc()
			log.WithField("panic", rec).Error("Event handler panicked")
			reply, err = Reply{}, fmt.Errorf("%w: %v", core.ErrHandlerFault, rec)
		}
	}()

	switch event {
	case EventJoin:
		reply, err = r.join(s, args)
	case EventData:
		reply, err = r.data(s, args)
	case EventDisconnect:
		r.disconnect(s)
	default:
		err = &core.MalformedEvent{Event: event, Reason: "unknown event"}
	}

	if err != nil {
		r.metrics.DroppedEvents.WithLabelValues(dropReason(err)).Inc()
		log.WithError(err).Info("Event dropped")
	}
	return reply, err
}

func (r *Router) join(s *Session, args []any) (Reply, error) {
	raw, err := payloadOf(EventJoin, args)
	if err != nil {
		return Reply{}, err
	}

	var ev joinEvent
	if err := mapstructure.Decode(raw, &ev); err != nil {
		return Reply{}, &core.MalformedEvent{Event: EventJoin, Reason: err.Error()}
	}
	if err := r.checkName(EventJoin, "username", ev.Username); err != nil {
		return Reply{}, err
	}
	if err := r.checkName(EventJoin, "room", ev.Room); err != nil {
		return Reply{}, err
	}

	size, previous, res, err := r.enterRoom(s, ev)
	if err != nil {
		return Reply{}, err
	}

	logrus.WithFields(logrus.Fields{
		"connection_id": s.id,
		"username":      ev.Username,
		"room_id":       ev.Room,
		"previous_room": previous,
		"members":       size,
	}).Info("Connection joined room")

	r.touchRoom(ev.Room, size)

	return Reply{
		Room:      ev.Room,
		Members:   size,
		Delivered: res.Delivered,
		Failed:    res.Failed,
	}, nil
}

// enterRoom moves s into ev.Room and announces it, holding the session lock
// so no other event of this connection interleaves.
func (r *Router) enterRoom(s *Session, ev joinEvent) (int, string, Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return 0, "", Result{}, core.ErrConnectionClosed
	}

	size, previous, err := r.directory.Join(ev.Room, s.id)
	if err != nil {
		return 0, "", Result{}, fmt.Errorf("join room %q: %w", ev.Room, err)
	}

	// The registry may have been closed underneath us during shutdown.
	if !r.registry.Has(s.id) {
		r.directory.Remove(ev.Room, s.id)
		s.state = StateDisconnected
		return 0, "", Result{}, core.ErrConnectionClosed
	}

	s.state = StateInRoom
	s.username = ev.Username
	s.room = ev.Room
	return size, previous, r.dispatcher.NotifyJoin(ev.Room, s.id, ev.Username), nil
}

func (r *Router) data(s *Session, args []any) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, room, username := s.state, s.room, s.username

	switch state {
	case StateDisconnected:
		return Reply{}, core.ErrConnectionClosed
	case StateUnjoined:
		return Reply{}, core.ErrNotInRoom
	}

	raw, err := payloadOf(EventData, args)
	if err != nil {
		return Reply{}, err
	}
	payload, ok := raw["data"]
	if !ok {
		return Reply{}, &core.MalformedEvent{Event: EventData, Field: "data", Reason: "is required"}
	}

	log := logrus.WithFields(logrus.Fields{
		"connection_id": s.id,
		"username":      username,
		"room_id":       room,
	})
	if claimed, _ := raw["room"].(string); claimed != "" && claimed != room {
		log.WithField("claimed_room", claimed).Debug("Ignoring client-supplied room")
	}

	res := r.dispatcher.Broadcast(room, s.id, EventData, payload)
	log.WithField("delivered", res.Delivered).Debug("Data relayed")

	return Reply{
		Room:      room,
		Members:   res.Targets + 1,
		Delivered: res.Delivered,
		Failed:    res.Failed,
	}, nil
}

// disconnect is unconditional and idempotent: leave, then unregister.
func (r *Router) disconnect(s *Session) {
	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()

	room, remaining, left := r.directory.Leave(s.id)
	r.registry.Unregister(s.id)

	if left {
		logrus.WithFields(logrus.Fields{
			"connection_id": s.id,
			"room_id":       room,
			"remaining":     remaining,
		}).Info("Connection left room")
	}
}

func (r *Router) touchRoom(room string, members int) {
	if r.activity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.storeTimeout)
	defer cancel()

	if err := r.activity.TouchRoom(ctx, room, members); err != nil {
		logrus.WithField("room_id", room).WithError(err).Warn("Failed to record room activity")
	}
}

func (r *Router) checkName(event, field, value string) error {
	if value == "" {
		return &core.MalformedEvent{Event: event, Field: field, Reason: "is required"}
	}
	if r.maxNameLength > 0 && len(value) > r.maxNameLength {
		return &core.MalformedEvent{Event: event, Field: field, Reason: fmt.Sprintf("exceeds %d bytes", r.maxNameLength)}
	}
	return nil
}

func payloadOf(event string, args []any) (map[string]any, error) {
	if len(args) == 0 || args[0] == nil {
		return nil, &core.MalformedEvent{Event: event, Reason: "payload is required"}
	}
	raw, ok := args[0].(map[string]any)
	if !ok {
		return nil, &core.MalformedEvent{Event: event, Reason: fmt.Sprintf("payload must be an object, got %T", args[0])}
	}
	return raw, nil
}

func dropReason(err error) string {
	switch {
	case core.IsMalformed(err):
		return "malformed"
	case errors.Is(err, core.ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, core.ErrRoomFull):
		return "room_full"
	case errors.Is(err, core.ErrConnectionClosed):
		return "closed"
	}
	return "other"
}
