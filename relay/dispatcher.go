package relay

import (
	"errors"

	"socket-relay/core"

	"github.com/sirupsen/logrus"
)

const (
	EventReady = "ready"
	EventData  = "data"
	EventError = "error"
)

// Result summarises one broadcast.
type Result struct {
	Targets   int
	Delivered int
	Failed    int
}

// Dispatcher fans payloads out to the other members of a room. Delivery is
// best effort: a failed recipient is logged and counted, the rest still get
// the message.
type Dispatcher struct {
	registry  *Registry
	directory *Directory
	metrics   *Metrics
}

func NewDispatcher(registry *Registry, directory *Directory, metrics *Metrics) *Dispatcher {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Dispatcher{
		registry:  registry,
		directory: directory,
		metrics:   metrics,
	}
}

// Broadcast sends event to every member of room except sender.
func (d *Dispatcher) Broadcast(room string, sender core.ConnectionID, event string, payload any) Result {
	var res Result

	for _, id := range d.directory.Members(room) {
		if id == sender {
			continue
		}
		res.Targets++

		err := d.registry.Send(id, event, payload)
		if err == nil {
			res.Delivered++
			d.metrics.Deliveries.WithLabelValues("ok").Inc()
			continue
		}

		res.Failed++
		d.metrics.Deliveries.WithLabelValues("failed").Inc()
		d.handleFailure(room, id, event, err)
	}

	d.metrics.BroadcastFanout.Observe(float64(res.Targets))
	logrus.WithFields(logrus.Fields{
		"room_id":       room,
		"connection_id": sender,
		"event":         event,
		"targets":       res.Targets,
		"failed":        res.Failed,
	}).Debug("Broadcast dispatched")
	return res
}

// NotifyJoin announces joiner to the other members of room.
func (d *Dispatcher) NotifyJoin(room string, joiner core.ConnectionID, username string) Result {
	return d.Broadcast(room, joiner, EventReady, map[string]any{"username": username})
}

func (d *Dispatcher) handleFailure(room string, id core.ConnectionID, event string, err error) {
	log := logrus.WithFields(logrus.Fields{
		"room_id":       room,
		"connection_id": id,
		"event":         event,
	})

	if !errors.Is(err, core.ErrUnknownConnection) {
		log.WithError(err).Warn("Delivery failed")
		return
	}

	// A departing connection leaves its room before it is unregistered, so a
	// member the registry no longer knows is dangling state.
	if d.directory.Contains(room, id) && !d.registry.Has(id) {
		if d.directory.Remove(room, id) {
			d.metrics.Inconsistencies.Inc()
			log.WithError(core.ErrRegistryInconsistency).Error("Room referenced an unregistered connection, removed it")
		}
		return
	}
	log.WithError(err).Debug("Recipient left during broadcast")
}
