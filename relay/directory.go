package relay

import (
	"sync"

	"socket-relay/core"

	"github.com/sirupsen/logrus"
)

type memberSet map[core.ConnectionID]struct{}

// Directory maps room ids to their members. A connection is in at most one
// room, and a room is deleted as soon as its last member leaves.
type Directory struct {
	mu         sync.RWMutex
	rooms      map[string]memberSet
	memberOf   map[core.ConnectionID]string
	maxMembers int
	metrics    *Metrics
}

// NewDirectory creates an empty directory. maxMembers <= 0 means rooms are
// unbounded.
func NewDirectory(maxMembers int, metrics *Metrics) *Directory {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Directory{
		rooms:      make(map[string]memberSet),
		memberOf:   make(map[core.ConnectionID]string),
		maxMembers: maxMembers,
		metrics:    metrics,
	}
}

// Join puts id in room, first removing it from any other room. It returns
// the room's new size and the room id was in before ("" if none).
func (d *Directory) Join(room string, id core.ConnectionID) (int, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	previous := d.memberOf[id]
	if previous == room {
		return len(d.rooms[room]), previous, nil
	}

	members := d.rooms[room]
	if d.maxMembers > 0 && len(members) >= d.maxMembers {
		return len(members), previous, core.ErrRoomFull
	}

	if previous != "" {
		d.removeLocked(previous, id)
	}

	if members == nil {
		members = make(memberSet)
		d.rooms[room] = members
		logrus.WithField("room_id", room).Debug("Room created")
	}
	members[id] = struct{}{}
	d.memberOf[id] = room
	d.metrics.Rooms.Set(float64(len(d.rooms)))

	return len(members), previous, nil
}

// Leave removes id from whichever room it occupies. ok is false when id was
// not in a room.
func (d *Directory) Leave(id core.ConnectionID) (room string, remaining int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok = d.memberOf[id]
	if !ok {
		return "", 0, false
	}
	remaining = d.removeLocked(room, id)
	d.metrics.Rooms.Set(float64(len(d.rooms)))
	return room, remaining, true
}

// Remove takes id out of room only if it is still a member there.
func (d *Directory) Remove(room string, id core.ConnectionID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.memberOf[id] != room {
		return false
	}
	d.removeLocked(room, id)
	d.metrics.Rooms.Set(float64(len(d.rooms)))
	return true
}

func (d *Directory) removeLocked(room string, id core.ConnectionID) int {
	delete(d.memberOf, id)

	members := d.rooms[room]
	delete(members, id)
	if len(members) == 0 {
		delete(d.rooms, room)
		logrus.WithField("room_id", room).Debug("Room closed")
		return 0
	}
	return len(members)
}

// Members returns a snapshot of room's members.
func (d *Directory) Members(room string) []core.ConnectionID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members := d.rooms[room]
	ids := make([]core.ConnectionID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// RoomOf returns the room id is in.
func (d *Directory) RoomOf(id core.ConnectionID) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.memberOf[id]
	return room, ok
}

func (d *Directory) Contains(room string, id core.ConnectionID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.memberOf[id] == room && room != ""
}

func (d *Directory) Size(room string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms[room])
}

// Rooms returns the member count of every live room.
func (d *Directory) Rooms() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rooms := make(map[string]int, len(d.rooms))
	for id, members := range d.rooms {
		rooms[id] = len(members)
	}
	return rooms
}

// Len returns the number of live rooms.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}
