package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"socket-relay/core"

	"github.com/sirupsen/logrus"
)

type activityStore struct {
	mu    sync.RWMutex
	rooms map[string]core.RoomActivity
	now   func() time.Time
}

func NewActivityStore() core.ActivityStore {
	return &activityStore{
		rooms: make(map[string]core.RoomActivity),
		now:   time.Now,
	}
}

func (s *activityStore) TouchRoom(ctx context.Context, roomID string, members int) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	room := s.rooms[roomID]
	room.ID = roomID
	room.LastActive = s.now().UnixMilli()
	room.Joins++
	if members > room.PeakMembers {
		room.PeakMembers = members
	}
	s.rooms[roomID] = room
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"members": members,
	}).Debug("Room activity recorded")
	return nil
}

func (s *activityStore) ListRooms(ctx context.Context) ([]core.RoomActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]core.RoomActivity, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActive == rooms[j].LastActive {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].LastActive > rooms[j].LastActive
	})

	return rooms, nil
}

func (s *activityStore) GetRoom(ctx context.Context, roomID string) (*core.RoomActivity, error) {
	s.mu.RLock()
	room, ok := s.rooms[roomID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, core.ErrRoomNotFound)
	}
	return &room, nil
}

func (s *activityStore) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return fmt.Errorf("room %s: %w", roomID, core.ErrRoomNotFound)
	}
	delete(s.rooms, roomID)
	return nil
}

func (s *activityStore) Close() error {
	return nil
}
