package core

import (
	"context"
)

type (
	// ConnectionID identifies a live client connection. IDs are never reused.
	ConnectionID string

	// Sink is the outbound side of a connection.
	Sink interface {
		Emit(event string, payload any) error
	}

	RoomActivity struct {
		ID          string `json:"id"`
		LastActive  int64  `json:"last_active"`
		PeakMembers int    `json:"peak_members"`
		Joins       int64  `json:"joins"`
	}

	// ActivityStore keeps per-room activity counters. It never stores messages.
	ActivityStore interface {
		TouchRoom(ctx context.Context, roomID string, members int) error
		ListRooms(ctx context.Context) ([]RoomActivity, error)
		GetRoom(ctx context.Context, roomID string) (*RoomActivity, error)
		DeleteRoom(ctx context.Context, roomID string) error
		Close() error
	}
)

func (id ConnectionID) String() string {
	return string(id)
}
