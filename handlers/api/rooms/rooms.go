package rooms

import (
	"errors"
	"net/http"
	"sort"

	"socket-relay/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	// LiveRooms exposes the relay's current room membership.
	LiveRooms interface {
		Rooms() map[string]int
		RoomSize(roomID string) int
	}

	RoomInfo struct {
		ID          string `json:"id"`
		Users       int    `json:"users"`
		LastActive  *int64 `json:"lastActive,omitempty"`
		PeakMembers int    `json:"peakMembers,omitempty"`
		Joins       int64  `json:"joins,omitempty"`
	}
)

// HandleList lists live rooms merged with recorded activity, busiest first.
func HandleList(live LiveRooms, store core.ActivityStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomMap := make(map[string]*RoomInfo)
		for id, count := range live.Rooms() {
			roomMap[id] = &RoomInfo{ID: id, Users: count}
		}

		if store != nil {
			if stored, err := store.ListRooms(r.Context()); err != nil {
				logrus.WithError(err).Warn("failed to list rooms from activity store")
			} else {
				for _, room := range stored {
					entry, exists := roomMap[room.ID]
					if !exists {
						entry = &RoomInfo{ID: room.ID}
						roomMap[room.ID] = entry
					}
					mergeActivity(entry, room)
				}
			}
		}

		roomList := make([]RoomInfo, 0, len(roomMap))
		for _, entry := range roomMap {
			roomList = append(roomList, *entry)
		}

		sort.Slice(roomList, func(i, j int) bool {
			if roomList[i].Users != roomList[j].Users {
				return roomList[i].Users > roomList[j].Users
			}
			li, lj := lastActive(roomList[i]), lastActive(roomList[j])
			if li != lj {
				return li > lj
			}
			return roomList[i].ID < roomList[j].ID
		})

		render.JSON(w, r, roomList)
	}
}

// HandleGet returns one room. Rooms that are neither live nor recorded are 404.
func HandleGet(live LiveRooms, store core.ActivityStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		entry := RoomInfo{ID: roomID, Users: live.RoomSize(roomID)}

		found := entry.Users > 0
		if store != nil {
			room, err := store.GetRoom(r.Context(), roomID)
			switch {
			case err == nil:
				mergeActivity(&entry, *room)
				found = true
			case !errors.Is(err, core.ErrRoomNotFound):
				logrus.WithField("room_id", roomID).WithError(err).Warn("failed to read room activity")
			}
		}

		if !found {
			http.Error(w, "Room not found", http.StatusNotFound)
			return
		}
		render.JSON(w, r, entry)
	}
}

// HandleDelete forgets the recorded activity of a room. Live membership is
// not affected.
func HandleDelete(store core.ActivityStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")

		err := store.DeleteRoom(r.Context(), roomID)
		if err != nil {
			if errors.Is(err, core.ErrRoomNotFound) {
				http.Error(w, "Room not found", http.StatusNotFound)
				return
			}
			logrus.WithField("error", err).Error("Failed to delete room activity")
			http.Error(w, "Failed to delete room", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func mergeActivity(entry *RoomInfo, room core.RoomActivity) {
	if room.LastActive > 0 {
		last := room.LastActive
		entry.LastActive = &last
	}
	entry.PeakMembers = room.PeakMembers
	entry.Joins = room.Joins
}

func lastActive(room RoomInfo) int64 {
	if room.LastActive == nil {
		return 0
	}
	return *room.LastActive
}
