package health

import (
	"net/http"

	"github.com/go-chi/render"
)

// Stats is what the health endpoint reports about the relay.
type Stats interface {
	ConnectionCount() int
	RoomCount() int
}

type Response struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}

func HandleHealth(stats Stats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, Response{
			Status:      "ok",
			Connections: stats.ConnectionCount(),
			Rooms:       stats.RoomCount(),
		})
	}
}
