package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"socket-relay/core"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const schema = `CREATE TABLE IF NOT EXISTS room_activity (
	room_id TEXT PRIMARY KEY,
	last_active INTEGER NOT NULL,
	peak_members INTEGER NOT NULL DEFAULT 0,
	joins INTEGER NOT NULL DEFAULT 0
);`

type activityStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewActivityStore opens the database at dataSourceName and creates the
// room_activity table if needed.
func NewActivityStore(dataSourceName string) (core.ActivityStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create room_activity table: %w", err)
	}

	return &activityStore{db: db, now: time.Now}, nil
}

func (s *activityStore) TouchRoom(ctx context.Context, roomID string, members int) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	log := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"members": members,
	})

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO room_activity (room_id, last_active, peak_members, joins) VALUES (?, ?, ?, 1)
		ON CONFLICT(room_id) DO UPDATE SET
			last_active = excluded.last_active,
			peak_members = MAX(peak_members, excluded.peak_members),
			joins = joins + 1`,
		roomID, s.now().UnixMilli(), members)
	if err != nil {
		log.WithField("error", err).Error("Failed to record room activity")
		return err
	}

	log.Debug("Room activity recorded")
	return nil
}

func (s *activityStore) ListRooms(ctx context.Context) ([]core.RoomActivity, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT room_id, last_active, peak_members, joins FROM room_activity ORDER BY last_active DESC, room_id ASC")
	if err != nil {
		logrus.WithField("error", err).Error("Failed to list rooms")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logrus.WithError(cerr).Warn("Failed to close room rows")
		}
	}()

	rooms := []core.RoomActivity{}
	for rows.Next() {
		var room core.RoomActivity
		if err := rows.Scan(&room.ID, &room.LastActive, &room.PeakMembers, &room.Joins); err != nil {
			logrus.WithField("error", err).Error("Failed to scan room")
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *activityStore) GetRoom(ctx context.Context, roomID string) (*core.RoomActivity, error) {
	var room core.RoomActivity
	err := s.db.QueryRowContext(ctx,
		"SELECT room_id, last_active, peak_members, joins FROM room_activity WHERE room_id = ?",
		roomID).Scan(&room.ID, &room.LastActive, &room.PeakMembers, &room.Joins)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", roomID, core.ErrRoomNotFound)
		}
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to retrieve room")
		return nil, err
	}
	return &room, nil
}

func (s *activityStore) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM room_activity WHERE room_id = ?", roomID)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to delete room")
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("room %s: %w", roomID, core.ErrRoomNotFound)
	}

	logrus.WithField("room_id", roomID).Info("Room activity deleted")
	return nil
}

func (s *activityStore) Close() error {
	return s.db.Close()
}
