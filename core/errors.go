package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotInRoom             = errors.New("connection is not in a room")
	ErrUnknownConnection     = errors.New("unknown connection")
	ErrQueueFull             = errors.New("send queue full")
	ErrConnectionClosed      = errors.New("connection closed")
	ErrRoomFull              = errors.New("room is full")
	ErrRegistryInconsistency = errors.New("registry inconsistency")
	ErrHandlerFault          = errors.New("handler fault")
	ErrServerClosed          = errors.New("relay server closed")
	ErrRoomNotFound          = errors.New("room not found")
)

// MalformedEvent reports an inbound event that is missing a required field or
// carries one of the wrong type.
type MalformedEvent struct {
	Event  string
	Field  string
	Reason string
}

func (e *MalformedEvent) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed %q event: %s", e.Event, e.Reason)
	}
	return fmt.Sprintf("malformed %q event: field %q %s", e.Event, e.Field, e.Reason)
}

// DeliveryError reports a failed send to a single recipient.
type DeliveryError struct {
	ConnectionID ConnectionID
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.ConnectionID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is (or wraps) a *MalformedEvent.
func IsMalformed(err error) bool {
	var m *MalformedEvent
	return errors.As(err, &m)
}
