package websocket

import (
	"errors"
	"regexp"

	"socket-relay/config"
	"socket-relay/core"
	"socket-relay/relay"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

var localhostOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)

// socketSink adapts a socket.io socket to core.Sink.
type socketSink struct {
	socket *socketio.Socket
}

func (s *socketSink) Emit(event string, payload any) error {
	return s.socket.Emit(event, payload)
}

// SetupSocketIO builds the socket.io server and binds its events to the relay.
func SetupSocketIO(relaySrv *relay.Server, cfg config.SocketConfig) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(cfg.MaxHTTPBufferSize)
	opts.SetPath(cfg.Path)
	opts.SetAllowEIO3(cfg.AllowEIO3)
	opts.SetCors(&types.Cors{
		Origin:      corsOrigins(cfg.AllowedOrigins),
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)
	events := &eventHandler{relay: relaySrv}

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		sess, err := relaySrv.Connect(&socketSink{socket: socket})
		if err != nil {
			logrus.WithField("socket_id", socket.Id()).WithError(err).Warn("Rejecting socket")
			socket.Disconnect(true)
			return
		}
		logrus.WithFields(logrus.Fields{
			"socket_id":     socket.Id(),
			"connection_id": sess.ID(),
		}).Debug("Socket connected")

		for _, name := range []string{relay.EventJoin, relay.EventData} {
			event := name
			//nolint:errcheck // Socket.IO event handlers do not return useful errors
			socket.On(event, func(datas ...any) {
				if err := events.handle(sess, event, datas); errors.Is(err, core.ErrHandlerFault) {
					relaySrv.Disconnect(sess)
					socket.Disconnect(true)
				}
			})
		}

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("disconnect", func(datas ...any) {
			relaySrv.Disconnect(sess)
			socket.RemoveAllListeners("")
			logrus.WithField("connection_id", sess.ID()).Debug("Socket disconnected")
		})
	})

	return srv
}

// corsOrigins returns the engine.io origin setting. A configured "*" opens
// it to every origin.
func corsOrigins(allowed []string) any {
	if len(allowed) == 0 {
		return []any{localhostOrigin}
	}
	origins := make([]any, 0, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return "*"
		}
		origins = append(origins, origin)
	}
	return origins
}

// eventHandler turns socket.io event arguments into relay dispatches and
// reports the outcome through the client's ack and an error event.
type eventHandler struct {
	relay *relay.Server
}

func (h *eventHandler) handle(sess *relay.Session, event string, datas []any) error {
	ack, args := extractAck(datas)

	reply, err := h.relay.Dispatch(sess, event, args...)
	respond(ack, ackPayload(reply, err), err)

	if err != nil && !errors.Is(err, core.ErrConnectionClosed) {
		notifyErr := h.relay.Notify(sess, relay.EventError, map[string]any{
			"event": event,
			"error": err.Error(),
		})
		if notifyErr != nil {
			logrus.WithField("connection_id", sess.ID()).WithError(notifyErr).Debug("Could not report error to client")
		}
	}
	return err
}

func ackPayload(reply relay.Reply, err error) map[string]any {
	if err != nil {
		return map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	return map[string]any{
		"status":    "ok",
		"room":      reply.Room,
		"members":   reply.Members,
		"delivered": reply.Delivered,
	}
}
