package server

import (
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/gcswan/ding/internal/domain"
	"github.com/gcswan/ding/internal/errors"
	"github.com/gcswan/ding/internal/relay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Mobile clients connect from app webviews
	},
}

// handleNotificationSocket is the owner's live push channel. The connection
// is registered as the owner's notification sink; ding events are written to
// it by the dispatcher until the owner disconnects or reconnects elsewhere.
func (s *Server) handleNotificationSocket(c echo.Context) error {
	ownerID := c.Param("owner_id")
	if ownerID == "" {
		return errors.ValidationError("owner_id is required")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.InternalError("failed to upgrade websocket", err)
	}

	sink := newOwnerSink(conn, s.clock, s.config.HeartbeatInterval)
	if replaced := s.sinks.Register(ownerID, sink); replaced != nil {
		// The registry does not close replaced sinks; that is our job.
		_ = replaced.Close()
	}
	slog.Info("Owner connected for notifications", "owner_id", ownerID)

	// Read pump - blocks until the connection closes. Inbound payloads are
	// ignored; reading keeps pong handling alive.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.sinks.Unregister(ownerID, sink)
	_ = sink.Close()
	slog.Info("Owner disconnected from notifications", "owner_id", ownerID)

	return nil
}

// handleVideoSocket is the relay transport for one participant of a video
// session. Binary messages are opaque frames; text messages are control
// JSON.
func (s *Server) handleVideoSocket(c echo.Context) error {
	videoSessionID := c.Param("video_session_id")
	clientID := c.QueryParam("client_id")
	if clientID == "" {
		return errors.ValidationError("client_id query parameter is required")
	}

	ctx := c.Request().Context()
	session, err := s.doorbell.SessionForVideo(ctx, videoSessionID)
	if err != nil {
		return errors.FromDomain(err, "Video session not found")
	}
	if session.Status.Terminal() {
		return errors.ConflictError("Video session already ended")
	}
	if session.Status == domain.StatusPending {
		return errors.ConflictError("Session has not been accepted yet")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.InternalError("failed to upgrade websocket", err)
	}

	sink := newVideoSink(conn)
	if err := s.hub.Join(videoSessionID, clientID, sink); err != nil {
		slog.Warn("Relay join rejected",
			"video_session_id", videoSessionID, "client_id", clientID, "error", err)
		return nil
	}

	s.videoReadPump(conn, videoSessionID, clientID)

	// Disconnect is an implicit leave; leaving twice is a no-op.
	s.hub.Leave(videoSessionID, clientID)

	return nil
}

func (s *Server) videoReadPump(conn *websocket.Conn, videoSessionID, clientID string) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			s.hub.RelayFrame(videoSessionID, clientID, data)
		case websocket.TextMessage:
			msg, err := relay.ParseControl(data)
			if err != nil {
				slog.Debug("Ignoring malformed control message",
					"video_session_id", videoSessionID, "client_id", clientID, "error", err)
				continue
			}
			switch msg.ControlType {
			case relay.ControlHeartbeat:
				s.hub.Heartbeat(videoSessionID, clientID)
			case relay.ControlLeaveSession:
				return
			case relay.ControlJoinSession:
				// Already joined via the connection itself
			}
		}
	}
}

// errSinkClosed is returned by Send after the owner sink has been torn down.
var errSinkClosed = stderrors.New("notification sink closed")
