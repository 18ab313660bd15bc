package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/gcswan/ding/internal/relay"
)

const (
	wsWriteDeadline = 5 * time.Second
	pongDeadline    = 60 * time.Second
)

// ownerSink adapts a websocket connection to the domain.Sink the dispatcher
// pushes ding events through. Sends may come from any goroutine, so writes
// are serialized with a mutex; a timer-driven heartbeat keeps the connection
// alive independently of notification traffic.
type ownerSink struct {
	conn      *websocket.Conn
	clock     clockwork.Clock
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func newOwnerSink(conn *websocket.Conn, clock clockwork.Clock, heartbeatInterval time.Duration) *ownerSink {
	s := &ownerSink{
		conn:  conn,
		clock: clock,
		done:  make(chan struct{}),
	}

	_ = conn.SetReadDeadline(clock.Now().Add(pongDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(clock.Now().Add(pongDeadline))
	})

	go s.heartbeat(heartbeatInterval)
	return s
}

func (s *ownerSink) Send(payload []byte) error {
	select {
	case <-s.done:
		return errSinkClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(s.clock.Now().Add(wsWriteDeadline))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

func (s *ownerSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.SetWriteDeadline(s.clock.Now().Add(wsWriteDeadline))
		_ = s.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	return nil
}

func (s *ownerSink) heartbeat(interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.writeMu.Lock()
			_ = s.conn.SetWriteDeadline(s.clock.Now().Add(wsWriteDeadline))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				_ = s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// videoSink adapts a websocket connection to the relay.Sink capability. The
// hub's peer writer is the only goroutine writing frames and controls; the
// mutex only guards against a concurrent Close.
type videoSink struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newVideoSink(conn *websocket.Conn) *videoSink {
	return &videoSink{conn: conn}
}

func (v *videoSink) WriteFrame(frame []byte) error {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	_ = v.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	return v.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (v *videoSink) WriteControl(msg relay.ControlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal control message: %w", err)
	}

	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	_ = v.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	return v.conn.WriteMessage(websocket.TextMessage, data)
}

func (v *videoSink) Ping() error {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	_ = v.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	return v.conn.WriteMessage(websocket.PingMessage, nil)
}

func (v *videoSink) Close() error {
	v.closeOnce.Do(func() {
		v.writeMu.Lock()
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = v.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
		_ = v.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		v.writeMu.Unlock()
		_ = v.conn.Close()
	})
	return nil
}
