package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcswan/ding/internal/domain"
	"github.com/gcswan/ding/internal/relay"
	"github.com/gcswan/ding/internal/store"
)

func wsURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

func dialWS(t *testing.T, rawURL string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(rawURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readControl(t *testing.T, conn *websocket.Conn) relay.ControlMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)

	var msg relay.ControlMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func acceptedVideoSession(t *testing.T, srv *Server, mem *store.Memory, ts *httptest.Server) string {
	t.Helper()
	sessionID := scanSession(t, srv, mem)

	resp, err := http.Post(ts.URL+"/respond", "application/json", strings.NewReader(
		`{"session_id":"`+sessionID+`","door_owner_id":"alice","response_type":"accept"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return "video_" + sessionID
}

func TestNotificationSocket_ReceivesDing(t *testing.T) {
	srv, mem := newTestServer(t)
	ts := httptest.NewServer(srv.echo)
	defer ts.Close()

	conn := dialWS(t, wsURL(ts.URL, "/ws/notifications/alice"))

	issueTestCode(t, mem, "qr_ws", "alice", nil)
	resp, err := http.Post(ts.URL+"/scan", "application/json",
		strings.NewReader(`{"qr_code_id":"qr_ws","scanner_device_id":"device-1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event domain.DingEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "alice", event.OwnerID)
	assert.Equal(t, "device-1", event.VisitorDeviceID)
	assert.NotEmpty(t, event.SessionID)
}

func TestVideoSocket_FullRelayLifecycle(t *testing.T) {
	srv, mem := newTestServer(t)
	ts := httptest.NewServer(srv.echo)
	defer ts.Close()

	videoID := acceptedVideoSession(t, srv, mem, ts)
	sessionID := strings.TrimPrefix(videoID, "video_")

	visitor := dialWS(t, wsURL(ts.URL, "/ws/video/"+videoID+"?client_id=visitor"))
	owner := dialWS(t, wsURL(ts.URL, "/ws/video/"+videoID+"?client_id=owner"))

	for _, conn := range []*websocket.Conn{visitor, owner} {
		ready := readControl(t, conn)
		assert.Equal(t, relay.ControlSessionReady, ready.ControlType)
		assert.Equal(t, relay.ServerClientID, ready.ClientID)
	}

	// The hub activates the session once the group opens.
	require.Eventually(t, func() bool {
		session, err := mem.GetSession(context.Background(), sessionID)
		return err == nil && session.Status == domain.StatusActive
	}, 2*time.Second, 10*time.Millisecond)

	frame := []byte{0x01, 0x02, 0x03}
	require.NoError(t, visitor.WriteMessage(websocket.BinaryMessage, frame))

	require.NoError(t, owner.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := owner.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)
	assert.Equal(t, frame, data)

	require.NoError(t, visitor.Close())

	left := readControl(t, owner)
	assert.Equal(t, relay.ControlPeerLeft, left.ControlType)
	assert.Equal(t, "visitor", left.ClientID)

	require.NoError(t, owner.Close())

	require.Eventually(t, func() bool {
		session, err := mem.GetSession(context.Background(), sessionID)
		return err == nil && session.Status == domain.StatusEnded
	}, 2*time.Second, 10*time.Millisecond)
}

func TestVideoSocket_RejectsPendingSession(t *testing.T) {
	srv, mem := newTestServer(t)
	ts := httptest.NewServer(srv.echo)
	defer ts.Close()

	sessionID := scanSession(t, srv, mem)

	_, resp, err := websocket.DefaultDialer.Dial(
		wsURL(ts.URL, "/ws/video/video_"+sessionID+"?client_id=visitor"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestVideoSocket_RequiresClientID(t *testing.T) {
	srv, mem := newTestServer(t)
	ts := httptest.NewServer(srv.echo)
	defer ts.Close()

	videoID := acceptedVideoSession(t, srv, mem, ts)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/ws/video/"+videoID), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVideoSocket_UnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.echo)
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(
		wsURL(ts.URL, "/ws/video/video_session_missing?client_id=visitor"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
