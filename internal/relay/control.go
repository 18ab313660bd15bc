package relay

import (
	"encoding/json"
	"fmt"
)

// ControlType identifies a relay control message.
type ControlType string

const (
	ControlJoinSession  ControlType = "JOIN_SESSION"
	ControlLeaveSession ControlType = "LEAVE_SESSION"
	ControlHeartbeat    ControlType = "HEARTBEAT"
	ControlSessionReady ControlType = "SESSION_READY"
	ControlPeerLeft     ControlType = "PEER_LEFT"
)

// ServerClientID marks control messages originated by the hub rather than a peer.
const ServerClientID = "server"

// ControlMessage is the JSON control envelope exchanged next to binary frames
// on a relay connection.
type ControlMessage struct {
	SessionID   string      `json:"session_id"`
	ClientID    string      `json:"client_id"`
	ControlType ControlType `json:"control_type"`
	Message     string      `json:"message,omitempty"`
}

// ParseControl decodes and validates an inbound control message.
func ParseControl(data []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ControlMessage{}, fmt.Errorf("failed to decode control message: %w", err)
	}

	switch msg.ControlType {
	case ControlJoinSession, ControlLeaveSession, ControlHeartbeat:
		return msg, nil
	case ControlSessionReady, ControlPeerLeft:
		return ControlMessage{}, fmt.Errorf("control type %s is server-originated", msg.ControlType)
	default:
		return ControlMessage{}, fmt.Errorf("unknown control type %q", msg.ControlType)
	}
}

func sessionReady(videoSessionID string) ControlMessage {
	return ControlMessage{
		SessionID:   videoSessionID,
		ClientID:    ServerClientID,
		ControlType: ControlSessionReady,
		Message:     "Welcome to the session",
	}
}

func peerLeft(videoSessionID, clientID string) ControlMessage {
	return ControlMessage{
		SessionID:   videoSessionID,
		ClientID:    clientID,
		ControlType: ControlPeerLeft,
		Message:     "Peer left the session",
	}
}
