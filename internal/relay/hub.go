// Package relay moves opaque video frames and control messages between the
// participants of a video session group. The Hub is a single-goroutine actor:
// all membership and routing state is owned by its run loop and mutated only
// through commands, so no locks are needed on the frame path.
package relay

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/gcswan/ding/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second

	// readyParticipants is the membership count at which a 1:1 call can
	// start and SESSION_READY is emitted.
	readyParticipants = 2
)

type group struct {
	members   map[string]*peerWriter
	lastSeen  map[string]time.Time
	createdAt time.Time
}

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type joinCmd struct {
	baseHubCmd
	videoSessionID string
	clientID       string
	sink           Sink
	errorChannel   chan error
}

type leaveCmd struct {
	baseHubCmd
	videoSessionID string
	clientID       string
}

type frameCmd struct {
	baseHubCmd
	videoSessionID string
	senderID       string
	frame          []byte
}

type heartbeatCmd struct {
	baseHubCmd
	videoSessionID string
	clientID       string
}

type clientCountCmd struct {
	baseHubCmd
	videoSessionID string
	replyChannel   chan int
}

type stopHubCmd struct {
	baseHubCmd
}

// Hub owns all video session groups. Frames submitted by one participant are
// forwarded to every other member of the same group, never back to the
// sender. Delivery is best-effort: a peer whose outbound queue overflows is
// evicted rather than allowed to stall the group.
type Hub struct {
	cmdCh              chan hubCmd
	clock              clockwork.Clock
	groups             map[string]*group
	onGroupOpened      func(videoSessionID string)
	onGroupClosed      func(videoSessionID string)
	done               chan struct{}
	stopTimeout        time.Duration
	maxClientsPerGroup int
	sendBuffer         int
	pingInterval       time.Duration
}

// NewHub creates the hub and starts its actor goroutine.
// onGroupOpened fires when a group gains its first member (used to mark the
// video session active); onGroupClosed fires when a group loses its last
// member and is deleted (used to end the session).
func NewHub(onGroupOpened, onGroupClosed func(string), clock clockwork.Clock, maxClientsPerGroup, sendBuffer int, pingInterval time.Duration) *Hub {
	h := &Hub{
		cmdCh:              make(chan hubCmd, 256),
		clock:              clock,
		groups:             make(map[string]*group),
		onGroupOpened:      onGroupOpened,
		onGroupClosed:      onGroupClosed,
		done:               make(chan struct{}),
		stopTimeout:        stopTimeout,
		maxClientsPerGroup: maxClientsPerGroup,
		sendBuffer:         sendBuffer,
		pingInterval:       pingInterval,
	}
	go h.run()
	return h
}

// Join adds a client to a video session group, creating the group if needed.
// A duplicate client_id rejoining replaces its sink instead of duplicating
// membership. Returns an error if the group is full.
func (h *Hub) Join(videoSessionID, clientID string, sink Sink) error {
	errCh := make(chan error, 1)
	h.cmdCh <- joinCmd{videoSessionID: videoSessionID, clientID: clientID, sink: sink, errorChannel: errCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("join command timed out after %v", commandTimeout)
	}
}

// Leave removes a client from its group. Leaving twice, or leaving a group
// that does not exist, is a no-op.
func (h *Hub) Leave(videoSessionID, clientID string) {
	h.cmdCh <- leaveCmd{videoSessionID: videoSessionID, clientID: clientID}
}

// RelayFrame forwards a frame to every group member except the sender.
// Frames for a session with no active group are dropped and counted, never
// surfaced to the sender.
func (h *Hub) RelayFrame(videoSessionID, senderID string, frame []byte) {
	h.cmdCh <- frameCmd{videoSessionID: videoSessionID, senderID: senderID, frame: frame}
}

// Heartbeat records liveness for a client. Last-seen timestamps are a hook
// for idle-group eviction; nothing is enforced from them yet.
func (h *Hub) Heartbeat(videoSessionID, clientID string) {
	h.cmdCh <- heartbeatCmd{videoSessionID: videoSessionID, clientID: clientID}
}

// ClientCount returns the number of members in a group, or -1 on timeout.
func (h *Hub) ClientCount(videoSessionID string) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- clientCountCmd{videoSessionID: videoSessionID, replyChannel: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the hub, disconnecting all peers. Blocks until the actor
// goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	h.cmdCh <- stopHubCmd{}

	timeout := h.clock.NewTimer(h.stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Relay hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Relay hub stop timeout exceeded, forcing exit", "timeout", h.stopTimeout)
		metrics.RelayStopTimeoutsTotal.Inc()
		close(h.done)
	}
}

func (h *Hub) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Relay hub panic recovered", "panic", r)
			metrics.RelayPanicsTotal.Inc()
			h.closeAllGroups()
		}
	}()
	defer close(h.done)

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case joinCmd:
			h.handleJoin(c)
		case leaveCmd:
			h.handleLeave(c.videoSessionID, c.clientID)
		case frameCmd:
			h.handleFrame(c)
		case heartbeatCmd:
			h.handleHeartbeat(c)
		case clientCountCmd:
			if g, ok := h.groups[c.videoSessionID]; ok {
				c.replyChannel <- len(g.members)
			} else {
				c.replyChannel <- 0
			}
		case stopHubCmd:
			h.handleStop()
			return
		default:
			slog.Warn("Relay hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleJoin(c joinCmd) {
	g, exists := h.groups[c.videoSessionID]
	if !exists {
		g = &group{
			members:   make(map[string]*peerWriter),
			lastSeen:  make(map[string]time.Time),
			createdAt: h.clock.Now(),
		}
		h.groups[c.videoSessionID] = g
		metrics.RelayActiveGroups.Set(float64(len(h.groups)))

		// Run callback asynchronously to avoid blocking the actor loop
		if h.onGroupOpened != nil {
			go h.onGroupOpened(c.videoSessionID)
		}
	}

	if old, ok := g.members[c.clientID]; ok {
		// Rejoin replaces the sink, membership count is unchanged
		old.stop()
		pw := newPeerWriter(c.sink, h.clock, h.sendBuffer, h.pingInterval)
		g.members[c.clientID] = pw
		g.lastSeen[c.clientID] = h.clock.Now()

		if len(g.members) >= readyParticipants {
			pw.tryEnqueueControl(sessionReady(c.videoSessionID))
		}

		slog.Debug("Client rejoined, sink replaced",
			"video_session_id", c.videoSessionID, "client_id", c.clientID)
		c.errorChannel <- nil
		return
	}

	if len(g.members) >= h.maxClientsPerGroup {
		slog.Warn("Rejecting client: group full",
			"video_session_id", c.videoSessionID, "max_clients", h.maxClientsPerGroup)
		_ = c.sink.Close()
		c.errorChannel <- fmt.Errorf("max clients per group (%d) reached", h.maxClientsPerGroup)
		return
	}

	pw := newPeerWriter(c.sink, h.clock, h.sendBuffer, h.pingInterval)
	g.members[c.clientID] = pw
	g.lastSeen[c.clientID] = h.clock.Now()
	metrics.RelayConnectedClients.Inc()

	slog.Info("Client joined video session",
		"video_session_id", c.videoSessionID, "client_id", c.clientID, "members", len(g.members))

	if len(g.members) == readyParticipants {
		ready := sessionReady(c.videoSessionID)
		for _, member := range g.members {
			member.tryEnqueueControl(ready)
		}
	}

	c.errorChannel <- nil
}

func (h *Hub) handleLeave(videoSessionID, clientID string) {
	g, exists := h.groups[videoSessionID]
	if !exists {
		return
	}
	pw, exists := g.members[clientID]
	if !exists {
		return
	}

	pw.stop()
	delete(g.members, clientID)
	delete(g.lastSeen, clientID)
	metrics.RelayConnectedClients.Dec()

	if len(g.members) == 0 {
		delete(h.groups, videoSessionID)
		metrics.RelayActiveGroups.Set(float64(len(h.groups)))
		if h.onGroupClosed != nil {
			go h.onGroupClosed(videoSessionID)
		}
		slog.Info("Last client left, group deleted", "video_session_id", videoSessionID)
		return
	}

	left := peerLeft(videoSessionID, clientID)
	for _, member := range g.members {
		member.tryEnqueueControl(left)
	}
	slog.Debug("Client left video session",
		"video_session_id", videoSessionID, "client_id", clientID, "remaining", len(g.members))
}

func (h *Hub) handleFrame(c frameCmd) {
	g, exists := h.groups[c.videoSessionID]
	if !exists {
		metrics.RelayFramesDroppedTotal.WithLabelValues(metrics.DropReasonNoGroup).Inc()
		slog.Debug("Dropping frame for unknown video session", "video_session_id", c.videoSessionID)
		return
	}

	var slow []string
	for clientID, member := range g.members {
		if clientID == c.senderID {
			continue
		}
		if member.tryEnqueueFrame(c.frame) {
			metrics.RelayFramesRelayedTotal.Inc()
		} else {
			slow = append(slow, clientID)
		}
	}

	for _, clientID := range slow {
		slog.Warn("Evicting slow peer",
			"video_session_id", c.videoSessionID, "client_id", clientID)
		metrics.RelayFramesDroppedTotal.WithLabelValues(metrics.DropReasonSlowPeer).Inc()
		metrics.RelaySlowPeersEvicted.Inc()
		h.handleLeave(c.videoSessionID, clientID)
	}
}

func (h *Hub) handleHeartbeat(c heartbeatCmd) {
	g, exists := h.groups[c.videoSessionID]
	if !exists {
		return
	}
	if _, exists := g.members[c.clientID]; !exists {
		return
	}
	g.lastSeen[c.clientID] = h.clock.Now()
}

func (h *Hub) handleStop() {
	totalClients := 0
	for _, g := range h.groups {
		totalClients += len(g.members)
	}
	slog.Info("Relay hub shutting down", "groups", len(h.groups), "total_clients", totalClients)

	h.closeAllGroups()

	slog.Info("Relay hub shutdown complete", "disconnected_clients", totalClients)
}

func (h *Hub) closeAllGroups() {
	for videoSessionID, g := range h.groups {
		for _, member := range g.members {
			member.stop()
		}
		metrics.RelayConnectedClients.Sub(float64(len(g.members)))
		delete(h.groups, videoSessionID)
		if h.onGroupClosed != nil {
			go h.onGroupClosed(videoSessionID)
		}
	}
	metrics.RelayActiveGroups.Set(0)
}
