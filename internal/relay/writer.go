package relay

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const writeDeadline = 5 * time.Second

// Sink is the narrow transport capability the hub holds for one connected
// peer. The websocket adapter in internal/server implements it; tests use
// fakes. Implementations are only ever written to by a single peerWriter
// goroutine.
type Sink interface {
	WriteFrame(frame []byte) error
	WriteControl(msg ControlMessage) error
	Ping() error
	Close() error
}

type outbound struct {
	frame   []byte
	control *ControlMessage
}

// peerWriter drains a bounded outbound queue into a peer's sink. The hub
// enqueues without blocking; a full queue marks the peer as slow and gets it
// evicted, so one stalled peer never delays delivery to the others.
type peerWriter struct {
	sink         Sink
	clock        clockwork.Clock
	sendChannel  chan outbound
	doneChannel  chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	pingInterval time.Duration
}

func newPeerWriter(sink Sink, clock clockwork.Clock, bufferSize int, pingInterval time.Duration) *peerWriter {
	pw := &peerWriter{
		sink:         sink,
		clock:        clock,
		sendChannel:  make(chan outbound, bufferSize),
		doneChannel:  make(chan struct{}),
		pingInterval: pingInterval,
	}
	pw.wg.Add(1)
	go pw.run()
	return pw
}

func (pw *peerWriter) run() {
	ticker := pw.clock.NewTicker(pw.pingInterval)
	defer ticker.Stop()
	defer pw.wg.Done()

	for {
		select {
		case msg := <-pw.sendChannel:
			if msg.control != nil {
				if err := pw.sink.WriteControl(*msg.control); err != nil {
					return
				}
				continue
			}
			if err := pw.sink.WriteFrame(msg.frame); err != nil {
				return
			}
		case <-ticker.Chan():
			if err := pw.sink.Ping(); err != nil {
				return
			}
		case <-pw.doneChannel:
			return
		}
	}
}

// tryEnqueueFrame queues a frame without blocking. False means the queue is
// full and the peer should be treated as slow.
func (pw *peerWriter) tryEnqueueFrame(frame []byte) bool {
	select {
	case pw.sendChannel <- outbound{frame: frame}:
		return true
	default:
		return false
	}
}

// tryEnqueueControl queues a control message without blocking.
func (pw *peerWriter) tryEnqueueControl(msg ControlMessage) bool {
	select {
	case pw.sendChannel <- outbound{control: &msg}:
		return true
	default:
		return false
	}
}

func (pw *peerWriter) stop() {
	pw.stopOnce.Do(func() {
		close(pw.doneChannel)
		_ = pw.sink.Close()
	})
	pw.wg.Wait()
}
