package relay

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct {
	fakeSink
	failAfter int
}

func (f *failingSink) WriteFrame(frame []byte) error {
	if f.frameCount() >= f.failAfter {
		return errors.New("write failed")
	}
	return f.fakeSink.WriteFrame(frame)
}

func TestPeerWriter_DrainsQueueInOrder(t *testing.T) {
	sink := &fakeSink{}
	pw := newPeerWriter(sink, clockwork.NewRealClock(), 16, 30*time.Second)
	t.Cleanup(pw.stop)

	require.True(t, pw.tryEnqueueFrame([]byte("one")))
	require.True(t, pw.tryEnqueueControl(sessionReady("video_x")))
	require.True(t, pw.tryEnqueueFrame([]byte("two")))

	require.Eventually(t, func() bool {
		return sink.frameCount() == 2 && len(sink.controlsOfType(ControlSessionReady)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "one", string(sink.frameAt(0)))
	assert.Equal(t, "two", string(sink.frameAt(1)))
}

func TestPeerWriter_EnqueueFailsWhenFull(t *testing.T) {
	sink := &fakeSink{blockCh: make(chan struct{})}
	pw := newPeerWriter(sink, clockwork.NewRealClock(), 1, 30*time.Second)
	t.Cleanup(pw.stop)

	// One frame stuck in the sink write, one in the queue
	require.Eventually(t, func() bool {
		return !pw.tryEnqueueFrame([]byte("overflow"))
	}, time.Second, time.Millisecond)
}

func TestPeerWriter_ExitsOnWriteError(t *testing.T) {
	sink := &failingSink{failAfter: 1}
	pw := newPeerWriter(sink, clockwork.NewRealClock(), 16, 30*time.Second)
	t.Cleanup(pw.stop)

	require.True(t, pw.tryEnqueueFrame([]byte("ok")))
	require.True(t, pw.tryEnqueueFrame([]byte("fails")))

	done := make(chan struct{})
	go func() {
		pw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer goroutine did not exit after a write error")
	}
	assert.Equal(t, 1, sink.frameCount())
}

func TestPeerWriter_StopIsIdempotent(t *testing.T) {
	sink := &fakeSink{}
	pw := newPeerWriter(sink, clockwork.NewRealClock(), 16, 30*time.Second)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pw.stop()
		}()
	}
	wg.Wait()
	assert.True(t, sink.isClosed())
}
