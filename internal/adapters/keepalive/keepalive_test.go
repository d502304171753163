package keepalive

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeConn struct {
	mu      sync.Mutex
	handler func(string) error
	answer  bool
	fail    bool
	pings   atomic.Int32
	pinged  chan struct{}
}

func (f *fakeConn) SetPongHandler(h func(string) error) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeConn) WriteControl(mt int, _ []byte, _ time.Time) error {
	if mt != websocket.PingMessage {
		return errors.New("unexpected control frame")
	}
	if f.fail {
		return errors.New("broken pipe")
	}
	f.pings.Add(1)
	if f.pinged != nil {
		select {
		case f.pinged <- struct{}{}:
		default:
		}
	}
	f.mu.Lock()
	h, answer := f.handler, f.answer
	f.mu.Unlock()
	if answer {
		return h("")
	}
	return nil
}

func TestSilentPeerIsClosed(t *testing.T) {
	conn := &fakeConn{}
	dead := make(chan struct{})
	New(10*time.Millisecond).Watch(context.Background(), "c1", conn, func() { close(dead) })

	select {
	case <-dead:
	case <-time.After(time.Second):
		t.Fatal("silent peer not closed")
	}
	if conn.pings.Load() != 1 {
		t.Fatalf("pings = %d, want 1", conn.pings.Load())
	}
}

func TestAnsweringPeerStaysOpen(t *testing.T) {
	const interval = 20 * time.Millisecond
	conn := &fakeConn{answer: true, pinged: make(chan struct{}, 1)}
	var dead atomic.Bool
	stop := New(interval).Watch(context.Background(), "c1", conn, func() { dead.Store(true) })

	for i := 0; i < 3; i++ {
		select {
		case <-conn.pinged:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d pings sent", conn.pings.Load())
		}
	}
	stop()
	stop()
	if dead.Load() {
		t.Fatal("answering peer closed")
	}

	// a tick racing stop may still land
	time.Sleep(3 * interval)
	n := conn.pings.Load()
	time.Sleep(3 * interval)
	if conn.pings.Load() != n {
		t.Fatal("pings continued after stop")
	}
}

func TestPingErrorCloses(t *testing.T) {
	conn := &fakeConn{fail: true}
	dead := make(chan struct{})
	New(5*time.Millisecond).Watch(context.Background(), "c1", conn, func() { close(dead) })
	select {
	case <-dead:
	case <-time.After(time.Second):
		t.Fatal("write failure did not close")
	}
}

func TestContextEndsSupervision(t *testing.T) {
	conn := &fakeConn{}
	var dead atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	New(10*time.Millisecond).Watch(ctx, "c1", conn, func() { dead.Store(true) })
	cancel()
	time.Sleep(40 * time.Millisecond)
	if dead.Load() {
		t.Fatal("onDead called after context end")
	}
}
