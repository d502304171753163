package eventws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dkeye/Meet/internal/adapters/keepalive"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/broker"
	"github.com/dkeye/Meet/internal/domain"
)

type fakeQueue struct {
	name       string
	deliveries chan []byte
	deleteErr  error

	mu    sync.Mutex
	calls []string
}

func (q *fakeQueue) record(s string) {
	q.mu.Lock()
	q.calls = append(q.calls, s)
	q.mu.Unlock()
}

func (q *fakeQueue) Calls() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.calls...)
}

func (q *fakeQueue) Consume(tag string) (<-chan []byte, error) {
	q.record("consume")
	return q.deliveries, nil
}

func (q *fakeQueue) Cancel(tag string) error {
	q.record("cancel")
	return nil
}

func (q *fakeQueue) Delete() error {
	q.record("delete")
	return q.deleteErr
}

func (q *fakeQueue) Close() error {
	q.record("close")
	return nil
}

type fakeBroker struct {
	err   error
	mu    sync.Mutex
	queue *fakeQueue
	user  string
}

func (b *fakeBroker) OpenQueue(_ context.Context, user, queue string) (broker.Queue, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.user = user
	b.queue.name = queue
	return b.queue, nil
}

type cleanupRecorder struct {
	mu      sync.Mutex
	left    []domain.QueueID
	removed []domain.QueueID
	done    chan struct{}
}

func newCleanupRecorder() *cleanupRecorder {
	return &cleanupRecorder{done: make(chan struct{}, 4)}
}

func (r *cleanupRecorder) LeaveByQueue(_ context.Context, q domain.QueueID) error {
	r.mu.Lock()
	r.left = append(r.left, q)
	r.mu.Unlock()
	return errors.New("participant store down")
}

func (r *cleanupRecorder) RemoveFromQueue(_ context.Context, q domain.QueueID) error {
	r.mu.Lock()
	r.removed = append(r.removed, q)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

type fixture struct {
	srv      *httptest.Server
	broker   *fakeBroker
	cleanup  *cleanupRecorder
	registry *app.Registry
}

func newFixture(t *testing.T, user string, brokerErr error) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{
		broker:   &fakeBroker{err: brokerErr, queue: &fakeQueue{deliveries: make(chan []byte, 4)}},
		cleanup:  newCleanupRecorder(),
		registry: app.NewRegistry(),
	}
	h := &Handler{
		Broker:    f.broker,
		Meetings:  f.cleanup,
		Waiting:   f.cleanup,
		Registry:  f.registry,
		Keepalive: keepalive.New(time.Minute),
		ReadLimit: 4096,
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		if user != "" {
			c.Set(UserKey, user)
		}
		h.Serve(ctx, c)
	})
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) dial(t *testing.T) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	return websocket.DefaultDialer.Dial(url, nil)
}

func (f *fixture) waitCleanup(t *testing.T) {
	t.Helper()
	select {
	case <-f.cleanup.done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup did not run")
	}
}

func readFrame(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func TestChannelLifecycle(t *testing.T) {
	f := newFixture(t, "alice", nil)
	ws, _, err := f.dial(t)
	if err != nil {
		t.Fatal(err)
	}

	connected := readFrame(t, ws)
	if connected.Type != "websocketConnected" || connected.QueueID == "" {
		t.Fatalf("first frame = %+v", connected)
	}
	if string(connected.QueueID) != f.broker.queue.name || f.broker.user != "alice" {
		t.Fatalf("queue %q for %q, announced %q", f.broker.queue.name, f.broker.user, connected.QueueID)
	}

	if err := ws.WriteJSON(frame{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	if pong := readFrame(t, ws); pong.Type != "pong" {
		t.Fatalf("reply = %+v", pong)
	}

	event := `{"type":"MeetingParticipantJoined","payload":{"meetingId":"m1","userId":"bob"}}`
	f.broker.queue.deliveries <- []byte(event)
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := ws.ReadMessage()
	if err != nil || string(got) != event {
		t.Fatalf("forwarded %q, %v", got, err)
	}
	if f.registry.Count() != 1 {
		t.Fatalf("registry count = %d", f.registry.Count())
	}

	_ = ws.Close()
	f.waitCleanup(t)

	calls := f.broker.queue.Calls()
	want := []string{"consume", "cancel", "delete", "close"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Fatalf("queue calls = %v, want %v", calls, want)
	}
	id := connected.QueueID
	if len(f.cleanup.left) != 1 || f.cleanup.left[0] != id {
		t.Fatalf("left = %v", f.cleanup.left)
	}
	if len(f.cleanup.removed) != 1 || f.cleanup.removed[0] != id {
		t.Fatalf("removed = %v", f.cleanup.removed)
	}
	if f.registry.Count() != 0 {
		t.Fatal("channel still registered")
	}
}

func TestUnexpectedFrameCloses(t *testing.T) {
	f := newFixture(t, "alice", nil)
	f.broker.queue.deleteErr = errors.New("channel gone")
	ws, _, err := f.dial(t)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	readFrame(t, ws)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"join"}`)); err != nil {
		t.Fatal(err)
	}
	f.waitCleanup(t)

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("connection still open after protocol error")
	}
	if len(f.cleanup.left) != 1 {
		t.Fatal("leave skipped after failed queue delete")
	}
}

func TestMalformedPingCloses(t *testing.T) {
	f := newFixture(t, "alice", nil)
	ws, _, err := f.dial(t)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	readFrame(t, ws)

	_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"`))
	f.waitCleanup(t)
}

func TestBrokerConsumerEndCloses(t *testing.T) {
	f := newFixture(t, "alice", nil)
	ws, _, err := f.dial(t)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	readFrame(t, ws)

	close(f.broker.queue.deliveries)
	f.waitCleanup(t)
}

func TestRegistryCancelClosesOnce(t *testing.T) {
	f := newFixture(t, "alice", nil)
	ws, _, err := f.dial(t)
	if err != nil {
		t.Fatal(err)
	}
	connected := readFrame(t, ws)

	f.registry.CancelAll()
	f.waitCleanup(t)
	_ = ws.Close()

	select {
	case <-f.cleanup.done:
		t.Fatal("cleanup ran twice")
	case <-time.After(100 * time.Millisecond):
	}
	if len(f.cleanup.left) != 1 || f.cleanup.left[0] != connected.QueueID {
		t.Fatalf("left = %v", f.cleanup.left)
	}
}

func TestHandshakeWithoutIdentity(t *testing.T) {
	f := newFixture(t, "", nil)
	_, resp, err := f.dial(t)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp = %v, err = %v", resp, err)
	}
}

func TestHandshakeBrokerDown(t *testing.T) {
	f := newFixture(t, "alice", broker.ErrUnavailable)
	_, resp, err := f.dial(t)
	if err == nil || resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("resp = %v, err = %v", resp, err)
	}
}

// deadConn never answers pings.
type deadConn struct {
	closed chan struct{}
	once   sync.Once
}

func newDeadConn() *deadConn { return &deadConn{closed: make(chan struct{})} }

func (c *deadConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("use of closed connection")
}

func (c *deadConn) WriteMessage(int, []byte) error { return nil }

func (c *deadConn) WriteControl(int, []byte, time.Time) error { return errors.New("broken pipe") }

func (c *deadConn) SetWriteDeadline(time.Time) error { return nil }

func (c *deadConn) SetReadLimit(int64) {}

func (c *deadConn) SetPongHandler(func(string) error) {}

func (c *deadConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func TestKeepaliveDeathWhileOpening(t *testing.T) {
	for i := 0; i < 20; i++ {
		cleanup := newCleanupRecorder()
		reg := app.NewRegistry()
		h := &Handler{Meetings: cleanup, Waiting: cleanup, Registry: reg, Keepalive: keepalive.New(time.Microsecond)}
		c := newChannel(h, "q1", "alice", newDeadConn(), &fakeQueue{deliveries: make(chan []byte)})
		if err := c.open(context.Background()); err != nil {
			t.Fatal(err)
		}
		select {
		case <-cleanup.done:
		case <-time.After(2 * time.Second):
			t.Fatal("dead peer not closed")
		}
		deadline := time.Now().Add(2 * time.Second)
		for reg.Count() != 0 {
			if time.Now().After(deadline) {
				t.Fatalf("closed channel still registered: %d", reg.Count())
			}
			time.Sleep(time.Millisecond)
		}
	}
}

func TestStopInstalledAfterCloseRuns(t *testing.T) {
	cleanup := newCleanupRecorder()
	c := newChannel(&Handler{Meetings: cleanup, Waiting: cleanup}, "q1", "alice", newDeadConn(), &fakeQueue{})
	c.Close("shutdown")

	stopped := false
	c.setStop(func() { stopped = true })
	if !stopped {
		t.Fatal("late keepalive left running")
	}
}
