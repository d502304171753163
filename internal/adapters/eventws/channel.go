// Package eventws serves the client event channel: one WebSocket per client,
// backed by a broker queue bound to the user's exchange.
package eventws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/broker"
	"github.com/dkeye/Meet/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrProtocol     = errors.New("protocol error")
)

type State int32

const (
	Connecting State = iota
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

const (
	writeWait   = 5 * time.Second
	cleanupWait = 10 * time.Second
	sendBuffer  = 64
)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	WriteControl(mt int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

type frame struct {
	Type    string         `json:"type"`
	QueueID domain.QueueID `json:"queueId,omitempty"`
}

// Channel is one open client event channel. Its id doubles as the queue id.
type Channel struct {
	id    domain.QueueID
	user  domain.UserID
	conn  WSConn
	queue broker.Queue
	h     *Handler

	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	stopMu  sync.Mutex
	stop    func()
	closing bool

	state atomic.Int32
	once  sync.Once
}

func newChannel(h *Handler, id domain.QueueID, user domain.UserID, conn WSConn, queue broker.Queue) *Channel {
	c := &Channel{
		id:    id,
		user:  user,
		conn:  conn,
		queue: queue,
		h:     h,
		send:  make(chan []byte, sendBuffer),
		stop:  func() {},
	}
	c.state.Store(int32(Connecting))
	return c
}

// open sends the connected frame and starts the pumps.
func (c *Channel) open(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	deliveries, err := c.queue.Consume(string(c.id))
	if err != nil {
		c.Close("consume failed")
		return err
	}
	if !c.state.CompareAndSwap(int32(Connecting), int32(Open)) {
		return nil
	}
	c.sendJSON(frame{Type: "websocketConnected", QueueID: c.id})

	if c.h.Registry != nil {
		c.h.Registry.Bind(c.id, c.user, func() { c.Close("shutdown") })
	}
	// the supervisor may close the channel before Watch returns
	if c.h.Keepalive != nil {
		c.setStop(c.h.Keepalive.Watch(c.ctx, string(c.id), c.conn, func() { c.Close("keepalive timeout") }))
	}

	go c.writePump()
	go c.readPump()
	go c.consumePump(deliveries)
	log.Info().Str("module", "adapters.eventws").Str("channel", string(c.id)).Str("user", string(c.user)).Msg("channel open")
	return nil
}

func (c *Channel) TrySend(data []byte) error {
	select {
	case <-c.ctx.Done():
		return context.Canceled
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Channel) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.eventws").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "adapters.eventws").Str("channel", string(c.id)).Msg("send dropped")
	}
}

func (c *Channel) writePump() {
	for {
		select {
		case <-c.ctx.Done():
			c.Close("context done")
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Close("set write deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "adapters.eventws").Str("channel", string(c.id)).Msg("write error")
				c.Close("write error")
				return
			}
		}
	}
}

func (c *Channel) readPump() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.Close("client disconnected")
			return
		}
		if err := c.handleFrame(data); err != nil {
			log.Warn().Err(err).Str("module", "adapters.eventws").Str("channel", string(c.id)).Msg("bad client frame")
			c.Close("protocol error")
			return
		}
	}
}

// handleFrame answers pings. Anything else is a protocol error.
func (c *Channel) handleFrame(data []byte) error {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.Join(ErrProtocol, err)
	}
	if f.Type != "ping" {
		return ErrProtocol
	}
	c.sendJSON(frame{Type: "pong"})
	return nil
}

// consumePump forwards broker deliveries verbatim until the consumer ends.
func (c *Channel) consumePump(deliveries <-chan []byte) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case body, ok := <-deliveries:
			if !ok {
				c.Close("broker consumer closed")
				return
			}
			if err := c.TrySend(body); err != nil {
				log.Warn().Err(err).Str("module", "adapters.eventws").Str("channel", string(c.id)).Msg("slow client")
				c.Close("backpressure")
				return
			}
		}
	}
}

// setStop installs the keepalive stop, or runs it right away when the
// channel is already closing.
func (c *Channel) setStop(stop func()) {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	if c.closing {
		stop()
		return
	}
	c.stop = stop
}

// Close runs the Closing steps once. Every step is attempted even when an
// earlier one fails.
func (c *Channel) Close(reason string) {
	c.once.Do(func() {
		prev := State(c.state.Swap(int32(Closing)))
		log.Info().Str("module", "adapters.eventws").Str("channel", string(c.id)).Stringer("from", prev).Str("reason", reason).Msg("channel closing")

		c.stopMu.Lock()
		c.closing = true
		stop := c.stop
		c.stopMu.Unlock()
		stop()
		if c.cancel != nil {
			c.cancel()
		}
		_ = c.conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), cleanupWait)
		defer cancel()

		c.step("cancel consumer", c.queue.Cancel(string(c.id)))
		c.step("delete queue", c.queue.Delete())
		c.step("close queue channel", c.queue.Close())
		if c.h.Meetings != nil {
			c.step("leave meetings", c.h.Meetings.LeaveByQueue(ctx, c.id))
		}
		if c.h.Waiting != nil {
			c.step("leave waiting room", c.h.Waiting.RemoveFromQueue(ctx, c.id))
		}
		if c.h.Registry != nil {
			c.h.Registry.Unbind(c.id)
		}

		c.state.Store(int32(Closed))
		log.Info().Str("module", "adapters.eventws").Str("channel", string(c.id)).Msg("channel closed")
	})
}

func (c *Channel) step(name string, err error) {
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.eventws").Str("channel", string(c.id)).Str("step", name).Msg("cleanup step failed")
	}
}
