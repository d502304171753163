// Package keepalive probes open client channels with WebSocket pings and
// closes the ones that stop answering.
package keepalive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Pinger is the part of *websocket.Conn the supervisor drives.
// WriteControl may be called concurrently with the channel's own writes.
type Pinger interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPongHandler(h func(appData string) error)
}

type Supervisor struct {
	Interval time.Duration
}

func New(interval time.Duration) *Supervisor {
	return &Supervisor{Interval: interval}
}

// Watch starts probing conn until ctx ends or the returned stop is called.
// A ping left unanswered for one interval calls onDead once.
// The pong handler only fires while the owner keeps reading from conn.
func (s *Supervisor) Watch(ctx context.Context, id string, conn Pinger, onDead func()) (stop func()) {
	var pong atomic.Bool
	pong.Store(true)
	conn.SetPongHandler(func(string) error {
		pong.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop = func() { once.Do(cancel) }

	go func() {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if !pong.Swap(false) {
				log.Warn().Str("module", "adapters.keepalive").Str("channel", id).Dur("interval", s.Interval).Msg("no pong, closing")
				stop()
				onDead()
				return
			}
			deadline := time.Now().Add(s.Interval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Warn().Str("module", "adapters.keepalive").Str("channel", id).Err(err).Msg("ping failed, closing")
				stop()
				onDead()
				return
			}
		}
	}()
	return stop
}
