// Package broker owns the RabbitMQ connection: the per-user exchanges and
// per-channel queues behind client event channels, the event publisher and
// the media-server event feed.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

var ErrUnavailable = errors.New("broker unavailable")

const (
	redialDelay    = time.Second
	maxRedialDelay = 30 * time.Second
)

// connection is the part of *amqp.Connection the broker uses.
type connection interface {
	Channel() (*amqp.Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Broker holds one AMQP connection and redials it when the server drops it.
// Channels are opened per use; while the connection is down they fail with
// ErrUnavailable.
type Broker struct {
	dial  func() (connection, error)
	delay time.Duration

	timeout time.Duration

	mu      sync.RWMutex
	conn    connection
	stopped bool
	done    chan struct{}
}

func Dial(url string, timeout time.Duration) (*Broker, error) {
	return dial(func() (connection, error) {
		return amqp.DialConfig(url, amqp.Config{
			Heartbeat: 10 * time.Second,
			Dial:      amqp.DefaultDial(timeout),
		})
	}, timeout, redialDelay)
}

func dial(fn func() (connection, error), timeout, delay time.Duration) (*Broker, error) {
	conn, err := fn()
	if err != nil {
		return nil, fmt.Errorf("broker: dial: %w", err)
	}
	b := &Broker{dial: fn, delay: delay, timeout: timeout, conn: conn, done: make(chan struct{})}
	go b.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	log.Info().Str("module", "broker").Msg("connected")
	return b, nil
}

// watch redials every time the current connection closes, until Close.
func (b *Broker) watch(closed chan *amqp.Error) {
	for {
		select {
		case <-b.done:
			return
		case err := <-closed:
			if b.isStopped() {
				return
			}
			ev := log.Error().Str("module", "broker")
			if err != nil {
				ev = ev.Str("reason", err.Reason).Int("code", err.Code)
			}
			ev.Msg("connection lost")
		}
		var ok bool
		if closed, ok = b.redial(); !ok {
			return
		}
	}
}

func (b *Broker) redial() (chan *amqp.Error, bool) {
	delay := b.delay
	for {
		select {
		case <-b.done:
			return nil, false
		case <-time.After(delay):
		}
		conn, err := b.dial()
		if err != nil {
			log.Warn().Str("module", "broker").Err(err).Dur("retry_in", delay).Msg("redial failed")
			delay = min(delay*2, maxRedialDelay)
			continue
		}
		closed := conn.NotifyClose(make(chan *amqp.Error, 1))

		b.mu.Lock()
		if b.stopped {
			b.mu.Unlock()
			_ = conn.Close()
			return nil, false
		}
		b.conn = conn
		b.mu.Unlock()
		log.Info().Str("module", "broker").Msg("reconnected")
		return closed, true
	}
}

func (b *Broker) isStopped() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopped
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil
	}
	b.stopped = true
	close(b.done)
	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}
	err := b.conn.Close()
	log.Info().Str("module", "broker").Msg("connection closed")
	return err
}

// Healthy reports whether the connection is open.
func (b *Broker) Healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.stopped && b.conn != nil && !b.conn.IsClosed()
}

func (b *Broker) channel() (*amqp.Channel, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped || b.conn == nil || b.conn.IsClosed() {
		return nil, ErrUnavailable
	}
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ch, nil
}

// OpenQueue declares the user's exchange and a queue for one client channel
// bound to it.
func (b *Broker) OpenQueue(ctx context.Context, user, queue string) (Queue, error) {
	ch, err := b.channel()
	if err != nil {
		return nil, err
	}
	q, err := declareClientQueue(ch, user, queue)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return q, nil
}

// Publisher returns a publisher sharing this connection.
func (b *Broker) Publisher() *Publisher {
	return newPublisher(func() (publishChannel, error) { return b.channel() }, b.timeout)
}

// Feed returns the consumer source for the media-server event queue.
func (b *Broker) Feed(queue string) *Feed {
	return &Feed{queue: queue, open: func() (feedChannel, error) { return b.channel() }}
}
