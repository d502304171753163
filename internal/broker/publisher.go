package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/events"
)

type publishChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends encoded events to user exchanges over one shared channel,
// reopened after any failure.
type Publisher struct {
	open    func() (publishChannel, error)
	timeout time.Duration

	mu       sync.Mutex
	ch       publishChannel
	declared map[string]struct{}
}

var _ events.Publisher = (*Publisher)(nil)

func newPublisher(open func() (publishChannel, error), timeout time.Duration) *Publisher {
	return &Publisher{open: open, timeout: timeout}
}

func (p *Publisher) Publish(ctx context.Context, userID domain.UserID, ev events.Event) error {
	body, err := events.Encode(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		ch, err := p.open()
		if err != nil {
			return err
		}
		p.ch = ch
		p.declared = make(map[string]struct{})
	}

	exchange := string(userID)
	if _, ok := p.declared[exchange]; !ok {
		if err := declareUserExchange(p.ch, exchange); err != nil {
			p.reset()
			return err
		}
		p.declared[exchange] = struct{}{}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err = p.ch.PublishWithContext(ctx, exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        ev.EventType(),
		Timestamp:   time.Now(),
		Body:        body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("broker: publish %s to %s: %w", ev.EventType(), exchange, err)
	}
	log.Debug().Str("module", "broker").Str("exchange", exchange).Str("event", ev.EventType()).Msg("published")
	return nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	p.ch = nil
	p.declared = nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
