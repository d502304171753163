package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Queue is the broker side of one client channel.
type Queue interface {
	Consume(tag string) (<-chan []byte, error)
	Cancel(tag string) error
	Delete() error
	Close() error
}

type queueChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueUnbind(name, key, exchange string, args amqp.Table) error
	QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

type clientQueue struct {
	ch       queueChannel
	exchange string
	name     string
}

// declareUserExchange declares the direct exchange named after the user.
// It outlives any single channel of that user.
func declareUserExchange(ch interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
}, user string) error {
	if err := ch.ExchangeDeclare(user, amqp.ExchangeDirect, false, false, false, false, nil); err != nil {
		return fmt.Errorf("broker: declare exchange %s: %w", user, err)
	}
	return nil
}

func declareClientQueue(ch queueChannel, user, queue string) (*clientQueue, error) {
	if err := declareUserExchange(ch, user); err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, false, true, true, false, nil); err != nil {
		return nil, fmt.Errorf("broker: declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, "", user, false, nil); err != nil {
		return nil, fmt.Errorf("broker: bind queue %s: %w", queue, err)
	}
	log.Debug().Str("module", "broker").Str("exchange", user).Str("queue", queue).Msg("queue bound")
	return &clientQueue{ch: ch, exchange: user, name: queue}, nil
}

// Consume starts an auto-ack consumer; the channel closes when the consumer
// is cancelled or the broker channel goes away.
func (q *clientQueue) Consume(tag string) (<-chan []byte, error) {
	deliveries, err := q.ch.Consume(q.name, tag, true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("broker: consume %s: %w", q.name, err)
	}
	return bodies(context.Background(), deliveries), nil
}

func (q *clientQueue) Cancel(tag string) error {
	return q.ch.Cancel(tag, false)
}

// Delete unbinds the queue from the user's exchange and deletes it.
func (q *clientQueue) Delete() error {
	if err := q.ch.QueueUnbind(q.name, "", q.exchange, nil); err != nil {
		return fmt.Errorf("broker: unbind %s: %w", q.name, err)
	}
	if _, err := q.ch.QueueDelete(q.name, false, false, false); err != nil {
		return fmt.Errorf("broker: delete %s: %w", q.name, err)
	}
	return nil
}

func (q *clientQueue) Close() error {
	return q.ch.Close()
}

// bodies forwards delivery payloads until in closes or ctx ends.
func bodies(ctx context.Context, in <-chan amqp.Delivery) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for d := range in {
			select {
			case out <- d.Body:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
