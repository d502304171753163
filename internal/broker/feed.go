package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type feedChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Feed consumes the durable queue the media server's event handler writes to.
type Feed struct {
	queue string
	open  func() (feedChannel, error)
}

// Consume opens a fresh channel and consumer on the feed queue.
func (f *Feed) Consume(ctx context.Context) (<-chan []byte, func(), error) {
	ch, err := f.open()
	if err != nil {
		return nil, nil, err
	}
	if _, err := ch.QueueDeclare(f.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("broker: declare feed %s: %w", f.queue, err)
	}
	deliveries, err := ch.Consume(f.queue, "", true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("broker: consume feed %s: %w", f.queue, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	closeFn := func() {
		cancel()
		_ = ch.Close()
	}
	return bodies(ctx, deliveries), closeFn, nil
}
