package queue

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Delivery is one inbound message. Ack must be called exactly once after
// processing finishes, successful or not.
type Delivery struct {
	Body []byte
	Ack  func() error
}

// Broker abstracts the message broker so the worker can be tested against
// an in-memory implementation.
type Broker interface {
	// Consume starts delivering request messages. The channel closes when
	// the context ends or the connection drops.
	Consume(ctx context.Context) (<-chan Delivery, error)
	// Publish sends body to the exchange under routingKey.
	Publish(ctx context.Context, routingKey string, body []byte) error
	// Connected reports broker connectivity for the health surface.
	Connected() bool
	Close() error
}

// AMQPBroker is the RabbitMQ implementation. It declares the durable
// topology on connect and consumes with a prefetch of one, so each worker
// has at most one request in flight.
type AMQPBroker struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	mu     sync.Mutex
	closed bool
}

// DialAMQP connects to the broker and declares the exchange, request queue,
// and binding.
func DialAMQP(url string) (*AMQPBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	if _, err := ch.QueueDeclare(RequestQueue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", RequestQueue, err)
	}
	if err := ch.QueueBind(RequestQueue, RequestRoutingKey, Exchange, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bind queue %s: %w", RequestQueue, err)
	}
	// One unacked request per worker: a crawl session is heavy, so strict
	// one-in-flight prefetch is part of the contract.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &AMQPBroker{conn: conn, channel: ch}, nil
}

// Consume starts the durable subscription on the request queue.
func (b *AMQPBroker) Consume(ctx context.Context) (<-chan Delivery, error) {
	deliveries, err := b.channel.Consume(RequestQueue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", RequestQueue, err)
	}
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				msg := d
				delivery := Delivery{
					Body: msg.Body,
					Ack:  func() error { return msg.Ack(false) },
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					// Not acked; the broker redelivers it to the next worker.
					return
				}
			}
		}
	}()
	return out, nil
}

// Publish sends a persistent JSON message to the exchange.
func (b *AMQPBroker) Publish(ctx context.Context, routingKey string, body []byte) error {
	err := b.channel.PublishWithContext(ctx, Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", routingKey, err)
	}
	return nil
}

// Connected reports whether the underlying connection is open.
func (b *AMQPBroker) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed && b.conn != nil && !b.conn.IsClosed()
}

// Close shuts the channel and connection down.
func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.conn.Close(); err != nil {
		return fmt.Errorf("close amqp connection: %w", err)
	}
	return nil
}
