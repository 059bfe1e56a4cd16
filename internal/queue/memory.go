package queue

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process Broker for tests and broker-less runs.
type MemoryBroker struct {
	mu        sync.Mutex
	inbox     chan Delivery
	published map[string][][]byte
	acked     int
	connected bool
}

// NewMemoryBroker creates a broker with a buffered inbox.
func NewMemoryBroker(depth int) *MemoryBroker {
	if depth <= 0 {
		depth = 16
	}
	return &MemoryBroker{
		inbox:     make(chan Delivery, depth),
		published: make(map[string][][]byte),
		connected: true,
	}
}

// Deliver enqueues one raw request body for the consumer.
func (b *MemoryBroker) Deliver(body []byte) {
	b.inbox <- Delivery{
		Body: body,
		Ack: func() error {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.acked++
			return nil
		},
	}
}

// Consume hands out the inbox.
func (b *MemoryBroker) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-b.inbox:
				if !ok {
					return
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Publish records the message under its routing key.
func (b *MemoryBroker) Publish(_ context.Context, routingKey string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(body))
	copy(cp, body)
	b.published[routingKey] = append(b.published[routingKey], cp)
	return nil
}

// Published returns every message published under key, in order.
func (b *MemoryBroker) Published(key string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.published[key]))
	copy(out, b.published[key])
	return out
}

// Acked reports how many deliveries have been acknowledged.
func (b *MemoryBroker) Acked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acked
}

// Connected reports the simulated connectivity flag.
func (b *MemoryBroker) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// SetConnected flips the simulated connectivity flag.
func (b *MemoryBroker) SetConnected(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = v
}

// Close marks the broker disconnected.
func (b *MemoryBroker) Close() error {
	b.SetConnected(false)
	return nil
}
