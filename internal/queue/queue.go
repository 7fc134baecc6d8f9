// Package queue carries background work between the API and the worker.
// Backends are an in-process channel, a Redis list, RabbitMQ and Kafka.
package queue

import (
	"context"
	"fmt"
	"strings"
)

// Message represents work to be processed.
type Message struct {
	Type string
	Body []byte
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// Options selects and configures a backend.
type Options struct {
	Backend      string
	Key          string
	AMQPURL      string
	KafkaBrokers []string
	KafkaGroup   string
	MemorySize   int
}

// Open builds the configured backend. The redis backend needs a client from
// the caller; the others dial on their own.
func Open(opts Options, redisClient RedisLister) (Queue, error) {
	switch strings.ToLower(opts.Backend) {
	case "memory", "":
		size := opts.MemorySize
		if size <= 0 {
			size = 256
		}
		return NewInMemory(size), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("queue: redis backend without client")
		}
		return NewRedisQueue(redisClient, opts.Key), nil
	case "rabbitmq", "amqp":
		return NewAMQP(opts.AMQPURL, opts.Key), nil
	case "kafka":
		if len(opts.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("queue: kafka backend without brokers")
		}
		return NewKafka(opts.KafkaBrokers, opts.Key, opts.KafkaGroup), nil
	}
	return nil, fmt.Errorf("queue: unknown backend %q", opts.Backend)
}

// Close releases q when the backend holds connections.
func Close(q Queue) error {
	if c, ok := q.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Len reports the number of buffered messages.
func (q *InMemory) Len() int {
	return len(q.ch)
}

// serialize stores a message as Type|Body.
func serialize(msg Message) string {
	return msg.Type + "|" + string(msg.Body)
}

func deserialize(s string) Message {
	typ, body, ok := strings.Cut(s, "|")
	if !ok {
		return Message{Body: []byte(s)}
	}
	return Message{Type: typ, Body: []byte(body)}
}
