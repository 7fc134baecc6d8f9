package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka publishes to a topic and consumes it within a consumer group. The
// message type travels as the record key.
type Kafka struct {
	brokers []string
	topic   string
	group   string
	writer  *kafka.Writer

	mu      sync.Mutex
	readers []*kafka.Reader
}

func NewKafka(brokers []string, topic, group string) *Kafka {
	if topic == "" {
		topic = "campustrack.events"
	}
	if group == "" {
		group = "campustrack-worker"
	}
	return &Kafka{
		brokers: brokers,
		topic:   topic,
		group:   group,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			WriteTimeout:           10 * time.Second,
			AllowAutoTopicCreation: true,
		},
	}
}

func (k *Kafka) Publish(ctx context.Context, msg Message) error {
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Type),
		Value: msg.Body,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (k *Kafka) Consume(ctx context.Context) (<-chan Message, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		GroupID:  k.group,
		Topic:    k.topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	k.mu.Lock()
	k.readers = append(k.readers, reader)
	k.mu.Unlock()

	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("kafka read failed", "err", err)
				if !sleep(ctx, time.Second) {
					return
				}
				continue
			}
			select {
			case out <- Message{Type: string(m.Key), Body: m.Value}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, r := range k.readers {
		_ = r.Close()
	}
	k.readers = nil
	return k.writer.Close()
}
