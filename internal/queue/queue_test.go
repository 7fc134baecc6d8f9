package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "analytics.recompute", Body: []byte(`{"studentId":"s1"}`)}))
	assert.Equal(t, 1, q.Len())

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case m := <-msgs:
		assert.Equal(t, "analytics.recompute", m.Type)
		assert.JSONEq(t, `{"studentId":"s1"}`, string(m.Body))
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "b"}), context.DeadlineExceeded)
}

func TestInMemoryConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := NewInMemory(1).Consume(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestSerialize(t *testing.T) {
	m := deserialize(serialize(Message{Type: "notification", Body: []byte(`{"a":"x|y"}`)}))
	assert.Equal(t, "notification", m.Type)
	assert.Equal(t, `{"a":"x|y"}`, string(m.Body))

	assert.Equal(t, Message{Body: []byte("raw")}, deserialize("raw"))
}

func TestOpen(t *testing.T) {
	q, err := Open(Options{Backend: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &InMemory{}, q)
	assert.NoError(t, Close(q))

	_, err = Open(Options{Backend: "redis"}, nil)
	assert.Error(t, err)

	_, err = Open(Options{Backend: "kafka"}, nil)
	assert.Error(t, err)

	_, err = Open(Options{Backend: "carrier-pigeon"}, nil)
	assert.Error(t, err)

	q, err = Open(Options{Backend: "rabbitmq"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &AMQP{}, q)
}
