package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/crm-mailer/internal/logger"
)

func newTestQueue() *InMemoryQueue {
	q := NewInMemoryQueue(logger.Discard())
	q.Backoff = time.Millisecond
	return q
}

func TestInMemoryQueue_PublishWithoutSubscribers(t *testing.T) {
	q := newTestQueue()
	err := q.Publish(context.Background(), DeliveryEventsTopic, []byte("{}"))
	assert.Error(t, err)
}

func TestInMemoryQueue_DeliversToEverySubscriber(t *testing.T) {
	q := newTestQueue()
	var a, b atomic.Int32
	require.NoError(t, q.Subscribe("t", func([]byte) error { a.Add(1); return nil }))
	require.NoError(t, q.Subscribe("t", func([]byte) error { b.Add(1); return nil }))
	require.NoError(t, q.Subscribe("other", func([]byte) error { t.Error("wrong topic"); return nil }))

	require.NoError(t, q.Publish(context.Background(), "t", []byte("x")))
	require.NoError(t, q.Close())
	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(1), b.Load())
}

func TestInMemoryQueue_RetriesUntilSuccess(t *testing.T) {
	q := newTestQueue()
	var attempts atomic.Int32
	require.NoError(t, q.Subscribe("t", func([]byte) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, q.Publish(context.Background(), "t", []byte("x")))
	require.NoError(t, q.Close())
	assert.Equal(t, int32(3), attempts.Load())
}

func TestInMemoryQueue_GivesUpAfterMaxRetries(t *testing.T) {
	q := newTestQueue()
	var attempts atomic.Int32
	require.NoError(t, q.Subscribe("t", func([]byte) error {
		attempts.Add(1)
		return errors.New("permanent")
	}))

	require.NoError(t, q.Publish(context.Background(), "t", []byte("x")))
	require.NoError(t, q.Close())
	assert.Equal(t, int32(q.MaxRetries+1), attempts.Load())
}

type fakeAck struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue []bool
}

func (f *fakeAck) Ack(uint64, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks++
	f.requeue = append(f.requeue, requeue)
	return nil
}

func (f *fakeAck) Reject(uint64, bool) error { return nil }

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	published  []amqp.Publishing
	deliveries chan amqp.Delivery
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !durable {
		return amqp.Queue{}, errors.New("expected durable queue")
	}
	c.declared = append(c.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) Publish(_, _ string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Consume(_, _ string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	if autoAck {
		return nil, errors.New("expected manual ack")
	}
	return c.deliveries, nil
}

func (c *fakeChannel) Close() error {
	close(c.deliveries)
	return nil
}

func TestAMQPQueue_PublishDeclaresOnce(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery)}
	q := newAMQPQueue(ch, logger.Discard())

	require.NoError(t, q.Publish(context.Background(), DeliveryEventsTopic, []byte(`{"kind":"opened"}`)))
	require.NoError(t, q.Publish(context.Background(), DeliveryEventsTopic, []byte(`{"kind":"clicked"}`)))

	assert.Equal(t, []string{DeliveryEventsTopic}, ch.declared)
	require.Len(t, ch.published, 2)
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.JSONEq(t, `{"kind":"clicked"}`, string(ch.published[1].Body))
}

func TestAMQPQueue_AckNackAndRequeueOnce(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 3)}
	q := newAMQPQueue(ch, logger.Discard())
	ack := &fakeAck{}

	require.NoError(t, q.Subscribe(DeliveryEventsTopic, func(p []byte) error {
		if string(p) == "bad" {
			return errors.New("store down")
		}
		return nil
	}))

	ch.deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte("ok")}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte("bad")}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte("bad"), Redelivered: true}
	require.NoError(t, q.Close())

	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, 2, ack.nacks)
	assert.Equal(t, []bool{true, false}, ack.requeue)
}
