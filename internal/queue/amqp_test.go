package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-engine/internal/model"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{exchange: exchange, key: key, msg: msg})
	return nil
}

type fakeAck struct {
	acked, nacked, requeued int
}

func (a *fakeAck) Ack(uint64, bool) error { a.acked++; return nil }

func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	if requeue {
		a.requeued++
	}
	return nil
}

func (a *fakeAck) Reject(uint64, bool) error { return nil }

type fakeTopology struct {
	exchanges []string
	queues    []string
	binds     []string
}

func (f *fakeTopology) ExchangeDeclare(name, kind string, _, _, _, _ bool, args amqp.Table) error {
	f.exchanges = append(f.exchanges, name+":"+kind+":"+args["x-delayed-type"].(string))
	return nil
}

func (f *fakeTopology) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.queues = append(f.queues, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeTopology) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	f.binds = append(f.binds, exchange+"->"+name+"/"+key)
	return nil
}

func sendTask() model.SendTask {
	return model.SendTask{
		To:      "ada@example.test",
		Subject: "Hi Ada",
		HTML:    "<p>Hi</p>",
		Headers: map[string]string{
			model.HeaderCampaignID: "c-1",
			model.HeaderLeadID:     "l-1",
			model.HeaderStep:       "2",
		},
		SenderIdentity: "ana@acme.test",
		DelayMs:        172800000,
		Attempts:       model.SendAttempts,
		Backoff:        model.BackoffPolicy{Type: "exponential", BaseDelayMs: 1000},
	}
}

func delivery(t *testing.T, ack *fakeAck, attempt int32) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(sendTask())
	require.NoError(t, err)
	return amqp.Delivery{
		Acknowledger: ack,
		MessageId:    "m-1",
		Headers:      amqp.Table{headerAttempt: attempt},
		Body:         body,
	}
}

func TestDeclare(t *testing.T) {
	top := &fakeTopology{}
	require.NoError(t, Declare(top, NamesFor("campaign_sends")))

	assert.Equal(t, []string{"campaign_sends.delayed:x-delayed-message:direct"}, top.exchanges)
	assert.Equal(t, []string{"campaign_sends", "campaign_sends.failed"}, top.queues)
	assert.Equal(t, []string{"campaign_sends.delayed->campaign_sends/campaign_sends"}, top.binds)
}

func TestAMQPQueue_EnqueuePublishesDelayedTask(t *testing.T) {
	pub := &fakePublisher{}
	q := NewAMQPQueue(pub, NamesFor("campaign_sends"))
	fixed := time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return fixed }

	handle, err := q.Enqueue(context.Background(), sendTask())
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(48*time.Hour), handle.FireAt)

	require.Len(t, pub.msgs, 1)
	m := pub.msgs[0]
	assert.Equal(t, "campaign_sends.delayed", m.exchange)
	assert.Equal(t, "campaign_sends", m.key)
	assert.Equal(t, handle.ID, m.msg.MessageId)
	assert.Equal(t, int64(172800000), m.msg.Headers[headerDelay])
	assert.Equal(t, int32(1), m.msg.Headers[headerAttempt])

	var wire map[string]any
	require.NoError(t, json.Unmarshal(m.msg.Body, &wire))
	assert.Equal(t, "ada@example.test", wire["to"])
	assert.Equal(t, float64(5), wire["attempts"])
	assert.Equal(t, "exponential", wire["backoff"].(map[string]any)["type"])
	assert.Equal(t, "l-1", wire["headers"].(map[string]any)["X-Lead-Id"])
	assert.Equal(t, "ana@acme.test", wire["senderIdentity"])
}

func TestAMQPQueue_PublishError(t *testing.T) {
	q := NewAMQPQueue(&fakePublisher{err: errors.New("channel closed")}, NamesFor("q"))
	_, err := q.Enqueue(context.Background(), sendTask())
	assert.Error(t, err)
}

func TestConsumer_AcksOnSuccess(t *testing.T) {
	pub := &fakePublisher{}
	ack := &fakeAck{}
	var got model.SendTask
	c := NewConsumer(pub, NamesFor("q"), func(_ context.Context, task model.SendTask) error {
		got = task
		return nil
	}, nil)

	c.Handle(context.Background(), delivery(t, ack, 1))
	assert.Equal(t, 1, ack.acked)
	assert.Empty(t, pub.msgs)
	assert.Equal(t, "l-1", got.LeadID())
}

func TestConsumer_RetriesWithExponentialDelay(t *testing.T) {
	pub := &fakePublisher{}
	ack := &fakeAck{}
	c := NewConsumer(pub, NamesFor("q"), func(context.Context, model.SendTask) error {
		return errors.New("transport down")
	}, nil)

	c.Handle(context.Background(), delivery(t, ack, 3))

	assert.Equal(t, 1, ack.acked)
	require.Len(t, pub.msgs, 1)
	m := pub.msgs[0]
	assert.Equal(t, "q.delayed", m.exchange)
	assert.Equal(t, "q", m.key)
	assert.Equal(t, int64(4000), m.msg.Headers[headerDelay])
	assert.Equal(t, int32(4), m.msg.Headers[headerAttempt])
}

func TestConsumer_DeadLettersAfterLastAttempt(t *testing.T) {
	pub := &fakePublisher{}
	ack := &fakeAck{}
	c := NewConsumer(pub, NamesFor("q"), func(context.Context, model.SendTask) error {
		return errors.New("mailbox full")
	}, nil)

	c.Handle(context.Background(), delivery(t, ack, model.SendAttempts))

	assert.Equal(t, 1, ack.acked)
	require.Len(t, pub.msgs, 1)
	m := pub.msgs[0]
	assert.Equal(t, "", m.exchange)
	assert.Equal(t, "q.failed", m.key)
	assert.Equal(t, "mailbox full", m.msg.Headers[headerError])
}

func TestConsumer_InvalidPayloadIsDeadLettered(t *testing.T) {
	pub := &fakePublisher{}
	ack := &fakeAck{}
	c := NewConsumer(pub, NamesFor("q"), func(context.Context, model.SendTask) error {
		t.Fatal("handler must not run for invalid payloads")
		return nil
	}, nil)

	c.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{not json")})
	assert.Equal(t, 1, ack.acked)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "q.failed", pub.msgs[0].key)
}

func TestConsumer_RequeuesWhenRetryPublishFails(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	ack := &fakeAck{}
	c := NewConsumer(pub, NamesFor("q"), func(context.Context, model.SendTask) error {
		return errors.New("transport down")
	}, nil)

	c.Handle(context.Background(), delivery(t, ack, 1))
	assert.Equal(t, 0, ack.acked)
	assert.Equal(t, 1, ack.requeued)
}

func TestConsumer_RequeuesWithoutRetryWhenContextCancelled(t *testing.T) {
	pub := &fakePublisher{}
	ack := &fakeAck{}
	ctx, cancel := context.WithCancel(context.Background())
	c := NewConsumer(pub, NamesFor("q"), func(ctx context.Context, _ model.SendTask) error {
		cancel()
		return ctx.Err()
	}, nil)

	c.Handle(ctx, delivery(t, ack, 2))

	assert.Empty(t, pub.msgs)
	assert.Equal(t, 0, ack.acked)
	assert.Equal(t, 1, ack.requeued)
}

func TestConsumer_RunStopsWhenChannelCloses(t *testing.T) {
	pub := &fakePublisher{}
	var mu sync.Mutex
	calls := 0
	c := NewConsumer(pub, NamesFor("q"), func(context.Context, model.SendTask) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}, nil)

	ch := make(chan amqp.Delivery, 3)
	for i := 0; i < 3; i++ {
		ch <- delivery(t, &fakeAck{}, 1)
	}
	close(ch)
	require.NoError(t, c.Run(context.Background(), ch, 1))
	assert.Equal(t, 3, calls)
}

func TestHeaderInt(t *testing.T) {
	for _, v := range []any{int(3), int16(3), int32(3), int64(3), float64(3), uint8(3)} {
		n, ok := headerInt(amqp.Table{"k": v}, "k")
		assert.True(t, ok)
		assert.Equal(t, int64(3), n)
	}
	_, ok := headerInt(amqp.Table{"k": "3"}, "k")
	assert.False(t, ok)
}
