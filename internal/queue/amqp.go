package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/unclebandit/outreach-engine/internal/model"
)

const (
	headerDelay   = "x-delay"
	headerAttempt = "x-attempt"
	headerError   = "x-error"
)

// Publisher is the slice of *amqp.Channel used to publish.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Topology is the slice of *amqp.Channel used to declare exchanges and queues.
type Topology interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Names of the broker objects backing a work queue.
type Names struct {
	Queue    string
	Exchange string
	Failed   string
}

func NamesFor(queue string) Names {
	return Names{Queue: queue, Exchange: queue + ".delayed", Failed: queue + ".failed"}
}

// Declare creates the delayed exchange (rabbitmq_delayed_message_exchange
// plugin), the durable work queue bound to it, and the failure queue.
func Declare(ch Topology, n Names) error {
	err := ch.ExchangeDeclare(n.Exchange, "x-delayed-message", true, false, false, false,
		amqp.Table{"x-delayed-type": "direct"})
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", n.Exchange, err)
	}
	for _, name := range []string{n.Queue, n.Failed} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
	}
	if err := ch.QueueBind(n.Queue, n.Queue, n.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", n.Queue, err)
	}
	return nil
}

// AMQPQueue publishes send tasks to RabbitMQ. The broker holds each message
// for its x-delay before routing it to the work queue.
type AMQPQueue struct {
	pub   Publisher
	names Names
	now   func() time.Time
}

func NewAMQPQueue(pub Publisher, names Names) *AMQPQueue {
	return &AMQPQueue{pub: pub, names: names, now: time.Now}
}

func (q *AMQPQueue) Enqueue(_ context.Context, task model.SendTask) (JobHandle, error) {
	if err := Validate(task); err != nil {
		return JobHandle{}, err
	}
	body, err := json.Marshal(task)
	if err != nil {
		return JobHandle{}, fmt.Errorf("encode task: %w", err)
	}

	handle := JobHandle{
		ID:     uuid.NewString(),
		Queue:  q.names.Queue,
		FireAt: q.now().Add(time.Duration(task.DelayMs) * time.Millisecond),
	}
	err = q.pub.Publish(q.names.Exchange, q.names.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    handle.ID,
		Timestamp:    q.now(),
		Headers: amqp.Table{
			headerDelay:   task.DelayMs,
			headerAttempt: int32(1),
		},
		Body: body,
	})
	if err != nil {
		return JobHandle{}, fmt.Errorf("publish task: %w", err)
	}
	return handle, nil
}

// headerInt reads an integer header regardless of the wire type the broker
// decoded it into.
func headerInt(h amqp.Table, key string) (int64, bool) {
	switch v := h[key].(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
