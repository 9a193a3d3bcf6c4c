package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/outreach-engine/internal/backoff"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// Consumer executes deliveries from the work queue. A failed attempt is
// republished through the delayed exchange with an exponential delay; the
// last failed attempt goes to the failure queue. Deliveries are acked only
// after the follow-up publish succeeded, so a crash leads to re-execution
// rather than loss.
type Consumer struct {
	pub     Publisher
	names   Names
	handler Handler
	logger  *zap.Logger
}

func NewConsumer(pub Publisher, names Names, handler Handler, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{pub: pub, names: names, handler: handler, logger: logger}
}

// Run processes deliveries on the given number of goroutines until ctx is
// done or the channel closes.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery, workers int) error {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case d, ok := <-deliveries:
					if !ok {
						return nil
					}
					c.Handle(ctx, d)
				}
			}
		})
	}
	return g.Wait()
}

// Handle runs one delivery to completion. A delivery interrupted by
// shutdown is requeued with its attempt count unchanged.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) {
	var task model.SendTask
	if err := json.Unmarshal(d.Body, &task); err != nil {
		c.logger.Warn("invalid job payload", zap.String("message_id", d.MessageId), zap.Error(err))
		c.settle(d, c.deadLetter(d.MessageId, d.Body, 1, err))
		return
	}

	attempt := int64(1)
	if n, ok := headerInt(d.Headers, headerAttempt); ok && n > 0 {
		attempt = n
	}
	maxAttempts := int64(task.Attempts)
	if maxAttempts < 1 {
		maxAttempts = model.SendAttempts
	}
	log := c.logger.With(
		zap.String("message_id", d.MessageId),
		zap.String("campaign_id", task.CampaignID()),
		zap.String("lead_id", task.LeadID()),
		zap.Int64("attempt", attempt),
	)

	err := c.handler(ctx, task)
	if err == nil {
		log.Debug("send task delivered")
		c.settle(d, nil)
		return
	}
	if ctx.Err() != nil {
		// Shutting down: hand the delivery back without spending an attempt.
		log.Info("send task interrupted, requeueing", zap.Error(err))
		if nerr := d.Nack(false, true); nerr != nil {
			log.Error("nack failed", zap.Error(nerr))
		}
		return
	}

	if attempt < maxAttempts {
		delay := backoff.FromPolicy(task.Backoff).Delay(int(attempt))
		log.Warn("send task failed, retrying", zap.Duration("retry_in", delay), zap.Error(err))
		c.settle(d, c.pub.Publish(c.names.Exchange, c.names.Queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    d.MessageId,
			Headers: amqp.Table{
				headerDelay:   delay.Milliseconds(),
				headerAttempt: int32(attempt + 1),
			},
			Body: d.Body,
		}))
		return
	}

	log.Error("send task exhausted retries", zap.Int64("max_attempts", maxAttempts), zap.Error(err))
	c.settle(d, c.deadLetter(d.MessageId, d.Body, attempt, err))
}

func (c *Consumer) deadLetter(messageID string, body []byte, attempt int64, cause error) error {
	if err := c.pub.Publish("", c.names.Failed, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Headers:      amqp.Table{headerAttempt: int32(attempt), headerError: cause.Error()},
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", c.names.Failed, err)
	}
	return nil
}

// settle acks the delivery, or requeues it when the follow-up publish failed.
func (c *Consumer) settle(d amqp.Delivery, publishErr error) {
	if publishErr != nil {
		c.logger.Error("could not hand off delivery, requeueing", zap.String("message_id", d.MessageId), zap.Error(publishErr))
		if err := d.Nack(false, true); err != nil {
			c.logger.Error("nack failed", zap.Error(err))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		c.logger.Error("ack failed", zap.String("message_id", d.MessageId), zap.Error(err))
	}
}
