package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/db"
	"github.com/unclebandit/outreach-engine/internal/logging"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/service"
)

const consumerTag = "outreach-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("worker stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	conn, err := db.Open(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer conn.Close()

	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer amqpConn.Close()

	ch, err := amqpConn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	defer ch.Close()

	names := queue.NamesFor(cfg.QueueName)
	if err := queue.Declare(ch, names); err != nil {
		return err
	}
	if err := ch.Qos(cfg.WorkerPrefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := ch.Consume(
		names.Queue,
		consumerTag,
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	consumer := newConsumer(ch, names, &repository.LeadRepository{DB: conn}, service.LogTransport{Logger: logger}, logger)
	logger.Info("worker started",
		zap.String("queue", names.Queue),
		zap.Int("workers", cfg.WorkerCount),
		zap.Int("prefetch", cfg.WorkerPrefetch))

	err = consumer.Run(ctx, deliveries, cfg.WorkerCount)
	if cerr := ch.Cancel(consumerTag, false); cerr != nil {
		logger.Warn("cancel consumer", zap.Error(cerr))
	}
	return err
}

// newConsumer wires the delivery executor to the broker. Stage reads and
// writes go through the orchestrator so workers obey the same transition
// rules as the API.
func newConsumer(pub queue.Publisher, names queue.Names, leads repository.LeadRepositoryInterface,
	transport service.Transport, logger *zap.Logger) *queue.Consumer {
	stages := &service.CampaignService{LeadRepo: leads, Logger: logger}
	deliverer := service.NewDeliverer(transport, stages, logger)
	return queue.NewConsumer(pub, names, deliverer.Execute, logger)
}
