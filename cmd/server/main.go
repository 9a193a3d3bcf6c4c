// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/controller"
	"github.com/unclebandit/outreach-engine/internal/db"
	"github.com/unclebandit/outreach-engine/internal/handler"
	"github.com/unclebandit/outreach-engine/internal/intake"
	"github.com/unclebandit/outreach-engine/internal/logging"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/sender"
	"github.com/unclebandit/outreach-engine/internal/service"
)

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
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	conn, err := db.Open(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer conn.Close()

	campaignRepo := &repository.CampaignRepository{DB: conn}
	leadRepo := &repository.LeadRepository{DB: conn}
	sequenceRepo := &repository.SequenceRepository{DB: conn}
	senderRepo := &repository.SenderRepository{DB: conn}
	directoryRepo := &repository.DirectoryRepository{DB: conn}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		LeadRepo:     leadRepo,
		SequenceRepo: sequenceRepo,
		SenderRepo:   senderRepo,
		Intake:       &intake.Ingester{Leads: leadRepo, Directory: directoryRepo, Logger: logger},
		Resolver:     sender.NewResolver(cfg.RotationBucket),
		Credits:      intake.Unmetered{},
		Notifier:     service.NopNotifier{},
		Logger:       logger,
		Options: service.Options{
			DefaultSender:     cfg.DefaultSender,
			BackoffBase:       cfg.BackoffBase,
			DailySendCap:      cfg.DailySendCap,
			PaidSources:       cfg.PaidSources,
			SendImmediateSync: cfg.SendImmediateSync,
		},
	}
	deliverer := service.NewDeliverer(service.LogTransport{Logger: logger}, campaignService, logger)
	campaignService.Deliverer = deliverer

	q, closeQueue, err := openQueue(cfg, logger, deliverer)
	if err != nil {
		return err
	}
	defer closeQueue()
	campaignService.Queue = q

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	(&controller.CampaignController{CampaignService: campaignService, Logger: logger}).Routes(r)
	handler.NewLeadHandler(campaignService, senderRepo, logger).Routes(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", cfg.HTTPAddr), zap.String("queue", cfg.QueueBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openQueue connects the configured queue backend. With the memory backend
// the API process executes sends itself.
func openQueue(cfg *config.Config, logger *zap.Logger, deliverer *service.Deliverer) (queue.Queue, func(), error) {
	if cfg.QueueBackend == "memory" {
		mq := queue.NewInMemoryQueue(cfg.QueueName, logger, func(_ context.Context, task model.SendTask, err error) {
			logger.Error("send task moved to failure sink",
				zap.String("campaign_id", task.CampaignID()),
				zap.String("lead_id", task.LeadID()),
				zap.Error(err))
		})
		mq.Subscribe(deliverer.Execute)
		return mq, mq.Close, nil
	}

	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := amqpConn.Channel()
	if err != nil {
		amqpConn.Close()
		return nil, nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	names := queue.NamesFor(cfg.QueueName)
	if err := queue.Declare(ch, names); err != nil {
		ch.Close()
		amqpConn.Close()
		return nil, nil, err
	}
	return queue.NewAMQPQueue(ch, names), func() {
		ch.Close()
		amqpConn.Close()
	}, nil
}
