package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/stage"
)

// Transport hands a rendered message to the mail provider.
type Transport interface {
	Send(ctx context.Context, task model.SendTask) error
}

// StageRecorder is the part of the orchestrator the delivery path needs.
type StageRecorder interface {
	LeadStage(ctx context.Context, leadID string) (model.Stage, error)
	MarkSent(ctx context.Context, leadID string) error
}

// Deliverer executes send tasks. Queue workers and the synchronous
// immediate-send path both go through Execute, so a task may run more than
// once; recording sent is idempotent.
type Deliverer struct {
	Transport Transport
	Stages    StageRecorder
	Logger    *zap.Logger
}

func NewDeliverer(transport Transport, stages StageRecorder, logger *zap.Logger) *Deliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deliverer{Transport: transport, Stages: stages, Logger: logger}
}

// Execute sends the task unless its lead already reached a terminal stage.
// A transport error is returned so the queue can retry.
func (d *Deliverer) Execute(ctx context.Context, task model.SendTask) error {
	log := d.Logger.With(
		zap.String("campaign_id", task.CampaignID()),
		zap.String("lead_id", task.LeadID()),
		zap.String("step", task.Headers[model.HeaderStep]),
	)

	current, err := d.Stages.LeadStage(ctx, task.LeadID())
	if err != nil {
		return fmt.Errorf("load lead %s: %w", task.LeadID(), err)
	}
	if stage.IsTerminal(current) {
		log.Info("lead is terminal, dropping send", zap.String("stage", string(current)))
		return nil
	}

	if err := d.Transport.Send(ctx, task); err != nil {
		return fmt.Errorf("send to %s: %w", task.To, err)
	}

	// The message is out; failing here would only cause a second send.
	if err := d.Stages.MarkSent(ctx, task.LeadID()); err != nil {
		log.Error("failed to record sent", zap.Error(err))
	}
	log.Info("message sent", zap.String("from", task.SenderIdentity))
	return nil
}

// LogTransport is a dry-run transport that only logs what would be sent.
type LogTransport struct {
	Logger *zap.Logger
}

func (t LogTransport) Send(_ context.Context, task model.SendTask) error {
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("dry-run send",
		zap.String("to", task.To),
		zap.String("from", task.SenderIdentity),
		zap.String("subject", task.Subject),
		zap.String("lead_id", task.LeadID()),
	)
	return nil
}
