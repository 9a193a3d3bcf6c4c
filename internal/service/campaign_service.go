// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/backoff"
	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/intake"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/schedule"
	"github.com/unclebandit/outreach-engine/internal/sender"
	"github.com/unclebandit/outreach-engine/internal/stage"
)

// Options is the explicit configuration the orchestrator runs with.
type Options struct {
	DefaultSender     string
	BackoffBase       time.Duration
	DailySendCap      int
	PaidSources       []string
	SendImmediateSync bool
}

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	LeadRepo     repository.LeadRepositoryInterface
	SequenceRepo repository.SequenceRepositoryInterface
	SenderRepo   repository.SenderRepositoryInterface
	Intake       *intake.Ingester
	Queue        queue.Queue
	Resolver     *sender.Resolver
	// Deliverer, when set with Options.SendImmediateSync, sends zero-delay
	// first steps inline instead of queueing them.
	Deliverer *Deliverer
	Credits   intake.CreditGate
	Notifier  Notifier
	Logger    *zap.Logger
	Options   Options
	Now       func() time.Time
}

type CreateCampaignInput struct {
	Title         string `json:"title"`
	Owner         string `json:"owner"`
	Tag           string `json:"tag,omitempty"`
	DefaultSender string `json:"default_sender,omitempty"`
}

type ScheduleOptions struct {
	// Anchor is when step 1 fires; zero or past means now.
	Anchor time.Time
	// DailySendCap overrides Options.DailySendCap when positive.
	DailySendCap int
}

// ScheduleResult summarises one scheduling pass.
type ScheduleResult struct {
	CampaignID string            `json:"campaign_id"`
	Queued     int               `json:"queued"`
	Sent       int               `json:"sent"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	Deferred   int               `json:"deferred"`
	Handles    []queue.JobHandle `json:"handles"`
	FireTimes  map[int]time.Time `json:"fire_times,omitempty"`
}

// ====================== Campaign lifecycle ======================

func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, appErrors.NewValidation("title", "is required")
	}
	if strings.TrimSpace(in.Owner) == "" {
		return nil, appErrors.NewValidation("owner", "is required")
	}
	c := &model.Campaign{
		Title:         strings.TrimSpace(in.Title),
		Owner:         in.Owner,
		Tag:           in.Tag,
		DefaultSender: in.DefaultSender,
		Status:        model.CampaignDraft,
		Sender:        model.SenderConfig{Behavior: model.SenderSingle},
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	s.logger().Info("campaign created", zap.String("campaign_id", c.ID), zap.String("owner", c.Owner))
	return c, nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.CampaignRepo.GetByID(ctx, id)
}

// PauseCampaign stops new enqueues. Tasks already in the queue still fire.
func (s *CampaignService) PauseCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.moveStatus(ctx, id, model.CampaignPaused, model.CampaignRunning)
}

func (s *CampaignService) ResumeCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.moveStatus(ctx, id, model.CampaignRunning, model.CampaignPaused)
}

func (s *CampaignService) CompleteCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.moveStatus(ctx, id, model.CampaignCompleted, model.CampaignRunning, model.CampaignPaused)
}

// moveStatus sets target when the campaign is in one of from. Being at
// target already is a no-op.
func (s *CampaignService) moveStatus(ctx context.Context, id string, target model.CampaignStatus, from ...model.CampaignStatus) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == target {
		return c, nil
	}
	if !slices.Contains(from, c.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", appErrors.ErrCampaignStatus, c.Status, target)
	}
	if err := s.CampaignRepo.UpdateStatus(ctx, id, target); err != nil {
		return nil, fmt.Errorf("update campaign status: %w", err)
	}
	s.logger().Info("campaign status changed", zap.String("campaign_id", id),
		zap.String("from", string(c.Status)), zap.String("to", string(target)))
	c.Status = target
	return c, nil
}

// ====================== Sequence & sender ======================

func ValidateSequence(seq *model.Sequence) error {
	if seq.Step1 == nil {
		return appErrors.NewValidation("step1", "is required")
	}
	if seq.Step3 != nil && seq.Step2 == nil {
		return appErrors.NewValidation("step2", "is required when step3 is set")
	}
	for i, st := range []*model.Step{seq.Step1, seq.Step2, seq.Step3} {
		if st == nil {
			continue
		}
		field := "step" + strconv.Itoa(i+1)
		if strings.TrimSpace(st.Subject) == "" {
			return appErrors.NewValidation(field+".subject", "is required")
		}
		if strings.TrimSpace(st.Body) == "" {
			return appErrors.NewValidation(field+".body", "is required")
		}
	}
	if seq.SpacingBusinessDays < 1 {
		return appErrors.NewValidation("spacingBusinessDays", "must be at least 1")
	}
	return nil
}

// AttachSequence replaces the campaign's sequence. A running campaign's
// sequence is locked; use ResaveSequence to change it deliberately.
func (s *CampaignService) AttachSequence(ctx context.Context, campaignID string, seq *model.Sequence) error {
	return s.saveSequence(ctx, campaignID, seq, false)
}

func (s *CampaignService) ResaveSequence(ctx context.Context, campaignID string, seq *model.Sequence) error {
	return s.saveSequence(ctx, campaignID, seq, true)
}

func (s *CampaignService) saveSequence(ctx context.Context, campaignID string, seq *model.Sequence, resave bool) error {
	if err := ValidateSequence(seq); err != nil {
		return err
	}
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	switch {
	case c.Status == model.CampaignCompleted:
		return appErrors.ErrCampaignCompleted
	case c.Status == model.CampaignRunning && !resave:
		return appErrors.ErrSequenceLocked
	}
	seq.CampaignID = campaignID
	if err := s.SequenceRepo.Save(ctx, seq); err != nil {
		return fmt.Errorf("save sequence: %w", err)
	}
	s.logger().Info("sequence saved", zap.String("campaign_id", campaignID),
		zap.Int("steps", len(seq.Steps())), zap.Bool("resave", resave))
	return nil
}

func ValidateSenderConfig(cfg model.SenderConfig) error {
	if !cfg.Behavior.Valid() {
		return appErrors.NewValidation("behavior", "must be single, rotate or specific")
	}
	return nil
}

func (s *CampaignService) SetSenderConfig(ctx context.Context, campaignID string, cfg model.SenderConfig) error {
	if err := ValidateSenderConfig(cfg); err != nil {
		return err
	}
	return s.CampaignRepo.UpdateSenderConfig(ctx, campaignID, cfg)
}

// ====================== Leads ======================

// AddLeads ingests raw leads. Credit checks for paid sources are advisory:
// a shortfall or gate error is logged and ingestion goes ahead. Deduction
// runs after the leads are written and cannot undo them.
func (s *CampaignService) AddLeads(ctx context.Context, campaignID, source string, raw []model.RawLead) (*intake.Result, error) {
	if len(raw) == 0 {
		return nil, appErrors.NewValidation("leads", "at least one lead is required")
	}
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status == model.CampaignCompleted {
		return nil, appErrors.ErrCampaignCompleted
	}
	log := s.logger().With(zap.String("campaign_id", c.ID), zap.String("source", source))

	paid := s.isPaidSource(source)
	if paid {
		ok, err := s.credits().HasSufficientCredits(ctx, c.Owner, len(raw))
		switch {
		case err != nil:
			log.Warn("credit check failed", zap.Error(err))
		case !ok:
			log.Warn("insufficient credits for paid lead source", zap.Int("requested", len(raw)))
		}
	}

	res, err := s.Intake.Ingest(ctx, c, source, raw)
	if err != nil {
		return res, fmt.Errorf("ingest leads: %w", err)
	}

	if res.Inserted > 0 && c.Status == model.CampaignDraft {
		if err := s.CampaignRepo.UpdateStatus(ctx, c.ID, model.CampaignRunning); err != nil {
			return res, fmt.Errorf("activate campaign: %w", err)
		}
		log.Info("campaign activated by lead arrival")
	}

	if paid && res.Inserted > 0 {
		inserted := res.Inserted
		runBestEffort(ctx, log, effect{
			name: "deduct_credits",
			run: func(ctx context.Context) error {
				return s.credits().DeductCredits(ctx, c.Owner, inserted, "lead import: "+source)
			},
		})
	}
	log.Info("leads ingested", zap.Int("inserted", res.Inserted), zap.Int("skipped", res.Skipped))
	return res, nil
}

func (s *CampaignService) isPaidSource(source string) bool {
	for _, p := range s.Options.PaidSources {
		if strings.EqualFold(strings.TrimSpace(p), source) {
			return true
		}
	}
	return false
}

// ====================== Scheduling ======================

// ScheduleCampaign launches the campaign: it runs a scheduling pass, marks
// the campaign running and notifies best effort.
func (s *CampaignService) ScheduleCampaign(ctx context.Context, campaignID string, opts ScheduleOptions) (*ScheduleResult, error) {
	res, c, err := s.queueOutreach(ctx, campaignID, opts)
	if err != nil {
		return nil, err
	}
	if c.Status == model.CampaignDraft {
		if err := s.CampaignRepo.UpdateStatus(ctx, c.ID, model.CampaignRunning); err != nil {
			return res, fmt.Errorf("activate campaign: %w", err)
		}
		c.Status = model.CampaignRunning
	}
	runBestEffort(ctx, s.logger().With(zap.String("campaign_id", c.ID)), effect{
		name: "notify_launch",
		run:  func(ctx context.Context) error { return s.notifier().CampaignLaunched(ctx, c, res) },
	})
	return res, nil
}

// QueueInitialOutreach runs one scheduling pass. Only leads still in the new
// stage with an email are picked up, so calling it again is safe.
func (s *CampaignService) QueueInitialOutreach(ctx context.Context, campaignID string, opts ScheduleOptions) (*ScheduleResult, error) {
	res, _, err := s.queueOutreach(ctx, campaignID, opts)
	return res, err
}

func (s *CampaignService) queueOutreach(ctx context.Context, campaignID string, opts ScheduleOptions) (*ScheduleResult, *model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	switch c.Status {
	case model.CampaignPaused:
		return nil, nil, appErrors.ErrCampaignPaused
	case model.CampaignCompleted:
		return nil, nil, appErrors.ErrCampaignCompleted
	}

	seq, err := s.SequenceRepo.GetByCampaign(ctx, c.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load sequence: %w", err)
	}
	if seq == nil {
		return nil, nil, appErrors.NewValidation("sequence", "campaign has no sequence")
	}
	if err := ValidateSequence(seq); err != nil {
		return nil, nil, err
	}
	leads, err := s.LeadRepo.ListByCampaign(ctx, c.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load leads: %w", err)
	}
	if len(leads) == 0 {
		return nil, nil, appErrors.NewValidation("leads", "campaign has no leads")
	}

	eligible := stage.Eligible(leads)
	slices.SortStableFunc(eligible, func(a, b model.Lead) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})

	res := &ScheduleResult{CampaignID: c.ID, Skipped: len(leads) - len(eligible), Handles: []queue.JobHandle{}}
	limit := s.Options.DailySendCap
	if opts.DailySendCap > 0 {
		limit = opts.DailySendCap
	}
	if limit > 0 && len(eligible) > limit {
		res.Deferred = len(eligible) - limit
		eligible = eligible[:limit]
	}

	log := s.logger().With(zap.String("campaign_id", c.ID))
	identities, err := s.SenderRepo.ListByOwner(ctx, c.Owner)
	if err != nil {
		log.Warn("could not load sender identities, using defaults", zap.Error(err))
		identities = nil
	}

	now := s.now()
	// A past anchor restarts the sequence at now so steps keep their spacing.
	anchor := opts.Anchor
	if anchor.IsZero() || anchor.Before(now) {
		anchor = now
	}
	res.FireTimes = make(map[int]time.Time, len(seq.Steps()))
	for i := range seq.Steps() {
		fire, err := schedule.FireTime(anchor, i+1, seq.SpacingBusinessDays)
		if err != nil {
			return nil, nil, appErrors.NewValidation("sequence", err.Error())
		}
		res.FireTimes[i+1] = fire
	}

	for i := range eligible {
		lead := &eligible[i]
		from := s.resolveSender(c, identities, now, i)
		s.scheduleLead(ctx, log, c, seq, lead, from, res, now)
	}

	log.Info("outreach scheduled",
		zap.Int("queued", res.Queued), zap.Int("sent", res.Sent), zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed), zap.Int("deferred", res.Deferred))
	return res, c, nil
}

// scheduleLead enqueues every step for one lead. The lead is marked
// scheduled before its first enqueue so a fast worker can only move it
// forward; if the first step cannot be queued the mark is reset.
func (s *CampaignService) scheduleLead(ctx context.Context, log *zap.Logger, c *model.Campaign, seq *model.Sequence,
	lead *model.Lead, from string, res *ScheduleResult, now time.Time) {
	log = log.With(zap.String("lead_id", lead.ID))
	steps := seq.Steps()

	for i, step := range steps {
		n := i + 1
		task := s.buildTask(c, lead, step, n, from, schedule.Delay(res.FireTimes[n], now))

		if n == 1 && task.DelayMs == 0 && s.Options.SendImmediateSync && s.Deliverer != nil {
			err := s.Deliverer.Execute(ctx, task)
			if err == nil {
				res.Sent++
				continue
			}
			log.Warn("immediate send failed, queueing instead", zap.Error(err))
		}

		if n == 1 {
			if err := s.MarkQueued(ctx, lead.ID); err != nil {
				log.Warn("could not mark lead queued", zap.Error(err))
				res.Failed++
				return
			}
		}

		handle, err := s.Queue.Enqueue(ctx, task)
		if err != nil {
			if n == 1 {
				log.Warn("enqueue failed, lead stays new", zap.Error(err))
				s.resetQueued(ctx, log, lead.ID)
				res.Failed++
				return
			}
			log.Error("enqueue of follow-up step failed", zap.Int("step", n), zap.Error(err))
			continue
		}
		if n == 1 {
			res.Queued++
		}
		res.Handles = append(res.Handles, handle)
	}
}

func (s *CampaignService) buildTask(c *model.Campaign, lead *model.Lead, step model.Step, n int, from string, delay time.Duration) model.SendTask {
	subject, html := RenderStep(step, lead)
	return model.SendTask{
		To:      lead.Email,
		Subject: subject,
		HTML:    html,
		Headers: map[string]string{
			model.HeaderCampaignID: c.ID,
			model.HeaderLeadID:     lead.ID,
			model.HeaderStep:       strconv.Itoa(n),
		},
		SenderIdentity: from,
		DelayMs:        delay.Milliseconds(),
		Attempts:       model.SendAttempts,
		Backoff:        backoff.NewExponential(s.backoffBase(), 0).Policy(),
	}
}

func (s *CampaignService) resolveSender(c *model.Campaign, identities []model.SenderIdentity, now time.Time, seq int) string {
	resolver := s.Resolver
	if resolver == nil {
		resolver = sender.NewResolver(sender.DefaultBucket)
	}
	if from, ok := resolver.Resolve(c, identities, now, seq); ok {
		return from
	}
	return s.Options.DefaultSender
}

// RenderPreview renders one step of the campaign's sequence for a lead
// without queueing anything.
func (s *CampaignService) RenderPreview(ctx context.Context, campaignID, leadID string, step int) (subject, html string, err error) {
	seq, err := s.SequenceRepo.GetByCampaign(ctx, campaignID)
	if err != nil {
		return "", "", err
	}
	if seq == nil {
		return "", "", appErrors.NewValidation("sequence", "campaign has no sequence")
	}
	steps := seq.Steps()
	if step < 1 || step > len(steps) {
		return "", "", appErrors.NewValidation("step", fmt.Sprintf("must be between 1 and %d", len(steps)))
	}
	lead, err := s.LeadRepo.GetByID(ctx, leadID)
	if err != nil {
		return "", "", err
	}
	if lead.CampaignID != campaignID {
		return "", "", appErrors.NewNotFound("lead", leadID)
	}
	subject, html = RenderStep(steps[step-1], lead)
	return subject, html, nil
}

// ====================== Outreach stages ======================

func (s *CampaignService) LeadStage(ctx context.Context, leadID string) (model.Stage, error) {
	lead, err := s.LeadRepo.GetByID(ctx, leadID)
	if err != nil {
		return "", err
	}
	return lead.Stage, nil
}

// MarkQueued moves a new lead to scheduled.
func (s *CampaignService) MarkQueued(ctx context.Context, leadID string) error {
	_, err := s.transition(ctx, leadID, model.StageScheduled, nil)
	return err
}

// MarkSent records a delivered message. Replays are no-ops.
func (s *CampaignService) MarkSent(ctx context.Context, leadID string) error {
	_, err := s.transition(ctx, leadID, model.StageSent, nil)
	return err
}

// RecordOutcome applies a reply, bounce or unsubscribe detected outside
// this service. Leads already in a terminal stage are left as they are.
func (s *CampaignService) RecordOutcome(ctx context.Context, leadID string, target model.Stage, reply *model.ReplyStatus) (*model.Lead, error) {
	if !stage.IsTerminal(target) {
		return nil, appErrors.NewValidation("stage", "must be replied, bounced or unsubscribed")
	}
	if reply != nil {
		if target != model.StageReplied {
			return nil, appErrors.NewValidation("reply_status", "only allowed with replied")
		}
		if !reply.Valid() {
			return nil, appErrors.NewValidation("reply_status", "must be positive, neutral or negative")
		}
	}
	return s.transition(ctx, leadID, target, reply)
}

func (s *CampaignService) transition(ctx context.Context, leadID string, target model.Stage, reply *model.ReplyStatus) (*model.Lead, error) {
	lead, err := s.LeadRepo.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	next, changed, err := stage.Transition(lead.Stage, target)
	if err != nil {
		return nil, err
	}
	if !changed {
		return lead, nil
	}
	if err := s.LeadRepo.UpdateStage(ctx, leadID, next, reply); err != nil {
		return nil, fmt.Errorf("update lead stage: %w", err)
	}
	lead.Stage = next
	if reply != nil {
		lead.ReplyStatus = reply
	}
	return lead, nil
}

func (s *CampaignService) resetQueued(ctx context.Context, log *zap.Logger, leadID string) {
	lead, err := s.LeadRepo.GetByID(ctx, leadID)
	if err != nil {
		log.Error("could not reload lead for reset", zap.Error(err))
		return
	}
	next, changed := stage.Reset(lead.Stage)
	if !changed {
		return
	}
	if err := s.LeadRepo.UpdateStage(ctx, leadID, next, nil); err != nil {
		log.Error("could not reset lead to new", zap.Error(err))
	}
}

// CampaignStats counts the campaign's leads per stage.
func (s *CampaignService) CampaignStats(ctx context.Context, campaignID string) (*model.CampaignStats, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	counts, err := s.LeadRepo.CountByStage(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	stats := &model.CampaignStats{CampaignID: campaignID, ByStage: map[model.Stage]int{
		model.StageNew: 0, model.StageScheduled: 0, model.StageSent: 0,
		model.StageReplied: 0, model.StageBounced: 0, model.StageUnsubscribed: 0,
	}}
	for st, n := range counts {
		stats.ByStage[st] = n
		stats.Total += n
	}
	return stats, nil
}

// ====================== defaults ======================

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *CampaignService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *CampaignService) credits() intake.CreditGate {
	if s.Credits == nil {
		return intake.Unmetered{}
	}
	return s.Credits
}

func (s *CampaignService) notifier() Notifier {
	if s.Notifier == nil {
		return NopNotifier{}
	}
	return s.Notifier
}

func (s *CampaignService) backoffBase() time.Duration {
	if s.Options.BackoffBase <= 0 {
		return 30 * time.Second
	}
	return s.Options.BackoffBase
}
