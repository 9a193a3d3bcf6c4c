package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/backoff"
	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// Queue accepts send tasks for delayed, retried, at-least-once execution.
// Implementations do not deduplicate: a task may run more than once.
type Queue interface {
	Enqueue(ctx context.Context, task model.SendTask) (JobHandle, error)
}

type JobHandle struct {
	ID     string    `json:"id"`
	Queue  string    `json:"queue"`
	FireAt time.Time `json:"fire_at"`
}

// Handler executes one attempt of a task. A non-nil error schedules a retry.
type Handler func(ctx context.Context, task model.SendTask) error

// FailureSink receives tasks that exhausted their retry budget.
type FailureSink func(ctx context.Context, task model.SendTask, err error)

// Validate checks the fields every enqueued task must carry.
func Validate(task model.SendTask) error {
	if task.To == "" {
		return appErrors.NewValidation("to", "recipient address is required")
	}
	if task.CampaignID() == "" || task.LeadID() == "" {
		return appErrors.NewValidation("headers", "campaign and lead tracking headers are required")
	}
	if task.DelayMs < 0 {
		return appErrors.NewValidation("delayMs", "must not be negative")
	}
	if task.Attempts < 1 {
		return appErrors.NewValidation("attempts", "must be at least 1")
	}
	return nil
}

// InMemoryQueue is an in-process timer broker. Each task runs on its own
// goroutine once its delay elapses, so a failing task never blocks others.
type InMemoryQueue struct {
	name   string
	logger *zap.Logger
	sink   FailureSink

	mu       sync.Mutex
	handlers []Handler
	timers   map[string]*time.Timer
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewInMemoryQueue creates a new queue. sink may be nil.
func NewInMemoryQueue(name string, logger *zap.Logger, sink FailureSink) *InMemoryQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &InMemoryQueue{
		name:   name,
		logger: logger,
		sink:   sink,
		timers: make(map[string]*time.Timer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe adds a handler; every handler receives every task.
func (q *InMemoryQueue) Subscribe(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

func (q *InMemoryQueue) Enqueue(_ context.Context, task model.SendTask) (JobHandle, error) {
	if err := Validate(task); err != nil {
		return JobHandle{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return JobHandle{}, fmt.Errorf("queue %s is closed", q.name)
	}
	if len(q.handlers) == 0 {
		return JobHandle{}, fmt.Errorf("%w: %s", appErrors.ErrNoSubscribers, q.name)
	}

	delay := time.Duration(task.DelayMs) * time.Millisecond
	handle := JobHandle{ID: uuid.NewString(), Queue: q.name, FireAt: time.Now().Add(delay)}
	handlers := append([]Handler(nil), q.handlers...)

	q.wg.Add(1)
	q.timers[handle.ID] = time.AfterFunc(delay, func() {
		defer q.wg.Done()
		q.mu.Lock()
		delete(q.timers, handle.ID)
		q.mu.Unlock()
		for _, h := range handlers {
			q.processJob(h, handle, task)
		}
	})
	return handle, nil
}

// processJob runs the handler until it succeeds or the attempts run out.
func (q *InMemoryQueue) processJob(handler Handler, handle JobHandle, task model.SendTask) {
	strategy := backoff.FromPolicy(task.Backoff)
	log := q.logger.With(
		zap.String("job_id", handle.ID),
		zap.String("campaign_id", task.CampaignID()),
		zap.String("lead_id", task.LeadID()),
	)

	var err error
	for attempt := 1; attempt <= task.Attempts; attempt++ {
		if err = handler(q.ctx, task); err == nil {
			log.Debug("job processed", zap.Int("attempt", attempt))
			return
		}
		log.Warn("job attempt failed", zap.Int("attempt", attempt), zap.Int("max_attempts", task.Attempts), zap.Error(err))
		if attempt == task.Attempts {
			break
		}
		select {
		case <-q.ctx.Done():
			return
		case <-time.After(strategy.Delay(attempt)):
		}
	}

	log.Error("job permanently failed", zap.Int("attempts", task.Attempts), zap.Error(err))
	if q.sink != nil {
		q.sink(q.ctx, task, err)
	}
}

// Pending reports how many tasks are still waiting for their delay.
func (q *InMemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Close drops tasks that have not fired yet and waits for running ones.
func (q *InMemoryQueue) Close() {
	q.mu.Lock()
	q.closed = true
	for id, t := range q.timers {
		if t.Stop() {
			q.wg.Done()
		}
		delete(q.timers, id)
	}
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}
