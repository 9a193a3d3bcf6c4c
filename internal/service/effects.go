package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/model"
)

// Notifier announces campaign events to the outside world.
type Notifier interface {
	CampaignLaunched(ctx context.Context, c *model.Campaign, res *ScheduleResult) error
}

type NopNotifier struct{}

func (NopNotifier) CampaignLaunched(context.Context, *model.Campaign, *ScheduleResult) error {
	return nil
}

// effect is a side effect that runs after the primary state change has been
// written. Its failure is logged and never rolls anything back.
type effect struct {
	name string
	run  func(ctx context.Context) error
}

// runBestEffort runs every effect, each isolated from the others' errors
// and panics. It returns the names of the effects that failed.
func runBestEffort(ctx context.Context, log *zap.Logger, effects ...effect) []string {
	var failed []string
	for _, e := range effects {
		if err := runIsolated(ctx, e); err != nil {
			log.Warn("best-effort side effect failed", zap.String("effect", e.name), zap.Error(err))
			failed = append(failed, e.name)
		}
	}
	return failed
}

func runIsolated(ctx context.Context, e effect) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return e.run(ctx)
}
