// Package stage holds the outreach lifecycle of a single lead:
//
//	new -> scheduled -> sent -> replied | bounced | unsubscribed
//
// The last three are absorbing. Moving forward may skip intermediate
// stages; moving backward is rejected.
package stage

import (
	"fmt"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

var rank = map[model.Stage]int{
	model.StageNew:          0,
	model.StageScheduled:    1,
	model.StageSent:         2,
	model.StageReplied:      3,
	model.StageBounced:      3,
	model.StageUnsubscribed: 3,
}

func Valid(s model.Stage) bool {
	_, ok := rank[s]
	return ok
}

func IsTerminal(s model.Stage) bool {
	return s == model.StageReplied || s == model.StageBounced || s == model.StageUnsubscribed
}

// Transition computes the lead's next stage. changed is false for no-ops:
// a lead already in a terminal stage, or already at target. Neither is an
// error so replays of the same event stay harmless.
func Transition(current, target model.Stage) (next model.Stage, changed bool, err error) {
	if !Valid(target) {
		return current, false, fmt.Errorf("%w: unknown stage %q", appErrors.ErrInvalidTransition, target)
	}
	if current == "" {
		current = model.StageNew
	}
	if IsTerminal(current) || current == target {
		return current, false, nil
	}
	if rank[target] <= rank[current] {
		return current, false, fmt.Errorf("%w: %s -> %s", appErrors.ErrInvalidTransition, current, target)
	}
	return target, true, nil
}

// Eligible keeps the leads a scheduling pass may enqueue: those with an
// email that are still new. Order is preserved.
func Eligible(leads []model.Lead) []model.Lead {
	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if l.Email == "" {
			continue
		}
		if l.Stage != model.StageNew && l.Stage != "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Reset undoes a scheduling that never reached the queue. Only a scheduled
// lead can be reset; any other stage is left untouched.
func Reset(current model.Stage) (model.Stage, bool) {
	if current == model.StageScheduled {
		return model.StageNew, true
	}
	return current, false
}
