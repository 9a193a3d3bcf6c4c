// Package backoff computes retry delays for send tasks.
package backoff

import (
	"math"
	"time"

	"github.com/unclebandit/outreach-engine/internal/model"
)

const TypeExponential = "exponential"

// Exponential doubles the delay each attempt.
// Delay = min(Base * 2^(attempt-1), Max).
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

func NewExponential(base, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Max: maxDelay}
}

// FromPolicy builds the strategy described on a task's wire shape.
func FromPolicy(p model.BackoffPolicy) *Exponential {
	return &Exponential{Base: time.Duration(p.BaseDelayMs) * time.Millisecond}
}

// Delay returns how long to wait before retry attempt n (1-indexed).
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if e.Base <= 0 {
		return 0
	}
	d := e.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if e.Max > 0 && d >= e.Max {
			return e.Max
		}
		if d <= 0 {
			return math.MaxInt64
		}
	}
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// Policy is the wire representation of this strategy.
func (e *Exponential) Policy() model.BackoffPolicy {
	return model.BackoffPolicy{Type: TypeExponential, BaseDelayMs: e.Base.Milliseconds()}
}
