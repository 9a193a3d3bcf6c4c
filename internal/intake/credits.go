package intake

import "context"

// CreditGate is the billing collaborator consulted when leads come from a
// paid source.
type CreditGate interface {
	HasSufficientCredits(ctx context.Context, owner string, count int) (bool, error)
	DeductCredits(ctx context.Context, owner string, count int, reason string) error
}

// Unmetered grants every request and records nothing.
type Unmetered struct{}

func (Unmetered) HasSufficientCredits(context.Context, string, int) (bool, error) { return true, nil }

func (Unmetered) DeductCredits(context.Context, string, int, string) error { return nil }
