// internal/model/sequence.go
package model

import "time"

const MaxSequenceSteps = 3

type Step struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sequence is the stored shape of a campaign's message sequence. Step1 is
// required; Step3 requires Step2.
type Sequence struct {
	CampaignID          string     `json:"-"`
	Step1               *Step      `json:"step1"`
	Step2               *Step      `json:"step2,omitempty"`
	Step3               *Step      `json:"step3,omitempty"`
	SpacingBusinessDays int        `json:"spacingBusinessDays"`
	UpdatedAt           *time.Time `json:"-"`
}

// Steps returns the configured steps in order, stopping at the first gap.
func (s *Sequence) Steps() []Step {
	steps := make([]Step, 0, MaxSequenceSteps)
	for _, st := range []*Step{s.Step1, s.Step2, s.Step3} {
		if st == nil {
			break
		}
		steps = append(steps, *st)
	}
	return steps
}
