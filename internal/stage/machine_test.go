package stage_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/stage"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name        string
		from, to    model.Stage
		want        model.Stage
		changed     bool
		invalidMove bool
	}{
		{"queue new lead", model.StageNew, model.StageScheduled, model.StageScheduled, true, false},
		{"immediate send skips scheduled", model.StageNew, model.StageSent, model.StageSent, true, false},
		{"scheduled to sent", model.StageScheduled, model.StageSent, model.StageSent, true, false},
		{"sent to replied", model.StageSent, model.StageReplied, model.StageReplied, true, false},
		{"sent to bounced", model.StageSent, model.StageBounced, model.StageBounced, true, false},
		{"empty stage counts as new", "", model.StageScheduled, model.StageScheduled, true, false},
		{"replay of sent", model.StageSent, model.StageSent, model.StageSent, false, false},
		{"terminal absorbs sent", model.StageReplied, model.StageSent, model.StageReplied, false, false},
		{"terminal absorbs other terminal", model.StageBounced, model.StageUnsubscribed, model.StageBounced, false, false},
		{"backwards rejected", model.StageSent, model.StageScheduled, model.StageSent, false, true},
		{"back to new rejected", model.StageScheduled, model.StageNew, model.StageScheduled, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed, err := stage.Transition(tt.from, tt.to)
			if tt.invalidMove {
				assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestTransition_UnknownTarget(t *testing.T) {
	_, _, err := stage.Transition(model.StageNew, "archived")
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestEligible(t *testing.T) {
	leads := []model.Lead{
		{ID: "1", Email: "a@x.test", Stage: model.StageNew},
		{ID: "2", Email: "", Stage: model.StageNew},
		{ID: "3", Email: "c@x.test", Stage: model.StageScheduled},
		{ID: "4", Email: "d@x.test", Stage: model.StageSent},
		{ID: "5", Email: "e@x.test", Stage: model.StageReplied},
		{ID: "6", Email: "f@x.test", Stage: model.StageBounced},
		{ID: "7", Email: "g@x.test", Stage: model.StageUnsubscribed},
		{ID: "8", Email: "h@x.test", Stage: model.StageNew},
	}
	got := stage.Eligible(leads)
	ids := make([]string, 0, len(got))
	for _, l := range got {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"1", "8"}, ids)
}

func TestReset(t *testing.T) {
	got, changed := stage.Reset(model.StageScheduled)
	assert.True(t, changed)
	assert.Equal(t, model.StageNew, got)

	for _, s := range []model.Stage{model.StageNew, model.StageSent, model.StageReplied} {
		got, changed := stage.Reset(s)
		assert.False(t, changed)
		assert.Equal(t, s, got)
	}
}
