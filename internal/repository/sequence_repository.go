package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/unclebandit/outreach-engine/internal/model"
)

type SequenceRepositoryInterface interface {
	// Save replaces the campaign's sequence.
	Save(ctx context.Context, seq *model.Sequence) error
	// GetByCampaign returns nil, nil when the campaign has no sequence.
	GetByCampaign(ctx context.Context, campaignID string) (*model.Sequence, error)
}

type SequenceRepository struct {
	DB *sql.DB
}

type storedSteps struct {
	Step1 *model.Step `json:"step1"`
	Step2 *model.Step `json:"step2,omitempty"`
	Step3 *model.Step `json:"step3,omitempty"`
}

func (r *SequenceRepository) Save(ctx context.Context, seq *model.Sequence) error {
	steps, err := json.Marshal(storedSteps{Step1: seq.Step1, Step2: seq.Step2, Step3: seq.Step3})
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	query := `
        INSERT INTO sequences (campaign_id, steps, spacing_business_days, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (campaign_id)
        DO UPDATE SET steps=EXCLUDED.steps, spacing_business_days=EXCLUDED.spacing_business_days, updated_at=NOW()
        RETURNING updated_at
    `
	return r.DB.QueryRowContext(ctx, query, seq.CampaignID, steps, seq.SpacingBusinessDays).Scan(&seq.UpdatedAt)
}

func (r *SequenceRepository) GetByCampaign(ctx context.Context, campaignID string) (*model.Sequence, error) {
	query := `SELECT steps, spacing_business_days, updated_at FROM sequences WHERE campaign_id=$1`
	var raw []byte
	seq := model.Sequence{CampaignID: campaignID}
	err := r.DB.QueryRowContext(ctx, query, campaignID).Scan(&raw, &seq.SpacingBusinessDays, &seq.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var steps storedSteps
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, fmt.Errorf("decode steps for campaign %s: %w", campaignID, err)
	}
	seq.Step1, seq.Step2, seq.Step3 = steps.Step1, steps.Step2, steps.Step3
	return &seq, nil
}

var _ SequenceRepositoryInterface = (*SequenceRepository)(nil)
