package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// LeadRepositoryInterface defines methods used by the orchestrator and intake.
type LeadRepositoryInterface interface {
	Insert(ctx context.Context, l *model.Lead) error
	GetByID(ctx context.Context, id string) (*model.Lead, error)
	// ListByCampaign returns leads ordered by creation time then id.
	ListByCampaign(ctx context.Context, campaignID string) ([]model.Lead, error)
	UpdateStage(ctx context.Context, id string, stage model.Stage, reply *model.ReplyStatus) error
	CountByStage(ctx context.Context, campaignID string) (map[model.Stage]int, error)
}

type LeadRepository struct {
	DB *sql.DB
}

const leadColumns = `id, campaign_id, email, name, title, company, source, outreach_stage, reply_status, created_at, updated_at`

func (r *LeadRepository) Insert(ctx context.Context, l *model.Lead) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Stage == "" {
		l.Stage = model.StageNew
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	query := `
        INSERT INTO leads (id, campaign_id, email, name, title, company, source, outreach_stage, reply_status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := r.DB.ExecContext(ctx, query,
		l.ID, l.CampaignID, l.Email, l.Name, l.Title, l.Company, l.Source, l.Stage, l.ReplyStatus, l.CreatedAt,
	)
	return err
}

func (r *LeadRepository) GetByID(ctx context.Context, id string) (*model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id=$1`
	l, err := scanLead(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewNotFound("lead", id)
		}
		return nil, err
	}
	return l, nil
}

func (r *LeadRepository) ListByCampaign(ctx context.Context, campaignID string) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE campaign_id=$1 ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, rows.Err()
}

// UpdateStage is a single-row write; concurrent writers for one lead are
// last-write-wins.
func (r *LeadRepository) UpdateStage(ctx context.Context, id string, stage model.Stage, reply *model.ReplyStatus) error {
	query := `
        UPDATE leads
        SET outreach_stage=$1, reply_status=COALESCE($2, reply_status), updated_at=NOW()
        WHERE id=$3
    `
	res, err := r.DB.ExecContext(ctx, query, stage, reply, id)
	return expectOne(res, err)(appErrors.NewNotFound("lead", id))
}

func (r *LeadRepository) CountByStage(ctx context.Context, campaignID string) (map[model.Stage]int, error) {
	query := `SELECT outreach_stage, COUNT(*) FROM leads WHERE campaign_id=$1 GROUP BY outreach_stage`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[model.Stage]int{}
	for rows.Next() {
		var stage model.Stage
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		stats[stage] = count
	}
	return stats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLead(s scanner) (*model.Lead, error) {
	var l model.Lead
	err := s.Scan(&l.ID, &l.CampaignID, &l.Email, &l.Name, &l.Title, &l.Company, &l.Source,
		&l.Stage, &l.ReplyStatus, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

var _ LeadRepositoryInterface = (*LeadRepository)(nil)
