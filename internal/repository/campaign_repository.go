package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error
	UpdateSenderConfig(ctx context.Context, id string, cfg model.SenderConfig) error
}

type CampaignRepository struct {
	DB *sql.DB
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.Sender.Behavior == "" {
		c.Sender.Behavior = model.SenderSingle
	}
	query := `
        INSERT INTO campaigns (id, title, status, owner, tag, default_sender,
            sender_behavior, sender_explicit, sender_allow, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := r.DB.ExecContext(ctx, query,
		c.ID, c.Title, c.Status, c.Owner, c.Tag, c.DefaultSender,
		c.Sender.Behavior, c.Sender.ExplicitIdentity, pq.Array(nonNil(c.Sender.AllowList)), c.CreatedAt,
	)
	return err
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := `
        SELECT id, title, status, owner, tag, default_sender,
            sender_behavior, sender_explicit, sender_allow, created_at, updated_at
        FROM campaigns WHERE id=$1
    `
	var c model.Campaign
	var allow []string
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Title, &c.Status, &c.Owner, &c.Tag, &c.DefaultSender,
		&c.Sender.Behavior, &c.Sender.ExplicitIdentity, pq.Array(&allow), &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	if len(allow) > 0 {
		c.Sender.AllowList = allow
	}
	return &c, nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
	return expectOne(r.DB.ExecContext(ctx, query, status, id))(appErrors.NewCampaignNotFound(id))
}

func (r *CampaignRepository) UpdateSenderConfig(ctx context.Context, id string, cfg model.SenderConfig) error {
	query := `
        UPDATE campaigns
        SET sender_behavior=$1, sender_explicit=$2, sender_allow=$3, updated_at=NOW()
        WHERE id=$4
    `
	res, err := r.DB.ExecContext(ctx, query, cfg.Behavior, cfg.ExplicitIdentity, pq.Array(nonNil(cfg.AllowList)), id)
	return expectOne(res, err)(appErrors.NewCampaignNotFound(id))
}

// expectOne turns a zero-row update into notFound.
func expectOne(res sql.Result, err error) func(notFound error) error {
	return func(notFound error) error {
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound
		}
		return nil
	}
}

// nonNil keeps pq from encoding a nil slice as NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
