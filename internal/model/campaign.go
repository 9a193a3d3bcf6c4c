// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

type Campaign struct {
	ID            string         `db:"id" json:"id"`
	Title         string         `db:"title" json:"title"`
	Status        CampaignStatus `db:"status" json:"status"`
	Owner         string         `db:"owner" json:"owner"`
	Tag           string         `db:"tag" json:"tag,omitempty"`
	DefaultSender string         `db:"default_sender" json:"default_sender,omitempty"`
	Sender        SenderConfig   `json:"sender"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// CampaignStats counts a campaign's leads per outreach stage.
type CampaignStats struct {
	CampaignID string        `json:"campaign_id"`
	Total      int           `json:"total"`
	ByStage    map[Stage]int `json:"by_stage"`
}
