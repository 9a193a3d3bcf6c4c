// internal/model/lead.go
package model

import "time"

// Stage is a lead's position in the outreach lifecycle.
type Stage string

const (
	StageNew          Stage = "new"
	StageScheduled    Stage = "scheduled"
	StageSent         Stage = "sent"
	StageReplied      Stage = "replied"
	StageBounced      Stage = "bounced"
	StageUnsubscribed Stage = "unsubscribed"
)

type ReplyStatus string

const (
	ReplyPositive ReplyStatus = "positive"
	ReplyNeutral  ReplyStatus = "neutral"
	ReplyNegative ReplyStatus = "negative"
)

func (r ReplyStatus) Valid() bool {
	switch r {
	case ReplyPositive, ReplyNeutral, ReplyNegative:
		return true
	}
	return false
}

type Lead struct {
	ID          string       `db:"id" json:"id"`
	CampaignID  string       `db:"campaign_id" json:"campaign_id"`
	Email       string       `db:"email" json:"email,omitempty"`
	Name        string       `db:"name" json:"name"`
	Title       string       `db:"title" json:"title"`
	Company     string       `db:"company" json:"company"`
	Source      string       `db:"source" json:"source,omitempty"`
	Stage       Stage        `db:"outreach_stage" json:"outreach_stage"`
	ReplyStatus *ReplyStatus `db:"reply_status" json:"reply_status,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time   `db:"updated_at" json:"updated_at,omitempty"`
}

// RawLead is an unvalidated lead record as it arrives from an import source.
type RawLead struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Title   string `json:"title"`
	Company string `json:"company"`
}
