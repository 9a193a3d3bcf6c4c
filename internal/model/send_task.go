// internal/model/send_task.go
package model

const (
	HeaderCampaignID = "X-Campaign-Id"
	HeaderLeadID     = "X-Lead-Id"
	HeaderStep       = "X-Sequence-Step"

	// SendAttempts is the fixed retry budget of every send task.
	SendAttempts = 5
)

type BackoffPolicy struct {
	Type        string `json:"type"`
	BaseDelayMs int64  `json:"baseDelayMs"`
}

// SendTask is the queue wire shape handed from the orchestrator to the
// delivery workers.
type SendTask struct {
	To             string            `json:"to"`
	Subject        string            `json:"subject"`
	HTML           string            `json:"html"`
	Headers        map[string]string `json:"headers"`
	SenderIdentity string            `json:"senderIdentity,omitempty"`
	DelayMs        int64             `json:"delayMs"`
	Attempts       int               `json:"attempts"`
	Backoff        BackoffPolicy     `json:"backoff"`
}

func (t SendTask) CampaignID() string { return t.Headers[HeaderCampaignID] }

func (t SendTask) LeadID() string { return t.Headers[HeaderLeadID] }
