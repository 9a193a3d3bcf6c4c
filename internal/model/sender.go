// internal/model/sender.go
package model

type SenderBehavior string

const (
	SenderSingle   SenderBehavior = "single"
	SenderRotate   SenderBehavior = "rotate"
	SenderSpecific SenderBehavior = "specific"
)

func (b SenderBehavior) Valid() bool {
	switch b {
	case SenderSingle, SenderRotate, SenderSpecific:
		return true
	}
	return false
}

type SenderConfig struct {
	Behavior         SenderBehavior `json:"behavior"`
	ExplicitIdentity string         `json:"explicitIdentity,omitempty"`
	AllowList        []string       `json:"allowList,omitempty"`
}

// SenderIdentity is a from-address registered by an owner.
type SenderIdentity struct {
	ID       string `db:"id" json:"id"`
	Owner    string `db:"owner" json:"owner"`
	Email    string `db:"email" json:"email"`
	Verified bool   `db:"verified" json:"verified"`
}
