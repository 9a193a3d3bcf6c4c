// Package sender picks the from-identity for outbound sends.
package sender

import (
	"slices"
	"strings"
	"time"

	"github.com/unclebandit/outreach-engine/internal/model"
)

const DefaultBucket = time.Minute

// Resolver applies a campaign's SenderConfig. It holds no rotation state:
// the choice is a function of the candidates, the clock bucket and the
// send's ordinal within the run.
type Resolver struct {
	Bucket time.Duration
}

func NewResolver(bucket time.Duration) *Resolver {
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	return &Resolver{Bucket: bucket}
}

// Resolve returns the identity to send from, or false when the caller must
// fall back to the platform default sender.
func (r *Resolver) Resolve(c *model.Campaign, identities []model.SenderIdentity, now time.Time, seq int) (string, bool) {
	switch c.Sender.Behavior {
	case model.SenderSpecific:
		allowed := filterAllowed(c.Sender.AllowList, identities)
		if len(allowed) > 0 {
			return Pick(allowed, now, r.Bucket, seq), true
		}
		return r.rotate(c, identities, now, seq)
	case model.SenderRotate:
		return r.rotate(c, identities, now, seq)
	default:
		if c.Sender.ExplicitIdentity != "" {
			return c.Sender.ExplicitIdentity, true
		}
		if c.DefaultSender != "" {
			return c.DefaultSender, true
		}
		return "", false
	}
}

func (r *Resolver) rotate(c *model.Campaign, identities []model.SenderIdentity, now time.Time, seq int) (string, bool) {
	var owned []string
	for _, id := range identities {
		if id.Verified && id.Owner == c.Owner {
			owned = append(owned, id.Email)
		}
	}
	if len(owned) == 0 {
		return "", false
	}
	return Pick(owned, now, r.Bucket, seq), true
}

func filterAllowed(allowList []string, identities []model.SenderIdentity) []string {
	allow := make(map[string]struct{}, len(allowList))
	for _, a := range allowList {
		allow[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	var out []string
	for _, id := range identities {
		if !id.Verified {
			continue
		}
		_, byEmail := allow[strings.ToLower(id.Email)]
		_, byID := allow[strings.ToLower(id.ID)]
		if byEmail || byID {
			out = append(out, id.Email)
		}
	}
	return out
}

// Pick selects one candidate by time-bucketed modulo. Candidates are sorted
// first so the result does not depend on input order. Identical inputs
// always pick the same candidate; consecutive seq values walk the set.
func Pick(candidates []string, now time.Time, bucket time.Duration, seq int) string {
	if len(candidates) == 0 {
		return ""
	}
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	sorted := slices.Clone(candidates)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	n := int64(len(sorted))
	idx := (now.UnixNano()/int64(bucket) + int64(seq)) % n
	if idx < 0 {
		idx += n
	}
	return sorted[idx]
}
