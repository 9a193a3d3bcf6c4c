// Package intake adds raw lead records to a campaign's working set and
// mirrors them into the owner-wide lead directory used for dedup.
package intake

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

type Result struct {
	Inserted int          `json:"inserted"`
	Skipped  int          `json:"skipped"`
	Rows     []model.Lead `json:"rows"`
}

type Ingester struct {
	Leads     repository.LeadRepositoryInterface
	Directory repository.DirectoryRepositoryInterface
	Logger    *zap.Logger
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Ingest inserts raw leads into the campaign. A lead whose normalized email
// is already in the owner's directory, or repeated within the batch, is
// skipped. Leads without an email are kept but can never be scheduled.
//
// Directory failures are logged and never fail the ingest. A failed insert
// into the working set releases the lead's directory claim, stops the batch
// and returns what was inserted so far together with the error.
func (in *Ingester) Ingest(ctx context.Context, c *model.Campaign, source string, raw []model.RawLead) (*Result, error) {
	log := in.logger().With(zap.String("campaign_id", c.ID), zap.String("source", source))
	res := &Result{Rows: []model.Lead{}}
	seen := make(map[string]struct{}, len(raw))

	for _, r := range raw {
		lead := model.Lead{
			CampaignID: c.ID,
			Email:      NormalizeEmail(r.Email),
			Name:       strings.TrimSpace(r.Name),
			Title:      strings.TrimSpace(r.Title),
			Company:    strings.TrimSpace(r.Company),
			Source:     source,
			Stage:      model.StageNew,
		}

		if lead.Email != "" {
			if _, dup := seen[lead.Email]; dup {
				res.Skipped++
				continue
			}
			seen[lead.Email] = struct{}{}

			lead.ID = uuid.NewString()
			if !in.claim(ctx, log, c.Owner, &lead) {
				res.Skipped++
				continue
			}
		}

		if err := in.Leads.Insert(ctx, &lead); err != nil {
			if lead.Email != "" {
				if rerr := in.Directory.Release(ctx, c.Owner, lead.Email, lead.ID); rerr != nil {
					log.Warn("lead directory release failed", zap.String("lead_id", lead.ID), zap.Error(rerr))
				}
			}
			return res, fmt.Errorf("insert lead %q: %w", lead.Email, err)
		}
		res.Inserted++
		res.Rows = append(res.Rows, lead)
	}
	return res, nil
}

// claim records the lead in the owner's directory and reports whether the
// lead is new. The insert is the dedup decision, so two imports racing on
// the same email cannot both win. When the directory is unavailable the
// lead is kept unless a lookup still finds it.
func (in *Ingester) claim(ctx context.Context, log *zap.Logger, owner string, lead *model.Lead) bool {
	inserted, err := in.Directory.InsertIfNotExists(ctx, owner, lead.Email, lead.ID, lead.Source)
	if err == nil {
		return inserted
	}
	log.Warn("lead directory claim failed", zap.String("email", lead.Email), zap.Error(err))

	exists, err := in.Directory.Exists(ctx, owner, lead.Email)
	if err != nil {
		log.Warn("lead directory lookup failed", zap.String("email", lead.Email), zap.Error(err))
	}
	return !exists
}

func (in *Ingester) logger() *zap.Logger {
	if in.Logger == nil {
		return zap.NewNop()
	}
	return in.Logger
}
