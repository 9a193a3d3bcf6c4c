// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Logger          *zap.Logger
}

// Routes mounts the campaign endpoints on r.
func (c *CampaignController) Routes(r chi.Router) {
	r.Post("/campaigns", c.CreateCampaign)
	r.Route("/campaigns/{id}", func(r chi.Router) {
		r.Get("/", c.GetCampaignDetails)
		r.Put("/sequence", c.AttachSequence)
		r.Put("/sender", c.SetSender)
		r.Post("/leads", c.AddLeads)
		r.Post("/schedule", c.ScheduleCampaign)
		r.Post("/personalized-preview", c.PersonalizedPreview)
		r.Post("/pause", c.PauseCampaign)
		r.Post("/resume", c.ResumeCampaign)
		r.Post("/complete", c.CompleteCampaign)
	})
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CreateCampaignInput
	if !c.decode(w, r, &body) {
		return
	}
	campaign, err := c.CampaignService.CreateCampaign(r.Context(), body)
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	campaign, err := c.CampaignService.GetCampaign(r.Context(), id)
	if err != nil {
		c.fail(w, err)
		return
	}
	stats, err := c.CampaignService.CampaignStats(r.Context(), id)
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaign": campaign,
		"stats":    stats,
	})
}

// AttachSequence stores the sequence; ?resave=true allows it while running.
func (c *CampaignController) AttachSequence(w http.ResponseWriter, r *http.Request) {
	var seq model.Sequence
	if !c.decode(w, r, &seq) {
		return
	}
	id := chi.URLParam(r, "id")
	save := c.CampaignService.AttachSequence
	if resave, _ := strconv.ParseBool(r.URL.Query().Get("resave")); resave {
		save = c.CampaignService.ResaveSequence
	}
	if err := save(r.Context(), id, &seq); err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, seq)
}

func (c *CampaignController) SetSender(w http.ResponseWriter, r *http.Request) {
	var cfg model.SenderConfig
	if !c.decode(w, r, &cfg) {
		return
	}
	if err := c.CampaignService.SetSenderConfig(r.Context(), chi.URLParam(r, "id"), cfg); err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (c *CampaignController) AddLeads(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Source string          `json:"source"`
		Leads  []model.RawLead `json:"leads"`
	}
	if !c.decode(w, r, &body) {
		return
	}
	if body.Source == "" {
		body.Source = "manual"
	}
	res, err := c.CampaignService.AddLeads(r.Context(), chi.URLParam(r, "id"), body.Source, body.Leads)
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *CampaignController) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Anchor       *time.Time `json:"anchor"`
		DailySendCap int        `json:"daily_send_cap"`
	}
	if !c.decodeOptional(w, r, &body) {
		return
	}
	opts := service.ScheduleOptions{DailySendCap: body.DailySendCap}
	if body.Anchor != nil {
		opts.Anchor = *body.Anchor
	}
	res, err := c.CampaignService.ScheduleCampaign(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LeadID string `json:"lead_id"`
		Step   int    `json:"step"`
	}
	if !c.decode(w, r, &body) {
		return
	}
	if body.Step == 0 {
		body.Step = 1
	}
	subject, html, err := c.CampaignService.RenderPreview(r.Context(), chi.URLParam(r, "id"), body.LeadID, body.Step)
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lead_id": body.LeadID,
		"step":    body.Step,
		"subject": subject,
		"html":    html,
	})
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	c.status(w, r, c.CampaignService.PauseCampaign)
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	c.status(w, r, c.CampaignService.ResumeCampaign)
}

func (c *CampaignController) CompleteCampaign(w http.ResponseWriter, r *http.Request) {
	c.status(w, r, c.CampaignService.CompleteCampaign)
}

func (c *CampaignController) status(w http.ResponseWriter, r *http.Request, move func(context.Context, string) (*model.Campaign, error)) {
	campaign, err := move(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
		return false
	}
	return true
}

// decodeOptional accepts an empty body, whether or not its length is known.
func (c *CampaignController) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
	return false
}

func (c *CampaignController) fail(w http.ResponseWriter, err error) {
	code := appErrors.HTTPStatus(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		if c.Logger != nil {
			c.Logger.Error("request failed", zap.Error(err))
		}
		msg = "internal error"
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
