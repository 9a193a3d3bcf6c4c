// internal/handler/lead_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/service"
)

// LeadHandler receives events produced outside the engine: reply detection
// results and sender identity registrations.
type LeadHandler struct {
	Service    *service.CampaignService
	SenderRepo repository.SenderRepositoryInterface
	Logger     *zap.Logger
}

func NewLeadHandler(svc *service.CampaignService, senders repository.SenderRepositoryInterface, logger *zap.Logger) *LeadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadHandler{Service: svc, SenderRepo: senders, Logger: logger}
}

func (h *LeadHandler) Routes(r chi.Router) {
	r.Post("/leads/{id}/outcome", h.RecordOutcomeHandler)
	r.Post("/senders", h.RegisterSenderHandler)
}

// RecordOutcomeHandler moves a lead to replied, bounced or unsubscribed.
// Repeated deliveries of the same event answer 200 with the unchanged lead.
func (h *LeadHandler) RecordOutcomeHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Stage       model.Stage        `json:"stage"`
		ReplyStatus *model.ReplyStatus `json:"reply_status,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	lead, err := h.Service.RecordOutcome(r.Context(), id, payload.Stage, payload.ReplyStatus)
	if err != nil {
		h.fail(w, "record outcome", err)
		return
	}
	h.logger().Info("lead outcome recorded",
		zap.String("lead_id", id),
		zap.String("campaign_id", lead.CampaignID),
		zap.String("stage", string(lead.Stage)))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lead)
}

// RegisterSenderHandler adds or updates a from-identity for an owner.
func (h *LeadHandler) RegisterSenderHandler(w http.ResponseWriter, r *http.Request) {
	var identity model.SenderIdentity
	if err := json.NewDecoder(r.Body).Decode(&identity); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(identity.Owner) == "" || !strings.Contains(identity.Email, "@") {
		h.fail(w, "register sender", appErrors.NewValidation("email", "owner and a valid email are required"))
		return
	}
	if err := h.SenderRepo.Register(r.Context(), &identity); err != nil {
		h.fail(w, "register sender", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(identity)
}

func (h *LeadHandler) fail(w http.ResponseWriter, op string, err error) {
	code := appErrors.HTTPStatus(err)
	if code == http.StatusInternalServerError {
		h.logger().Error(op+" failed", zap.Error(err))
		http.Error(w, op+" failed", code)
		return
	}
	http.Error(w, err.Error(), code)
}

func (h *LeadHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
