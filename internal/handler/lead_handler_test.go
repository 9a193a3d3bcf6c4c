package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/handler"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/service"
)

type MockLeadRepo struct {
	leads map[string]*model.Lead
}

func (m *MockLeadRepo) Insert(context.Context, *model.Lead) error { return nil }

func (m *MockLeadRepo) GetByID(_ context.Context, id string) (*model.Lead, error) {
	l, ok := m.leads[id]
	if !ok {
		return nil, appErrors.NewNotFound("lead", id)
	}
	cp := *l
	return &cp, nil
}

func (m *MockLeadRepo) ListByCampaign(context.Context, string) ([]model.Lead, error) { return nil, nil }

func (m *MockLeadRepo) UpdateStage(_ context.Context, id string, stage model.Stage, reply *model.ReplyStatus) error {
	m.leads[id].Stage = stage
	if reply != nil {
		m.leads[id].ReplyStatus = reply
	}
	return nil
}

func (m *MockLeadRepo) CountByStage(context.Context, string) (map[model.Stage]int, error) {
	return nil, nil
}

type MockSenderRepo struct {
	registered []model.SenderIdentity
	err        error
}

func (m *MockSenderRepo) Register(_ context.Context, s *model.SenderIdentity) error {
	if m.err != nil {
		return m.err
	}
	s.ID = "sender-1"
	m.registered = append(m.registered, *s)
	return nil
}

func (m *MockSenderRepo) ListByOwner(context.Context, string) ([]model.SenderIdentity, error) {
	return m.registered, nil
}

func newRouter(leads *MockLeadRepo, senders *MockSenderRepo) http.Handler {
	svc := &service.CampaignService{LeadRepo: leads, SenderRepo: senders}
	r := chi.NewRouter()
	handler.NewLeadHandler(svc, senders, nil).Routes(r)
	return r
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRecordOutcomeHandler(t *testing.T) {
	leads := &MockLeadRepo{leads: map[string]*model.Lead{
		"l1": {ID: "l1", CampaignID: "camp-1", Email: "a@acme.test", Stage: model.StageSent},
	}}
	r := newRouter(leads, &MockSenderRepo{})

	w := post(r, "/leads/l1/outcome", `{"stage":"replied","reply_status":"positive"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"outreach_stage":"replied"`)
	assert.Equal(t, model.StageReplied, leads.leads["l1"].Stage)
	require.NotNil(t, leads.leads["l1"].ReplyStatus)
	assert.Equal(t, model.ReplyPositive, *leads.leads["l1"].ReplyStatus)

	w = post(r, "/leads/l1/outcome", `{"stage":"bounced"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StageReplied, leads.leads["l1"].Stage)
}

func TestRecordOutcomeHandler_Errors(t *testing.T) {
	leads := &MockLeadRepo{leads: map[string]*model.Lead{
		"l1": {ID: "l1", CampaignID: "camp-1", Stage: model.StageSent},
	}}
	r := newRouter(leads, &MockSenderRepo{})

	assert.Equal(t, http.StatusBadRequest, post(r, "/leads/l1/outcome", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, post(r, "/leads/l1/outcome", `{"stage":"sent"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(r, "/leads/l1/outcome", `{"stage":"bounced","reply_status":"positive"}`).Code)
	assert.Equal(t, http.StatusNotFound, post(r, "/leads/nope/outcome", `{"stage":"bounced"}`).Code)
	assert.Equal(t, model.StageSent, leads.leads["l1"].Stage)
}

func TestRegisterSenderHandler(t *testing.T) {
	senders := &MockSenderRepo{}
	r := newRouter(&MockLeadRepo{leads: map[string]*model.Lead{}}, senders)

	w := post(r, "/senders", `{"owner":"owner-1","email":"ann@acme.test","verified":true}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, senders.registered, 1)
	assert.Equal(t, "sender-1", senders.registered[0].ID)

	assert.Equal(t, http.StatusBadRequest, post(r, "/senders", `{"owner":"owner-1","email":"nope"}`).Code)

	senders.err = errors.New("pq: connection refused")
	w = post(r, "/senders", `{"owner":"owner-1","email":"bob@acme.test"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")
}

func TestLeadHandler_ZeroValueLogger(t *testing.T) {
	leads := &MockLeadRepo{leads: map[string]*model.Lead{
		"l1": {ID: "l1", CampaignID: "camp-1", Stage: model.StageSent},
	}}
	senders := &MockSenderRepo{err: errors.New("pq: connection refused")}
	h := &handler.LeadHandler{Service: &service.CampaignService{LeadRepo: leads}, SenderRepo: senders}
	r := chi.NewRouter()
	h.Routes(r)

	assert.Equal(t, http.StatusOK, post(r, "/leads/l1/outcome", `{"stage":"bounced"}`).Code)
	assert.Equal(t, http.StatusInternalServerError, post(r, "/senders", `{"owner":"o","email":"b@acme.test"}`).Code)
}
