package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/service"
)

// MockCampaignRepo keeps campaigns in a map
type MockCampaignRepo struct {
	campaigns map[string]*model.Campaign
	counter   int
}

func newCampaignRepo(cs ...*model.Campaign) *MockCampaignRepo {
	m := &MockCampaignRepo{campaigns: map[string]*model.Campaign{}}
	for _, c := range cs {
		m.campaigns[c.ID] = c
	}
	return m
}

func (m *MockCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	m.counter++
	c.ID = fmt.Sprintf("camp-%d", m.counter)
	c.CreatedAt = time.Now()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *MockCampaignRepo) GetByID(_ context.Context, id string) (*model.Campaign, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *MockCampaignRepo) UpdateStatus(_ context.Context, id string, status model.CampaignStatus) error {
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	return nil
}

func (m *MockCampaignRepo) UpdateSenderConfig(_ context.Context, id string, cfg model.SenderConfig) error {
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Sender = cfg
	return nil
}

// MockLeadRepo keeps leads by ID and records every stage write
type MockLeadRepo struct {
	mu      sync.Mutex
	leads   map[string]*model.Lead
	order   []string
	writes  []string
	counter int
}

func newLeadRepo(leads ...model.Lead) *MockLeadRepo {
	m := &MockLeadRepo{leads: map[string]*model.Lead{}}
	for i := range leads {
		l := leads[i]
		m.leads[l.ID] = &l
		m.order = append(m.order, l.ID)
	}
	return m
}

func (m *MockLeadRepo) Insert(_ context.Context, l *model.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	l.ID = fmt.Sprintf("lead-%d", m.counter)
	cp := *l
	m.leads[l.ID] = &cp
	m.order = append(m.order, l.ID)
	return nil
}

func (m *MockLeadRepo) GetByID(_ context.Context, id string) (*model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, appErrors.NewNotFound("lead", id)
	}
	cp := *l
	return &cp, nil
}

func (m *MockLeadRepo) ListByCampaign(_ context.Context, campaignID string) ([]model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Lead
	for _, id := range m.order {
		if l := m.leads[id]; l.CampaignID == campaignID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *MockLeadRepo) UpdateStage(_ context.Context, id string, stage model.Stage, reply *model.ReplyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return appErrors.NewNotFound("lead", id)
	}
	l.Stage = stage
	if reply != nil {
		l.ReplyStatus = reply
	}
	m.writes = append(m.writes, id+":"+string(stage))
	return nil
}

func (m *MockLeadRepo) CountByStage(_ context.Context, campaignID string) (map[model.Stage]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.Stage]int{}
	for _, l := range m.leads {
		if l.CampaignID == campaignID {
			out[l.Stage]++
		}
	}
	return out, nil
}

func (m *MockLeadRepo) stageOf(id string) model.Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leads[id].Stage
}

type MockSequenceRepo struct {
	seqs map[string]*model.Sequence
}

func newSequenceRepo() *MockSequenceRepo {
	return &MockSequenceRepo{seqs: map[string]*model.Sequence{}}
}

func (m *MockSequenceRepo) Save(_ context.Context, seq *model.Sequence) error {
	cp := *seq
	m.seqs[seq.CampaignID] = &cp
	return nil
}

func (m *MockSequenceRepo) GetByCampaign(_ context.Context, campaignID string) (*model.Sequence, error) {
	return m.seqs[campaignID], nil
}

type MockSenderRepo struct {
	identities []model.SenderIdentity
	err        error
}

func (m *MockSenderRepo) Register(_ context.Context, s *model.SenderIdentity) error {
	m.identities = append(m.identities, *s)
	return nil
}

func (m *MockSenderRepo) ListByOwner(_ context.Context, owner string) ([]model.SenderIdentity, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []model.SenderIdentity
	for _, id := range m.identities {
		if id.Owner == owner {
			out = append(out, id)
		}
	}
	return out, nil
}

type MockDirectory struct {
	rows map[string]bool
}

func (m *MockDirectory) Exists(_ context.Context, owner, email string) (bool, error) {
	return m.rows[owner+"|"+email], nil
}

func (m *MockDirectory) InsertIfNotExists(_ context.Context, owner, email, _, _ string) (bool, error) {
	if m.rows[owner+"|"+email] {
		return false, nil
	}
	m.rows[owner+"|"+email] = true
	return true, nil
}

func (m *MockDirectory) Release(_ context.Context, owner, email, _ string) error {
	delete(m.rows, owner+"|"+email)
	return nil
}

// RecordingQueue captures enqueued tasks; failFor makes Enqueue fail for a
// given lead ID and step.
type RecordingQueue struct {
	mu      sync.Mutex
	tasks   []model.SendTask
	failFor map[string]bool
	now     time.Time
}

func (q *RecordingQueue) Enqueue(_ context.Context, task model.SendTask) (queue.JobHandle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failFor[task.LeadID()+"#"+task.Headers[model.HeaderStep]] {
		return queue.JobHandle{}, errors.New("broker unavailable")
	}
	q.tasks = append(q.tasks, task)
	return queue.JobHandle{
		ID:     fmt.Sprintf("job-%d", len(q.tasks)),
		Queue:  "campaign_sends",
		FireAt: q.now.Add(time.Duration(task.DelayMs) * time.Millisecond),
	}, nil
}

func (q *RecordingQueue) forLead(leadID string) []model.SendTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []model.SendTask
	for _, t := range q.tasks {
		if t.LeadID() == leadID {
			out = append(out, t)
		}
	}
	return out
}

type MockTransport struct {
	mu   sync.Mutex
	sent []model.SendTask
	err  error
}

func (t *MockTransport) Send(_ context.Context, task model.SendTask) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, task)
	return nil
}

type MockCredits struct {
	sufficient bool
	checkErr   error
	deductErr  error
	deducted   int
	checks     int
}

func (m *MockCredits) HasSufficientCredits(context.Context, string, int) (bool, error) {
	m.checks++
	return m.sufficient, m.checkErr
}

func (m *MockCredits) DeductCredits(_ context.Context, _ string, count int, _ string) error {
	if m.deductErr != nil {
		return m.deductErr
	}
	m.deducted += count
	return nil
}

type MockNotifier struct {
	calls int
	err   error
	panic bool
}

func (m *MockNotifier) CampaignLaunched(context.Context, *model.Campaign, *service.ScheduleResult) error {
	m.calls++
	if m.panic {
		panic("webhook client not configured")
	}
	return m.err
}
