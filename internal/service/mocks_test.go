package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/crm-mailer/internal/errors"
	"github.com/unclebandit/crm-mailer/internal/logger"
	"github.com/unclebandit/crm-mailer/internal/model"
	"github.com/unclebandit/crm-mailer/internal/provider"
	"github.com/unclebandit/crm-mailer/internal/service"
)

// MockContactRepo serves contacts from memory.
type MockContactRepo struct {
	contacts map[string]model.Contact
	lookups  int
}

func newContactRepo(contacts ...model.Contact) *MockContactRepo {
	m := &MockContactRepo{contacts: map[string]model.Contact{}}
	for _, c := range contacts {
		m.contacts[c.ID] = c
	}
	return m
}

func (m *MockContactRepo) Lookup(_ context.Context, ids []string) ([]model.Contact, error) {
	m.lookups++
	out := []model.Contact{}
	for _, id := range ids {
		if c, ok := m.contacts[id]; ok {
			out = append(out, c)
		}
	}
	// the real store returns rows in no particular order
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MockContactRepo) GetByID(_ context.Context, id string) (*model.Contact, error) {
	if c, ok := m.contacts[id]; ok {
		return &c, nil
	}
	return nil, nil
}

type MockTemplateRepo struct {
	templates map[string]model.Template
}

func (m *MockTemplateRepo) GetByID(_ context.Context, id string) (*model.Template, error) {
	t, ok := m.templates[id]
	if !ok {
		return nil, appErrors.NewTemplateNotFound(id)
	}
	return &t, nil
}

// MockCampaignRepo keeps campaigns in memory; counter increments hold the lock.
type MockCampaignRepo struct {
	mu           sync.Mutex
	campaigns    map[string]*model.Campaign
	statusLog    []model.CampaignStatus
	incrementErr error
}

func newCampaignRepo() *MockCampaignRepo {
	return &MockCampaignRepo{campaigns: map[string]*model.Campaign{}}
}

func (m *MockCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.campaigns[c.ID] = &cp
	m.statusLog = append(m.statusLog, c.Status)
	return nil
}

func (m *MockCampaignRepo) GetByID(_ context.Context, id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *MockCampaignRepo) ListCampaigns(_ context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var filtered []*model.Campaign
	for _, c := range m.campaigns {
		if status != "" && string(c.Status) != status {
			continue
		}
		cp := *c
		filtered = append(filtered, &cp)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })
	total := len(filtered)
	if offset > total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (m *MockCampaignRepo) UpdateStatus(_ context.Context, id string, status model.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	m.statusLog = append(m.statusLog, status)
	return nil
}

func (m *MockCampaignRepo) RecordDispatchResult(_ context.Context, id string, sent, failed int, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.SentCount, c.FailedCount, c.Status, c.SentAt = sent, failed, model.CampaignSent, &sentAt
	m.statusLog = append(m.statusLog, model.CampaignSent)
	return nil
}

func (m *MockCampaignRepo) IncrementCounter(_ context.Context, id string, counter model.CampaignCounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return m.incrementErr
	}
	c, ok := m.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	switch counter {
	case model.CounterOpened:
		c.OpenedCount++
	case model.CounterClicked:
		c.ClickedCount++
	case model.CounterBounced:
		c.BouncedCount++
	default:
		return errors.New("unknown counter")
	}
	return nil
}

func (m *MockCampaignRepo) GetMessageStats(_ context.Context, id string) (map[string]int, error) {
	return map[string]int{"sent": 0}, nil
}

func (m *MockCampaignRepo) only() *model.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.campaigns {
		cp := *c
		return &cp
	}
	return nil
}

// MockMessageRepo mirrors the COALESCE semantics of the SQL store.
type MockMessageRepo struct {
	mu       sync.Mutex
	messages map[string]*model.EmailMessage
	applied  int
}

func newMessageRepo(msgs ...*model.EmailMessage) *MockMessageRepo {
	m := &MockMessageRepo{messages: map[string]*model.EmailMessage{}}
	for _, msg := range msgs {
		m.messages[msg.ID] = msg
	}
	return m
}

func (m *MockMessageRepo) CreateBatch(_ context.Context, msgs []*model.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		cp := *msg
		m.messages[msg.ID] = &cp
	}
	return nil
}

func (m *MockMessageRepo) GetByProviderID(_ context.Context, providerID string) (*model.EmailMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ProviderMessageID != nil && *msg.ProviderMessageID == providerID {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockMessageRepo) ApplyEvent(_ context.Context, id string, kind model.EventKind, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return errors.New("no such message")
	}
	m.applied++
	msg.Status = kind.MessageStatus()
	if kind == model.EventOpened && msg.OpenedAt == nil {
		msg.OpenedAt = &at
	}
	if kind == model.EventClicked && msg.ClickedAt == nil {
		msg.ClickedAt = &at
	}
	return nil
}

func (m *MockMessageRepo) ListByCampaign(_ context.Context, campaignID string) ([]*model.EmailMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.EmailMessage{}
	for _, msg := range m.messages {
		if msg.CampaignID != nil && *msg.CampaignID == campaignID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockMessageRepo) get(id string) *model.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.messages[id]
	return &cp
}

func (m *MockMessageRepo) all() []*model.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.EmailMessage{}
	for _, msg := range m.messages {
		out = append(out, msg)
	}
	return out
}

// MockSender fails the addresses listed in fail, or the whole batch with err
// once errAfter emails have been sent and reported. delay holds the reply back
// without watching the context.
type MockSender struct {
	fail     map[string]bool
	err      error
	errAfter int
	block    bool
	delay    time.Duration
	short    int
	calls    int
	got      []provider.Email
}

func (m *MockSender) SendBatch(ctx context.Context, emails []provider.Email, report provider.Report) ([]provider.Outcome, error) {
	m.calls++
	m.got = emails
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	outcomes := []provider.Outcome{}
	for i, e := range emails {
		if m.err != nil && i == m.errAfter {
			return nil, m.err
		}
		if m.short > 0 && i >= len(emails)-m.short {
			break
		}
		o := provider.Outcome{Address: e.To, Success: true, ProviderMessageID: "prov-" + e.To}
		if m.fail[e.To] {
			o = provider.Outcome{Address: e.To, Error: "rejected"}
		}
		outcomes = append(outcomes, o)
		if report != nil {
			report(i, []provider.Outcome{o})
		}
	}
	time.Sleep(m.delay)
	return outcomes, nil
}

type staticShared map[string]string

func (s staticShared) Variables(context.Context) map[string]string { return s }

func strPtr(s string) *string { return &s }

type fixture struct {
	contacts  *MockContactRepo
	templates *MockTemplateRepo
	campaigns *MockCampaignRepo
	messages  *MockMessageRepo
	sender    *MockSender
	campSvc   *service.CampaignService
	dispatch  *service.DispatchService
}

func newFixture(contacts ...model.Contact) *fixture {
	f := &fixture{
		contacts:  newContactRepo(contacts...),
		templates: &MockTemplateRepo{templates: map[string]model.Template{}},
		campaigns: newCampaignRepo(),
		messages:  newMessageRepo(),
		sender:    &MockSender{fail: map[string]bool{}},
	}
	f.campSvc = &service.CampaignService{CampaignRepo: f.campaigns, MessageRepo: f.messages, Logger: logger.Discard()}
	f.dispatch = &service.DispatchService{
		Resolver:    &service.RecipientResolver{Contacts: f.contacts},
		Templates:   f.templates,
		Campaigns:   f.campSvc,
		Messages:    f.messages,
		Provider:    f.sender,
		SendTimeout: time.Second,
		FromEmail:   "crm@example.com",
		FromName:    "CRM",
		Logger:      logger.Discard(),
	}
	return f
}

func contact(id, email, first string) model.Contact {
	return model.Contact{ID: id, Email: email, FirstName: first, JobTitle: "Buyer"}
}
