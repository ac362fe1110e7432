package service

import (
	"context"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"github.com/unclebandit/prospect-pipeline/internal/db/dbtest"
	"github.com/unclebandit/prospect-pipeline/internal/gateway"
	"github.com/unclebandit/prospect-pipeline/internal/model"
	"github.com/unclebandit/prospect-pipeline/internal/registry"
	"github.com/unclebandit/prospect-pipeline/internal/repository"
)

var saoPaulo = mustLoad("America/Sao_Paulo")

// monday 14:00 local, inside the default 9-18 window
var workday = time.Date(2024, 3, 4, 14, 0, 0, 0, saoPaulo)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newRepos(t *testing.T) *repository.Repositories {
	return repository.New(dbtest.Open(t))
}

func newTemplates(t *testing.T) *TemplateService {
	s, err := NewTemplateService("")
	require.NoError(t, err)
	return s
}

func seedLead(t *testing.T, repos *repository.Repositories, taxID, phoneE164 string, createdAt time.Time) *model.Lead {
	t.Helper()
	lead := &model.Lead{
		TaxID:     taxID,
		LegalName: "Empresa " + taxID,
		City:      "Campinas",
		State:     "SP",
		Segment:   "varejo",
		Status:    model.LeadStatusNew,
		CreatedAt: createdAt.UTC(),
	}
	if phoneE164 != "" {
		lead.PhoneE164 = &phoneE164
		lead.Phone = phoneE164
	}
	inserted, err := repos.Leads.InsertIfAbsent(context.Background(), lead)
	require.NoError(t, err)
	require.True(t, inserted)
	return lead
}

func seedMessage(t *testing.T, repos *repository.Repositories, leadID int, kind model.MessageKind) *model.Message {
	t.Helper()
	msg := &model.Message{
		LeadID:      leadID,
		Kind:        kind,
		TemplateKey: "template_varejo",
		Text:        "Olá",
		Status:      model.MessageQueued,
		QueuedAt:    workday.UTC(),
	}
	created, err := repos.Messages.CreateIfAbsent(context.Background(), msg)
	require.NoError(t, err)
	require.True(t, created)
	return msg
}

func eventsOfType(t *testing.T, repos *repository.Repositories, eventType string) []model.Event {
	t.Helper()
	events, err := repos.Events.ListByType(context.Background(), eventType, 100)
	require.NoError(t, err)
	return events
}

type sentCall struct {
	Phone string
	Text  string
}

type fakeSender struct {
	mu    sync.Mutex
	calls []sentCall
	err   error
}

func (f *fakeSender) Send(_ context.Context, phone, text string) (gateway.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCall{Phone: phone, Text: text})
	if f.err != nil {
		return gateway.SendResult{}, f.err
	}
	return gateway.SendResult{ProviderMessageID: "prov-1"}, nil
}

func (f *fakeSender) Calls() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.calls...)
}

type fakeRegistry struct {
	pages  map[string]*registry.Page
	failOn string
	err    error
	tokens []string
}

func (f *fakeRegistry) FetchOffices(_ context.Context, _, _ time.Time, token string) (*registry.Page, error) {
	f.tokens = append(f.tokens, token)
	if f.err != nil && token == f.failOn {
		return nil, f.err
	}
	if p, ok := f.pages[token]; ok {
		return p, nil
	}
	return &registry.Page{}, nil
}

type fakeNotifier struct {
	leads []string
	err   error
}

func (f *fakeNotifier) NotifyNewLead(_ context.Context, lead *model.Lead) error {
	f.leads = append(f.leads, lead.TaxID)
	return f.err
}
