package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/prospect-pipeline/internal/db/dbtest"
	"github.com/unclebandit/prospect-pipeline/internal/model"
)

var t0 = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func newLead(taxID, phone string) *model.Lead {
	l := &model.Lead{TaxID: taxID, LegalName: "ACME " + taxID, Segment: "varejo", Status: model.LeadStatusNew, CreatedAt: t0}
	if phone != "" {
		l.PhoneE164 = strPtr(phone)
	}
	return l
}

func newMessage(leadID int, kind model.MessageKind) *model.Message {
	return &model.Message{LeadID: leadID, Kind: kind, TemplateKey: "template_varejo", Text: "oi", Status: model.MessageQueued, QueuedAt: t0}
}

func TestLeadInsertIfAbsent(t *testing.T) {
	repos := New(dbtest.Open(t))
	ctx := context.Background()

	inserted, err := repos.Leads.InsertIfAbsent(ctx, newLead("12345678000195", ""))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repos.Leads.InsertIfAbsent(ctx, newLead("12345678000195", ""))
	require.NoError(t, err)
	assert.False(t, inserted)

	var count int64
	require.NoError(t, repos.db.Model(&model.Lead{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	got, err := repos.Leads.GetByTaxID(ctx, "12345678000195")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.LeadStatusNew, got.Status)

	missing, err := repos.Leads.GetByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLeadAdvanceStatusIsForwardOnly(t *testing.T) {
	repos := New(dbtest.Open(t))
	ctx := context.Background()
	lead := newLead("1", "")
	_, err := repos.Leads.InsertIfAbsent(ctx, lead)
	require.NoError(t, err)

	ok, err := repos.Leads.AdvanceStatus(ctx, lead.ID, model.LeadStatusReplied)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Leads.AdvanceStatus(ctx, lead.ID, model.LeadStatusContacted)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repos.Leads.GetByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusReplied, got.Status)
}

func TestLeadBlockByPhone(t *testing.T) {
	repos := New(dbtest.Open(t))
	ctx := context.Background()
	a, b, c := newLead("1", "+5511999990000"), newLead("2", "+5511999990000"), newLead("3", "+5511888880000")
	for _, l := range []*model.Lead{a, b, c} {
		_, err := repos.Leads.InsertIfAbsent(ctx, l)
		require.NoError(t, err)
	}

	n, err := repos.Leads.BlockByPhone(ctx, "+5511999990000")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := repos.Leads.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusNew, got.Status)

	ok, err := repos.Leads.AdvanceStatus(ctx, a.ID, model.LeadStatusContacted)
	require.NoError(t, err)
	assert.False(t, ok, "blocked leads stay blocked")
}

func TestListUnqueuedSkipsLeadsWithMessages(t *testing.T) {
	repos := New(dbtest.Open(t))
	ctx := context.Background()
	old := newLead("old", "")
	old.CreatedAt = t0.Add(-48 * time.Hour)
	queued, fresh := newLead("queued", ""), newLead("fresh", "")
	for _, l := range []*model.Lead{old, queued, fresh} {
		_, err := repos.Leads.InsertIfAbsent(ctx, l)
		require.NoError(t, err)
	}
	_, err := repos.Messages.CreateIfAbsent(ctx, newMessage(queued.ID, model.KindFirst))
	require.NoError(t, err)

	leads, err := repos.Leads.ListUnqueued(ctx, t0.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "fresh", leads[0].TaxID)
}

func TestMessageCreateIfAbsent(t *testing.T) {
	repos := New(dbtest.Open(t))
	ctx := context.Background()

	created, err := repos.Messages.CreateIfAbsent(ctx, newMessage(1, model.KindFirst))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repos.Messages.CreateIfAbsent(ctx, newMessage(1, model.KindFirst))
	require.NoError(t, err)
	assert.False(t, created)

	created, err = repos.Messages.CreateIfAbsent(ctx, newMessage(1, model.KindFollowup24h))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestMessageClaimLifecycle(t *testing.T) {
	repos := New(dbtest.Open(t))
	ctx := context.Background()
	msg := newMessage(1, model.KindFirst)
	_, err := repos.Messages.CreateIfAbsent(ctx, msg)
	require.NoError(t, err)

	claimed, err := repos.Messages.Claim(ctx, msg.ID, t0)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repos.Messages.Claim(ctx, msg.ID, t0)
	require.NoError(t, err)
	assert.False(t, claimed, "second claim must lose")

	require.NoError(t, repos.Messages.MarkSent(ctx, msg.ID, "wamid-1", t0))
	got, err := repos.Messages.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageSent, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "wamid-1", got.ProviderMessageID)
	require.NotNil(t, got.SentAt)

	assert.Error(t, repos.Messages.MarkSent(ctx, msg.ID, "again", t0))

	n, err := repos.Messages.CountSentBetween(ctx, t0.Add(-time.Hour), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMessageRequeueAndFailStale(t *testing.T) {
	repos := New(dbtest.Open(t))
	ctx := context.Background()
	a, b := newMessage(1, model.KindFirst), newMessage(2, model.KindFirst)
	for _, m := range []*model.Message{a, b} {
		_, err := repos.Messages.CreateIfAbsent(ctx, m)
		require.NoError(t, err)
	}

	_, err := repos.Messages.Claim(ctx, a.ID, t0)
	require.NoError(t, err)
	require.NoError(t, repos.Messages.Requeue(ctx, a.ID, "status=500"))
	queued, err := repos.Messages.ListQueued(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, a.ID, queued[0].ID)
	assert.Equal(t, "status=500", queued[0].Error)

	_, err = repos.Messages.Claim(ctx, b.ID, t0.Add(-time.Hour))
	require.NoError(t, err)
	n, err := repos.Messages.FailStale(ctx, t0.Add(-30*time.Minute), "dispatch interrupted")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repos.Messages.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageFailed, got.Status)
	assert.Equal(t, "dispatch interrupted", got.Error)
}

func TestListFollowupCandidates(t *testing.T) {
	repos := New(dbtest.Open(t))
	ctx := context.Background()

	due, early, optedOut, converted, done := newLead("due", "+5511900000001"), newLead("early", "+5511900000002"),
		newLead("optout", "+5511900000003"), newLead("conv", "+5511900000004"), newLead("done", "+5511900000005")
	sentAt := map[*model.Lead]time.Time{
		due: t0.Add(-24 * time.Hour), early: t0.Add(-23 * time.Hour), optedOut: t0.Add(-48 * time.Hour),
		converted: t0.Add(-48 * time.Hour), done: t0.Add(-48 * time.Hour),
	}
	for _, l := range []*model.Lead{due, early, optedOut, converted, done} {
		_, err := repos.Leads.InsertIfAbsent(ctx, l)
		require.NoError(t, err)
		m := newMessage(l.ID, model.KindFirst)
		_, err = repos.Messages.CreateIfAbsent(ctx, m)
		require.NoError(t, err)
		_, err = repos.Messages.Claim(ctx, m.ID, sentAt[l])
		require.NoError(t, err)
		require.NoError(t, repos.Messages.MarkSent(ctx, m.ID, "", sentAt[l]))
	}
	_, err := repos.OptOuts.Insert(ctx, "+5511900000003", model.OptOutUser, t0)
	require.NoError(t, err)
	_, err = repos.Leads.AdvanceStatus(ctx, converted.ID, model.LeadStatusConverted)
	require.NoError(t, err)
	_, err = repos.Messages.CreateIfAbsent(ctx, newMessage(done.ID, model.KindFollowup24h))
	require.NoError(t, err)

	leads, err := repos.Leads.ListFollowupCandidates(ctx, model.KindFollowup24h, model.KindFirst, t0.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "due", leads[0].TaxID)

	// the 72h step waits for the 24h follow-up to go out
	leads, err = repos.Leads.ListFollowupCandidates(ctx, model.KindFollowup72h, model.KindFollowup24h, t0)
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestOptOutInsertIsIdempotent(t *testing.T) {
	repos := New(dbtest.Open(t))
	ctx := context.Background()

	inserted, err := repos.OptOuts.Insert(ctx, "+5511999990000", model.OptOutWebhook, t0)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = repos.OptOuts.Insert(ctx, "+5511999990000", model.OptOutAdmin, t0)
	require.NoError(t, err)
	assert.False(t, inserted)

	row, err := repos.OptOuts.Get(ctx, "+5511999990000")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, model.OptOutWebhook, row.Source)

	exists, err := repos.OptOuts.Exists(ctx, "+5511000000000")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDailyCounterIncrement(t *testing.T) {
	repos := New(dbtest.Open(t))
	ctx := context.Background()

	n, err := repos.Counters.Get(ctx, "2024-03-04")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, repos.Counters.Increment(ctx, "2024-03-04", 1))
	require.NoError(t, repos.Counters.Increment(ctx, "2024-03-04", 2))
	require.NoError(t, repos.Counters.Increment(ctx, "2024-03-05", 1))
	assert.Error(t, repos.Counters.Increment(ctx, "2024-03-04", 0))

	n, err = repos.Counters.Get(ctx, "2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestTransactionRollsBack(t *testing.T) {
	repos := New(dbtest.Open(t))
	ctx := context.Background()

	err := repos.Transaction(ctx, func(tx *Repositories) error {
		require.NoError(t, tx.Counters.Increment(ctx, "2024-03-04", 1))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	n, err := repos.Counters.Get(ctx, "2024-03-04")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEventsLatest(t *testing.T) {
	repos := New(dbtest.Open(t))
	ctx := context.Background()

	ev, err := repos.Events.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, ev)

	require.NoError(t, repos.Events.Append(ctx, model.EventCapture, `{"total":1}`, t0))
	require.NoError(t, repos.Events.Append(ctx, model.EventQueue, `{"queued":1}`, t0))

	ev, err = repos.Events.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, model.EventQueue, ev.Type)

	list, err := repos.Events.ListByType(ctx, model.EventCapture, 5)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
