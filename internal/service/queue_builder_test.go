package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/prospect-pipeline/internal/model"
)

func TestQueueBuilderIsIdempotent(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	fresh := seedLead(t, repos, "1", "+5511987654321", workday.Add(-time.Hour))
	seedLead(t, repos, "2", "", workday.Add(-2*time.Hour))
	seedLead(t, repos, "3", "", workday.Add(-48*time.Hour))

	b := NewQueueBuilder(repos, newTemplates(t), 24*time.Hour, nil)
	b.Now = fixedClock(workday)

	n, err := b.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = b.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	queued, err := repos.Messages.ListQueued(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, fresh.ID, queued[0].LeadID)
	assert.Equal(t, model.KindFirst, queued[0].Kind)
	assert.Equal(t, "template_varejo", queued[0].TemplateKey)
	assert.Contains(t, queued[0].Text, "Empresa 1")

	assert.Len(t, eventsOfType(t, repos, model.EventQueue), 2)
}
