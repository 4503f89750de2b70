package memory_test

import (
	"testing"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowRepository(t *testing.T) {
	repo, err := memory.NewFlowRepository(
		&domain.FlowDefinition{ID: "f2", Name: "survey"},
		&domain.FlowDefinition{ID: "f1", Name: "onboarding"},
	)
	require.NoError(t, err)

	f, err := repo.Get("f1")
	require.NoError(t, err)
	assert.Equal(t, "onboarding", f.Name)

	f, err = repo.GetByName("survey")
	require.NoError(t, err)
	assert.Equal(t, "f2", f.ID)

	_, err = repo.Get("missing")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	_, err = repo.GetByName("missing")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)

	all, err := repo.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "f1", all[0].ID)

	err = repo.Replace([]*domain.FlowDefinition{{ID: "a"}, {ID: "a"}})
	assert.Error(t, err)
	_, err = repo.Get("f1")
	assert.NoError(t, err, "a rejected replace keeps the previous set")
}

func TestSender_RecordsAndFails(t *testing.T) {
	s := memory.NewSender()
	ctx := t.Context()

	s.FailNext(1)
	_, err := s.SendText(ctx, "u1", "hello")
	assert.ErrorIs(t, err, memory.ErrSendFailed)

	id, err := s.SendMenu(ctx, "u1", "Pick", []domain.MenuItem{{Label: "Yes", Value: "yes"}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	last, ok := s.Last("u1")
	require.True(t, ok)
	assert.Equal(t, "Pick", last.Text)
	assert.Equal(t, id, last.ContextID)
	assert.Empty(t, s.For("u2"))
}
