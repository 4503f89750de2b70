package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405.000000")

	t.Run("Save and Load", func(t *testing.T) {
		s := domain.NewSession(sessionID)
		s.FlowID = "onboarding"
		s.CurrentState = "Ask"
		s.ExpectedReplyType = domain.ReplyButton
		s.LastContextID = "ctx-1"
		s.MiscData["district"] = "Pune"
		s.MiscData["count"] = 42
		s.Append(domain.LogEntry{FlowID: "onboarding", State: "Welcome", Event: "start"})

		require.NoError(t, store.Save(ctx, s), "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "onboarding", loaded.FlowID)
		assert.Equal(t, "Ask", loaded.CurrentState)
		assert.Equal(t, domain.ReplyButton, loaded.ExpectedReplyType)
		assert.Equal(t, "ctx-1", loaded.LastContextID)
		assert.Equal(t, "Pune", loaded.MiscData["district"])
		// JSON persistence turns numbers into float64; existence is enough.
		assert.NotNil(t, loaded.MiscData["count"])
		require.Len(t, loaded.Log, 1)
		assert.Equal(t, "start", loaded.Log[0].Event)
	})

	t.Run("Load returns a copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.CurrentState = "Mutated"
		loaded.MiscData["district"] = "Nashik"

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "Ask", again.CurrentState)
		assert.Equal(t, "Pune", again.MiscData["district"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Archive and History", func(t *testing.T) {
		id := sessionID + "-archive"
		s := domain.NewSession(id)
		s.FlowID = "survey"
		s.CurrentState = "Done"
		s.MiscData["answer"] = "yes"
		s.Append(domain.LogEntry{State: "Ask", Event: "yes"})
		s.Append(domain.LogEntry{State: "Done", Event: "success"})

		rec, err := store.Archive(ctx, s, domain.ReasonFinished)
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, id, rec.SessionID)

		_, err = store.Archive(ctx, s, domain.ReasonAbandoned)
		require.NoError(t, err)

		history, err := store.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, domain.ReasonFinished, history[0].Reason)
		assert.Equal(t, domain.ReasonAbandoned, history[1].Reason)
		assert.Equal(t, "survey", history[0].FlowID)
		assert.Len(t, history[0].Log, 2)
		assert.Equal(t, "yes", history[0].MiscData["answer"])

		empty, err := store.History(ctx, "never-archived-"+sessionID)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewSession(sessionID)))

		require.NoError(t, store.Delete(ctx, sessionID), "Delete should not return error")

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, domain.NewSession(id1)))
		require.NoError(t, store.Save(ctx, domain.NewSession(id2)))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunDeduplicatorContract verifies the first-delivery semantics of a Deduplicator.
func RunDeduplicatorContract(t *testing.T, dedup Deduplicator) {
	ctx := context.Background()
	id := "contract-msg-" + time.Now().Format("20060102150405.000000")

	first, err := dedup.Claim(ctx, id)
	require.NoError(t, err)
	assert.True(t, first, "first delivery must be claimed")

	again, err := dedup.Claim(ctx, id)
	require.NoError(t, err)
	assert.False(t, again, "redelivery must be rejected")

	other, err := dedup.Claim(ctx, id+"-other")
	require.NoError(t, err)
	assert.True(t, other)
}
