package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/twin3/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunConversationStoreContract runs a suite of tests to verify that a ConversationStore
// implementation adheres to the defined interface contract.
func RunConversationStoreContract(t *testing.T, store ConversationStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		conv := domain.NewConversation(sessionID, time.Now())
		conv.Messages = append(conv.Messages, domain.AssistantText("hello", time.Now()))
		conv.Suggestions = []domain.Suggestion{{Label: "Verify", Payload: "verify_start"}}
		conv.Completed = []string{"email"}
		conv.Verified = true
		conv.Generation = 3

		err := store.Save(ctx, sessionID, conv)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, sessionID, loaded.SessionID)
		require.Len(t, loaded.Messages, 1)
		assert.Equal(t, "hello", loaded.Messages[0].Content)
		assert.Equal(t, conv.Suggestions, loaded.Suggestions)
		assert.Equal(t, []string{"email"}, loaded.Completed)
		assert.True(t, loaded.Verified)
		assert.Equal(t, uint64(3), loaded.Generation)
	})

	t.Run("Load Is Isolated", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Messages = append(loaded.Messages, domain.AssistantText("mutated", time.Now()))

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Len(t, again.Messages, 1, "mutating a loaded conversation must not change the store")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewConversation(sessionID, time.Now()))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewConversation(id1, time.Now()))
		_ = store.Save(ctx, id2, domain.NewConversation(id2, time.Now()))

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

// RunFlagStoreContract verifies a FlagStore implementation.
func RunFlagStoreContract(t *testing.T, store FlagStore) {
	ctx := context.Background()

	t.Run("Missing Key", func(t *testing.T) {
		_, err := store.Get(ctx, "never-set")
		assert.ErrorIs(t, err, domain.ErrFlagNotFound)
	})

	t.Run("Set and Get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "s1:verified", "true"))
		val, err := store.Get(ctx, "s1:verified")
		require.NoError(t, err)
		assert.Equal(t, "true", val)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "s1:score", "51"))
		require.NoError(t, store.Set(ctx, "s1:score", "122"))
		val, err := store.Get(ctx, "s1:score")
		require.NoError(t, err)
		assert.Equal(t, "122", val)
	})
}
