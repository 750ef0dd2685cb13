package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhand-io/deckhand/pkg/models"
)

// testStoreContract runs the SessionStore guarantees against one backend.
// Session ids are unique per subtest so backends sharing external state
// between runs stay clean.
func testStoreContract(t *testing.T, open func(t *testing.T) SessionStore) {
	t.Helper()

	entry := func(sequence int, messageID, content string) models.ConversationEntry {
		return models.ConversationEntry{
			MessageID:      messageID,
			Role:           models.RoleAssistant,
			State:          models.StateAskClarifyingQuestions,
			ContentVariant: models.ContentText,
			Content:        content,
			Timestamp:      time.Now().UTC().Truncate(time.Microsecond),
			Sequence:       sequence,
		}
	}

	t.Run("get or create is idempotent", func(t *testing.T) {
		s := open(t)
		sessionID := "sess_" + uuid.NewString()

		created, err := s.GetOrCreate(context.Background(), sessionID, "user_1")
		require.NoError(t, err)
		assert.Equal(t, sessionID, created.SessionID)
		assert.Equal(t, "user_1", created.UserID)
		assert.Equal(t, models.StateProvideGreeting, created.CurrentState)
		assert.Empty(t, created.ConversationHistory)
		assert.False(t, created.CreatedAt.IsZero())

		// A second connect, even with another user id, returns the
		// existing session untouched.
		again, err := s.GetOrCreate(context.Background(), sessionID, "user_2")
		require.NoError(t, err)
		assert.Equal(t, "user_1", again.UserID)
		assert.Equal(t, models.StateProvideGreeting, again.CurrentState)
	})

	t.Run("get unknown session", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(context.Background(), "sess_"+uuid.NewString())
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("save replaces mutable fields but never history", func(t *testing.T) {
		s := open(t)
		sessionID := "sess_" + uuid.NewString()

		session, err := s.GetOrCreate(context.Background(), sessionID, "user_1")
		require.NoError(t, err)
		require.NoError(t, s.AppendHistory(context.Background(), sessionID, entry(1, "msg_1", "Hello!")))

		// Save a stale copy that never saw the history entry.
		session.CurrentState = models.StateGenerateStrawman
		session.Strawman = &models.PresentationStrawman{
			MainTitle:      "Expansion Plan",
			TargetAudience: "board of directors",
			Slides: []models.Slide{
				{SlideID: "slide_001", SlideNumber: 1, Title: "Expansion Plan", VariantID: "title_hero"},
				{SlideID: "slide_002", SlideNumber: 2, Title: "Summary", VariantID: "summary_grid"},
			},
		}
		session.FinalPresentationURL = "http://decks.local/presentations/p1"
		require.NoError(t, s.Save(context.Background(), session))

		loaded, err := s.Get(context.Background(), sessionID)
		require.NoError(t, err)
		assert.Equal(t, models.StateGenerateStrawman, loaded.CurrentState)
		assert.Equal(t, "http://decks.local/presentations/p1", loaded.FinalPresentationURL)
		require.NotNil(t, loaded.Strawman)
		assert.Equal(t, "Expansion Plan", loaded.Strawman.MainTitle)
		require.Len(t, loaded.Strawman.Slides, 2)
		assert.Equal(t, "summary_grid", loaded.Strawman.Slides[1].VariantID)

		require.Len(t, loaded.ConversationHistory, 1)
		assert.Equal(t, "msg_1", loaded.ConversationHistory[0].MessageID)
	})

	t.Run("save unknown session", func(t *testing.T) {
		s := open(t)
		err := s.Save(context.Background(), models.NewSession("sess_"+uuid.NewString(), "user_1"))
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("history is ordered and idempotent by message id", func(t *testing.T) {
		s := open(t)
		sessionID := "sess_" + uuid.NewString()

		_, err := s.GetOrCreate(context.Background(), sessionID, "user_1")
		require.NoError(t, err)

		for i := 1; i <= 3; i++ {
			e := entry(i, fmt.Sprintf("msg_%d", i), fmt.Sprintf("message %d", i))
			require.NoError(t, s.AppendHistory(context.Background(), sessionID, e))
		}
		// Replaying an already-appended entry is a no-op.
		require.NoError(t, s.AppendHistory(context.Background(), sessionID, entry(2, "msg_2", "message 2")))

		loaded, err := s.Get(context.Background(), sessionID)
		require.NoError(t, err)
		require.Len(t, loaded.ConversationHistory, 3)
		for i, got := range loaded.ConversationHistory {
			assert.Equal(t, i+1, got.Sequence)
			assert.Equal(t, fmt.Sprintf("msg_%d", i+1), got.MessageID)
			assert.Equal(t, fmt.Sprintf("message %d", i+1), got.Content)
			assert.Equal(t, models.RoleAssistant, got.Role)
			assert.False(t, got.Timestamp.IsZero())
		}
	})

	t.Run("append to unknown session", func(t *testing.T) {
		s := open(t)
		err := s.AppendHistory(context.Background(), "sess_"+uuid.NewString(), entry(1, "msg_1", "Hello!"))
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("ping", func(t *testing.T) {
		s := open(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
