package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	t.Run("append assigns ids and round-trips", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "actions.json"))

		rec := Record{
			CommentID: "c1",
			PostID:    "p1",
			Author:    "Lan",
			Message:   "giá bao nhiêu",
			Intent:    "ask_price",
			Actions:   []string{"reply"},
			ReplyText: "xin chào",
			Timestamp: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		}
		require.NoError(t, store.Append(rec))
		require.NoError(t, store.Append(Record{CommentID: "c2", Intent: "spam", Actions: []string{"hide"}}))

		all, err := store.All()
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.NotEmpty(t, all[0].ID)
		assert.NotEmpty(t, all[1].ID)
		assert.NotEqual(t, all[0].ID, all[1].ID)
		assert.Equal(t, "c1", all[0].CommentID)
		assert.Equal(t, "ask_price", all[0].Intent)
		assert.False(t, all[1].Timestamp.IsZero())
	})

	t.Run("processed ids cover every recorded comment", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "actions.json"))
		require.NoError(t, store.Append(Record{CommentID: "c1"}))
		require.NoError(t, store.Append(Record{CommentID: "c2"}))

		ids, err := store.ProcessedIDs()
		require.NoError(t, err)
		assert.True(t, ids["c1"])
		assert.True(t, ids["c2"])
		assert.False(t, ids["c3"])
	})

	t.Run("missing file means nothing processed", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "actions.json"))
		ids, err := store.ProcessedIDs()
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}
