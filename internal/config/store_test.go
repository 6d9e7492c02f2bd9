package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestStoreLoad(t *testing.T) {
	t.Run("reads the credential fields", func(t *testing.T) {
		path := writeConfig(t, `{
			"graph_access_token": "tok-123",
			"facebook_app_id": "app",
			"facebook_app_secret": "secret",
			"token_expires_at": "2026-09-01T00:00:00Z",
			"page_id": "42"
		}`)

		rec, err := NewStore(path).Load()
		require.NoError(t, err)
		assert.Equal(t, "tok-123", rec.AccessToken)
		assert.Equal(t, "app", rec.AppID)
		assert.Equal(t, "secret", rec.AppSecret)
		require.NotNil(t, rec.ExpiresAt)
		assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), rec.ExpiresAt.UTC())
		assert.True(t, rec.HasAppCredentials())
	})

	t.Run("placeholder tokens count as absent", func(t *testing.T) {
		for _, placeholder := range []string{"${GRAPH_ACCESS_TOKEN}", "YOUR_TOKEN"} {
			path := writeConfig(t, `{"graph_access_token": "`+placeholder+`"}`)
			rec, err := NewStore(path).Load()
			require.NoError(t, err)
			assert.Empty(t, rec.AccessToken)
		}
	})

	t.Run("missing file yields an empty record", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "nope.json"))
		rec, err := store.Load()
		require.NoError(t, err)
		assert.Empty(t, rec.AccessToken)
		assert.False(t, rec.HasAppCredentials())
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		path := writeConfig(t, `{"graph_access_token": `)
		_, err := NewStore(path).Load()
		require.Error(t, err)
	})
}

func TestStoreSave(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		store := NewStore(path)

		expires := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
		rec := Record{
			AccessToken: "tok-456",
			AppID:       "app",
			AppSecret:   "secret",
			ExpiresAt:   &expires,
		}
		require.NoError(t, store.Save(rec))

		got, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, rec.AccessToken, got.AccessToken)
		assert.Equal(t, rec.AppID, got.AppID)
		assert.Equal(t, rec.AppSecret, got.AppSecret)
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, expires.Equal(*got.ExpiresAt))
	})

	t.Run("unrelated sibling fields survive", func(t *testing.T) {
		path := writeConfig(t, `{
			"graph_access_token": "tok-old",
			"page_id": "42",
			"reply_templates": {"greeting": "xin chào"},
			"poll_interval": 300
		}`)
		store := NewStore(path)

		require.NoError(t, store.Save(Record{AccessToken: "tok-new"}))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		var doc map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &doc))

		assert.JSONEq(t, `"tok-new"`, string(doc["graph_access_token"]))
		assert.JSONEq(t, `"42"`, string(doc["page_id"]))
		assert.JSONEq(t, `{"greeting": "xin chào"}`, string(doc["reply_templates"]))
		assert.JSONEq(t, `300`, string(doc["poll_interval"]))
	})

	t.Run("refuses an empty token", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "config.json"))
		require.Error(t, store.Save(Record{}))
	})

	t.Run("does not leave temp files behind", func(t *testing.T) {
		dir := t.TempDir()
		store := NewStore(filepath.Join(dir, "config.json"))
		require.NoError(t, store.Save(Record{AccessToken: "tok"}))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "config.json", entries[0].Name())
	})
}

func TestRecordMergeEnv(t *testing.T) {
	settings := &Settings{
		AccessToken: "env-tok",
		AppID:       "env-app",
		AppSecret:   "env-secret",
	}

	t.Run("environment fills empty fields", func(t *testing.T) {
		rec := Record{}.MergeEnv(settings)
		assert.Equal(t, "env-tok", rec.AccessToken)
		assert.Equal(t, "env-app", rec.AppID)
		assert.Equal(t, "env-secret", rec.AppSecret)
	})

	t.Run("persisted record wins", func(t *testing.T) {
		rec := Record{AccessToken: "file-tok", AppID: "file-app", AppSecret: "file-secret"}.MergeEnv(settings)
		assert.Equal(t, "file-tok", rec.AccessToken)
		assert.Equal(t, "file-app", rec.AppID)
		assert.Equal(t, "file-secret", rec.AppSecret)
	})
}
