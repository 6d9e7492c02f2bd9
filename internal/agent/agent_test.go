package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanpage-agent/internal/graph"
	"fanpage-agent/internal/report"
)

type fakeAPI struct {
	pages    []graph.Page
	posts    []graph.Post
	comments map[string][]graph.Comment

	pageCalls int
	replies   []string
	hidden    []string
	replyErr  error
}

func (f *fakeAPI) ListPages(ctx context.Context) ([]graph.Page, error) {
	f.pageCalls++
	return f.pages, nil
}

func (f *fakeAPI) ListRecentPosts(ctx context.Context, pageID string, limit int) ([]graph.Post, error) {
	return f.posts, nil
}

func (f *fakeAPI) ListComments(ctx context.Context, postID string, limit int) ([]graph.Comment, error) {
	return f.comments[postID], nil
}

func (f *fakeAPI) ReplyToComment(ctx context.Context, commentID, message string) (string, error) {
	if f.replyErr != nil {
		return "", f.replyErr
	}
	f.replies = append(f.replies, commentID)
	return commentID + "_reply", nil
}

func (f *fakeAPI) HideComment(ctx context.Context, commentID string) error {
	f.hidden = append(f.hidden, commentID)
	return nil
}

type fakeLog struct {
	records []report.Record
	seeded  map[string]bool
}

func (f *fakeLog) Append(rec report.Record) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeLog) ProcessedIDs() (map[string]bool, error) {
	return f.seeded, nil
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pages: []graph.Page{{ID: "p1", Name: "Shop ABC"}},
		posts: []graph.Post{{ID: "post_1"}},
		comments: map[string][]graph.Comment{
			"post_1": {
				{ID: "c1", PostID: "post_1", Author: "Lan", Message: "giá bao nhiêu", CreatedAt: time.Now()},
				{ID: "c2", PostID: "post_1", Author: "Bot", Message: "vay nhanh tại https://spam.example", CreatedAt: time.Now()},
			},
		},
	}
}

func TestRunCycle(t *testing.T) {
	t.Run("classifies, acts and records", func(t *testing.T) {
		api := newFakeAPI()
		actions := &fakeLog{}
		ag, err := New(Config{API: api, Actions: actions, Logger: zerolog.Nop()})
		require.NoError(t, err)

		summary, err := ag.RunCycle(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 2, summary.Fetched)
		assert.Equal(t, 1, summary.Replied)
		assert.Equal(t, 1, summary.Hidden)
		assert.Equal(t, []string{"c1"}, api.replies)
		assert.Equal(t, []string{"c2"}, api.hidden)

		require.Len(t, actions.records, 2)
		assert.Equal(t, "ask_price", actions.records[0].Intent)
		assert.Equal(t, "spam", actions.records[1].Intent)
	})

	t.Run("already processed comments are skipped", func(t *testing.T) {
		api := newFakeAPI()
		actions := &fakeLog{seeded: map[string]bool{"c1": true, "c2": true}}
		ag, err := New(Config{API: api, Actions: actions, Logger: zerolog.Nop()})
		require.NoError(t, err)

		summary, err := ag.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Fetched)
		assert.Equal(t, 2, summary.Skipped)
		assert.Empty(t, api.replies)
		assert.Empty(t, actions.records)
	})

	t.Run("a second cycle does not repeat actions", func(t *testing.T) {
		api := newFakeAPI()
		actions := &fakeLog{}
		ag, err := New(Config{API: api, Actions: actions, Logger: zerolog.Nop()})
		require.NoError(t, err)

		_, err = ag.RunCycle(context.Background())
		require.NoError(t, err)
		summary, err := ag.RunCycle(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 0, summary.Fetched)
		assert.Equal(t, 2, summary.Skipped)
		assert.Len(t, api.replies, 1)
		assert.Len(t, actions.records, 2)
	})

	t.Run("page is resolved once and remembered", func(t *testing.T) {
		api := newFakeAPI()
		ag, err := New(Config{API: api, Actions: &fakeLog{}, Logger: zerolog.Nop()})
		require.NoError(t, err)

		_, err = ag.RunCycle(context.Background())
		require.NoError(t, err)
		_, err = ag.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, api.pageCalls)
	})

	t.Run("configured page skips discovery", func(t *testing.T) {
		api := newFakeAPI()
		ag, err := New(Config{API: api, Actions: &fakeLog{}, Logger: zerolog.Nop(), PageID: "p1"})
		require.NoError(t, err)

		_, err = ag.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, api.pageCalls)
	})

	t.Run("failed reply is counted and recorded", func(t *testing.T) {
		api := newFakeAPI()
		api.comments["post_1"] = api.comments["post_1"][:1] // only the ask_price comment
		api.replyErr = errors.New("permissions error")
		actions := &fakeLog{}
		ag, err := New(Config{API: api, Actions: actions, Logger: zerolog.Nop()})
		require.NoError(t, err)

		summary, err := ag.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Errors)
		assert.Equal(t, 0, summary.Replied)
		require.Len(t, actions.records, 1)
		assert.Contains(t, actions.records[0].Detail, "reply failed")
	})
}

func TestRunStopsAfterRequestedCycles(t *testing.T) {
	api := newFakeAPI()
	ag, err := New(Config{API: api, Actions: &fakeLog{}, Logger: zerolog.Nop()})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- ag.Run(context.Background(), 1, time.Hour)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the requested cycle count")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	api := newFakeAPI()
	ag, err := New(Config{API: api, Actions: &fakeLog{}, Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ag.Run(ctx, 0, time.Hour)
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
