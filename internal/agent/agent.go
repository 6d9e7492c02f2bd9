// Package agent runs the polling cycle: fetch new comments, classify them,
// execute the scripted actions and record what was done.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"fanpage-agent/internal/classify"
	"fanpage-agent/internal/graph"
	"fanpage-agent/internal/report"
)

// GraphAPI is the slice of the graph client the agent uses.
type GraphAPI interface {
	ListPages(ctx context.Context) ([]graph.Page, error)
	ListRecentPosts(ctx context.Context, pageID string, limit int) ([]graph.Post, error)
	ListComments(ctx context.Context, postID string, limit int) ([]graph.Comment, error)
	ReplyToComment(ctx context.Context, commentID, message string) (string, error)
	HideComment(ctx context.Context, commentID string) error
}

// ActionLog records executed actions and remembers which comments were
// already handled.
type ActionLog interface {
	Append(report.Record) error
	ProcessedIDs() (map[string]bool, error)
}

// CycleSummary counts what one polling cycle did.
type CycleSummary struct {
	Fetched int
	Replied int
	Hidden  int
	Skipped int
	Errors  int
}

type Agent struct {
	api          GraphAPI
	actions      ActionLog
	clock        clockwork.Clock
	log          zerolog.Logger
	pageID       string
	postLimit    int
	commentLimit int
	seen         map[string]bool
}

type Config struct {
	API     GraphAPI
	Actions ActionLog
	Clock   clockwork.Clock
	Logger  zerolog.Logger
	// PageID may be empty; the first page visible to the credential is used.
	PageID       string
	PostLimit    int
	CommentLimit int
}

func New(cfg Config) (*Agent, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	postLimit := cfg.PostLimit
	if postLimit <= 0 {
		postLimit = 5
	}
	commentLimit := cfg.CommentLimit
	if commentLimit <= 0 {
		commentLimit = 25
	}

	seen, err := cfg.Actions.ProcessedIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to load processed comments: %w", err)
	}
	if seen == nil {
		seen = map[string]bool{}
	}

	return &Agent{
		api:          cfg.API,
		actions:      cfg.Actions,
		clock:        clock,
		log:          cfg.Logger.With().Str("component", "agent").Logger(),
		pageID:       cfg.PageID,
		postLimit:    postLimit,
		commentLimit: commentLimit,
		seen:         seen,
	}, nil
}

// Run executes cycles on a fixed interval. cycles == 0 means run until the
// context is cancelled.
func (a *Agent) Run(ctx context.Context, cycles int, interval time.Duration) error {
	count := 0
	for {
		count++
		summary, err := a.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A broken cycle is logged, not fatal: the next tick retries.
			a.log.Error().Err(err).Int("cycle", count).Msg("cycle failed")
		} else {
			a.log.Info().
				Int("cycle", count).
				Int("fetched", summary.Fetched).
				Int("replied", summary.Replied).
				Int("hidden", summary.Hidden).
				Int("skipped", summary.Skipped).
				Msg("cycle finished")
		}

		if cycles > 0 && count >= cycles {
			return nil
		}

		select {
		case <-ctx.Done():
			a.log.Debug().Msg("shutting down")
			return ctx.Err()
		case <-a.clock.After(interval):
		}
	}
}

// RunCycle polls once: recent posts, their new comments, classify, act,
// record.
func (a *Agent) RunCycle(ctx context.Context) (CycleSummary, error) {
	var summary CycleSummary

	pageID, err := a.resolvePage(ctx)
	if err != nil {
		return summary, err
	}

	posts, err := a.api.ListRecentPosts(ctx, pageID, a.postLimit)
	if err != nil {
		return summary, fmt.Errorf("failed to list posts: %w", err)
	}

	for _, post := range posts {
		comments, err := a.api.ListComments(ctx, post.ID, a.commentLimit)
		if err != nil {
			a.log.Warn().Err(err).Str("post_id", post.ID).Msg("comment fetch failed, skipping post")
			summary.Errors++
			continue
		}

		for _, comment := range comments {
			if a.seen[comment.ID] {
				summary.Skipped++
				continue
			}
			summary.Fetched++
			a.handleComment(ctx, comment, &summary)
		}
	}

	return summary, nil
}

func (a *Agent) handleComment(ctx context.Context, comment graph.Comment, summary *CycleSummary) {
	decision := classify.Classify(comment)
	log := a.log.With().
		Str("comment_id", comment.ID).
		Str("intent", string(decision.Intent)).
		Logger()

	var details []string
	for _, action := range decision.Actions {
		switch action {
		case classify.ActionHide:
			if err := a.api.HideComment(ctx, comment.ID); err != nil {
				log.Warn().Err(err).Msg("hide failed")
				details = append(details, fmt.Sprintf("hide failed: %v", err))
				summary.Errors++
				continue
			}
			details = append(details, "hidden")
			summary.Hidden++
		case classify.ActionReply:
			if decision.ReplyText == "" {
				continue
			}
			replyID, err := a.api.ReplyToComment(ctx, comment.ID, decision.ReplyText)
			if err != nil {
				log.Warn().Err(err).Msg("reply failed")
				details = append(details, fmt.Sprintf("reply failed: %v", err))
				summary.Errors++
				continue
			}
			details = append(details, "replied "+replyID)
			summary.Replied++
		case classify.ActionOpenInbox:
			// No messaging surface yet; the nudge lives in the reply text.
			details = append(details, "inbox nudge")
		}
	}

	actions := make([]string, 0, len(decision.Actions))
	for _, action := range decision.Actions {
		actions = append(actions, string(action))
	}

	rec := report.Record{
		CommentID: comment.ID,
		PostID:    comment.PostID,
		Author:    comment.Author,
		Message:   comment.Message,
		Intent:    string(decision.Intent),
		Actions:   actions,
		Detail:    strings.Join(details, "; "),
		ReplyText: decision.ReplyText,
		Timestamp: comment.CreatedAt,
	}
	if err := a.actions.Append(rec); err != nil {
		log.Error().Err(err).Msg("failed to record action")
		summary.Errors++
		return
	}
	a.seen[comment.ID] = true
	log.Info().Str("detail", rec.Detail).Msg("comment handled")
}

// resolvePage picks the configured page, or the first one the credential can
// see, and remembers it for later cycles.
func (a *Agent) resolvePage(ctx context.Context) (string, error) {
	if a.pageID != "" {
		return a.pageID, nil
	}
	pages, err := a.api.ListPages(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list pages: %w", err)
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("credential has no pages")
	}
	a.pageID = pages[0].ID
	a.log.Info().Str("page_id", pages[0].ID).Str("page_name", pages[0].Name).Msg("selected page")
	return a.pageID, nil
}
