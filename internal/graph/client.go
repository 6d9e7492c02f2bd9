// Package graph is the outbound Graph API client used by the agent. All
// calls go through the credential manager for their bearer token and through
// a shared rate limiter.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"fanpage-agent/internal/token"
)

const (
	// codeSessionExpired mirrors the platform code the token manager treats
	// as authoritative expiry; a call failing with it is retried once after a
	// forced refresh.
	codeSessionExpired = 190

	defaultTimeout = 30 * time.Second
)

// TokenSource yields a currently valid bearer credential.
type TokenSource interface {
	GetValidToken(ctx context.Context, forceRefresh bool) (token.Credential, error)
}

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a decoded platform error envelope.
type APIError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Subcode int    `json:"error_subcode"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error %d: %s", e.Code, e.Message)
}

// Page is a page the credential can manage.
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token,omitempty"`
}

// Post is a published page post.
type Post struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

// Comment is a single comment on a post.
type Comment struct {
	ID        string
	PostID    string
	Author    string
	AuthorID  string
	AvatarURL string
	Message   string
	CreatedAt time.Time
	Permalink string
}

type Client struct {
	baseURL string
	version string
	tokens  TokenSource
	client  HTTPClient
	limiter *rate.Limiter
	log     zerolog.Logger
}

type ClientConfig struct {
	BaseURL string
	Version string
	Tokens  TokenSource
	// Client is optional; a timeout-configured http.Client is used otherwise.
	Client  HTTPClient
	Limiter *rate.Limiter
	Logger  zerolog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = token.DefaultGraphBaseURL
	}
	version := cfg.Version
	if version == "" {
		version = token.DefaultGraphVersion
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(2), 5)
	}
	return &Client{
		baseURL: baseURL,
		version: version,
		tokens:  cfg.Tokens,
		client:  client,
		limiter: limiter,
		log:     cfg.Logger.With().Str("component", "graph").Logger(),
	}
}

// ListPages returns the pages visible to the credential.
func (c *Client) ListPages(ctx context.Context) ([]Page, error) {
	var out struct {
		Data []Page `json:"data"`
	}
	params := url.Values{}
	if err := c.call(ctx, http.MethodGet, "me/accounts", params, &out); err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	return out.Data, nil
}

// ListRecentPosts returns the most recent posts of a page. published_posts
// needs a page token; when the platform rejects it the plain posts edge is
// used instead.
func (c *Client) ListRecentPosts(ctx context.Context, pageID string, limit int) ([]Post, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", limit))

	var out struct {
		Data []Post `json:"data"`
	}
	err := c.call(ctx, http.MethodGet, pageID+"/published_posts", params, &out)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return nil, fmt.Errorf("failed to list posts: %w", err)
		}
		c.log.Warn().Err(apiErr).Str("page_id", pageID).Msg("published_posts rejected, falling back to posts")
		if err := c.call(ctx, http.MethodGet, pageID+"/posts", params, &out); err != nil {
			return nil, fmt.Errorf("failed to list posts: %w", err)
		}
	}
	return out.Data, nil
}

type rawComment struct {
	ID   string `json:"id"`
	From struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	} `json:"from"`
	Message      string `json:"message"`
	CreatedTime  string `json:"created_time"`
	PermalinkURL string `json:"permalink_url"`
}

// ListComments returns the newest comments on a post.
func (c *Client) ListComments(ctx context.Context, postID string, limit int) ([]Comment, error) {
	params := url.Values{}
	params.Set("filter", "stream")
	params.Set("order", "reverse_chronological")
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("fields", "from{id,name,picture},message,created_time,permalink_url,id")

	var out struct {
		Data []rawComment `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, postID+"/comments", params, &out); err != nil {
		return nil, fmt.Errorf("failed to list comments for %s: %w", postID, err)
	}

	comments := make([]Comment, 0, len(out.Data))
	for _, rc := range out.Data {
		if rc.ID == "" {
			continue
		}
		comments = append(comments, Comment{
			ID:        rc.ID,
			PostID:    postID,
			Author:    rc.From.Name,
			AuthorID:  rc.From.ID,
			AvatarURL: rc.From.Picture.Data.URL,
			Message:   rc.Message,
			CreatedAt: parseGraphTime(rc.CreatedTime),
			Permalink: rc.PermalinkURL,
		})
	}
	return comments, nil
}

// ReplyToComment posts a public reply under a comment and returns the new
// comment's id.
func (c *Client) ReplyToComment(ctx context.Context, commentID, message string) (string, error) {
	params := url.Values{}
	params.Set("message", message)
	params.Set("is_hidden", "false")

	var out struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, commentID+"/comments", params, &out); err != nil {
		return "", fmt.Errorf("failed to reply to %s: %w", commentID, err)
	}
	return out.ID, nil
}

// HideComment hides a comment from the public timeline.
func (c *Client) HideComment(ctx context.Context, commentID string) error {
	params := url.Values{}
	params.Set("is_hidden", "true")

	var out struct {
		Success bool `json:"success"`
	}
	if err := c.call(ctx, http.MethodPost, commentID, params, &out); err != nil {
		return fmt.Errorf("failed to hide %s: %w", commentID, err)
	}
	return nil
}

// call performs one Graph API request. When the platform answers with the
// session-expired code the call is retried exactly once after forcing the
// token manager through a refresh.
func (c *Client) call(ctx context.Context, method, path string, params url.Values, out interface{}) error {
	err := c.doOnce(ctx, method, path, params, out, false)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeSessionExpired {
		c.log.Warn().Str("path", path).Msg("session expired mid-call, forcing token refresh")
		return c.doOnce(ctx, method, path, params, out, true)
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, params url.Values, out interface{}, forceRefresh bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	cred, err := c.tokens.GetValidToken(ctx, forceRefresh)
	if err != nil {
		return fmt.Errorf("no valid credential: %w", err)
	}
	params.Set("access_token", cred.Value)

	u := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, c.version, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error APIError `json:"error"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != 0 {
			return &envelope.Error
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseGraphTime handles the +0000 offset format the platform emits.
func parseGraphTime(value string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Now().UTC()
}
