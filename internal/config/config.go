// Package config provides the agent settings (environment driven) and the
// persisted credential record store backed by config.json.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

// Settings holds process-level configuration read from the environment.
type Settings struct {
	// ConfigPath is the path of the persisted JSON record (config.json).
	ConfigPath string
	// ReportPath is the path of the JSON action log.
	ReportPath string

	// LogLevel is the logging level (debug, info, warn, error).
	LogLevel string

	// GraphVersion is the Graph API version prefix, e.g. "v24.0".
	GraphVersion string
	// PageID is the page whose posts are polled. Empty means the first page
	// returned by /me/accounts.
	PageID string

	// PollInterval is the pause between polling cycles.
	PollInterval time.Duration
	// PostLimit caps how many recent posts are scanned per cycle.
	PostLimit int
	// CommentLimit caps how many comments are fetched per post.
	CommentLimit int

	// RateLimitPerSec throttles outbound Graph calls.
	RateLimitPerSec float64
	// RateLimitBurst is the rate limiter burst size.
	RateLimitBurst int

	// ExtractTimeout bounds the interactive token prompt.
	ExtractTimeout time.Duration

	// AccessToken, AppID and AppSecret are environment-level credential
	// values. They only fill fields the persisted record leaves empty; the
	// record always wins when both are set.
	AccessToken string
	AppID       string
	AppSecret   string
}

// Load loads settings from environment variables and an optional .env file.
func Load() *Settings {
	loadDotEnv()

	return &Settings{
		ConfigPath: env.GetString("CONFIG_PATH", "config.json"),
		ReportPath: env.GetString("REPORT_PATH", "data/actions.json"),

		LogLevel: env.GetString("LOG_LEVEL", "info"),

		GraphVersion: env.GetString("GRAPH_VERSION", "v24.0"),
		PageID:       env.GetString("PAGE_ID", ""),

		PollInterval: env.GetDuration("POLL_INTERVAL_SECONDS", 300, time.Second),
		PostLimit:    env.GetInt("POST_LIMIT", 5),
		CommentLimit: env.GetInt("COMMENT_LIMIT", 25),

		RateLimitPerSec: env.GetFloat64("RATE_LIMIT_PER_SEC", 2.0),
		RateLimitBurst:  env.GetInt("RATE_LIMIT_BURST", 5),

		ExtractTimeout: env.GetDuration("EXTRACT_TIMEOUT_SECONDS", 180, time.Second),

		AccessToken: env.GetString("GRAPH_ACCESS_TOKEN", ""),
		AppID:       env.GetString("FACEBOOK_APP_ID", ""),
		AppSecret:   env.GetString("FACEBOOK_APP_SECRET", ""),
	}
}

// loadDotEnv searches for a .env file from the current directory up to the
// root directory and loads it if found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
