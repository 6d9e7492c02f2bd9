package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	keyAccessToken = "graph_access_token"
	keyAppID       = "facebook_app_id"
	keyAppSecret   = "facebook_app_secret"
	keyExpiresAt   = "token_expires_at"
)

// Record is the credential slice of the persisted config document. Unrelated
// keys in the same document are preserved untouched across Save.
type Record struct {
	AccessToken string
	AppID       string
	AppSecret   string
	// ExpiresAt is nil when the expiry is unknown.
	ExpiresAt *time.Time
}

// HasAppCredentials reports whether both app secrets needed for an OAuth
// exchange are present.
func (r Record) HasAppCredentials() bool {
	return r.AppID != "" && r.AppSecret != ""
}

// MergeEnv fills empty record fields from environment-level values. The
// persisted record always wins; nothing from the environment is written back.
func (r Record) MergeEnv(s *Settings) Record {
	if r.AccessToken == "" {
		r.AccessToken = s.AccessToken
	}
	if r.AppID == "" {
		r.AppID = s.AppID
	}
	if r.AppSecret == "" {
		r.AppSecret = s.AppSecret
	}
	return r
}

// Store reads and writes the persisted credential record. Writes are
// serialized and replace the file atomically, so a partially written document
// is never observable by a subsequent Load.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the record from disk. A missing file yields an empty record so a
// fresh install can be seeded from the environment.
func (s *Store) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		AccessToken: stringField(doc, keyAccessToken),
		AppID:       stringField(doc, keyAppID),
		AppSecret:   stringField(doc, keyAppSecret),
	}
	if raw := stringField(doc, keyExpiresAt); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			rec.ExpiresAt = &ts
		}
	}

	// Placeholder tokens from a template config count as absent.
	if strings.Contains(rec.AccessToken, "${") || rec.AccessToken == "YOUR_TOKEN" {
		rec.AccessToken = ""
	}

	return rec, nil
}

// Save writes the record back, preserving every sibling key in the document.
func (s *Store) Save(rec Record) error {
	if rec.AccessToken == "" {
		return fmt.Errorf("refusing to persist empty access token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}

	setStringField(doc, keyAccessToken, rec.AccessToken)
	if rec.AppID != "" {
		setStringField(doc, keyAppID, rec.AppID)
	}
	if rec.AppSecret != "" {
		setStringField(doc, keyAppSecret, rec.AppSecret)
	}
	if rec.ExpiresAt != nil {
		setStringField(doc, keyExpiresAt, rec.ExpiresAt.UTC().Format(time.RFC3339))
	} else {
		delete(doc, keyExpiresAt)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config document: %w", err)
	}
	data = append(data, '\n')

	return s.replaceFile(data)
}

// readDocument loads the raw document, keeping unknown fields opaque.
func (s *Store) readDocument() (map[string]json.RawMessage, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return doc, nil
}

// replaceFile writes data to a temp file in the target directory and renames
// it over the destination.
func (s *Store) replaceFile(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp config file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod temp config file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

func stringField(doc map[string]json.RawMessage, key string) string {
	raw, ok := doc[key]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}

func setStringField(doc map[string]json.RawMessage, key, value string) {
	b, _ := json.Marshal(value)
	doc[key] = b
}
