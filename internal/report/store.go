// Package report keeps the JSON-backed action log. The processed-comment set
// is derived from it so a restart does not re-answer old comments.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one executed action, as appended after each handled comment.
type Record struct {
	ID        string    `json:"id"`
	CommentID string    `json:"comment_id"`
	PostID    string    `json:"post_id"`
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	Intent    string    `json:"intent"`
	Actions   []string  `json:"actions"`
	Detail    string    `json:"detail,omitempty"`
	ReplyText string    `json:"reply_text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is a file-backed append log.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Append adds a record, assigning it an id when empty.
func (s *Store) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	records, err := s.readAll()
	if err != nil {
		return err
	}
	records = append(records, rec)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal action log: %w", err)
	}
	data = append(data, '\n')

	return s.replaceFile(data)
}

// All returns every recorded action.
func (s *Store) All() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

// ProcessedIDs returns the set of comment ids that already have a record.
func (s *Store) ProcessedIDs() (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(records))
	for _, rec := range records {
		ids[rec.CommentID] = true
	}
	return ids, nil
}

func (s *Store) readAll() ([]Record, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read action log: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("failed to parse action log: %w", err)
	}
	return records, nil
}

func (s *Store) replaceFile(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp log file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp log file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp log file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace log file: %w", err)
	}
	return nil
}
