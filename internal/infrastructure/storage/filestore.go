package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"WeeklyDigest/internal/domain"
	"WeeklyDigest/internal/ports"
)

// FileStore keeps one JSON file per week key. Writes go through a temp file
// and a rename so a concurrent dashboard read never sees a partial record.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

var _ ports.PostStore = (*FileStore)(nil)

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create posts dir: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Save overwrites the record for its week key.
func (s *FileStore) Save(_ context.Context, record domain.PostRecord) error {
	if !domain.ValidWeekKey(record.WeekKey) {
		return fmt.Errorf("save post: invalid week key %q", record.WeekKey)
	}

	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal post %s: %w", record.WeekKey, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, record.WeekKey+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write post %s: %w", record.WeekKey, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(record.WeekKey)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename post %s: %w", record.WeekKey, err)
	}
	return nil
}

// Load returns the record for weekKey; absence is reported via the bool.
func (s *FileStore) Load(_ context.Context, weekKey string) (domain.PostRecord, bool, error) {
	if !domain.ValidWeekKey(weekKey) {
		return domain.PostRecord{}, false, fmt.Errorf("load post: invalid week key %q", weekKey)
	}

	raw, err := os.ReadFile(s.path(weekKey))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.PostRecord{}, false, nil
	}
	if err != nil {
		return domain.PostRecord{}, false, fmt.Errorf("read post %s: %w", weekKey, err)
	}

	var record domain.PostRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.PostRecord{}, false, fmt.Errorf("decode post %s: %w", weekKey, err)
	}
	return record, true, nil
}

// List returns records sorted newest-first, optionally filtered by status.
// A non-positive limit returns everything. Corrupted files are skipped.
func (s *FileStore) List(_ context.Context, status domain.PostStatus, limit int) ([]domain.PostRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read posts dir: %w", err)
	}

	records := make([]domain.PostRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var record domain.PostRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping corrupted post file", "file", entry.Name(), "error", err)
			}
			continue
		}
		if status != "" && record.Status != status {
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Delete removes the record for weekKey.
func (s *FileStore) Delete(_ context.Context, weekKey string) error {
	if !domain.ValidWeekKey(weekKey) {
		return fmt.Errorf("delete post: invalid week key %q", weekKey)
	}
	if err := os.Remove(s.path(weekKey)); err != nil {
		return fmt.Errorf("delete post %s: %w", weekKey, err)
	}
	return nil
}

func (s *FileStore) path(weekKey string) string {
	return filepath.Join(s.dir, weekKey+".json")
}
