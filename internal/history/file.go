package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"Replaya/internal/replay"
)

// FileStore keeps the replay history in one JSON file, newest entry first,
// capped at maxEntries.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		path = "replay_history.json"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Record(rec replay.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	entries = append([]replay.HistoryRecord{rec}, entries...)
	if len(entries) > maxEntries {
		entries = entries[:maxEntries]
	}
	return s.save(entries)
}

func (s *FileStore) List(q Query) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return Page{}, err
	}

	filtered := entries[:0:0]
	search := strings.ToLower(q.Search)
	for _, e := range entries {
		if q.Status != "" && e.Status != q.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(e.File), search) &&
			!strings.Contains(strings.ToLower(e.Interface), search) {
			continue
		}
		filtered = append(filtered, e)
	}

	total := len(filtered)
	offset := q.Offset
	if offset > total {
		offset = total
	}
	filtered = filtered[offset:]
	if q.Limit > 0 && len(filtered) > q.Limit {
		filtered = filtered[:q.Limit]
	}
	if filtered == nil {
		filtered = []replay.HistoryRecord{}
	}
	return Page{Entries: filtered, Total: total}, nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save([]replay.HistoryRecord{})
}

func (s *FileStore) load() ([]replay.HistoryRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history file: %w", err)
	}
	var entries []replay.HistoryRecord
	if err := json.Unmarshal(data, &entries); err != nil {
		// Treat a corrupt file as empty.
		return nil, nil
	}
	return entries, nil
}

func (s *FileStore) save(entries []replay.HistoryRecord) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	return os.Rename(tmp, s.path)
}
