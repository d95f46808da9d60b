// Package history persists improved prompts as an append-only JSONL file,
// capped to the most recent entries by atomic compaction.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"promptforge/internal/logging"
	"promptforge/internal/types"
)

// DefaultMaxEntries is the compaction cap when none is configured.
const DefaultMaxEntries = 20

// Store is the JSONL-backed prompt history. All file access is serialized by
// a process-level mutex; writes are append-only with compaction via
// temp-file + rename.
type Store struct {
	path       string
	maxEntries int

	mu sync.Mutex
}

// NewStore creates a history store writing to path. maxEntries <= 0 applies
// DefaultMaxEntries.
func NewStore(path string, maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}
	return &Store{path: path, maxEntries: maxEntries}, nil
}

// Save appends an entry, assigning a ULID id and timestamp when missing, and
// compacts the file once it exceeds the cap.
func (s *Store) Save(entry types.HistoryEntry) (types.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return types.HistoryEntry{}, fmt.Errorf("failed to encode history entry: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return types.HistoryEntry{}, fmt.Errorf("failed to open history file: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return types.HistoryEntry{}, fmt.Errorf("failed to append history entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return types.HistoryEntry{}, fmt.Errorf("failed to close history file: %w", err)
	}

	entries := s.readAll()
	if len(entries) > s.maxEntries {
		if err := s.compact(entries); err != nil {
			logging.HistoryWarn("Compaction failed: %v", err)
		}
	}
	return entry, nil
}

// List returns up to limit entries, newest first. A missing file is an empty
// history, not an error.
func (s *Store) List(limit int) []types.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.readAll()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// GetByID returns the entry with the given id.
func (s *Store) GetByID(id string) (types.HistoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.readAll() {
		if entry.ID == id {
			return entry, true
		}
	}
	return types.HistoryEntry{}, false
}

// Clear removes the whole history file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// readAll parses the file, skipping malformed lines with a warning. Caller
// holds the mutex.
func (s *Store) readAll() []types.HistoryEntry {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		logging.HistoryWarn("Failed to open history file: %v", err)
		return nil
	}
	defer f.Close()

	var entries []types.HistoryEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry types.HistoryEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			logging.HistoryWarn("Skipping malformed history line %d: %v", lineNo, err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		logging.HistoryWarn("History read stopped early: %v", err)
	}
	return entries
}

// compact keeps the newest maxEntries entries, writing them to a temp file
// and renaming it over the original. Caller holds the mutex.
func (s *Store) compact(entries []types.HistoryEntry) error {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if len(entries) > s.maxEntries {
		entries = entries[:s.maxEntries]
	}
	// Oldest first on disk so future appends stay in timestamp order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create compaction file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to encode entry during compaction: %w", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush compaction file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close compaction file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to publish compacted history: %w", err)
	}
	logging.History("Compacted history to %d entries", len(entries))
	return nil
}
