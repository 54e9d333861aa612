package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tunebridge/models"
)

var (
	ErrStorageDirRequired = errors.New("storage directory not provided")
	ErrContentIDRequired  = errors.New("content id is required")
)

const fileName = "metadata.json"

// Service is the metadata side table: title, duration, and thumbnail per
// content id, persisted as one JSON document next to the cached media.
type Service struct {
	mu      sync.RWMutex
	path    string
	entries map[string]models.CatalogEntry
}

// NewService creates a catalog service storing data inside the provided directory.
func NewService(storageDir string) (*Service, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirRequired
	}

	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}

	svc := &Service{
		path:    filepath.Join(storageDir, fileName),
		entries: make(map[string]models.CatalogEntry),
	}

	svc.load()

	return svc, nil
}

// Put stores or refreshes the entry for a content id. Empty incoming fields
// never clobber known values.
func (s *Service) Put(contentID string, entry models.CatalogEntry) error {
	contentID = strings.TrimSpace(contentID)
	if contentID == "" {
		return ErrContentIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[contentID]
	if ok {
		if strings.TrimSpace(entry.Title) == "" {
			entry.Title = existing.Title
		}
		if entry.DurationSeconds == 0 {
			entry.DurationSeconds = existing.DurationSeconds
		}
		if strings.TrimSpace(entry.Thumbnail) == "" {
			entry.Thumbnail = existing.Thumbnail
		}
		entry.AddedAt = existing.AddedAt
	}
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now().UTC()
	}
	s.entries[contentID] = entry

	return s.saveLocked()
}

// Get returns the stored entry for a content id.
func (s *Service) Get(contentID string) (models.CatalogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[strings.TrimSpace(contentID)]
	return entry, ok
}

// Len returns the number of catalogued ids.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// load degrades to an empty table on any problem, same as the format
// history: metadata is reconstructable.
func (s *Service) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]models.CatalogEntry)

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		log.Printf("[catalog] open %s: %v", s.path, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Printf("[catalog] read %s: %v", s.path, err)
		return
	}
	if len(data) == 0 {
		return
	}

	var entries map[string]models.CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("[catalog] decode %s: %v, starting empty", s.path, err)
		return
	}

	for id, entry := range entries {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		s.entries[id] = entry
	}
}

func (s *Service) saveLocked() error {
	tmp := s.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create catalog temp file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.entries); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode catalog: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync catalog: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close catalog temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace catalog file: %w", err)
	}

	return nil
}
