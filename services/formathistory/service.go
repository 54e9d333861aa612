package formathistory

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
	ErrFormatRequired     = errors.New("format is required")
)

const fileName = "format_history.json"

// Service persists extractor format outcomes per content id. The whole store
// lives in one JSON document so it stays hand-editable and survives being
// deleted: a missing or unreadable file loads as an empty store.
type Service struct {
	mu      sync.RWMutex
	path    string
	entries map[string]models.FormatHistoryEntry
	now     func() time.Time
}

// NewService creates a format history service storing data inside the provided directory.
func NewService(storageDir string) (*Service, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirRequired
	}

	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create format history dir: %w", err)
	}

	svc := &Service{
		path:    filepath.Join(storageDir, fileName),
		entries: make(map[string]models.FormatHistoryEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}

	svc.load()

	return svc, nil
}

// Key builds the history key for a content id, namespacing video outcomes so
// audio and video learning never collide.
func Key(contentID string, kind models.MediaKind) string {
	if kind == models.MediaKindVideo {
		return "video_" + contentID
	}
	return contentID
}

// RecordSuccess marks a format as working for the given key. A format that
// previously failed is removed from the failed list; success and failure are
// never recorded for the same format at once.
func (s *Service) RecordSuccess(key, format string, device models.DeviceClass) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrContentIDRequired
	}
	if strings.TrimSpace(format) == "" {
		return ErrFormatRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[key]
	entry.SuccessFormat = format
	entry.SuccessCount++
	entry.LastUpdated = s.now()
	entry.Device = device
	entry.FailedFormats = removeFormat(entry.FailedFormats, format)
	s.entries[key] = entry

	return s.saveLocked()
}

// RecordFailure marks a format as failed for the given key.
func (s *Service) RecordFailure(key, format string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrContentIDRequired
	}
	if strings.TrimSpace(format) == "" {
		return ErrFormatRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[key]
	if containsFormat(entry.FailedFormats, format) {
		return nil
	}
	entry.FailedFormats = append(entry.FailedFormats, format)
	entry.LastUpdated = s.now()
	s.entries[key] = entry

	return s.saveLocked()
}

// CandidateOrder returns the formats to try for a key: the learned success
// format first, then the defaults with the success format and every known
// failure removed. An unknown key returns the defaults unchanged.
func (s *Service) CandidateOrder(key string, defaults []string) []string {
	s.mu.RLock()
	entry, ok := s.entries[strings.TrimSpace(key)]
	s.mu.RUnlock()

	if !ok {
		return append([]string(nil), defaults...)
	}

	order := make([]string, 0, len(defaults)+1)
	if entry.SuccessFormat != "" {
		order = append(order, entry.SuccessFormat)
	}
	for _, format := range defaults {
		if format == entry.SuccessFormat {
			continue
		}
		if containsFormat(entry.FailedFormats, format) {
			continue
		}
		order = append(order, format)
	}

	return order
}

// Entry returns the stored entry for a key.
func (s *Service) Entry(key string) (models.FormatHistoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[strings.TrimSpace(key)]
	return entry, ok
}

// Len returns the number of tracked keys.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// load never fails the service: history is an optimisation, so a missing or
// corrupt file degrades to an empty store. A corrupt file is renamed aside
// once so the evidence survives the next save.
func (s *Service) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]models.FormatHistoryEntry)

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		log.Printf("[formathistory] open %s: %v", s.path, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Printf("[formathistory] read %s: %v", s.path, err)
		return
	}
	if len(data) == 0 {
		return
	}

	var entries map[string]models.FormatHistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("[formathistory] decode %s: %v, starting empty", s.path, err)
		_ = os.Rename(s.path, s.path+".corrupt")
		return
	}

	for key, entry := range entries {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		s.entries[key] = entry
	}
}

func (s *Service) saveLocked() error {
	tmp := s.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create format history temp file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.entries); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode format history: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync format history: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close format history temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace format history file: %w", err)
	}

	return nil
}

func containsFormat(formats []string, format string) bool {
	for _, f := range formats {
		if f == format {
			return true
		}
	}
	return false
}

func removeFormat(formats []string, format string) []string {
	out := formats[:0]
	for _, f := range formats {
		if f != format {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
