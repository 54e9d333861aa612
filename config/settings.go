package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ServerSettings controls the HTTP listener.
type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// CacheSettings controls where resolved media and the JSON stores live.
type CacheSettings struct {
	Directory string `json:"directory"`
}

// ResolverSettings holds the ordered extractor format candidates. Streaming
// and download orders are configured independently: streaming favors
// containers that start playing fastest, downloading favors storage.
type ResolverSettings struct {
	StreamFormats         []string `json:"streamFormats"`
	MobileStreamFormats   []string `json:"mobileStreamFormats"`
	VideoFormats          []string `json:"videoFormats"`
	DownloadFormats       []string `json:"downloadFormats"`
	AttemptTimeoutSeconds int      `json:"attemptTimeoutSeconds"`
	MaxAttempts           int      `json:"maxAttempts"`
}

// LogConfig holds log rotation settings.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSizeMb"`
	MaxBackups int    `json:"maxBackups"`
	MaxAge     int    `json:"maxAgeDays"`
	Compress   bool   `json:"compress"`
}

// Settings is the whole configuration document.
type Settings struct {
	Server   ServerSettings   `json:"server"`
	Cache    CacheSettings    `json:"cache"`
	Resolver ResolverSettings `json:"resolver"`
	Log      LogConfig        `json:"log"`
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 8899},
		Cache:  CacheSettings{Directory: "cache"},
		Resolver: ResolverSettings{
			StreamFormats: []string{
				"bestaudio[ext=m4a]",
				"bestaudio[ext=mp4]",
				"bestaudio[ext=webm]",
				"bestaudio[ext=opus]",
				"bestaudio/best",
			},
			MobileStreamFormats: []string{
				"bestaudio[ext=m4a]",
				"bestaudio[ext=mp4]",
				"bestaudio/best",
			},
			VideoFormats: []string{
				"best[height<=720][ext=mp4]",
				"best[height<=1080][ext=mp4]",
				"best[height<=720]",
				"best[ext=mp4]",
				"best",
			},
			DownloadFormats: []string{
				"bestaudio[ext=webm]",
				"bestaudio[ext=opus]",
				"bestaudio[ext=m4a]",
				"bestaudio[ext=mp4]",
				"bestaudio/best",
			},
			AttemptTimeoutSeconds: 45,
			MaxAttempts:           2,
		},
		Log: LogConfig{
			File:       "cache/logs/tunebridge.log",
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for settings the config file predates
	defaults := DefaultSettings()
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = defaults.Server.Host
	}
	if s.Server.Port == 0 {
		s.Server.Port = defaults.Server.Port
	}
	if strings.TrimSpace(s.Cache.Directory) == "" {
		s.Cache.Directory = defaults.Cache.Directory
	}
	if len(s.Resolver.StreamFormats) == 0 {
		s.Resolver.StreamFormats = defaults.Resolver.StreamFormats
	}
	if len(s.Resolver.MobileStreamFormats) == 0 {
		s.Resolver.MobileStreamFormats = defaults.Resolver.MobileStreamFormats
	}
	if len(s.Resolver.VideoFormats) == 0 {
		s.Resolver.VideoFormats = defaults.Resolver.VideoFormats
	}
	if len(s.Resolver.DownloadFormats) == 0 {
		s.Resolver.DownloadFormats = defaults.Resolver.DownloadFormats
	}
	if s.Resolver.AttemptTimeoutSeconds == 0 {
		s.Resolver.AttemptTimeoutSeconds = defaults.Resolver.AttemptTimeoutSeconds
	}
	if s.Resolver.MaxAttempts == 0 {
		s.Resolver.MaxAttempts = defaults.Resolver.MaxAttempts
	}
	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = defaults.Log.File
	}
	if strings.TrimSpace(s.Log.Level) == "" {
		s.Log.Level = defaults.Log.Level
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = defaults.Log.MaxSize
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = defaults.Log.MaxBackups
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = defaults.Log.MaxAge
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
