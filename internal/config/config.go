// Package config is the engine's settings store: the YAML-backed analogue
// of abra5umente-blackbox/internal/ui.SettingsStore, carrying the same
// load-or-default / mkdir-on-save idiom but over the Engine control
// surface keys spec.md §6 defines instead of a transcription app's UI
// preferences.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// EngineConfig mirrors the Engine control surface keys (spec.md §6).
type EngineConfig struct {
	BufferMs        uint32   `yaml:"buffer_ms"`
	DeviceIDs       []string `yaml:"device_ids"`
	ExcludeIDs      []string `yaml:"exclude_ids"`
	SourceDeviceID  string   `yaml:"source_device_id"`
	PausedDeviceIDs []string `yaml:"paused_device_ids"`
	UseAllDevices   bool     `yaml:"use_all_devices"`

	// NegativeDriftPolicy names which renderer.NegativeDriftPolicy to use:
	// "silence", "repeat", or "resample" (default).
	NegativeDriftPolicy string `yaml:"negative_drift_policy"`

	// EventLogPath, if non-empty, enables persistent device-event history
	// via internal/eventlog.
	EventLogPath string `yaml:"event_log_path"`

	// DebugWavPath, if non-empty, taps every batch the Capture Worker
	// writes to the ring and mirrors it to a WAV file for diagnostics.
	DebugWavPath string `yaml:"-"`
}

func defaults() EngineConfig {
	return EngineConfig{
		BufferMs:            35,
		UseAllDevices:       false,
		NegativeDriftPolicy: "resample",
	}
}

// Store is a mutex-guarded, disk-backed EngineConfig, loaded once and
// mutated through Save.
type Store struct {
	mu     sync.RWMutex
	path   string
	config EngineConfig
}

// NewStore loads configPath, falling back to defaults (and ensuring the
// parent directory exists for a future Save) if it doesn't exist yet.
func NewStore(configPath string) (*Store, error) {
	s := &Store{path: configPath}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("config: path not set")
	}
	if _, err := os.Stat(s.path); err != nil {
		s.config = defaults()
		_ = os.MkdirAll(filepath.Dir(s.path), 0o755)
		return nil
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	cfg := defaults()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return err
	}
	if cfg.BufferMs == 0 {
		cfg.BufferMs = 35
	}
	if cfg.NegativeDriftPolicy == "" {
		cfg.NegativeDriftPolicy = "resample"
	}
	s.config = cfg
	return nil
}

// Save persists cfg to disk, creating parent directories as needed.
func (s *Store) Save(cfg EngineConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.BufferMs == 0 {
		cfg.BufferMs = 35
	}
	if cfg.NegativeDriftPolicy == "" {
		cfg.NegativeDriftPolicy = "resample"
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return err
	}
	s.config = cfg
	return nil
}

// Get returns a copy of the current configuration.
func (s *Store) Get() EngineConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// DefaultPath returns the conventional config file location under the
// user's config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "airwave", "config.yaml")
}
