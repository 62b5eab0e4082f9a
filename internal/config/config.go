// Package config handles configuration file management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Backend names accepted in library.backend
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config represents the stashd configuration
type Config struct {
	Library  LibraryConfig  `json:"library"`
	Audio    AudioConfig    `json:"audio"`
	Lyrics   LyricsConfig   `json:"lyrics"`
	Behavior BehaviorConfig `json:"behavior"`
}

// LibraryConfig says where music lives and where the library is stored
type LibraryConfig struct {
	// Paths is a list of directories containing music files
	Paths []string `json:"paths"`

	// Backend is "json" (one file per collection) or "sqlite"
	Backend string `json:"backend"`

	// DataDir holds the library files; empty means <configDir>/data
	DataDir string `json:"dataDir"`
}

// AudioConfig contains audio-related settings
type AudioConfig struct {
	// SampleRate for audio output (default: 44100)
	SampleRate int `json:"sampleRate"`

	// BufferSizeMs bounds how far decoding runs ahead (default: 100)
	BufferSizeMs int `json:"bufferSizeMs"`

	// DefaultVolume level 0.0 - 1.0 (default: 0.5)
	DefaultVolume float64 `json:"defaultVolume"`
}

// LyricsConfig contains lyric view settings
type LyricsConfig struct {
	// SmoothScroll animates centring and widens the scroll grace window
	SmoothScroll bool `json:"smoothScroll"`

	// NotifyEveryTicks is how many clock ticks pass between now-playing
	// pushes and session snapshots (default: 30)
	NotifyEveryTicks int `json:"notifyEveryTicks"`

	// WatchFiles reloads lyrics edited outside stashd (json backend only)
	WatchFiles bool `json:"watchFiles"`
}

// BehaviorConfig contains behavior-related settings
type BehaviorConfig struct {
	// ResumeOnStart restores the last session when the player starts
	ResumeOnStart bool `json:"resumeOnStart"`

	// RememberSession persists the playback session while playing
	RememberSession bool `json:"rememberSession"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			Paths:   []string{},
			Backend: BackendJSON,
		},
		Audio: AudioConfig{
			SampleRate:    44100,
			BufferSizeMs:  100,
			DefaultVolume: 0.5,
		},
		Lyrics: LyricsConfig{
			SmoothScroll:     true,
			NotifyEveryTicks: 30,
			WatchFiles:       true,
		},
		Behavior: BehaviorConfig{
			ResumeOnStart:   true,
			RememberSession: true,
		},
	}
}

// Validate reports settings that cannot be used
func (c *Config) Validate() error {
	switch c.Library.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("unknown library backend %q", c.Library.Backend)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.Audio.SampleRate)
	}
	if c.Audio.DefaultVolume < 0 || c.Audio.DefaultVolume > 1 {
		return fmt.Errorf("default volume %.2f outside 0.0 - 1.0", c.Audio.DefaultVolume)
	}
	if c.Lyrics.NotifyEveryTicks <= 0 {
		return fmt.Errorf("notifyEveryTicks must be positive, got %d", c.Lyrics.NotifyEveryTicks)
	}
	return nil
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.RWMutex
	configDir  string
	configPath string
	config     *Config
}

// NewManager creates a new configuration manager
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, "config.json"),
		config:     DefaultConfig(),
	}
}

// DefaultDir returns ~/.config/stashd
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "stashd"), nil
}

// Load reads the configuration from disk, writing the defaults on first run
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		m.config = DefaultConfig()
		return m.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	// missing keys keep their defaults
	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.config = config
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := *m.config
	c.Library.Paths = slices.Clone(m.config.Library.Paths)
	return &c
}

// GetPath returns the config file path
func (m *Manager) GetPath() string {
	return m.configPath
}

// DataDir returns the library directory, defaulting to <configDir>/data
func (m *Manager) DataDir() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config.Library.DataDir != "" {
		return m.config.Library.DataDir
	}
	return filepath.Join(m.configDir, "data")
}

// Update validates and saves a new configuration
func (m *Manager) Update(config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
	return m.saveLocked()
}

// SetVolume stores the volume the player should start with
func (m *Manager) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume %.2f outside 0.0 - 1.0", volume)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Audio.DefaultVolume = volume
	return m.saveLocked()
}

// AddLibraryPath adds a library path
func (m *Manager) AddLibraryPath(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slices.Contains(m.config.Library.Paths, path) {
		return nil
	}
	m.config.Library.Paths = append(m.config.Library.Paths, path)
	return m.saveLocked()
}

// RemoveLibraryPath removes a library path
func (m *Manager) RemoveLibraryPath(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config.Library.Paths = slices.DeleteFunc(slices.Clone(m.config.Library.Paths), func(p string) bool {
		return p == path
	})
	return m.saveLocked()
}
