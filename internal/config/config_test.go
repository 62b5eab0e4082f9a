package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "stashd")
	m := NewManager(dir)

	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := os.Stat(m.GetPath()); err != nil {
		t.Fatalf("Expected config file to be written: %v", err)
	}

	cfg := m.Get()
	if cfg.Library.Backend != BackendJSON {
		t.Errorf("Expected json backend, got %q", cfg.Library.Backend)
	}
	if cfg.Audio.DefaultVolume != 0.5 {
		t.Errorf("Expected default volume 0.5, got %v", cfg.Audio.DefaultVolume)
	}
	if cfg.Lyrics.NotifyEveryTicks != 30 {
		t.Errorf("Expected 30 ticks, got %d", cfg.Lyrics.NotifyEveryTicks)
	}
	if got := m.DataDir(); got != filepath.Join(dir, "data") {
		t.Errorf("Unexpected data dir %q", got)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	data := `{"library": {"paths": ["/music"], "backend": "sqlite", "dataDir": "/srv/stashd"}, "lyrics": {"notifyEveryTicks": 10}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(data), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	m := NewManager(dir)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	if len(cfg.Library.Paths) != 1 || cfg.Library.Backend != BackendSQLite {
		t.Errorf("Unexpected library config: %+v", cfg.Library)
	}
	if cfg.Lyrics.NotifyEveryTicks != 10 || !cfg.Lyrics.SmoothScroll {
		t.Errorf("Unexpected lyrics config: %+v", cfg.Lyrics)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Expected default sample rate, got %d", cfg.Audio.SampleRate)
	}
	if m.DataDir() != "/srv/stashd" {
		t.Errorf("Expected configured data dir, got %q", m.DataDir())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad json", `{"library": `},
		{"unknown backend", `{"library": {"backend": "postgres"}}`},
		{"volume", `{"audio": {"defaultVolume": 2}}`},
		{"ticks", `{"lyrics": {"notifyEveryTicks": 0}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			os.WriteFile(filepath.Join(dir, "config.json"), []byte(tt.data), 0600)

			if err := NewManager(dir).Load(); err == nil {
				t.Error("Expected Load to fail")
			}
		})
	}
}

func TestLibraryPaths(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	m.Load()

	m.AddLibraryPath("/a")
	m.AddLibraryPath("/b")
	m.AddLibraryPath("/a")
	if paths := m.Get().Library.Paths; len(paths) != 2 {
		t.Errorf("Expected 2 paths, got %v", paths)
	}

	m.RemoveLibraryPath("/a")

	reloaded := NewManager(dir)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if paths := reloaded.Get().Library.Paths; len(paths) != 1 || paths[0] != "/b" {
		t.Errorf("Expected [/b] after reload, got %v", paths)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m := NewManager(t.TempDir())
	m.Load()
	m.AddLibraryPath("/a")

	cfg := m.Get()
	cfg.Library.Paths[0] = "/changed"
	cfg.Audio.DefaultVolume = 0.9

	if got := m.Get(); got.Library.Paths[0] != "/a" || got.Audio.DefaultVolume != 0.5 {
		t.Errorf("Get shares state with the manager: %+v", got)
	}
}

func TestSetVolume(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	m.Load()

	if err := m.SetVolume(1.5); err == nil {
		t.Error("Expected out-of-range volume to fail")
	}
	if err := m.SetVolume(0.8); err != nil {
		t.Fatalf("SetVolume failed: %v", err)
	}

	reloaded := NewManager(dir)
	reloaded.Load()
	if v := reloaded.Get().Audio.DefaultVolume; v != 0.8 {
		t.Errorf("Expected persisted volume 0.8, got %v", v)
	}
}

func TestUpdateValidates(t *testing.T) {
	m := NewManager(t.TempDir())
	m.Load()

	cfg := m.Get()
	cfg.Library.Backend = "xml"
	if err := m.Update(cfg); err == nil {
		t.Error("Expected invalid update to fail")
	}
	if m.Get().Library.Backend != BackendJSON {
		t.Error("Invalid update should not be applied")
	}
}
