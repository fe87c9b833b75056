package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.CursorDebounceMS != def.CursorDebounceMS {
		t.Fatalf("CursorDebounceMS = %d, want %d", cfg.CursorDebounceMS, def.CursorDebounceMS)
	}
	if cfg.LibraryDebounceMS != def.LibraryDebounceMS {
		t.Fatalf("LibraryDebounceMS = %d, want %d", cfg.LibraryDebounceMS, def.LibraryDebounceMS)
	}
}

func TestDefaultConfig_DebounceClasses(t *testing.T) {
	cfg := DefaultConfig()

	// Hot, small payloads flush fastest; large, rare payloads slowest.
	if !(cfg.CursorDebounce() < cfg.QueryDebounce()) {
		t.Errorf("cursor debounce %v should be shorter than query %v", cfg.CursorDebounce(), cfg.QueryDebounce())
	}
	if !(cfg.QueryDebounce() < cfg.LibraryDebounce()) {
		t.Errorf("query debounce %v should be shorter than library %v", cfg.QueryDebounce(), cfg.LibraryDebounce())
	}
	if cfg.LibraryDebounce() != cfg.PreviousDebounce() {
		t.Errorf("library %v and previous %v should share an interval", cfg.LibraryDebounce(), cfg.PreviousDebounce())
	}
	if cfg.CursorDebounce() != 250*time.Millisecond {
		t.Errorf("CursorDebounce() = %v, want 250ms", cfg.CursorDebounce())
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"cursor_debounce_ms": 50, "log_level": "debug"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CursorDebounceMS != 50 {
		t.Fatalf("CursorDebounceMS = %d, want %d", cfg.CursorDebounceMS, 50)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	// Untouched values keep defaults
	if cfg.QueryDebounceMS != DefaultConfig().QueryDebounceMS {
		t.Fatalf("QueryDebounceMS = %d, want default", cfg.QueryDebounceMS)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"disabled_tools": ["order_renumber", "session_clear"]}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "order_renumber" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "order_renumber")
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	globalConfig := `{"query_debounce_ms": 800, "disabled_tools": ["order_renumber"]}`
	if err := os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	repoDir := filepath.Join(repoRoot, ".mediasync")
	if err := os.MkdirAll(repoDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	repoConfig := `{"query_debounce_ms": 400, "disabled_tools": ["session_clear"]}`
	if err := os.WriteFile(filepath.Join(repoDir, "config.json"), []byte(repoConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	nested := filepath.Join(repoRoot, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, nested)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.QueryDebounceMS != 400 {
		t.Errorf("QueryDebounceMS = %d, want 400 (repo override)", cfg.QueryDebounceMS)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools = %v, want merged list of 2", cfg.DisabledTools)
	}
	if cfg.CursorDebounceMS != DefaultConfig().CursorDebounceMS {
		t.Errorf("CursorDebounceMS = %d, want default", cfg.CursorDebounceMS)
	}
}

func TestLoadWithRepo_NoRepoConfig(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.LibraryDebounceMS != DefaultConfig().LibraryDebounceMS {
		t.Errorf("LibraryDebounceMS = %d, want default", cfg.LibraryDebounceMS)
	}
}

func TestMerge_BooleansAndArrays(t *testing.T) {
	base := &Config{AllowedPaths: []string{"/a", " /b "}}
	overlay := &Config{AllowUnsafePaths: true, AllowedPaths: []string{"/b", "/c", ""}}

	got := Merge(base, overlay)
	if !got.AllowUnsafePaths {
		t.Error("AllowUnsafePaths should be true")
	}
	want := []string{"/a", "/b", "/c"}
	if len(got.AllowedPaths) != len(want) {
		t.Fatalf("AllowedPaths = %v, want %v", got.AllowedPaths, want)
	}
	for i := range want {
		if got.AllowedPaths[i] != want[i] {
			t.Errorf("AllowedPaths[%d] = %q, want %q", i, got.AllowedPaths[i], want[i])
		}
	}
}
