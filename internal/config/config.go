package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// CursorDebounceMS is the quiet period before a cursor change is written to disk.
	// Cursor moves on every navigation, so this stays short.
	CursorDebounceMS int `json:"cursor_debounce_ms"`

	// QueryDebounceMS is the quiet period for the active query (tags, text filter).
	QueryDebounceMS int `json:"query_debounce_ms"`

	// LibraryDebounceMS is the quiet period for the library snapshot.
	LibraryDebounceMS int `json:"library_debounce_ms"`

	// PreviousDebounceMS is the quiet period for the back-navigation snapshot.
	PreviousDebounceMS int `json:"previous_debounce_ms"`

	// ProjectionCacheTTLSeconds bounds how long a memoized projection is kept.
	ProjectionCacheTTLSeconds int `json:"projection_cache_ttl_seconds"`

	// LogFile is the rotated JSON log file. Relative paths are resolved against the base dir.
	LogFile string `json:"log_file,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// AllowedPaths is an allowlist of directories for session export/import.
	// Paths outside ~/.mediasync/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export/import.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool groups to disable entirely.
	// Known types: "session", "library", "cursor", "order".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CursorDebounceMS:          250,
		QueryDebounceMS:           1000,
		LibraryDebounceMS:         2000,
		PreviousDebounceMS:        2000,
		ProjectionCacheTTLSeconds: 300,
		LogFile:                   "mediasync.log",
		LogLevel:                  "info",
	}
}

// CursorDebounce returns the cursor debounce interval.
func (c *Config) CursorDebounce() time.Duration { return ms(c.CursorDebounceMS) }

// QueryDebounce returns the query debounce interval.
func (c *Config) QueryDebounce() time.Duration { return ms(c.QueryDebounceMS) }

// LibraryDebounce returns the library debounce interval.
func (c *Config) LibraryDebounce() time.Duration { return ms(c.LibraryDebounceMS) }

// PreviousDebounce returns the previous-library debounce interval.
func (c *Config) PreviousDebounce() time.Duration { return ms(c.PreviousDebounceMS) }

// ProjectionCacheTTL returns how long memoized projections live.
func (c *Config) ProjectionCacheTTL() time.Duration {
	return time.Duration(c.ProjectionCacheTTLSeconds) * time.Second
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.mediasync.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.mediasync) and repo (.mediasync) directories.
// Repo config is found by walking upward from startDir to find the nearest .mediasync/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .mediasync/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".mediasync", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		CursorDebounceMS:          pickInt(overlay.CursorDebounceMS, base.CursorDebounceMS),
		QueryDebounceMS:           pickInt(overlay.QueryDebounceMS, base.QueryDebounceMS),
		LibraryDebounceMS:         pickInt(overlay.LibraryDebounceMS, base.LibraryDebounceMS),
		PreviousDebounceMS:        pickInt(overlay.PreviousDebounceMS, base.PreviousDebounceMS),
		ProjectionCacheTTLSeconds: pickInt(overlay.ProjectionCacheTTLSeconds, base.ProjectionCacheTTLSeconds),
		DBMaxOpenConns:            pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:            pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		LogFile:                   pickString(overlay.LogFile, base.LogFile),
		LogLevel:                  pickString(overlay.LogLevel, base.LogLevel),
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if s := strings.TrimSpace(overlay); s != "" {
		return s
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
