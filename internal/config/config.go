package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Config holds application configuration.
type Config struct {
	// Model is the generative model name passed to the backend.
	Model string `json:"model,omitempty"`

	// BaseURL overrides the backend API root (tests point this at httptest servers).
	BaseURL string `json:"base_url,omitempty"`

	// Temperature is the fixed sampling temperature for every generation call.
	// Zero means "use the default"; it is never varied per call.
	Temperature float64 `json:"temperature,omitempty"`

	// MaxOutputTokens is the fixed output cap for every generation call.
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`

	// ContinuationWindow is how many trailing characters (runes) of the previous
	// part are fed into the prompt when generating parts 2 and 3.
	ContinuationWindow int `json:"continuation_window,omitempty"`

	// DefaultChapterCount is the chapter range used when the outline yields no chapters.
	DefaultChapterCount int `json:"default_chapter_count,omitempty"`

	// ProgressIntervalMS is the tick interval of the elapsed-time progress loop.
	ProgressIntervalMS int `json:"progress_interval_ms,omitempty"`

	// RequestTimeoutSeconds bounds a single backend call.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`

	// KeySelection picks a credential for each job: "round_robin", "random",
	// or "least_recently_failed".
	KeySelection string `json:"key_selection,omitempty"`

	// DocsDirs are searched in order for the outline and reference documents.
	// Each directory's "assets" subdirectory is searched right after it.
	DocsDirs []string `json:"docs_dirs,omitempty"`

	// StoreFile is the draft store path. Relative paths resolve against the base dir.
	StoreFile string `json:"store_file,omitempty"`

	// AllowedPaths are extra directories manuscript exports may be written to,
	// besides ~/.loom/exports. Only absolute paths are honored.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables the export directory restriction. Symlink
	// checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:                 "gemini-flash-latest",
		BaseURL:               "https://generativelanguage.googleapis.com/v1beta",
		Temperature:           0.7,
		MaxOutputTokens:       3500,
		ContinuationWindow:    2500,
		DefaultChapterCount:   50,
		ProgressIntervalMS:    100,
		RequestTimeoutSeconds: 300,
		KeySelection:          "round_robin",
		StoreFile:             "story_db.json",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.loom.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.loom) and repo (.loom) directories.
// Repo config is found by walking upward from startDir to find the nearest .loom/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .loom/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".loom", "config.json")
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

// StorePath resolves StoreFile against baseDir.
func (c *Config) StorePath(baseDir string) string {
	if filepath.IsAbs(c.StoreFile) {
		return c.StoreFile
	}
	return filepath.Join(baseDir, c.StoreFile)
}

// SearchDirs returns DocsDirs, or the working directory followed by baseDir
// when none are configured.
func (c *Config) SearchDirs(workDir, baseDir string) []string {
	if len(c.DocsDirs) > 0 {
		return c.DocsDirs
	}
	return mergeStringSlice([]string{workDir}, []string{baseDir})
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
	result := &Config{}

	result.Model = firstString(overlay.Model, base.Model)
	result.BaseURL = firstString(overlay.BaseURL, base.BaseURL)
	result.KeySelection = firstString(overlay.KeySelection, base.KeySelection)
	result.StoreFile = firstString(overlay.StoreFile, base.StoreFile)

	result.Temperature = overlay.Temperature
	if result.Temperature == 0 {
		result.Temperature = base.Temperature
	}

	result.MaxOutputTokens = firstInt(overlay.MaxOutputTokens, base.MaxOutputTokens)
	result.ContinuationWindow = firstInt(overlay.ContinuationWindow, base.ContinuationWindow)
	result.DefaultChapterCount = firstInt(overlay.DefaultChapterCount, base.DefaultChapterCount)
	result.ProgressIntervalMS = firstInt(overlay.ProgressIntervalMS, base.ProgressIntervalMS)
	result.RequestTimeoutSeconds = firstInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds)

	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.DocsDirs = mergeStringSlice(base.DocsDirs, overlay.DocsDirs)
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
