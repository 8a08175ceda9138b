package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Mirror backends.
const (
	MirrorBackendFS = "fs"
	MirrorBackendS3 = "s3"
)

// Environment overrides for the writing assistant.
const (
	EnvOllamaURL   = "MOMENTUM_OLLAMA_URL"
	EnvOllamaModel = "MOMENTUM_OLLAMA_MODEL"
)

// Config holds application configuration.
type Config struct {
	// PreviewChars is the length of content_preview in list and search results.
	PreviewChars int `json:"preview_chars"`

	// ListLimitDefault is the page size when list/search omit a limit.
	ListLimitDefault int `json:"list_limit_default"`

	// MirrorBackend selects where entry mirrors are written: "fs" (default) or "s3".
	MirrorBackend string `json:"mirror_backend,omitempty"`

	// MirrorRetries is the number of extra attempts after a failed mirror write.
	MirrorRetries int `json:"mirror_retries"`

	// MirrorRetryDelayMS is the pause between mirror write attempts.
	MirrorRetryDelayMS int `json:"mirror_retry_delay_ms"`

	// RepairConcurrency bounds parallel mirror rewrites during repair.
	RepairConcurrency int `json:"repair_concurrency"`

	// S3 mirror backend settings. Endpoint is set for MinIO and other
	// S3-compatible servers.
	S3Bucket    string `json:"s3_bucket,omitempty"`
	S3Region    string `json:"s3_region,omitempty"`
	S3Endpoint  string `json:"s3_endpoint,omitempty"`
	S3AccessKey string `json:"s3_access_key,omitempty"`
	S3SecretKey string `json:"s3_secret_key,omitempty"`
	S3Prefix    string `json:"s3_prefix,omitempty"`

	// Writing assistant (Ollama) settings.
	AssistantURL        string `json:"assistant_url,omitempty"`
	AssistantModel      string `json:"assistant_model,omitempty"`
	AssistantTimeoutSec int    `json:"assistant_timeout_sec,omitempty"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.momentum/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// When true, any directory is allowed (but symlink and extension checks still apply).
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `json:"log_level,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool groups to disable entirely.
	// Known types: "entry", "version", "mirror", "journal". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PreviewChars:        100,
		ListLimitDefault:    20,
		MirrorBackend:       MirrorBackendFS,
		MirrorRetries:       2,
		MirrorRetryDelayMS:  50,
		RepairConcurrency:   4,
		AssistantURL:        "http://localhost:11434",
		AssistantModel:      "gemma",
		AssistantTimeoutSec: 30,
		LogLevel:            "info",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.momentum.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.momentum) and repo (.momentum) directories.
// Repo config is found by walking upward from startDir to find the nearest .momentum/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo, then environment
	return ApplyEnv(Merge(Merge(DefaultConfig(), global), repo)), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .momentum/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".momentum", "config.json")
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

// ApplyEnv overrides assistant settings from MOMENTUM_OLLAMA_URL and
// MOMENTUM_OLLAMA_MODEL when set.
func ApplyEnv(cfg *Config) *Config {
	if v := strings.TrimSpace(os.Getenv(EnvOllamaURL)); v != "" {
		cfg.AssistantURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOllamaModel)); v != "" {
		cfg.AssistantModel = v
	}
	return cfg
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
		PreviewChars:        pickInt(base.PreviewChars, overlay.PreviewChars),
		ListLimitDefault:    pickInt(base.ListLimitDefault, overlay.ListLimitDefault),
		MirrorBackend:       pickString(base.MirrorBackend, overlay.MirrorBackend),
		MirrorRetries:       pickInt(base.MirrorRetries, overlay.MirrorRetries),
		MirrorRetryDelayMS:  pickInt(base.MirrorRetryDelayMS, overlay.MirrorRetryDelayMS),
		RepairConcurrency:   pickInt(base.RepairConcurrency, overlay.RepairConcurrency),
		S3Bucket:            pickString(base.S3Bucket, overlay.S3Bucket),
		S3Region:            pickString(base.S3Region, overlay.S3Region),
		S3Endpoint:          pickString(base.S3Endpoint, overlay.S3Endpoint),
		S3AccessKey:         pickString(base.S3AccessKey, overlay.S3AccessKey),
		S3SecretKey:         pickString(base.S3SecretKey, overlay.S3SecretKey),
		S3Prefix:            pickString(base.S3Prefix, overlay.S3Prefix),
		AssistantURL:        pickString(base.AssistantURL, overlay.AssistantURL),
		AssistantModel:      pickString(base.AssistantModel, overlay.AssistantModel),
		AssistantTimeoutSec: pickInt(base.AssistantTimeoutSec, overlay.AssistantTimeoutSec),
		DBMaxOpenConns:      pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns),
		DBMaxIdleConns:      pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns),
		LogLevel:            pickString(base.LogLevel, overlay.LogLevel),
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

// pickInt returns overlay if non-zero, else base.
func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// pickString returns overlay if non-blank, else base.
func pickString(base, overlay string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
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
