package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	def := DefaultConfig()
	if cfg.PreviewChars != def.PreviewChars {
		t.Errorf("PreviewChars = %d, want %d", cfg.PreviewChars, def.PreviewChars)
	}
	if cfg.ListLimitDefault != 20 {
		t.Errorf("ListLimitDefault = %d, want 20", cfg.ListLimitDefault)
	}
	if cfg.MirrorBackend != MirrorBackendFS {
		t.Errorf("MirrorBackend = %q, want %q", cfg.MirrorBackend, MirrorBackendFS)
	}
	if cfg.MirrorRetries != 2 || cfg.MirrorRetryDelayMS != 50 {
		t.Errorf("mirror retry = %d/%dms, want 2/50ms", cfg.MirrorRetries, cfg.MirrorRetryDelayMS)
	}
	if cfg.AssistantModel != "gemma" {
		t.Errorf("AssistantModel = %q, want gemma", cfg.AssistantModel)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"preview_chars": 40, "mirror_backend": "s3", "s3_bucket": "journal"}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PreviewChars != 40 {
		t.Errorf("PreviewChars = %d, want 40", cfg.PreviewChars)
	}
	if cfg.MirrorBackend != MirrorBackendS3 || cfg.S3Bucket != "journal" {
		t.Errorf("mirror = %q/%q, want s3/journal", cfg.MirrorBackend, cfg.S3Bucket)
	}
	// Unset fields keep defaults.
	if cfg.RepairConcurrency != 4 {
		t.Errorf("RepairConcurrency = %d, want 4", cfg.RepairConcurrency)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"disabled_tools": ["entry_delete", "mirror_repair"]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "entry_delete" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "entry_delete")
	}
	if cfg.DisabledTools[1] != "mirror_repair" {
		t.Errorf("DisabledTools[1] = %q, want %q", cfg.DisabledTools[1], "mirror_repair")
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"preview_chars": 80, "disabled_tools": ["entry_delete"]}`)
	writeConfig(t, filepath.Join(repoRoot, ".momentum"), `{"preview_chars": 60, "disabled_tools": ["mirror_repair"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	// Repo overrides scalar
	if cfg.PreviewChars != 60 {
		t.Errorf("PreviewChars = %d, want 60 (repo override)", cfg.PreviewChars)
	}

	// Arrays merged
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.PreviewChars != DefaultConfig().PreviewChars {
		t.Errorf("PreviewChars = %d, want default", cfg.PreviewChars)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	repoRoot := t.TempDir()
	writeConfig(t, filepath.Join(repoRoot, ".momentum"), `{"log_level": "debug"}`)

	nested := filepath.Join(repoRoot, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(t.TempDir(), nested)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadWithRepo_EnvOverrides(t *testing.T) {
	t.Setenv(EnvOllamaURL, "http://ollama.internal:11434")
	t.Setenv(EnvOllamaModel, "llama3")

	globalDir := t.TempDir()
	writeConfig(t, globalDir, `{"assistant_model": "mistral"}`)

	cfg, err := LoadWithRepo(globalDir, t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.AssistantURL != "http://ollama.internal:11434" {
		t.Errorf("AssistantURL = %q", cfg.AssistantURL)
	}
	if cfg.AssistantModel != "llama3" {
		t.Errorf("AssistantModel = %q, want env override llama3", cfg.AssistantModel)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{PreviewChars: 100, MirrorBackend: "fs", DBMaxOpenConns: 4}
	overlay := &Config{PreviewChars: 50, MirrorBackend: "  "}

	result := Merge(base, overlay)
	if result.PreviewChars != 50 {
		t.Errorf("PreviewChars = %d, want 50", result.PreviewChars)
	}
	if result.MirrorBackend != "fs" {
		t.Errorf("MirrorBackend = %q, want base value for blank overlay", result.MirrorBackend)
	}
	if result.DBMaxOpenConns != 4 {
		t.Errorf("DBMaxOpenConns = %d, want 4", result.DBMaxOpenConns)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	if !Merge(&Config{AllowUnsafePaths: true}, &Config{}).AllowUnsafePaths {
		t.Error("base true should survive empty overlay")
	}
	if !Merge(&Config{}, &Config{AllowUnsafePaths: true}).AllowUnsafePaths {
		t.Error("overlay true should win")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"a", " b "}}
	overlay := &Config{DisabledTools: []string{"b", "c", ""}}

	result := Merge(base, overlay)
	want := []string{"a", "b", "c"}
	if len(result.DisabledTools) != len(want) {
		t.Fatalf("DisabledTools = %v, want %v", result.DisabledTools, want)
	}
	for i := range want {
		if result.DisabledTools[i] != want[i] {
			t.Errorf("DisabledTools[%d] = %q, want %q", i, result.DisabledTools[i], want[i])
		}
	}

	if Merge(&Config{}, &Config{}).AllowedPaths != nil {
		t.Error("empty merge should yield nil slice")
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if got := FindRepoConfig(t.TempDir()); got != "" {
		t.Errorf("FindRepoConfig = %q, want empty", got)
	}
}
