package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Confidence.SuccessIncrease != 0.1 || cfg.Confidence.FailureDecrease != 0.2 {
		t.Errorf("confidence deltas = %v/%v, want 0.1/0.2", cfg.Confidence.SuccessIncrease, cfg.Confidence.FailureDecrease)
	}
	if cfg.Confidence.ForkThreshold != 0.3 {
		t.Errorf("fork threshold = %v, want 0.3", cfg.Confidence.ForkThreshold)
	}
	if cfg.Matcher.SimilarityFloor != 0.3 || cfg.Matcher.MetadataFloor != 0.5 {
		t.Errorf("matcher floors = %v/%v, want 0.3/0.5", cfg.Matcher.SimilarityFloor, cfg.Matcher.MetadataFloor)
	}
	if cfg.Matcher.MaxCandidates != 10 {
		t.Errorf("max candidates = %d, want 10", cfg.Matcher.MaxCandidates)
	}
	if cfg.Chunker.MinCheckpoints != 2 || cfg.Chunker.MinMessages != 2 || cfg.Chunker.MinDuration != 100*time.Millisecond {
		t.Errorf("chunker filter = %+v", cfg.Chunker)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "praxis" || cfg.Confidence.ForkThreshold != 0.3 {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
store:
  database_path: /tmp/custom.db
confidence:
  fork_threshold: 0.25
matcher:
  max_candidates: 25
logging:
  level: debug
  debug_mode: true
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.DatabasePath != "/tmp/custom.db" {
		t.Errorf("database path = %q", cfg.Store.DatabasePath)
	}
	if cfg.Confidence.ForkThreshold != 0.25 {
		t.Errorf("fork threshold = %v, want 0.25", cfg.Confidence.ForkThreshold)
	}
	if cfg.Matcher.MaxCandidates != 25 {
		t.Errorf("max candidates = %d, want 25", cfg.Matcher.MaxCandidates)
	}
	if !cfg.Logging.DebugMode || cfg.Logging.Level != "debug" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Confidence.SuccessIncrease != 0.1 {
		t.Errorf("success increase = %v, want default 0.1", cfg.Confidence.SuccessIncrease)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("store: [not: valid"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error for malformed YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PRAXIS_DATABASE_PATH", "/tmp/env.db")
	t.Setenv("PRAXIS_LOG_LEVEL", "warn")
	t.Setenv("PRAXIS_DEBUG", "true")
	t.Setenv("PRAXIS_FORK_THRESHOLD", "0.2")
	t.Setenv("PRAXIS_SIMILARITY_FLOOR", "0.4")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.DatabasePath != "/tmp/env.db" {
		t.Errorf("database path = %q", cfg.Store.DatabasePath)
	}
	if cfg.Logging.Level != "warn" || !cfg.Logging.DebugMode {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Confidence.ForkThreshold != 0.2 {
		t.Errorf("fork threshold = %v, want 0.2", cfg.Confidence.ForkThreshold)
	}
	if cfg.Matcher.SimilarityFloor != 0.4 {
		t.Errorf("similarity floor = %v, want 0.4", cfg.Matcher.SimilarityFloor)
	}
}

func TestEnvOverridesIgnoreUnparsable(t *testing.T) {
	t.Setenv("PRAXIS_DEBUG", "not-a-bool")
	t.Setenv("PRAXIS_FORK_THRESHOLD", "not-a-float")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.DebugMode {
		t.Error("unparsable PRAXIS_DEBUG should keep the default")
	}
	if cfg.Confidence.ForkThreshold != 0.3 {
		t.Errorf("fork threshold = %v, want default 0.3", cfg.Confidence.ForkThreshold)
	}
}
