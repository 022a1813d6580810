// Package config holds all praxis configuration: storage location,
// confidence thresholds, matcher and chunker tuning, and logging.
// Threshold values are configuration, not hardcoded constants; every
// consumer takes its section by value so callers can override per call.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all praxis configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Pattern store
	Store StoreConfig `yaml:"store"`

	// Confidence and evolution model
	Confidence ConfidenceConfig `yaml:"confidence"`

	// Similarity matcher
	Matcher MatcherConfig `yaml:"matcher"`

	// Message chunker
	Chunker ChunkerConfig `yaml:"chunker"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig configures the SQLite pattern store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ConfidenceConfig tunes the confidence/evolution model. All values are
// defaults the caller may override per update.
type ConfidenceConfig struct {
	SuccessIncrease float64 `yaml:"success_increase"` // default 0.1
	FailureDecrease float64 `yaml:"failure_decrease"` // default 0.2
	MinConfidence   float64 `yaml:"min_confidence"`   // default 0.0
	MaxConfidence   float64 `yaml:"max_confidence"`   // default 1.0
	ForkThreshold   float64 `yaml:"fork_threshold"`   // default 0.3
}

// MatcherConfig tunes the similarity matcher.
type MatcherConfig struct {
	MaxCandidates   int     `yaml:"max_candidates"`   // candidate cap, default 10
	SimilarityFloor float64 `yaml:"similarity_floor"` // word-overlap accept floor, default 0.3
	MetadataFloor   float64 `yaml:"metadata_floor"`   // metadata short-circuit floor, default 0.5
}

// ChunkerConfig tunes the transcript chunker validity filter.
type ChunkerConfig struct {
	MinCheckpoints int           `yaml:"min_checkpoints"` // default 2
	MinMessages    int           `yaml:"min_messages"`    // default 2
	MinDuration    time.Duration `yaml:"min_duration"`    // default 100ms
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"` // debug, info, warn, error
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Name:    "praxis",
		Version: "0.1.0",
		Store: StoreConfig{
			DatabasePath: filepath.Join(".praxis", "patterns.db"),
		},
		Confidence: ConfidenceConfig{
			SuccessIncrease: 0.1,
			FailureDecrease: 0.2,
			MinConfidence:   0.0,
			MaxConfidence:   1.0,
			ForkThreshold:   0.3,
		},
		Matcher: MatcherConfig{
			MaxCandidates:   10,
			SimilarityFloor: 0.3,
			MetadataFloor:   0.5,
		},
		Chunker: ChunkerConfig{
			MinCheckpoints: 2,
			MinMessages:    2,
			MinDuration:    100 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
	}
}

// Load reads configuration from the given YAML file, applying defaults for
// any unset values and environment overrides on top. A missing file is not
// an error: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides applies PRAXIS_* environment variables over cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PRAXIS_DATABASE_PATH"); v != "" {
		cfg.Store.DatabasePath = v
	}
	if v := os.Getenv("PRAXIS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PRAXIS_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.DebugMode = b
		}
	}
	if v := os.Getenv("PRAXIS_FORK_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Confidence.ForkThreshold = f
		}
	}
	if v := os.Getenv("PRAXIS_SIMILARITY_FLOOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matcher.SimilarityFloor = f
		}
	}
}

// FindWorkspaceRoot walks up from the working directory looking for a
// .praxis directory or a go.mod, falling back to the working directory.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".praxis")); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}
