// Package store implements the persistent pattern store for praxis:
// durable CRUD plus structured queries over pattern, usage, evolution and
// validation records, transactionally consistent. All multi-statement
// operations run inside a single transaction so a crash mid-update cannot
// leave a usage record without its confidence update.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"praxis/internal/config"
	"praxis/internal/logging"
)

// PatternStore persists patterns and their history in SQLite.
type PatternStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	cfg    config.ConfidenceConfig
}

// New initializes the SQLite database at the given path. Use ":memory:"
// for an ephemeral store.
func New(path string, cfg config.ConfidenceConfig) (*PatternStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.New")
	defer timer.Stop()

	logging.Store("Initializing PatternStore at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
			return nil, storageErr("New", fmt.Errorf("failed to create directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, storageErr("New", fmt.Errorf("failed to open database: %w", err))
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable sqlite foreign_keys: %v", err)
	}

	s := &PatternStore{db: db, dbPath: path, cfg: cfg}
	if err := s.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, storageErr("New", err)
	}

	logging.Store("PatternStore initialization complete")
	return s, nil
}

// initialize creates the required tables and indexes.
func (s *PatternStore) initialize() error {
	patternsTable := `
	CREATE TABLE IF NOT EXISTS patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		context TEXT DEFAULT '',
		command TEXT DEFAULT '',
		timestamp INTEGER NOT NULL,
		metadata TEXT,
		confidence REAL NOT NULL DEFAULT 0.5
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_command_context ON patterns(command, context);
	CREATE INDEX IF NOT EXISTS idx_patterns_context_ts ON patterns(context, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_patterns_command_ts ON patterns(command, timestamp DESC);
	`

	usageTable := `
	CREATE TABLE IF NOT EXISTS pattern_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pattern_id INTEGER NOT NULL REFERENCES patterns(id),
		timestamp INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		feedback TEXT DEFAULT '',
		adjustments TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_usage_pattern_outcome ON pattern_usage(pattern_id, outcome);
	`

	evolutionTable := `
	CREATE TABLE IF NOT EXISTS pattern_evolution (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		original_pattern_id INTEGER NOT NULL REFERENCES patterns(id),
		changes TEXT NOT NULL,
		outcome TEXT DEFAULT '',
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_evolution_original ON pattern_evolution(original_pattern_id);
	`

	validationTable := `
	CREATE TABLE IF NOT EXISTS pattern_validation (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pattern_id INTEGER NOT NULL REFERENCES patterns(id),
		success BOOLEAN NOT NULL,
		context TEXT DEFAULT '',
		timestamp INTEGER NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_validation_pattern ON pattern_validation(pattern_id);
	`

	learningTable := `
	CREATE TABLE IF NOT EXISTS learning_patterns (
		id TEXT PRIMARY KEY,
		pattern_id INTEGER NOT NULL REFERENCES patterns(id),
		project_fingerprint TEXT NOT NULL,
		execution_data TEXT NOT NULL,
		category TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_learning_fingerprint ON learning_patterns(project_fingerprint);
	CREATE INDEX IF NOT EXISTS idx_learning_pattern ON learning_patterns(pattern_id);
	`

	for _, table := range []string{
		patternsTable,
		usageTable,
		evolutionTable,
		validationTable,
		learningTable,
	} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *PatternStore) Close() error {
	logging.Store("Closing PatternStore database connection")
	return s.db.Close()
}

// DB returns the underlying SQL database connection.
func (s *PatternStore) DB() *sql.DB {
	return s.db
}

// ConfidenceConfig returns the default confidence options the store was
// opened with.
func (s *PatternStore) ConfidenceConfig() config.ConfidenceConfig {
	return s.cfg
}

// GetStats returns row counts per table.
func (s *PatternStore) GetStats() (map[string]int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "GetStats")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	tables := []string{"patterns", "pattern_usage", "pattern_evolution", "pattern_validation", "learning_patterns"}
	for _, table := range tables {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			logging.StoreDebug("Table %s count failed: %v", table, err)
			continue
		}
		stats[table] = count
	}
	return stats, nil
}
