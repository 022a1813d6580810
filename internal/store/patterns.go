package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"praxis/internal/logging"
	"praxis/internal/types"
)

// Store inserts a new pattern row. Text is trimmed, metadata serialized,
// confidence defaulted to 0.5 when unset (zero). Returns the new id.
func (s *PatternStore) Store(p types.Pattern) (int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.Store")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, storageErr("Store", err)
	}
	defer tx.Rollback()

	id, err := insertPatternTx(tx, p)
	if err != nil {
		return 0, storageErr("Store", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("Store", err)
	}

	logging.StoreDebug("Stored pattern id=%d command=%q context=%q", id, types.CommandKey(p.Text), p.Context)
	return id, nil
}

// StoreBatch inserts all patterns inside a single transaction. Either every
// pattern is stored or none is; partial writes are never visible.
func (s *PatternStore) StoreBatch(patterns []types.Pattern) ([]int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.StoreBatch")
	defer timer.Stop()

	if len(patterns) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, storageErr("StoreBatch", err)
	}
	defer tx.Rollback()

	ids := make([]int64, 0, len(patterns))
	for _, p := range patterns {
		id, err := insertPatternTx(tx, p)
		if err != nil {
			return nil, storageErr("StoreBatch", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("StoreBatch", err)
	}

	logging.Store("Stored %d patterns in one transaction", len(ids))
	return ids, nil
}

// insertPatternTx validates and inserts one pattern within tx.
func insertPatternTx(tx *sql.Tx, p types.Pattern) (int64, error) {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return 0, &ValidationError{Reason: "text must not be empty"}
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return 0, &ValidationError{Reason: fmt.Sprintf("confidence %.3f outside [0,1]", p.Confidence)}
	}

	confidence := p.Confidence
	if confidence == 0 {
		confidence = 0.5 // zero value means unset
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var metadataJSON sql.NullString
	if len(p.Metadata) > 0 {
		data, err := json.Marshal(p.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(data), Valid: true}
	}

	res, err := tx.Exec(`
		INSERT INTO patterns (text, context, command, timestamp, metadata, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
	`, text, p.Context, types.CommandKey(text), ts.UnixMilli(), metadataJSON, confidence)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Find returns patterns whose text contains the given substring, most
// recent first. An empty match yields an empty slice, not an error.
func (s *PatternStore) Find(textSubstring string) ([]types.Pattern, error) {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.Find")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, text, context, command, timestamp, metadata, confidence
		FROM patterns
		WHERE instr(text, ?) > 0
		ORDER BY timestamp DESC, id DESC
	`, textSubstring)
	if err != nil {
		return nil, storageErr("Find", err)
	}
	defer rows.Close()

	patterns, err := scanPatterns(rows)
	if err != nil {
		return nil, storageErr("Find", err)
	}
	logging.StoreDebug("Find(%q) returned %d patterns", textSubstring, len(patterns))
	return patterns, nil
}

// Get returns the pattern with the given id, or ErrNotFound.
func (s *PatternStore) Get(id int64) (*types.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, text, context, command, timestamp, metadata, confidence
		FROM patterns WHERE id = ?
	`, id)
	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("Get", err)
	}
	return p, nil
}

// FindCandidates returns up to limit patterns sharing the given command
// key, ordered by confidence then recency. With a context hint, exact
// context matches are tried first; if none exist the hint falls back to
// substring containment in either direction.
func (s *PatternStore) FindCandidates(command, contextHint string, limit int) ([]types.Pattern, error) {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.FindCandidates")
	defer timer.Stop()

	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if contextHint != "" {
		exact, err := s.queryCandidates(`
			SELECT id, text, context, command, timestamp, metadata, confidence
			FROM patterns
			WHERE command = ? AND context = ?
			ORDER BY confidence DESC, timestamp DESC, id DESC
			LIMIT ?
		`, command, contextHint, limit)
		if err != nil {
			return nil, err
		}
		if len(exact) > 0 {
			return exact, nil
		}
		return s.queryCandidates(`
			SELECT id, text, context, command, timestamp, metadata, confidence
			FROM patterns
			WHERE command = ? AND context != ''
			  AND (instr(context, ?) > 0 OR instr(?, context) > 0)
			ORDER BY confidence DESC, timestamp DESC, id DESC
			LIMIT ?
		`, command, contextHint, contextHint, limit)
	}

	return s.queryCandidates(`
		SELECT id, text, context, command, timestamp, metadata, confidence
		FROM patterns
		WHERE command = ?
		ORDER BY confidence DESC, timestamp DESC, id DESC
		LIMIT ?
	`, command, limit)
}

func (s *PatternStore) queryCandidates(query string, args ...interface{}) ([]types.Pattern, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("FindCandidates", err)
	}
	defer rows.Close()

	patterns, err := scanPatterns(rows)
	if err != nil {
		return nil, storageErr("FindCandidates", err)
	}
	return patterns, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPattern(row rowScanner) (*types.Pattern, error) {
	var p types.Pattern
	var tsMillis int64
	var metadataJSON sql.NullString
	if err := row.Scan(&p.ID, &p.Text, &p.Context, &p.Command, &tsMillis, &metadataJSON, &p.Confidence); err != nil {
		return nil, err
	}
	p.Timestamp = time.UnixMilli(tsMillis)
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &p.Metadata); err != nil {
			// Malformed metadata degrades to nil rather than aborting the read.
			logging.Get(logging.CategoryStore).Warn("Malformed metadata for pattern %d: %v", p.ID, err)
			p.Metadata = nil
		}
	}
	return &p, nil
}

func scanPatterns(rows *sql.Rows) ([]types.Pattern, error) {
	var patterns []types.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}
