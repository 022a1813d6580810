package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"praxis/internal/logging"
	"praxis/internal/types"
)

// RecordUsage appends an immutable usage event and applies the resulting
// confidence update (including any fork) in the same transaction.
func (s *PatternStore) RecordUsage(u types.PatternUsage) error {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.RecordUsage")
	defer timer.Stop()

	if !u.Outcome.Valid() {
		return &ValidationError{Reason: fmt.Sprintf("unknown outcome %q", u.Outcome)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("RecordUsage", err)
	}
	defer tx.Rollback()

	if err := patternExistsTx(tx, u.PatternID); err != nil {
		return err
	}
	if err := s.recordUsageTx(tx, u); err != nil {
		return storageErr("RecordUsage", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("RecordUsage", err)
	}
	logging.StoreDebug("Recorded usage pattern=%d outcome=%s", u.PatternID, u.Outcome)
	return nil
}

// recordUsageTx appends the usage row and applies the confidence update
// within an existing transaction. Callers hold s.mu.
func (s *PatternStore) recordUsageTx(tx *sql.Tx, u types.PatternUsage) error {
	ts := u.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	var adjustmentsJSON sql.NullString
	if len(u.Adjustments) > 0 {
		data, err := json.Marshal(u.Adjustments)
		if err != nil {
			return fmt.Errorf("failed to marshal adjustments: %w", err)
		}
		adjustmentsJSON = sql.NullString{String: string(data), Valid: true}
	}

	if _, err := tx.Exec(`
		INSERT INTO pattern_usage (pattern_id, timestamp, outcome, feedback, adjustments)
		VALUES (?, ?, ?, ?, ?)
	`, u.PatternID, ts.UnixMilli(), string(u.Outcome), u.Feedback, adjustmentsJSON); err != nil {
		return err
	}

	_, err := s.updateConfidenceTx(tx, u.PatternID, u.Outcome, nil)
	return err
}

// TrackEvolution appends an immutable evolution event recording a fork or
// edit of the pattern.
func (s *PatternStore) TrackEvolution(id int64, changes []string, outcome string) error {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.TrackEvolution")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("TrackEvolution", err)
	}
	defer tx.Rollback()

	if err := patternExistsTx(tx, id); err != nil {
		return err
	}

	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return storageErr("TrackEvolution", fmt.Errorf("failed to marshal changes: %w", err))
	}
	if _, err := tx.Exec(`
		INSERT INTO pattern_evolution (original_pattern_id, changes, outcome, timestamp)
		VALUES (?, ?, ?, ?)
	`, id, string(changesJSON), outcome, time.Now().UnixMilli()); err != nil {
		return storageErr("TrackEvolution", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("TrackEvolution", err)
	}
	return nil
}

// ValidatePattern appends an immutable validation event, recorded whenever
// an external caller explicitly validates a pattern's applicability
// independent of execution outcome.
func (s *PatternStore) ValidatePattern(id int64, success bool, context string) error {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.ValidatePattern")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return storageErr("ValidatePattern", err)
	}
	defer tx.Rollback()

	if err := patternExistsTx(tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO pattern_validation (pattern_id, success, context, timestamp)
		VALUES (?, ?, ?, ?)
	`, id, success, context, time.Now().UnixMilli()); err != nil {
		return storageErr("ValidatePattern", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("ValidatePattern", err)
	}
	return nil
}

// GetPatternHistory aggregates usage counts plus the adjustment text
// streams: evolution changes first (in timestamp order), then usage
// adjustments.
func (s *PatternStore) GetPatternHistory(id int64) (*types.PatternHistory, error) {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.GetPatternHistory")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := patternExists(s.db, id); err != nil {
		return nil, err
	}

	history := &types.PatternHistory{}

	rows, err := s.db.Query(`
		SELECT outcome, COUNT(*) FROM pattern_usage
		WHERE pattern_id = ? GROUP BY outcome
	`, id)
	if err != nil {
		return nil, storageErr("GetPatternHistory", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, storageErr("GetPatternHistory", err)
		}
		switch types.Outcome(outcome) {
		case types.OutcomeSuccess:
			history.Successes = count
		case types.OutcomeFailure:
			history.Failures = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("GetPatternHistory", err)
	}

	evoRows, err := s.db.Query(`
		SELECT changes FROM pattern_evolution
		WHERE original_pattern_id = ? ORDER BY timestamp ASC, id ASC
	`, id)
	if err != nil {
		return nil, storageErr("GetPatternHistory", err)
	}
	defer evoRows.Close()
	for evoRows.Next() {
		var changesJSON string
		if err := evoRows.Scan(&changesJSON); err != nil {
			return nil, storageErr("GetPatternHistory", err)
		}
		var changes []string
		if err := json.Unmarshal([]byte(changesJSON), &changes); err != nil {
			logging.Get(logging.CategoryStore).Warn("Malformed evolution changes for pattern %d: %v", id, err)
			continue
		}
		history.Adaptations = append(history.Adaptations, changes...)
	}
	if err := evoRows.Err(); err != nil {
		return nil, storageErr("GetPatternHistory", err)
	}

	adjRows, err := s.db.Query(`
		SELECT adjustments FROM pattern_usage
		WHERE pattern_id = ? AND adjustments IS NOT NULL
		ORDER BY timestamp ASC, id ASC
	`, id)
	if err != nil {
		return nil, storageErr("GetPatternHistory", err)
	}
	defer adjRows.Close()
	for adjRows.Next() {
		var adjustmentsJSON string
		if err := adjRows.Scan(&adjustmentsJSON); err != nil {
			return nil, storageErr("GetPatternHistory", err)
		}
		var adjustments []string
		if err := json.Unmarshal([]byte(adjustmentsJSON), &adjustments); err != nil {
			logging.Get(logging.CategoryStore).Warn("Malformed usage adjustments for pattern %d: %v", id, err)
			continue
		}
		history.Adaptations = append(history.Adaptations, adjustments...)
	}
	if err := adjRows.Err(); err != nil {
		return nil, storageErr("GetPatternHistory", err)
	}

	return history, nil
}

// GetPatternEvolution returns the evolution events for a pattern, oldest
// first. Used for audit/insight queries.
func (s *PatternStore) GetPatternEvolution(id int64) ([]types.PatternEvolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT original_pattern_id, changes, outcome, timestamp
		FROM pattern_evolution
		WHERE original_pattern_id = ?
		ORDER BY timestamp ASC, id ASC
	`, id)
	if err != nil {
		return nil, storageErr("GetPatternEvolution", err)
	}
	defer rows.Close()

	var events []types.PatternEvolution
	for rows.Next() {
		var e types.PatternEvolution
		var changesJSON string
		var tsMillis int64
		if err := rows.Scan(&e.OriginalPatternID, &changesJSON, &e.Outcome, &tsMillis); err != nil {
			return nil, storageErr("GetPatternEvolution", err)
		}
		e.Timestamp = time.UnixMilli(tsMillis)
		if err := json.Unmarshal([]byte(changesJSON), &e.Changes); err != nil {
			logging.Get(logging.CategoryStore).Warn("Malformed evolution changes for pattern %d: %v", id, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("GetPatternEvolution", err)
	}
	return events, nil
}

type queryRower interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

// patternExists enforces referential integrity at write time.
func patternExists(q queryRower, id int64) error {
	var one int
	err := q.QueryRow(`SELECT 1 FROM patterns WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return storageErr("patternExists", err)
	}
	return nil
}

func patternExistsTx(tx *sql.Tx, id int64) error {
	return patternExists(tx, id)
}
