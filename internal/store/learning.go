package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"praxis/internal/logging"
	"praxis/internal/types"
)

// learningRecord is the serialized shape of the execution_data column.
type learningRecord struct {
	ProjectContext types.ProjectContext `json:"project_context"`
	Execution      types.Execution      `json:"execution"`
}

// StoreLearningPattern persists a learning pattern as a base pattern row
// plus a linked learning record keyed by project fingerprint. Both inserts
// commit atomically. Returns the new base pattern id.
func (s *PatternStore) StoreLearningPattern(lp types.LearningPattern) (int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.StoreLearningPattern")
	defer timer.Stop()

	if lp.Category == "" {
		return 0, &ValidationError{Reason: "learning pattern requires a category"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, storageErr("StoreLearningPattern", err)
	}
	defer tx.Rollback()

	patternID, err := storeLearningTx(tx, lp)
	if err != nil {
		return 0, storageErr("StoreLearningPattern", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("StoreLearningPattern", err)
	}

	logging.Store("Stored learning pattern id=%d category=%s fingerprint=%q", patternID, lp.Category, lp.ProjectContext.Fingerprint)
	return patternID, nil
}

// StoreLearningPatternWithUsage persists the pattern, its learning record,
// the first usage event and the resulting confidence update (including any
// fork) in one transaction. Either the whole pattern-plus-usage unit
// commits or nothing does; a failed usage write never leaves an orphaned
// pattern row. u.PatternID is ignored and set to the new pattern's id.
func (s *PatternStore) StoreLearningPatternWithUsage(lp types.LearningPattern, u types.PatternUsage) (int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.StoreLearningPatternWithUsage")
	defer timer.Stop()

	if lp.Category == "" {
		return 0, &ValidationError{Reason: "learning pattern requires a category"}
	}
	if !u.Outcome.Valid() {
		return 0, &ValidationError{Reason: fmt.Sprintf("unknown outcome %q", u.Outcome)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, storageErr("StoreLearningPatternWithUsage", err)
	}
	defer tx.Rollback()

	patternID, err := storeLearningTx(tx, lp)
	if err != nil {
		return 0, storageErr("StoreLearningPatternWithUsage", err)
	}
	u.PatternID = patternID
	if err := s.recordUsageTx(tx, u); err != nil {
		return 0, storageErr("StoreLearningPatternWithUsage", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("StoreLearningPatternWithUsage", err)
	}

	logging.Store("Stored learning pattern id=%d category=%s outcome=%s", patternID, lp.Category, u.Outcome)
	return patternID, nil
}

// storeLearningTx inserts the base pattern row and its linked learning
// record within tx.
func storeLearningTx(tx *sql.Tx, lp types.LearningPattern) (int64, error) {
	patternID, err := insertPatternTx(tx, lp.Pattern)
	if err != nil {
		return 0, err
	}

	record := learningRecord{ProjectContext: lp.ProjectContext, Execution: lp.Execution}
	executionJSON, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal execution data: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO learning_patterns (id, pattern_id, project_fingerprint, execution_data, category)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), patternID, lp.ProjectContext.Fingerprint, string(executionJSON), string(lp.Category)); err != nil {
		return 0, err
	}
	return patternID, nil
}

// FindByFingerprint joins learning records to their base patterns on
// project fingerprint, most recent first.
func (s *PatternStore) FindByFingerprint(fingerprint string) ([]types.LearningPattern, error) {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.FindByFingerprint")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT p.id, p.text, p.context, p.command, p.timestamp, p.metadata, p.confidence,
		       lp.execution_data, lp.category
		FROM learning_patterns lp
		JOIN patterns p ON p.id = lp.pattern_id
		WHERE lp.project_fingerprint = ?
		ORDER BY p.timestamp DESC, p.id DESC
	`, fingerprint)
	if err != nil {
		return nil, storageErr("FindByFingerprint", err)
	}
	defer rows.Close()

	var results []types.LearningPattern
	for rows.Next() {
		var lp types.LearningPattern
		var tsMillis int64
		var executionJSON, category string
		var md sql.NullString
		if err := rows.Scan(&lp.ID, &lp.Text, &lp.Context, &lp.Command, &tsMillis, &md, &lp.Confidence, &executionJSON, &category); err != nil {
			return nil, storageErr("FindByFingerprint", err)
		}
		lp.Timestamp = time.UnixMilli(tsMillis)
		lp.Category = types.Category(category)
		if md.Valid && md.String != "" {
			if err := json.Unmarshal([]byte(md.String), &lp.Metadata); err != nil {
				logging.Get(logging.CategoryStore).Warn("Malformed metadata for pattern %d: %v", lp.ID, err)
			}
		}
		var record learningRecord
		if err := json.Unmarshal([]byte(executionJSON), &record); err != nil {
			logging.Get(logging.CategoryStore).Warn("Malformed execution data for pattern %d: %v", lp.ID, err)
		} else {
			lp.ProjectContext = record.ProjectContext
			lp.Execution = record.Execution
		}
		results = append(results, lp)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("FindByFingerprint", err)
	}

	logging.StoreDebug("FindByFingerprint(%q) returned %d learning patterns", fingerprint, len(results))
	return results, nil
}
