package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"praxis/internal/config"
	"praxis/internal/logging"
	"praxis/internal/types"
)

// NextConfidence computes the updated confidence for an outcome. Pure
// function so the transition rules are testable independently of storage.
//
// success: confidence + successIncrease, capped at maxConfidence.
// failure: confidence - failureDecrease, floored at minConfidence.
// partial: half the success increase; partial completion still counts as
// forward progress.
func NextConfidence(old float64, outcome types.Outcome, cfg config.ConfidenceConfig) float64 {
	var next float64
	switch outcome {
	case types.OutcomeSuccess:
		next = old + cfg.SuccessIncrease
	case types.OutcomeFailure:
		next = old - cfg.FailureDecrease
	case types.OutcomePartial:
		next = old + cfg.SuccessIncrease/2
	default:
		next = old
	}
	if next > cfg.MaxConfidence {
		next = cfg.MaxConfidence
	}
	if next < cfg.MinConfidence {
		next = cfg.MinConfidence
	}
	return next
}

// UpdateConfidence applies one outcome to the pattern's confidence and
// returns the new value. After a failure update, if the result is at or
// below the fork threshold a fresh copy of the pattern is created with
// confidence reset to 0.5 (same text/context/metadata, new timestamp) and
// the fork is recorded as an evolution event. The update and any fork
// commit atomically. opts may be nil to use the store defaults.
func (s *PatternStore) UpdateConfidence(id int64, outcome types.Outcome, opts *config.ConfidenceConfig) (float64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "PatternStore.UpdateConfidence")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, storageErr("UpdateConfidence", err)
	}
	defer tx.Rollback()

	next, err := s.updateConfidenceTx(tx, id, outcome, opts)
	if err != nil {
		return 0, storageErr("UpdateConfidence", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("UpdateConfidence", err)
	}
	return next, nil
}

// updateConfidenceTx performs the confidence transition and fork policy
// within an existing transaction. Callers hold s.mu.
func (s *PatternStore) updateConfidenceTx(tx *sql.Tx, id int64, outcome types.Outcome, opts *config.ConfidenceConfig) (float64, error) {
	cfg := s.cfg
	if opts != nil {
		cfg = *opts
	}

	var old float64
	err := tx.QueryRow(`SELECT confidence FROM patterns WHERE id = ?`, id).Scan(&old)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	next := NextConfidence(old, outcome, cfg)
	if _, err := tx.Exec(`UPDATE patterns SET confidence = ? WHERE id = ?`, next, id); err != nil {
		return 0, err
	}
	logging.StoreDebug("Confidence update pattern=%d outcome=%s %.3f -> %.3f", id, outcome, old, next)

	// Fork policy: a collapsed pattern gets a reset lineage rather than
	// being permanently buried; the low-confidence original stays
	// queryable for audit.
	if outcome == types.OutcomeFailure && next <= cfg.ForkThreshold {
		forkedID, err := s.forkPatternTx(tx, id)
		if err != nil {
			return 0, err
		}
		logging.Store("Forked pattern %d -> %d (confidence %.3f <= threshold %.3f)", id, forkedID, next, cfg.ForkThreshold)
	}

	return next, nil
}

// forkPatternTx inserts a fresh copy of pattern id with confidence 0.5 and
// records the fork as an evolution event.
func (s *PatternStore) forkPatternTx(tx *sql.Tx, id int64) (int64, error) {
	var text, context string
	var metadataJSON sql.NullString
	err := tx.QueryRow(`SELECT text, context, metadata FROM patterns WHERE id = ?`, id).
		Scan(&text, &context, &metadataJSON)
	if err != nil {
		return 0, err
	}

	res, err := tx.Exec(`
		INSERT INTO patterns (text, context, command, timestamp, metadata, confidence)
		VALUES (?, ?, ?, ?, ?, 0.5)
	`, text, context, types.CommandKey(text), time.Now().UnixMilli(), metadataJSON)
	if err != nil {
		return 0, err
	}
	forkedID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	changes, err := json.Marshal([]string{"fork: confidence reset after failure"})
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`
		INSERT INTO pattern_evolution (original_pattern_id, changes, outcome, timestamp)
		VALUES (?, ?, 'forked', ?)
	`, id, string(changes), time.Now().UnixMilli()); err != nil {
		return 0, err
	}
	return forkedID, nil
}
