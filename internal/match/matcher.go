// Package match implements the similarity matcher: given a free-text task
// description and an optional context hint, it selects the best stored
// pattern using command-prefix filtering, metadata-aware scoring and
// word-overlap similarity. No embeddings; keyword and overlap heuristics
// only.
package match

import (
	"fmt"
	"strings"

	"praxis/internal/config"
	"praxis/internal/logging"
	"praxis/internal/types"
)

// Scoring weights for metadata similarity.
const (
	valueHitWeight    = 0.4 // metadata value appears in the task text
	keyHitWeight      = 0.2 // metadata key name appears in the task text
	semanticTagWeight = 0.6 // recognized semantic tag matches task keywords
)

// semanticTags maps recognized metadata tag values to the task keywords
// they correspond to. Kept as data so calibration doesn't touch the
// scoring code.
var semanticTags = map[string][]string{
	"style":    {"style", "format", "formatting", "lint", "prettier", "indent"},
	"security": {"security", "auth", "authentication", "login", "credential", "token", "password"},
}

// CandidateSource is the slice of the pattern store the matcher needs.
type CandidateSource interface {
	FindCandidates(command, contextHint string, limit int) ([]types.Pattern, error)
}

// Matcher ranks stored patterns against incoming task text.
type Matcher struct {
	source CandidateSource
	cfg    config.MatcherConfig
}

// New creates a matcher over the given candidate source.
func New(source CandidateSource, cfg config.MatcherConfig) *Matcher {
	return &Matcher{source: source, cfg: cfg}
}

// Match returns the single best matching pattern for the task text, or nil
// when nothing clears its threshold. Empty task text never matches.
func (m *Matcher) Match(taskText, contextHint string) (*types.Pattern, error) {
	timer := logging.StartTimer(logging.CategoryMatch, "Matcher.Match")
	defer timer.Stop()

	taskText = strings.TrimSpace(taskText)
	if taskText == "" {
		return nil, nil // guard against vacuous substring matches
	}

	command := types.CommandKey(taskText)
	candidates, err := m.source.FindCandidates(command, contextHint, m.cfg.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("candidate query failed: %w", err)
	}
	if len(candidates) == 0 {
		logging.MatchDebug("No candidates for command=%q context=%q", command, contextHint)
		return nil, nil
	}

	// Metadata match takes priority over plain text similarity. Candidates
	// arrive ordered by confidence then recency, so the first one past the
	// floor wins ties by construction.
	taskLower := strings.ToLower(taskText)
	for i := range candidates {
		score := MetadataScore(candidates[i].Metadata, taskLower)
		if score > m.cfg.MetadataFloor {
			logging.Match("Metadata match pattern=%d score=%.2f task=%q", candidates[i].ID, score, taskText)
			return &candidates[i], nil
		}
	}

	// Fall back to word-overlap similarity against the top candidate only,
	// the highest-confidence then most-recent one. Scanning the whole
	// candidate list would let a weaker pattern win on raw overlap.
	top := &candidates[0]
	score := WordOverlap(taskText, top.Text)
	if score >= m.cfg.SimilarityFloor {
		logging.Match("Overlap match pattern=%d score=%.2f task=%q", top.ID, score, taskText)
		return top, nil
	}

	logging.MatchDebug("Top candidate %d under threshold for task=%q (score=%.2f)", top.ID, taskText, score)
	return nil, nil
}

// MetadataScore awards partial credit for each metadata key/value pair that
// surfaces in the task text, with a larger bonus for recognized semantic
// tags. taskLower must already be lowercased. Clamped to 1.0.
func MetadataScore(metadata types.Metadata, taskLower string) float64 {
	if len(metadata) == 0 || taskLower == "" {
		return 0
	}

	score := 0.0
	for key, value := range metadata {
		valueStr := strings.ToLower(stringify(value))
		if valueStr != "" && strings.Contains(taskLower, valueStr) {
			score += valueHitWeight
		}
		if strings.Contains(taskLower, strings.ToLower(key)) {
			score += keyHitWeight
		}
		if keywords, ok := semanticTags[valueStr]; ok {
			for _, kw := range keywords {
				if strings.Contains(taskLower, kw) {
					score += semanticTagWeight
					break
				}
			}
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// WordOverlap scores two texts by shared-token ratio with bonuses for a
// matching first token and equal token counts.
func WordOverlap(a, b string) float64 {
	tokensA := strings.Fields(strings.ToLower(a))
	tokensB := strings.Fields(strings.ToLower(b))
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setB := make(map[string]bool, len(tokensB))
	for _, tok := range tokensB {
		setB[tok] = true
	}
	shared := 0
	seen := make(map[string]bool, len(tokensA))
	for _, tok := range tokensA {
		if setB[tok] && !seen[tok] {
			shared++
			seen[tok] = true
		}
	}

	maxLen := len(tokensA)
	if len(tokensB) > maxLen {
		maxLen = len(tokensB)
	}
	score := float64(shared) / float64(maxLen)
	if tokensA[0] == tokensB[0] {
		score += 0.5
	}
	if len(tokensA) == len(tokensB) {
		score += 0.5
	}
	return score
}

// stringify renders a metadata value for substring comparison.
func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		// JSON numbers decode as float64; render integers without decimals.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case int:
		return fmt.Sprintf("%d", val)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
