// Package types provides shared type definitions used across praxis packages.
// This package exists to break import cycles between store, match, chunker,
// and learning. Types in this package should be foundational data structures
// with no complex dependencies.
package types

import (
	"strings"
	"time"
)

// Outcome is the coarse result classification of a task episode or of a
// single pattern invocation attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
)

// Valid reports whether o is one of the three known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomePartial:
		return true
	}
	return false
}

// Metadata is an open key -> value map attached to a pattern (task type,
// framework, file path, tool-specific fields). Stored serialized as JSON
// and parsed back into this shape.
type Metadata map[string]interface{}

// Pattern is a remembered task signature plus a confidence score.
type Pattern struct {
	ID         int64     `json:"id"`
	Text       string    `json:"text"`    // task description; first token is the command key
	Context    string    `json:"context"` // free-text scope tag, may be empty
	Command    string    `json:"command"` // lowercase first whitespace-delimited token of Text
	Timestamp  time.Time `json:"timestamp"`
	Metadata   Metadata  `json:"metadata,omitempty"`
	Confidence float64   `json:"confidence"` // bounded scalar, default 0.5
}

// CommandKey derives the coarse command key used for candidate filtering:
// the lowercase first whitespace-delimited token of text.
func CommandKey(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// PatternUsage is an immutable event recording one invocation attempt.
type PatternUsage struct {
	PatternID   int64     `json:"pattern_id"`
	Timestamp   time.Time `json:"timestamp"`
	Outcome     Outcome   `json:"outcome"`
	Feedback    string    `json:"feedback,omitempty"`
	Adjustments []string  `json:"adjustments,omitempty"`
}

// PatternEvolution is an immutable event recording a fork or edit.
type PatternEvolution struct {
	OriginalPatternID int64     `json:"original_pattern_id"`
	Changes           []string  `json:"changes"`
	Outcome           string    `json:"outcome"`
	Timestamp         time.Time `json:"timestamp"`
}

// PatternValidation is an immutable event recorded when an external caller
// explicitly validates a pattern's applicability, independent of execution.
type PatternValidation struct {
	PatternID int64     `json:"pattern_id"`
	Success   bool      `json:"success"`
	Context   string    `json:"context"`
	Timestamp time.Time `json:"timestamp"`
}

// PatternHistory aggregates usage counts and adjustment text for a pattern.
type PatternHistory struct {
	Successes   int      `json:"successes"`
	Failures    int      `json:"failures"`
	Adaptations []string `json:"adaptations"`
}

// Category is the closed set of learning-pattern categories.
type Category string

const (
	CategoryRefactoring    Category = "refactoring"
	CategoryOptimization   Category = "optimization"
	CategoryCodeGeneration Category = "code generation"
	CategoryDebugging      Category = "debugging"
)

// ProjectContext scopes a learned pattern to a codebase.
type ProjectContext struct {
	Fingerprint  string   `json:"fingerprint"`
	FileTypes    []string `json:"file_types,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Operation is one recorded step of an execution (typically a tool call).
type Operation struct {
	Type      string                 `json:"type"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Execution is the recorded operation sequence and outcome of a task episode.
type Execution struct {
	Operations []Operation `json:"operations,omitempty"`
	Outcome    Outcome     `json:"outcome"`
}

// LearningPattern is a Pattern enriched with project scope and execution
// detail. Produced only by the learning pipeline; persisted as a Pattern
// row plus a linked learning record keyed by project fingerprint.
type LearningPattern struct {
	Pattern
	ProjectContext ProjectContext `json:"project_context"`
	Execution      Execution      `json:"execution"`
	Category       Category       `json:"category"`
}

// ToolUsage is a parsed tool invocation from a transcript.
// Unparsable payloads degrade to Tool="unknown" with Raw set.
type ToolUsage struct {
	Tool      string                 `json:"tool"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Success   bool                   `json:"success"`
	Raw       string                 `json:"raw,omitempty"`
}

// FileChangeType classifies a derived file change.
type FileChangeType string

const (
	FileCreated  FileChangeType = "created"
	FileModified FileChangeType = "modified"
	FileDeleted  FileChangeType = "deleted"
)

// FileChange is a file mutation derived from recognized tool invocations.
type FileChange struct {
	FilePath string         `json:"file_path"`
	Type     FileChangeType `json:"type"`
	Content  string         `json:"content,omitempty"`
}

// ExecutionStatus is the dispatcher-reported result status.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusError   ExecutionStatus = "error"
)

// ExecutionResult is what the task dispatcher hands back after executing a
// task, for the learn-from-execution path.
type ExecutionResult struct {
	Status       ExecutionStatus `json:"status"`
	FileChanges  []FileChange    `json:"file_changes,omitempty"`
	Error        string          `json:"error,omitempty"`
	UserFeedback string          `json:"user_feedback,omitempty"`
}
