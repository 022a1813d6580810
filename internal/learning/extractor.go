// Package learning converts validated task chunks into structured learning
// patterns and persists them through the pattern store. Parse-level errors
// are contained per field; a failure to persist a completed pattern is not
// swallowed.
package learning

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"praxis/internal/logging"
	"praxis/internal/project"
	"praxis/internal/types"
)

// ParseError reports a malformed metadata or tool-call payload. Recovered
// locally by degrading to a best-effort fallback value.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Confidence deltas for freshly extracted patterns.
const (
	baseConfidence     = 0.5
	successDelta       = 0.2
	partialDelta       = 0.1
	failureDelta       = -0.2
	toolUsageBonus     = 0.1
	fileCreateToolHint = "write"
)

var dependencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`import\s+.*?\bfrom\s+['"]([^'"]+)['"]`),
	regexp.MustCompile(`import\s+['"]([^'"]+)['"]`),
	regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`),
}

// Extractor derives learning patterns from task chunks.
type Extractor struct {
	provider project.Provider
}

// NewExtractor creates an extractor over the given project-context
// provider. A nil provider yields patterns with an empty fingerprint.
func NewExtractor(provider project.Provider) *Extractor {
	return &Extractor{provider: provider}
}

// Extract converts one chunk into a learning pattern. Per-field parse
// failures degrade to fallback values; only a missing intent makes the
// chunk unusable.
func (e *Extractor) Extract(chunk types.TaskChunk) (*types.LearningPattern, error) {
	timer := logging.StartTimer(logging.CategoryLearning, "Extractor.Extract")
	defer timer.Stop()

	intent := chunkIntent(chunk)
	if intent == "" {
		return nil, fmt.Errorf("chunk has no usable intent text")
	}

	outcome := resolveOutcome(chunk)
	toolUsages := e.extractToolUsages(chunk)
	fileChanges := deriveFileChanges(toolUsages)
	errorText := lastCheckpointMessage(chunk, types.CheckpointError)
	dependencies := extractDependencies(fileChanges)
	projectCtx := e.projectContext(dependencies)

	metadata := types.Metadata{
		"task_type": classifyTaskType(intent),
	}
	if errorText != "" {
		metadata["error"] = errorText
	}
	if len(fileChanges) > 0 {
		metadata["file_path"] = fileChanges[0].FilePath
	}

	operations := make([]types.Operation, 0, len(toolUsages))
	for _, tu := range toolUsages {
		operations = append(operations, types.Operation{
			Type:      tu.Tool,
			Params:    tu.Params,
			Timestamp: tu.Timestamp,
		})
	}

	lp := &types.LearningPattern{
		Pattern: types.Pattern{
			Text:       intent,
			Context:    projectCtx.Fingerprint,
			Timestamp:  chunk.StartTs,
			Metadata:   metadata,
			Confidence: extractionConfidence(outcome, len(toolUsages) > 0),
		},
		ProjectContext: projectCtx,
		Execution: types.Execution{
			Operations: operations,
			Outcome:    outcome,
		},
		Category: Categorize(intent),
	}

	logging.Learning("Extracted pattern intent=%q outcome=%s category=%s tools=%d files=%d",
		truncate(intent, 60), outcome, lp.Category, len(toolUsages), len(fileChanges))
	return lp, nil
}

// resolveOutcome classifies the chunk: success when the completion
// checkpoint is explicitly successful, failure when any error checkpoint
// exists, partial otherwise.
func resolveOutcome(chunk types.TaskChunk) types.Outcome {
	if cp := chunk.CompletionCheckpoint(); cp != nil && cp.Success != nil && *cp.Success {
		return types.OutcomeSuccess
	}
	if chunk.HasCheckpoint(types.CheckpointError) {
		return types.OutcomeFailure
	}
	return types.OutcomePartial
}

// toolCallPayload is the structured shape of a tool-usage message.
type toolCallPayload struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

// extractToolUsages parses each tool-usage checkpoint. Unparsable payloads
// degrade to {tool: "unknown", raw: text} rather than aborting the chunk.
func (e *Extractor) extractToolUsages(chunk types.TaskChunk) []types.ToolUsage {
	var usages []types.ToolUsage
	for _, cp := range chunk.Checkpoints {
		if cp.Type != types.CheckpointToolUsage {
			continue
		}
		success := cp.Success == nil || *cp.Success

		var payload toolCallPayload
		if err := json.Unmarshal([]byte(cp.Message), &payload); err != nil || payload.Tool == "" {
			perr := &ParseError{What: "tool payload", Err: err}
			logging.Get(logging.CategoryLearning).Warn("%v; degrading to unknown tool", perr)
			usages = append(usages, types.ToolUsage{
				Tool:      "unknown",
				Timestamp: cp.Ts,
				Success:   success,
				Raw:       cp.Message,
			})
			continue
		}
		usages = append(usages, types.ToolUsage{
			Tool:      payload.Tool,
			Params:    payload.Params,
			Timestamp: cp.Ts,
			Success:   success,
		})
	}
	return usages
}

// deriveFileChanges maps recognized tool kinds to file changes: write and
// create tools produce created files, replace and edit tools modified
// ones. Unrecognized tools contribute nothing.
func deriveFileChanges(usages []types.ToolUsage) []types.FileChange {
	var changes []types.FileChange
	for _, tu := range usages {
		tool := strings.ToLower(tu.Tool)
		var changeType types.FileChangeType
		switch {
		case strings.Contains(tool, fileCreateToolHint), strings.Contains(tool, "create"):
			changeType = types.FileCreated
		case strings.Contains(tool, "replace"), strings.Contains(tool, "edit"):
			changeType = types.FileModified
		default:
			continue
		}

		path := paramString(tu.Params, "path", "file", "file_path", "filePath")
		if path == "" {
			continue
		}
		changes = append(changes, types.FileChange{
			FilePath: path,
			Type:     changeType,
			Content:  paramString(tu.Params, "content", "diff"),
		})
	}
	return changes
}

// extractDependencies scans file-change content line by line for import and
// require statements, retaining only relative-path references.
func extractDependencies(changes []types.FileChange) []string {
	seen := make(map[string]bool)
	var deps []string
	for _, change := range changes {
		for _, line := range strings.Split(change.Content, "\n") {
			for _, re := range dependencyPatterns {
				m := re.FindStringSubmatch(line)
				if m == nil {
					continue
				}
				ref := m[1]
				if !strings.HasPrefix(ref, ".") || seen[ref] {
					continue
				}
				seen[ref] = true
				deps = append(deps, ref)
			}
		}
	}
	return deps
}

// projectContext resolves the project fingerprint from the provider's
// current-context summary, merging in dependencies observed in the chunk.
func (e *Extractor) projectContext(chunkDeps []string) types.ProjectContext {
	ctx := types.ProjectContext{Dependencies: chunkDeps}
	if e.provider == nil {
		return ctx
	}

	text, err := e.provider.GetCurrentContext()
	if err != nil {
		logging.Get(logging.CategoryLearning).Warn("Project context unavailable: %v", err)
		return ctx
	}
	summary := project.ParseSummary(text)
	ctx.Fingerprint = summary.Fingerprint()
	ctx.FileTypes = summary.FileTypes
	for name := range summary.Dependencies {
		ctx.Dependencies = append(ctx.Dependencies, name)
	}
	return ctx
}

// extractionConfidence applies the learning-pipeline confidence rule:
// start at 0.5, shift by outcome, add a bonus when tools were actually
// used, clamp to [0,1].
func extractionConfidence(outcome types.Outcome, usedTools bool) float64 {
	confidence := baseConfidence
	switch outcome {
	case types.OutcomeSuccess:
		confidence += successDelta
	case types.OutcomePartial:
		confidence += partialDelta
	case types.OutcomeFailure:
		confidence += failureDelta
	}
	if usedTools {
		confidence += toolUsageBonus
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

// classifyTaskType derives the coarse task-type token from intent text.
func classifyTaskType(intent string) string {
	lower := strings.ToLower(intent)
	switch {
	case containsAny(lower, "create", "add", "implement", "generate", "build", "write"):
		return "create"
	case containsAny(lower, "fix", "debug", "resolve", "repair"):
		return "fix"
	case containsAny(lower, "update", "change", "modify", "refactor"):
		return "update"
	case containsAny(lower, "delete", "remove"):
		return "delete"
	default:
		return "other"
	}
}

// Categorize maps intent text onto the closed learning category set.
func Categorize(intent string) types.Category {
	lower := strings.ToLower(intent)
	switch {
	case containsAny(lower, "fix", "debug", "error", "bug", "resolve"):
		return types.CategoryDebugging
	case containsAny(lower, "refactor", "clean", "restructure", "reorganize"):
		return types.CategoryRefactoring
	case containsAny(lower, "optimiz", "performance", "speed", "faster"):
		return types.CategoryOptimization
	default:
		return types.CategoryCodeGeneration
	}
}

// recoveryAdjustments lists the tool-usage checkpoints observed after the
// first error checkpoint: the recovery steps taken.
func recoveryAdjustments(chunk types.TaskChunk) []string {
	errorSeen := false
	var adjustments []string
	for _, cp := range chunk.Checkpoints {
		switch cp.Type {
		case types.CheckpointError:
			errorSeen = true
		case types.CheckpointToolUsage:
			if !errorSeen {
				continue
			}
			var payload toolCallPayload
			if err := json.Unmarshal([]byte(cp.Message), &payload); err == nil && payload.Tool != "" {
				adjustments = append(adjustments, payload.Tool)
			} else {
				adjustments = append(adjustments, cp.Message)
			}
		}
	}
	return adjustments
}

// chunkIntent returns the chunk's derived intent: its recorded intent, or
// the first non-JSON message text.
func chunkIntent(chunk types.TaskChunk) string {
	if strings.TrimSpace(chunk.Intent) != "" && !strings.HasPrefix(strings.TrimSpace(chunk.Intent), "{") {
		return strings.TrimSpace(chunk.Intent)
	}
	for _, msg := range chunk.Messages {
		text := strings.TrimSpace(msg.Text)
		if text != "" && !strings.HasPrefix(text, "{") {
			return text
		}
	}
	return ""
}

// lastCheckpointMessage returns the message of the last checkpoint of the
// given type, or empty.
func lastCheckpointMessage(chunk types.TaskChunk, t types.CheckpointType) string {
	for i := len(chunk.Checkpoints) - 1; i >= 0; i-- {
		if chunk.Checkpoints[i].Type == t {
			return chunk.Checkpoints[i].Message
		}
	}
	return ""
}

func paramString(params map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := params[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
