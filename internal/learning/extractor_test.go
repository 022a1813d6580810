package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"praxis/internal/project"
	"praxis/internal/types"
)

const testProviderSummary = `Dependencies:
- dayjs: 1.11.0
File types:
- .ts: 42
`

func checkpointAt(millis int64, t types.CheckpointType, message string, success *bool) types.Checkpoint {
	return types.Checkpoint{Ts: time.UnixMilli(millis), Type: t, Message: message, Success: success}
}

func successfulChunk() types.TaskChunk {
	return types.TaskChunk{
		StartTs: time.UnixMilli(0),
		EndTs:   time.UnixMilli(150),
		Intent:  "Fix empty array test failure",
		Messages: []types.Message{
			{Say: types.SayText, Ts: time.UnixMilli(0), Text: "Fix empty array test failure"},
			{Say: types.SayTool, Ts: time.UnixMilli(50), Text: `{"tool": "write_to_file", "params": {"path": "src/utils.ts", "content": "import { fmt } from './format'\n"}}`},
			{Say: types.SayText, Ts: time.UnixMilli(150), Text: "Tests passing now"},
		},
		Checkpoints: []types.Checkpoint{
			checkpointAt(0, types.CheckpointStart, "Fix empty array test failure", nil),
			checkpointAt(50, types.CheckpointToolUsage, `{"tool": "write_to_file", "params": {"path": "src/utils.ts", "content": "import { fmt } from './format'\n"}}`, types.BoolPtr(true)),
			checkpointAt(150, types.CheckpointCompletion, "Tests passing now", types.BoolPtr(true)),
		},
	}
}

func TestExtractSuccessfulChunk(t *testing.T) {
	e := NewExtractor(project.StaticProvider{Summary: testProviderSummary})

	lp, err := e.Extract(successfulChunk())
	require.NoError(t, err)
	require.NotNil(t, lp)

	assert.Equal(t, "Fix empty array test failure", lp.Text)
	assert.Equal(t, types.OutcomeSuccess, lp.Execution.Outcome)
	assert.Equal(t, types.CategoryDebugging, lp.Category)
	// 0.5 base + 0.2 success + 0.1 tool usage.
	assert.InDelta(t, 0.8, lp.Confidence, 1e-9)
	assert.Equal(t, "fix", types.CommandKey(lp.Text))

	require.Len(t, lp.Execution.Operations, 1)
	assert.Equal(t, "write_to_file", lp.Execution.Operations[0].Type)

	assert.Equal(t, "deps:dayjs;types:.ts", lp.ProjectContext.Fingerprint)
	assert.Contains(t, lp.ProjectContext.Dependencies, "./format")
	assert.Contains(t, lp.ProjectContext.Dependencies, "dayjs")

	assert.Equal(t, "fix", lp.Metadata["task_type"])
	assert.Equal(t, "src/utils.ts", lp.Metadata["file_path"])
}

func TestExtractWithoutIntentFails(t *testing.T) {
	e := NewExtractor(nil)
	chunk := types.TaskChunk{
		Messages: []types.Message{
			{Say: types.SayTool, Text: `{"tool": "read_file"}`},
		},
	}
	_, err := e.Extract(chunk)
	assert.Error(t, err)
}

func TestExtractNilProvider(t *testing.T) {
	e := NewExtractor(nil)
	lp, err := e.Extract(successfulChunk())
	require.NoError(t, err)
	assert.Empty(t, lp.ProjectContext.Fingerprint)
	assert.Equal(t, []string{"./format"}, lp.ProjectContext.Dependencies)
}

func TestResolveOutcome(t *testing.T) {
	tests := []struct {
		name        string
		checkpoints []types.Checkpoint
		want        types.Outcome
	}{
		{
			"ExplicitSuccess",
			[]types.Checkpoint{checkpointAt(0, types.CheckpointCompletion, "done", types.BoolPtr(true))},
			types.OutcomeSuccess,
		},
		{
			"ErrorCheckpoint",
			[]types.Checkpoint{
				checkpointAt(0, types.CheckpointError, "boom", types.BoolPtr(false)),
				checkpointAt(10, types.CheckpointCompletion, "gave up", types.BoolPtr(false)),
			},
			types.OutcomeFailure,
		},
		{
			"SuccessWinsOverEarlierError",
			[]types.Checkpoint{
				checkpointAt(0, types.CheckpointError, "boom", types.BoolPtr(false)),
				checkpointAt(10, types.CheckpointCompletion, "recovered, tests passing", types.BoolPtr(true)),
			},
			types.OutcomeSuccess,
		},
		{
			"UndefinedCompletionIsPartial",
			[]types.Checkpoint{checkpointAt(0, types.CheckpointCompletion, "", nil)},
			types.OutcomePartial,
		},
		{
			"NoCheckpointsIsPartial",
			nil,
			types.OutcomePartial,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk := types.TaskChunk{Checkpoints: tt.checkpoints}
			assert.Equal(t, tt.want, resolveOutcome(chunk))
		})
	}
}

func TestExtractionConfidence(t *testing.T) {
	tests := []struct {
		name      string
		outcome   types.Outcome
		usedTools bool
		want      float64
	}{
		{"SuccessWithTools", types.OutcomeSuccess, true, 0.8},
		{"SuccessNoTools", types.OutcomeSuccess, false, 0.7},
		{"PartialWithTools", types.OutcomePartial, true, 0.7},
		{"FailureNoTools", types.OutcomeFailure, false, 0.3},
		{"FailureWithTools", types.OutcomeFailure, true, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, extractionConfidence(tt.outcome, tt.usedTools), 1e-9)
		})
	}
}

func TestUnparsableToolPayloadDegrades(t *testing.T) {
	e := NewExtractor(nil)
	chunk := types.TaskChunk{
		StartTs: time.UnixMilli(0),
		EndTs:   time.UnixMilli(200),
		Intent:  "Create the exporter",
		Messages: []types.Message{
			{Say: types.SayText, Ts: time.UnixMilli(0), Text: "Create the exporter"},
		},
		Checkpoints: []types.Checkpoint{
			checkpointAt(0, types.CheckpointStart, "Create the exporter", nil),
			checkpointAt(50, types.CheckpointToolUsage, "not json at all", types.BoolPtr(true)),
			checkpointAt(200, types.CheckpointCompletion, "done", types.BoolPtr(true)),
		},
	}

	lp, err := e.Extract(chunk)
	require.NoError(t, err)
	require.Len(t, lp.Execution.Operations, 1)
	assert.Equal(t, "unknown", lp.Execution.Operations[0].Type)
}

func TestExtractDependencies(t *testing.T) {
	changes := []types.FileChange{
		{
			FilePath: "src/app.ts",
			Type:     types.FileCreated,
			Content: "import React from 'react'\n" +
				"import { helper } from './utils/helper'\n" +
				"import './styles.css'\n" +
				"const legacy = require('./legacy')\n" +
				"const lodash = require('lodash')\n",
		},
		{
			FilePath: "src/other.ts",
			Type:     types.FileModified,
			Content:  "import { helper } from './utils/helper'\n",
		},
	}

	deps := extractDependencies(changes)
	// Only relative references, deduplicated.
	assert.ElementsMatch(t, []string{"./utils/helper", "./styles.css", "./legacy"}, deps)
}

func TestDeriveFileChanges(t *testing.T) {
	usages := []types.ToolUsage{
		{Tool: "write_to_file", Params: map[string]interface{}{"path": "a.ts", "content": "x"}},
		{Tool: "replace_in_file", Params: map[string]interface{}{"file_path": "b.ts"}},
		{Tool: "execute_command", Params: map[string]interface{}{"command": "npm test"}},
		{Tool: "write_to_file", Params: map[string]interface{}{}},
	}

	changes := deriveFileChanges(usages)
	require.Len(t, changes, 2)
	assert.Equal(t, types.FileCreated, changes[0].Type)
	assert.Equal(t, "a.ts", changes[0].FilePath)
	assert.Equal(t, types.FileModified, changes[1].Type)
	assert.Equal(t, "b.ts", changes[1].FilePath)
}

func TestClassifyTaskType(t *testing.T) {
	tests := []struct {
		intent string
		want   string
	}{
		{"Create a new component", "create"},
		{"fix the failing test", "fix"},
		{"Refactor the auth module", "update"},
		{"remove the dead code", "delete"},
		{"investigate the slowness", "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyTaskType(tt.intent), "intent %q", tt.intent)
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		intent string
		want   types.Category
	}{
		{"Fix the failing test", types.CategoryDebugging},
		{"debug the crash on startup", types.CategoryDebugging},
		{"Refactor the auth module", types.CategoryRefactoring},
		{"clean up the handlers", types.CategoryRefactoring},
		{"optimize the query planner", types.CategoryOptimization},
		{"make startup faster", types.CategoryOptimization},
		{"Create a settings page", types.CategoryCodeGeneration},
		{"add pagination", types.CategoryCodeGeneration},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.intent), "intent %q", tt.intent)
	}
}

func TestRecoveryAdjustments(t *testing.T) {
	chunk := types.TaskChunk{
		Checkpoints: []types.Checkpoint{
			checkpointAt(0, types.CheckpointStart, "Fix the build", nil),
			checkpointAt(10, types.CheckpointToolUsage, `{"tool": "execute_command"}`, types.BoolPtr(true)),
			checkpointAt(20, types.CheckpointError, "compile error", types.BoolPtr(false)),
			checkpointAt(30, types.CheckpointToolUsage, `{"tool": "replace_in_file"}`, types.BoolPtr(true)),
			checkpointAt(40, types.CheckpointToolUsage, "retried manually", types.BoolPtr(true)),
			checkpointAt(50, types.CheckpointCompletion, "Tests passing", types.BoolPtr(true)),
		},
	}

	got := recoveryAdjustments(chunk)
	assert.Equal(t, []string{"replace_in_file", "retried manually"}, got)
}

func TestRecoveryAdjustmentsNoError(t *testing.T) {
	assert.Empty(t, recoveryAdjustments(successfulChunk()))
}
