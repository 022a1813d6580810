package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"praxis/internal/config"
	"praxis/internal/project"
	"praxis/internal/store"
	"praxis/internal/types"
)

func newTestLearner(t *testing.T) *Learner {
	t.Helper()
	cfg := config.Default()
	s, err := store.New(":memory:", cfg.Confidence)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, cfg, project.StaticProvider{Summary: testProviderSummary})
}

func transcriptMsg(millis int64, say types.Say, text string) types.Message {
	return types.Message{Type: "say", Ts: time.UnixMilli(millis), Text: text, Say: say}
}

func TestExtractPatternsEndToEnd(t *testing.T) {
	l := newTestLearner(t)

	messages := []types.Message{
		transcriptMsg(0, types.SayText, "Fix empty array test failure"),
		transcriptMsg(50, types.SayTool, `{"tool": "write_to_file", "params": {"path": "src/utils.ts"}}`),
		transcriptMsg(150, types.SayText, "Tests passing now"),
	}

	learned, err := l.ExtractPatterns(messages)
	require.NoError(t, err)
	require.Len(t, learned, 1)

	lp := learned[0]
	assert.Equal(t, "Fix empty array test failure", lp.Text)
	assert.Equal(t, types.OutcomeSuccess, lp.Execution.Outcome)
	assert.Greater(t, lp.ID, int64(0))

	// The usage event recorded alongside must have bumped the stored
	// confidence: 0.8 extracted + 0.1 success.
	stored, err := l.Store().Get(lp.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, stored.Confidence, 1e-9)

	// Retrieval by fingerprint sees the new pattern.
	byFp, err := l.Store().FindByFingerprint("deps:dayjs;types:.ts")
	require.NoError(t, err)
	require.Len(t, byFp, 1)
	assert.Equal(t, lp.ID, byFp[0].ID)
}

func TestExtractPatternsNoValidChunks(t *testing.T) {
	l := newTestLearner(t)

	learned, err := l.ExtractPatterns([]types.Message{
		transcriptMsg(0, types.SayText, "hello"),
		transcriptMsg(10, types.SayText, "just chatting"),
	})
	require.NoError(t, err)
	assert.Empty(t, learned)

	stats, err := l.Store().GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats["patterns"])
}

func TestExtractPatternsMultipleEpisodes(t *testing.T) {
	l := newTestLearner(t)

	messages := []types.Message{
		transcriptMsg(0, types.SayText, "Create the login form"),
		transcriptMsg(60, types.SayTool, `{"tool": "write_to_file", "params": {"path": "login.tsx"}}`),
		transcriptMsg(200, types.SayText, "Successfully created the login form"),
		transcriptMsg(300, types.SayText, "Fix the validation bug"),
		transcriptMsg(350, types.SayTool, `{"tool": "replace_in_file", "params": {"path": "login.tsx"}}`),
		transcriptMsg(600, types.SayText, "Tests are passing"),
	}

	learned, err := l.ExtractPatterns(messages)
	require.NoError(t, err)
	require.Len(t, learned, 2)
	assert.Equal(t, types.CategoryCodeGeneration, learned[0].Category)
	assert.Equal(t, types.CategoryDebugging, learned[1].Category)
}

func TestFindSimilarPatternAfterLearning(t *testing.T) {
	l := newTestLearner(t)

	messages := []types.Message{
		transcriptMsg(0, types.SayText, "Create component Button"),
		transcriptMsg(60, types.SayTool, `{"tool": "write_to_file", "params": {"path": "Button.tsx"}}`),
		transcriptMsg(200, types.SayText, "Successfully created the component"),
	}
	learned, err := l.ExtractPatterns(messages)
	require.NoError(t, err)
	require.Len(t, learned, 1)

	got := l.FindSimilarPattern("Create component Card", learned[0].Context)
	require.NotNil(t, got)
	assert.Equal(t, learned[0].ID, got.ID)

	assert.Nil(t, l.FindSimilarPattern("deploy to production", ""))
	assert.Nil(t, l.FindSimilarPattern("", ""))
}

func TestLearnFromExecutionSuccess(t *testing.T) {
	l := newTestLearner(t)

	result := types.ExecutionResult{
		Status: types.StatusSuccess,
		FileChanges: []types.FileChange{
			{FilePath: "src/api.ts", Type: types.FileCreated, Content: "import { client } from './client'\n"},
		},
		UserFeedback: "looks good",
	}
	require.NoError(t, l.LearnFromExecution("create api wrapper", result))

	patterns, err := l.Store().Find("create api wrapper")
	require.NoError(t, err)
	require.Len(t, patterns, 1)

	// 0.8 extracted (success + file changes) + 0.1 from the usage event.
	assert.InDelta(t, 0.9, patterns[0].Confidence, 1e-9)

	history, err := l.Store().GetPatternHistory(patterns[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, history.Successes)
}

func TestLearnFromExecutionFailure(t *testing.T) {
	l := newTestLearner(t)

	result := types.ExecutionResult{
		Status: types.StatusError,
		Error:  "module not found",
	}
	require.NoError(t, l.LearnFromExecution("fix the importer", result))

	// 0.3 extracted (failure, no file changes) - 0.2 from the usage event
	// lands at or below the fork threshold, so the original at 0.1 gains a
	// fresh fork at 0.5.
	patterns, err := l.Store().Find("fix the importer")
	require.NoError(t, err)
	require.Len(t, patterns, 2)

	low, fork := patterns[0].Confidence, patterns[1].Confidence
	if low > fork {
		low, fork = fork, low
	}
	assert.InDelta(t, 0.1, low, 1e-9)
	assert.InDelta(t, 0.5, fork, 1e-9)
}

// An abandoned chunk must leave no partial pattern behind: when the usage
// write fails, the pattern and learning-record inserts from the same unit
// roll back with it.
func TestFailedChunkPersistsNothing(t *testing.T) {
	l := newTestLearner(t)

	_, err := l.Store().DB().Exec("DROP TABLE pattern_usage")
	require.NoError(t, err)

	learned, err := l.ExtractPatterns([]types.Message{
		transcriptMsg(0, types.SayText, "Fix empty array test failure"),
		transcriptMsg(50, types.SayTool, `{"tool": "write_to_file", "params": {"path": "src/utils.ts"}}`),
		transcriptMsg(150, types.SayText, "Tests passing now"),
	})
	assert.Error(t, err)
	assert.Empty(t, learned)

	var patterns int64
	require.NoError(t, l.Store().DB().QueryRow("SELECT COUNT(*) FROM patterns").Scan(&patterns))
	assert.Zero(t, patterns)
}

func TestFeedbackRecordedWithUsage(t *testing.T) {
	l := newTestLearner(t)

	learned, err := l.ExtractPatterns([]types.Message{
		transcriptMsg(0, types.SayText, "Add retry logic to the uploader"),
		transcriptMsg(100, types.SayUserFeedback, "use the shared backoff helper"),
		transcriptMsg(300, types.SayText, "Successfully implemented the retry logic"),
	})
	require.NoError(t, err)
	require.Len(t, learned, 1)

	var feedback string
	require.NoError(t, l.Store().DB().QueryRow(
		"SELECT feedback FROM pattern_usage WHERE pattern_id = ?", learned[0].ID,
	).Scan(&feedback))
	assert.Equal(t, "use the shared backoff helper", feedback)
}

func TestLearnFromExecutionEmptyTask(t *testing.T) {
	l := newTestLearner(t)
	err := l.LearnFromExecution("   ", types.ExecutionResult{Status: types.StatusSuccess})
	var verr *store.ValidationError
	assert.ErrorAs(t, err, &verr)
}
