package learning

import (
	"errors"
	"fmt"
	"strings"

	"praxis/internal/chunker"
	"praxis/internal/config"
	"praxis/internal/logging"
	"praxis/internal/match"
	"praxis/internal/project"
	"praxis/internal/store"
	"praxis/internal/types"
)

// Learner is the dispatcher-facing facade over the store, matcher, chunker
// and extractor. The task dispatcher calls FindSimilarPattern to decide
// local-vs-remote execution and ExtractPatterns / LearnFromExecution after
// execution completes.
type Learner struct {
	store     *store.PatternStore
	matcher   *match.Matcher
	chunker   *chunker.Chunker
	extractor *Extractor
}

// New wires a learner over the given store and project-context provider.
func New(s *store.PatternStore, cfg *config.Config, provider project.Provider) *Learner {
	return &Learner{
		store:     s,
		matcher:   match.New(s, cfg.Matcher),
		chunker:   chunker.New(cfg.Chunker),
		extractor: NewExtractor(provider),
	}
}

// FindSimilarPattern returns the best stored pattern for the task, or nil.
// Lookup failures degrade to "no match found" so local-execution checks
// never crash the task dispatcher.
func (l *Learner) FindSimilarPattern(taskText, contextHint string) *types.Pattern {
	pattern, err := l.matcher.Match(taskText, contextHint)
	if err != nil {
		logging.Get(logging.CategoryMatch).Warn("Similarity lookup failed, degrading to no match: %v", err)
		return nil
	}
	return pattern
}

// ExtractPatterns segments the transcript into task chunks, converts each
// into a learning pattern and persists it with a usage event. Chunks are
// processed independently: a failing chunk is abandoned without a partial
// write and its error is joined into the returned error, while surviving
// chunks are still persisted.
func (l *Learner) ExtractPatterns(messages []types.Message) ([]types.LearningPattern, error) {
	timer := logging.StartTimer(logging.CategoryLearning, "Learner.ExtractPatterns")
	defer timer.Stop()

	chunks := l.chunker.ChunkMessages(messages)
	if len(chunks) == 0 {
		logging.Learning("No valid task chunks in %d messages", len(messages))
		return nil, nil
	}

	var learned []types.LearningPattern
	var errs []error
	for i, chunk := range chunks {
		lp, err := l.learnFromChunk(chunk)
		if err != nil {
			logging.Get(logging.CategoryLearning).Error("Chunk %d abandoned: %v", i, err)
			errs = append(errs, fmt.Errorf("chunk %d: %w", i, err))
			continue
		}
		learned = append(learned, *lp)
	}

	logging.Learning("Learned %d patterns from %d chunks (%d failed)", len(learned), len(chunks), len(errs))
	return learned, errors.Join(errs...)
}

// learnFromChunk extracts and persists one chunk: the pattern row, its
// learning record, and a usage event carrying the same outcome, feedback
// and recovery adjustments. The store commits all of it in one
// transaction, so an abandoned chunk leaves no partial pattern behind.
func (l *Learner) learnFromChunk(chunk types.TaskChunk) (*types.LearningPattern, error) {
	lp, err := l.extractor.Extract(chunk)
	if err != nil {
		return nil, err
	}

	usage := types.PatternUsage{
		Outcome:     lp.Execution.Outcome,
		Feedback:    lastCheckpointMessage(chunk, types.CheckpointFeedback),
		Adjustments: recoveryAdjustments(chunk),
	}
	id, err := l.store.StoreLearningPatternWithUsage(*lp, usage)
	if err != nil {
		return nil, fmt.Errorf("failed to persist learning pattern: %w", err)
	}
	lp.ID = id
	return lp, nil
}

// LearnFromExecution records the outcome of a dispatcher-executed task as
// a learning pattern, without a transcript.
func (l *Learner) LearnFromExecution(taskText string, result types.ExecutionResult) error {
	timer := logging.StartTimer(logging.CategoryLearning, "Learner.LearnFromExecution")
	defer timer.Stop()

	taskText = strings.TrimSpace(taskText)
	if taskText == "" {
		return &store.ValidationError{Reason: "task text must not be empty"}
	}

	outcome := types.OutcomeFailure
	if result.Status == types.StatusSuccess {
		outcome = types.OutcomeSuccess
	}

	metadata := types.Metadata{
		"task_type": classifyTaskType(taskText),
	}
	if result.Error != "" {
		metadata["error"] = result.Error
	}
	if len(result.FileChanges) > 0 {
		metadata["file_path"] = result.FileChanges[0].FilePath
	}

	operations := make([]types.Operation, 0, len(result.FileChanges))
	for _, fc := range result.FileChanges {
		operations = append(operations, types.Operation{
			Type:   "file_" + string(fc.Type),
			Params: map[string]interface{}{"path": fc.FilePath},
		})
	}

	projectCtx := l.extractor.projectContext(extractDependencies(result.FileChanges))

	lp := types.LearningPattern{
		Pattern: types.Pattern{
			Text:       taskText,
			Context:    projectCtx.Fingerprint,
			Metadata:   metadata,
			Confidence: extractionConfidence(outcome, len(result.FileChanges) > 0),
		},
		ProjectContext: projectCtx,
		Execution: types.Execution{
			Operations: operations,
			Outcome:    outcome,
		},
		Category: Categorize(taskText),
	}

	id, err := l.store.StoreLearningPatternWithUsage(lp, types.PatternUsage{
		Outcome:  outcome,
		Feedback: result.UserFeedback,
	})
	if err != nil {
		return fmt.Errorf("failed to persist execution pattern: %w", err)
	}

	logging.Learning("Learned from execution task=%q outcome=%s pattern=%d", truncate(taskText, 60), outcome, id)
	return nil
}

// Store exposes the underlying pattern store for callers that need direct
// history or validation access.
func (l *Learner) Store() *store.PatternStore {
	return l.store
}
