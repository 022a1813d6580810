// praxis is the local pattern learning and retrieval engine for a coding
// agent: it decides whether an incoming task matches something already
// learned, and converts execution transcripts into stored patterns.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"praxis/internal/config"
	"praxis/internal/learning"
	"praxis/internal/logging"
	"praxis/internal/project"
	"praxis/internal/store"
	"praxis/internal/types"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dbPath     string

	// Shared state, initialized in PersistentPreRunE
	logger *zap.Logger
	cfg    *config.Config
	db     *store.PatternStore
	engine *learning.Learner
)

var rootCmd = &cobra.Command{
	Use:   "praxis",
	Short: "praxis - local pattern learning and retrieval engine",
	Long: `praxis remembers how tasks were performed and retrieves that memory
for equivalent future tasks.

An incoming task is matched against stored patterns by command prefix,
metadata and word overlap; transcripts of executed tasks are segmented
into episodes and distilled into new patterns with bounded confidence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		workspace, err := config.FindWorkspaceRoot()
		if err != nil {
			workspace = "."
		}
		path := configPath
		if path == "" {
			path = filepath.Join(workspace, ".praxis", "config.yaml")
		}
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Store.DatabasePath = dbPath
		}

		logging.Configure(logging.Options{
			DebugMode:  cfg.Logging.DebugMode,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		})
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("Debug logging unavailable", zap.Error(err))
		}

		db, err = store.New(cfg.Store.DatabasePath, cfg.Confidence)
		if err != nil {
			return err
		}
		engine = learning.New(db, cfg, project.StaticProvider{})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			_ = db.Close()
		}
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var matchCmd = &cobra.Command{
	Use:   "match [task text]",
	Short: "Find the best stored pattern for a task",
	Long: `Matches the task text against stored patterns. Prints the winning
pattern and its confidence, or reports that no pattern cleared the
similarity threshold (meaning the task should be delegated).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [transcript.json ...]",
	Short: "Learn patterns from transcript files",
	Long: `Reads one or more transcript files (JSON arrays of messages),
segments each into task episodes and stores the learned patterns.
Files are processed concurrently; each episode commits atomically.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var learnCmd = &cobra.Command{
	Use:   "learn [task text]",
	Short: "Record the outcome of an executed task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLearn,
}

var historyCmd = &cobra.Command{
	Use:   "history [pattern-id]",
	Short: "Show usage history and adaptations for a pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var validateCmd = &cobra.Command{
	Use:   "validate [pattern-id]",
	Short: "Record an explicit validation of a pattern's applicability",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pattern store statistics",
	RunE:  runStats,
}

var (
	contextHint     string
	learnStatus     string
	learnError      string
	learnFeedback   string
	validateSuccess bool
	validateContext string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default .praxis/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "override pattern database path")

	matchCmd.Flags().StringVar(&contextHint, "context", "", "context hint (project/framework label)")

	learnCmd.Flags().StringVar(&learnStatus, "status", "success", "execution status: success or error")
	learnCmd.Flags().StringVar(&learnError, "error", "", "error text when status is error")
	learnCmd.Flags().StringVar(&learnFeedback, "feedback", "", "user feedback text")

	validateCmd.Flags().BoolVar(&validateSuccess, "success", true, "whether the pattern applied successfully")
	validateCmd.Flags().StringVar(&validateContext, "context", "", "validation context")

	rootCmd.AddCommand(matchCmd, ingestCmd, learnCmd, historyCmd, validateCmd, statsCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	task := strings.Join(args, " ")
	pattern := engine.FindSimilarPattern(task, contextHint)
	if pattern == nil {
		fmt.Println("no match found (delegate)")
		return nil
	}
	logger.Info("Pattern matched",
		zap.Int64("id", pattern.ID),
		zap.Float64("confidence", pattern.Confidence))
	fmt.Printf("pattern %d (confidence %.2f, context %q)\n  %s\n",
		pattern.ID, pattern.Confidence, pattern.Context, pattern.Text)
	return nil
}

// wireMessage is the on-disk transcript message shape: timestamps are unix
// milliseconds.
type wireMessage struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts"`
	Text string `json:"text"`
	Say  string `json:"say"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	var g errgroup.Group
	g.SetLimit(4)
	for _, path := range args {
		path := path
		g.Go(func() error {
			messages, err := readTranscript(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			learned, err := engine.ExtractPatterns(messages)
			if err != nil {
				logger.Warn("Some chunks failed", zap.String("file", path), zap.Error(err))
			}
			logger.Info("Transcript ingested",
				zap.String("file", path),
				zap.Int("messages", len(messages)),
				zap.Int("patterns", len(learned)))
			fmt.Printf("%s: learned %d patterns\n", path, len(learned))
			return nil
		})
	}
	return g.Wait()
}

func readTranscript(path string) ([]types.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wire []wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("malformed transcript: %w", err)
	}
	messages := make([]types.Message, 0, len(wire))
	for _, w := range wire {
		messages = append(messages, types.Message{
			Type: w.Type,
			Ts:   time.UnixMilli(w.Ts),
			Text: w.Text,
			Say:  types.Say(w.Say),
		})
	}
	return messages, nil
}

func runLearn(cmd *cobra.Command, args []string) error {
	task := strings.Join(args, " ")
	status := types.StatusSuccess
	if learnStatus == "error" {
		status = types.StatusError
	}
	result := types.ExecutionResult{
		Status:       status,
		Error:        learnError,
		UserFeedback: learnFeedback,
	}
	if err := engine.LearnFromExecution(task, result); err != nil {
		return err
	}
	fmt.Println("learned")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	var id int64
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
		return fmt.Errorf("invalid pattern id %q", args[0])
	}
	history, err := db.GetPatternHistory(id)
	if err != nil {
		return err
	}
	fmt.Printf("pattern %d: %d successes, %d failures\n", id, history.Successes, history.Failures)
	for _, a := range history.Adaptations {
		fmt.Printf("  - %s\n", a)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	var id int64
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
		return fmt.Errorf("invalid pattern id %q", args[0])
	}
	if err := db.ValidatePattern(id, validateSuccess, validateContext); err != nil {
		return err
	}
	fmt.Println("validation recorded")
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := db.GetStats()
	if err != nil {
		return err
	}
	for _, table := range []string{"patterns", "pattern_usage", "pattern_evolution", "pattern_validation", "learning_patterns"} {
		fmt.Printf("%-20s %d\n", table, stats[table])
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
