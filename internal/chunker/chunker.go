// Package chunker segments a flat, time-ordered transcript of agent, tool
// and user messages into task chunks, each representing one coherent unit
// of work. A single-pass state machine with no external I/O; the start and
// end triggers are injectable so calibration doesn't require touching the
// state machine.
package chunker

import (
	"encoding/json"
	"regexp"
	"strings"

	"praxis/internal/config"
	"praxis/internal/logging"
	"praxis/internal/types"
)

// DefaultStartTriggers match plain-text messages that open a task episode:
// imperative verbs and help-request phrasings.
func DefaultStartTriggers() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*(create|implement|add|update|fix|refactor|build|write)\b`),
		regexp.MustCompile(`(?i)\bcan you help\b`),
		regexp.MustCompile(`(?i)\blet'?s\s+(create|implement|add|update|fix|refactor|build)\b`),
	}
}

// DefaultEndTriggers match plain-text messages that close a task episode.
func DefaultEndTriggers() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)\btests?\s+(are\s+|all\s+)?passing\b`),
		regexp.MustCompile(`(?i)\bsuccessfully\s+(created|implemented|fixed|updated|completed)\b`),
		regexp.MustCompile(`(?i)\bcompleted successfully\b`),
		regexp.MustCompile(`(?i)\bfailed with error\b`),
	}
}

// Chunker turns transcripts into task chunks.
type Chunker struct {
	startTriggers []*regexp.Regexp
	endTriggers   []*regexp.Regexp
	cfg           config.ChunkerConfig
}

// New creates a chunker with the default trigger sets.
func New(cfg config.ChunkerConfig) *Chunker {
	return &Chunker{
		startTriggers: DefaultStartTriggers(),
		endTriggers:   DefaultEndTriggers(),
		cfg:           cfg,
	}
}

// NewWithTriggers creates a chunker with caller-supplied trigger sets.
func NewWithTriggers(cfg config.ChunkerConfig, start, end []*regexp.Regexp) *Chunker {
	return &Chunker{startTriggers: start, endTriggers: end, cfg: cfg}
}

// ChunkMessages segments the transcript into valid task chunks. API
// bookkeeping messages (api_req_started/api_req_finished) are filtered out
// before chunking. Chunks that look like noise (too few checkpoints or
// messages, or too short a duration) are dropped.
func (c *Chunker) ChunkMessages(messages []types.Message) []types.TaskChunk {
	timer := logging.StartTimer(logging.CategoryChunker, "ChunkMessages")
	defer timer.Stop()

	var chunks []types.TaskChunk
	var current *types.TaskChunk

	for _, msg := range messages {
		if msg.Say == types.SayAPIReqStarted || msg.Say == types.SayAPIReqFinished {
			continue
		}

		if c.isChunkStart(msg) {
			if current != nil {
				chunks = c.finalize(chunks, current)
			}
			current = c.openChunk(msg)
			continue
		}

		if current == nil {
			continue
		}

		current.Messages = append(current.Messages, msg)
		current.EndTs = msg.Ts

		switch {
		case isToolMessage(msg):
			current.Checkpoints = append(current.Checkpoints, types.Checkpoint{
				Ts:      msg.Ts,
				Type:    types.CheckpointToolUsage,
				Message: msg.Text,
				Success: types.BoolPtr(true), // optimistic; flipped on later error
			})
		case msg.Say == types.SayError:
			current.Checkpoints = append(current.Checkpoints, types.Checkpoint{
				Ts:      msg.Ts,
				Type:    types.CheckpointError,
				Message: msg.Text,
				Success: types.BoolPtr(false),
			})
			flipLastToolUsage(current)
		case msg.Say == types.SayUserFeedback:
			current.Checkpoints = append(current.Checkpoints, types.Checkpoint{
				Ts:      msg.Ts,
				Type:    types.CheckpointFeedback,
				Message: msg.Text,
			})
		case c.isChunkEnd(msg):
			success := !strings.Contains(strings.ToLower(msg.Text), "fail")
			current.Checkpoints = append(current.Checkpoints, types.Checkpoint{
				Ts:      msg.Ts,
				Type:    types.CheckpointCompletion,
				Message: msg.Text,
				Success: types.BoolPtr(success),
			})
			chunks = c.finalize(chunks, current)
			current = nil
		}
	}

	if current != nil {
		chunks = c.finalize(chunks, current)
	}

	logging.Chunker("Chunked %d messages into %d valid chunks", len(messages), len(chunks))
	return chunks
}

// openChunk starts a new chunk seeded with a start checkpoint.
func (c *Chunker) openChunk(msg types.Message) *types.TaskChunk {
	logging.ChunkerDebug("Chunk start at ts=%d: %q", msg.Ts.UnixMilli(), truncate(msg.Text, 80))
	return &types.TaskChunk{
		StartTs:  msg.Ts,
		EndTs:    msg.Ts,
		Messages: []types.Message{msg},
		Intent:   msg.Text,
		Checkpoints: []types.Checkpoint{{
			Ts:      msg.Ts,
			Type:    types.CheckpointStart,
			Message: msg.Text,
		}},
	}
}

// finalize closes a chunk, synthesizing a completion checkpoint with
// undefined success if none occurred naturally, and appends it to chunks
// if it passes the validity filter.
func (c *Chunker) finalize(chunks []types.TaskChunk, chunk *types.TaskChunk) []types.TaskChunk {
	if chunk.CompletionCheckpoint() == nil {
		chunk.Checkpoints = append(chunk.Checkpoints, types.Checkpoint{
			Ts:      chunk.EndTs,
			Type:    types.CheckpointCompletion,
			Message: "",
		})
	}
	if !c.isValid(chunk) {
		logging.ChunkerDebug("Dropping noise chunk: %d messages, %d checkpoints, %v duration",
			len(chunk.Messages), len(chunk.Checkpoints), chunk.Duration())
		return chunks
	}
	return append(chunks, *chunk)
}

// isValid applies the noise filter: genuine task episodes have at least
// MinCheckpoints checkpoints, MinMessages messages and MinDuration span.
func (c *Chunker) isValid(chunk *types.TaskChunk) bool {
	return len(chunk.Checkpoints) >= c.cfg.MinCheckpoints &&
		len(chunk.Messages) >= c.cfg.MinMessages &&
		chunk.Duration() >= c.cfg.MinDuration
}

// isChunkStart reports whether a plain-text message opens a task episode.
func (c *Chunker) isChunkStart(msg types.Message) bool {
	if msg.Say != types.SayText || isToolMessage(msg) {
		return false
	}
	for _, re := range c.startTriggers {
		if re.MatchString(msg.Text) {
			return true
		}
	}
	return false
}

// isChunkEnd reports whether a plain-text message closes the open episode.
func (c *Chunker) isChunkEnd(msg types.Message) bool {
	for _, re := range c.endTriggers {
		if re.MatchString(msg.Text) {
			return true
		}
	}
	return false
}

// toolPayload is the minimal shape a structured tool-call message parses to.
type toolPayload struct {
	Tool string `json:"tool"`
}

// isToolMessage reports whether the message carries a structured tool-call
// payload, either by say type or by a parseable JSON body naming a tool.
func isToolMessage(msg types.Message) bool {
	if msg.Say == types.SayTool {
		return true
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "{") {
		return false
	}
	var payload toolPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return false
	}
	return payload.Tool != ""
}

// flipLastToolUsage retroactively marks the most recent tool-usage
// checkpoint unsuccessful; an error message means the preceding tool call
// did not do what it claimed.
func flipLastToolUsage(chunk *types.TaskChunk) {
	for i := len(chunk.Checkpoints) - 1; i >= 0; i-- {
		if chunk.Checkpoints[i].Type == types.CheckpointToolUsage {
			chunk.Checkpoints[i].Success = types.BoolPtr(false)
			return
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
