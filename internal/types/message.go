package types

import "time"

// Say classifies a transcript message by what the speaker was doing.
type Say string

const (
	SayText           Say = "text"
	SayTool           Say = "tool"
	SayError          Say = "error"
	SayUserFeedback   Say = "user_feedback"
	SayAPIReqStarted  Say = "api_req_started"
	SayAPIReqFinished Say = "api_req_finished"
)

// Message is one entry in a time-ordered agent/tool/user transcript.
type Message struct {
	Type string    `json:"type"`
	Ts   time.Time `json:"ts"`
	Text string    `json:"text"`
	Say  Say       `json:"say"`
}

// CheckpointType marks what a checkpoint within a chunk records.
type CheckpointType string

const (
	CheckpointStart      CheckpointType = "start"
	CheckpointToolUsage  CheckpointType = "tool_usage"
	CheckpointError      CheckpointType = "error"
	CheckpointCompletion CheckpointType = "completion"
	CheckpointFeedback   CheckpointType = "feedback"
)

// Checkpoint is a timestamped, typed marker within a chunk.
// Success is nil when the checkpoint carries no success signal (for example
// a completion synthesized at end of transcript).
type Checkpoint struct {
	Ts      time.Time      `json:"ts"`
	Type    CheckpointType `json:"type"`
	Message string         `json:"message"`
	Success *bool          `json:"success,omitempty"`
}

// TaskChunk is a contiguous slice of a transcript representing one task
// episode, bounded by start/end heuristics. Transient: built by the chunker,
// consumed once by the learning pipeline, then discarded.
type TaskChunk struct {
	StartTs     time.Time    `json:"start_ts"`
	EndTs       time.Time    `json:"end_ts"`
	Messages    []Message    `json:"messages"`
	Intent      string       `json:"intent,omitempty"`
	Checkpoints []Checkpoint `json:"checkpoints"`
}

// Duration is the wall-clock span the chunk covers.
func (c *TaskChunk) Duration() time.Duration {
	return c.EndTs.Sub(c.StartTs)
}

// CompletionCheckpoint returns the chunk's completion checkpoint, or nil.
func (c *TaskChunk) CompletionCheckpoint() *Checkpoint {
	for i := range c.Checkpoints {
		if c.Checkpoints[i].Type == CheckpointCompletion {
			return &c.Checkpoints[i]
		}
	}
	return nil
}

// HasCheckpoint reports whether the chunk contains a checkpoint of the
// given type.
func (c *TaskChunk) HasCheckpoint(t CheckpointType) bool {
	for i := range c.Checkpoints {
		if c.Checkpoints[i].Type == t {
			return true
		}
	}
	return false
}

// BoolPtr is a small helper for building checkpoints with an explicit
// success flag.
func BoolPtr(b bool) *bool { return &b }
