// Package turn implements the Turn Orchestrator: the reflex/cognition split
// that turns one committed user message into a stream of TextChunk/
// AudioFrame/Metadata/Error/Interrupted events, with per-session
// cancellation for barge-in.
package turn

import (
	"github.com/quietloop/turnstream/internal/gatewayerr"
)

// TextChunk carries one piece of assistant text. Sequence is strictly
// increasing from 1 within a turn; Final is set on exactly one chunk, the
// last.
type TextChunk struct {
	TurnID   string
	Sequence int
	Text     string
	Final    bool
}

// AudioFrame carries one coalesced chunk of synthesized speech. Sequence has
// its own space, independent of TextChunk's.
type AudioFrame struct {
	TurnID   string
	Sequence int
	Payload  []byte
	Final    bool
}

// Metadata is emitted once per turn, after the user turn is committed and
// classified, carrying information that does not belong in either stream.
type Metadata struct {
	TurnID  string
	Emotion Emotion
}

// ErrorFrame carries a terminal gateway error for the active turn.
type ErrorFrame struct {
	TurnID string
	Err    *gatewayerr.Error
}

// Interrupted is the terminal frame on a turn superseded by barge-in or an
// explicit Interrupt call.
type Interrupted struct {
	TurnID  string
	AtText  int
	AtAudio int
}

// Event is exactly one of its non-nil fields. Streaming Process emits a
// sequence of these; consumers switch on whichever field is set.
type Event struct {
	TextChunk   *TextChunk
	AudioFrame  *AudioFrame
	Metadata    *Metadata
	Error       *ErrorFrame
	Interrupted *Interrupted
}
