// Package checkpoint implements the Checkpoint Store: per-thread,
// append-only conversation history with background summarization once a
// thread's token count crosses a configurable trigger.
package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Message is one turn of conversation history.
type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Checkpoint is the persisted state for one thread: the messages not yet
// folded into a summary, the running token count (summary plus messages)
// used to decide when to summarize, and, once summarization has run at
// least once, a prefix summary.
type Checkpoint struct {
	ThreadID   string
	Messages   []Message
	Summary    string
	TokenCount int
}

// Store is the Checkpoint Store contract. Load returns (nil, nil) for a
// thread that has never been written. Append must be serialized per
// threadId by the backend; Save replaces the checkpoint wholesale (used by
// the summarizer to install a new summary/prefix).
type Store interface {
	Load(ctx context.Context, threadID string) (*Checkpoint, error)
	Append(ctx context.Context, threadID string, msg Message) error
	Save(ctx context.Context, threadID string, cp *Checkpoint) error
	Delete(ctx context.Context, threadID string) error
	Close() error
}

// ThreadID derives the thread identifier a checkpoint is keyed on, per the
// spec's fallback order: session-scoped, then user+agent-scoped, then a
// single shared default thread.
func ThreadID(sessionKey, userID, agentScope string) string {
	if sessionKey = strings.TrimSpace(sessionKey); sessionKey != "" {
		return "session:" + sessionKey
	}
	if userID = strings.TrimSpace(userID); userID != "" {
		return fmt.Sprintf("user:%s:%s", userID, agentScope)
	}
	return "default"
}

// ApproxTokenCount is a whitespace-word heuristic stand-in for a real
// tokenizer. No example repo in the pack wires a tokenizer library for
// context-window bookkeeping (the teacher has no summarization concept at
// all); this closed, approximate count is enough to decide when to trigger
// summarization and needs no third-party dependency.
func ApproxTokenCount(s string) int {
	return len(strings.Fields(s))
}

func totalTokens(cp *Checkpoint) int {
	n := ApproxTokenCount(cp.Summary)
	for _, m := range cp.Messages {
		n += ApproxTokenCount(m.Content)
	}
	return n
}
