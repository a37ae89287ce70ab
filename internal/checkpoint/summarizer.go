package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const (
	// DefaultTriggerTokens is the token count a thread must exceed before a
	// background summarization pass is scheduled.
	DefaultTriggerTokens = 1024
	// DefaultMaxSummaryTokens caps the length (in ApproxTokenCount words) of
	// each summary a pass installs; twice this many tokens of the most
	// recent messages are kept out of the summary.
	DefaultMaxSummaryTokens = 128
)

// Summarize compresses a thread's messages (and any prior summary) into a
// new prefix summary. Implementations are expected to call out to the same
// LLM client the turn orchestrator uses; Summarizer only needs the narrow
// function shape below so it never imports the llm package directly and
// stays free of that dependency cycle.
type SummarizeFunc func(ctx context.Context, priorSummary string, messages []Message) (string, error)

// Summarizer runs SummarizeFunc in the background, at most once per thread
// at a time, coalescing any trigger that arrives while one is already in
// flight rather than queueing it.
type Summarizer struct {
	store            Store
	summarize        SummarizeFunc
	triggerTokens    int
	maxSummaryTokens int
	logger           *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewSummarizer(store Store, summarize SummarizeFunc, triggerTokens, maxSummaryTokens int, logger *slog.Logger) *Summarizer {
	if triggerTokens <= 0 {
		triggerTokens = DefaultTriggerTokens
	}
	if maxSummaryTokens <= 0 {
		maxSummaryTokens = DefaultMaxSummaryTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		store:            store,
		summarize:        summarize,
		triggerTokens:    triggerTokens,
		maxSummaryTokens: maxSummaryTokens,
		logger:           logger,
		inFlight:         make(map[string]bool),
	}
}

// MaybeTrigger checks cp against the token threshold and, if it is
// exceeded and no summarization is already running for threadID, launches
// one in a new goroutine. It never blocks the caller (the turn that just
// appended to the checkpoint).
func (s *Summarizer) MaybeTrigger(ctx context.Context, threadID string, cp *Checkpoint) {
	if cp == nil || cp.TokenCount <= s.triggerTokens {
		return
	}

	s.mu.Lock()
	if s.inFlight[threadID] {
		s.mu.Unlock()
		return
	}
	s.inFlight[threadID] = true
	s.mu.Unlock()

	go s.run(threadID)
}

func (s *Summarizer) run(threadID string) {
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, threadID)
		s.mu.Unlock()
	}()

	// Detached from the request that triggered this pass: the turn it rode
	// in on may already have completed by the time this runs.
	ctx := context.Background()

	cp, err := s.store.Load(ctx, threadID)
	if err != nil {
		s.logger.Error("checkpoint summarizer: load failed", "thread_id", threadID, "error", err)
		return
	}
	if cp == nil || cp.TokenCount <= s.triggerTokens {
		return
	}

	keep, fold := splitForSummary(cp.Messages, s.maxSummaryTokens)
	if len(fold) == 0 {
		return
	}

	summary, err := s.summarize(ctx, cp.Summary, fold)
	if err != nil {
		s.logger.Error("checkpoint summarizer: summarize failed", "thread_id", threadID, "error", err)
		return
	}
	if words := strings.Fields(summary); len(words) > s.maxSummaryTokens {
		summary = strings.Join(words[:s.maxSummaryTokens], " ")
	}

	cp.Summary = summary
	cp.Messages = keep
	if err := s.store.Save(ctx, threadID, cp); err != nil {
		s.logger.Error("checkpoint summarizer: save failed", "thread_id", threadID, "error", err)
	}
}

// splitForSummary keeps the most recent messages whose combined token count
// fits within twice maxSummaryTokens and folds everything older
// into the summarization batch.
func splitForSummary(messages []Message, maxSummaryTokens int) (keep, fold []Message) {
	keepBudget := maxSummaryTokens * 2
	total := 0
	cut := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		total += ApproxTokenCount(messages[i].Content)
		if total > keepBudget {
			cut = i + 1
			break
		}
		cut = i
	}
	return messages[cut:], messages[:cut]
}

// RenderSummaryPrompt formats prior summary plus the folded message batch
// into a single prompt string for a SummarizeFunc backed by a plain text
// completion call.
func RenderSummaryPrompt(priorSummary string, messages []Message) string {
	var b strings.Builder
	if priorSummary != "" {
		b.WriteString("Existing summary:\n")
		b.WriteString(priorSummary)
		b.WriteString("\n\n")
	}
	b.WriteString("Conversation to fold in:\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	b.WriteString("\nWrite a concise updated summary covering both.")
	return b.String()
}
