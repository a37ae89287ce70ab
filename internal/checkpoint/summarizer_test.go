package checkpoint

import (
	"context"
	"strings"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestSummarizerTriggersAboveThreshold(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	longContent := strings.Repeat("word ", 20)
	_ = store.Append(ctx, "t1", Message{Role: "user", Content: longContent})
	_ = store.Append(ctx, "t1", Message{Role: "assistant", Content: longContent})

	var calls int
	summarize := func(ctx context.Context, prior string, messages []Message) (string, error) {
		calls++
		return "condensed summary", nil
	}

	s := NewSummarizer(store, summarize, 10, 4, nil)
	cp, _ := store.Load(ctx, "t1")
	s.MaybeTrigger(ctx, "t1", cp)

	waitFor(t, time.Second, func() bool { return calls == 1 })

	final, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if final.Summary != "condensed summary" {
		t.Fatalf("expected summary to be installed, got %q", final.Summary)
	}
}

func TestSummarizerCoalescesConcurrentTriggers(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	longContent := strings.Repeat("word ", 20)
	_ = store.Append(ctx, "t1", Message{Role: "user", Content: longContent})

	release := make(chan struct{})
	var calls int
	summarize := func(ctx context.Context, prior string, messages []Message) (string, error) {
		calls++
		<-release
		return "summary", nil
	}

	s := NewSummarizer(store, summarize, 5, 4, nil)
	cp, _ := store.Load(ctx, "t1")

	s.MaybeTrigger(ctx, "t1", cp)
	waitFor(t, time.Second, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.inFlight["t1"]
	})

	// A second trigger while the first is in flight must be ignored, not queued.
	s.MaybeTrigger(ctx, "t1", cp)
	s.MaybeTrigger(ctx, "t1", cp)

	close(release)
	waitFor(t, time.Second, func() bool { return calls >= 1 })
	time.Sleep(50 * time.Millisecond)

	if calls != 1 {
		t.Fatalf("expected exactly 1 summarize call, got %d", calls)
	}
}

func TestSplitForSummary(t *testing.T) {
	messages := []Message{
		{Content: "a b c d e f g h i j"},
		{Content: "k l m"},
		{Content: "n"},
	}
	keep, fold := splitForSummary(messages, 5)
	if len(keep)+len(fold) != len(messages) {
		t.Fatalf("split lost messages: keep=%d fold=%d", len(keep), len(fold))
	}
	if len(fold) == 0 {
		t.Fatal("expected at least one message to fold for a long history")
	}
}
