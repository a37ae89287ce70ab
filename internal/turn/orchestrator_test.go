package turn

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/quietloop/turnstream/internal/checkpoint"
	"github.com/quietloop/turnstream/internal/llm"
)

const testSessionKey = "tenant:acme:channel:web:user:u1"

func fixedNow() time.Time {
	return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
}

func drain(t *testing.T, events <-chan Event, timeout time.Duration) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(timeout)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, evt)
		case <-deadline:
			t.Fatal("timed out draining events")
		}
	}
}

func TestStreamReflexPath(t *testing.T) {
	orc := New(Config{
		LLMClient:   llm.NewMockClient(),
		Checkpoints: checkpoint.NewMemStore(),
		Now:         fixedNow,
	})

	events, err := orc.Stream(context.Background(), testSessionKey, "hello")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	got := drain(t, events, time.Second)

	var sawMetadata, sawFinalText bool
	for _, evt := range got {
		if evt.Metadata != nil {
			sawMetadata = true
		}
		if evt.TextChunk != nil && evt.TextChunk.Final {
			sawFinalText = true
			if evt.TextChunk.Sequence != 1 {
				t.Fatalf("expected reflex final chunk sequence 1, got %d", evt.TextChunk.Sequence)
			}
		}
		if evt.Error != nil || evt.Interrupted != nil {
			t.Fatalf("unexpected terminal event: %+v", evt)
		}
	}
	if !sawMetadata || !sawFinalText {
		t.Fatalf("expected metadata and a final text chunk, got %+v", got)
	}
}

func TestProcessConcatenatesCognitionReply(t *testing.T) {
	orc := New(Config{
		LLMClient:   llm.NewMockClient(),
		Checkpoints: checkpoint.NewMemStore(),
		Now:         fixedNow,
	})

	text, err := orc.Process(context.Background(), testSessionKey, "what's the weather like")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(text, "what's the weather like") {
		t.Fatalf("expected echoed input in reply, got %q", text)
	}
}

func TestProcessAppendsCheckpointHistory(t *testing.T) {
	store := checkpoint.NewMemStore()
	orc := New(Config{
		LLMClient:   llm.NewMockClient(),
		Checkpoints: store,
		Now:         fixedNow,
	})

	if _, err := orc.Process(context.Background(), testSessionKey, "remember this please"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	threadID := checkpoint.ThreadID(testSessionKey, userIDFromSessionKey(testSessionKey), "default")
	cp, err := store.Load(context.Background(), threadID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp == nil || len(cp.Messages) != 2 {
		t.Fatalf("expected 2 persisted messages, got %+v", cp)
	}
	if cp.Messages[0].Role != "user" || cp.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected message roles: %+v", cp.Messages)
	}
}

// gatedLLMClient emits its deltas one at a time, blocking after the first
// until either proceed is signaled or ctx is cancelled, so tests can
// deterministically interrupt a turn mid-stream.
type gatedLLMClient struct {
	deltas  []string
	proceed chan struct{}
}

func (a *gatedLLMClient) Stream(ctx context.Context, req llm.Request, onDelta llm.DeltaFunc) (llm.Response, error) {
	for i, d := range a.deltas {
		if err := onDelta(d); err != nil {
			return llm.Response{}, err
		}
		if i == 0 {
			select {
			case <-a.proceed:
			case <-ctx.Done():
				return llm.Response{}, ctx.Err()
			}
		}
	}
	return llm.Response{Text: strings.Join(a.deltas, "")}, nil
}

func TestInterruptEmitsInterruptedBeforeNewTurn(t *testing.T) {
	client := &gatedLLMClient{
		deltas:  []string{"Hello there. ", "Second sentence."},
		proceed: make(chan struct{}),
	}
	orc := New(Config{
		LLMClient:   client,
		Checkpoints: checkpoint.NewMemStore(),
		Now:         fixedNow,
	})

	events, err := orc.Stream(context.Background(), testSessionKey, "tell me a long story")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	// Wait for the first text chunk, confirming the client has reached its gate.
	select {
	case evt := <-events:
		if evt.Metadata == nil {
			t.Fatalf("expected metadata first, got %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for metadata")
	}
	select {
	case evt := <-events:
		if evt.TextChunk == nil {
			t.Fatalf("expected first text chunk, got %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first text chunk")
	}

	orc.Interrupt(testSessionKey)

	rest := drain(t, events, time.Second)
	if len(rest) == 0 || rest[len(rest)-1].Interrupted == nil {
		t.Fatalf("expected stream to end with an Interrupted frame, got %+v", rest)
	}
	if rest[len(rest)-1].Interrupted.AtText < 1 {
		t.Fatalf("expected AtText >= 1, got %+v", rest[len(rest)-1].Interrupted)
	}

	// A second, unrelated Interrupt call must be a safe no-op.
	orc.Interrupt(testSessionKey)
}

func TestNewTurnSupersedesPreviousOne(t *testing.T) {
	client := &gatedLLMClient{
		deltas:  []string{"First turn delta. ", "more"},
		proceed: make(chan struct{}),
	}
	orc := New(Config{
		LLMClient:   client,
		Checkpoints: checkpoint.NewMemStore(),
		Now:         fixedNow,
	})

	firstEvents, err := orc.Stream(context.Background(), testSessionKey, "first turn")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	<-firstEvents // metadata
	<-firstEvents // first text chunk, client now blocked at its gate

	secondDone := make(chan []Event, 1)
	go func() {
		secondEvents, err := orc.Stream(context.Background(), testSessionKey, "second turn")
		if err != nil {
			t.Errorf("second Stream: %v", err)
			secondDone <- nil
			return
		}
		// Once the gate is released below, nothing blocks this turn's
		// client call, so it runs to completion without needing its own gate.
		secondDone <- drain(t, secondEvents, 2*time.Second)
	}()

	first := drain(t, firstEvents, time.Second)
	if len(first) == 0 || first[len(first)-1].Interrupted == nil {
		t.Fatalf("expected first stream to end interrupted, got %+v", first)
	}

	// Release the gate so the second turn's client call can run to
	// completion instead of blocking on the same shared channel.
	close(client.proceed)

	select {
	case got := <-secondDone:
		var sawFinal bool
		for _, evt := range got {
			if evt.TextChunk != nil && evt.TextChunk.Final {
				sawFinal = true
			}
		}
		if !sawFinal {
			t.Fatalf("expected second turn to complete normally, got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second turn never completed")
	}
}
