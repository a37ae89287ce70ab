package checkpoint

import (
	"context"
	"testing"
)

func TestMemStoreLoadMissingReturnsNilNil(t *testing.T) {
	store := NewMemStore()
	cp, err := store.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp != nil {
		t.Fatalf("expected nil checkpoint, got %+v", cp)
	}
}

func TestMemStoreAppendAccumulatesAndCountsTokens(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if err := store.Append(ctx, "t1", Message{Role: "user", Content: "hello world"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, "t1", Message{Role: "assistant", Content: "hi there"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	cp, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cp.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(cp.Messages))
	}
	if cp.TokenCount != 4 {
		t.Fatalf("expected token count 4, got %d", cp.TokenCount)
	}
}

func TestMemStoreSaveReplacesWholesale(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	_ = store.Append(ctx, "t1", Message{Role: "user", Content: "a b c"})

	if err := store.Save(ctx, "t1", &Checkpoint{Summary: "prior context", Messages: nil}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	cp, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cp.Messages) != 0 {
		t.Fatalf("expected Save to replace messages wholesale, got %+v", cp.Messages)
	}
	if cp.Summary != "prior context" {
		t.Fatalf("expected summary to be set, got %q", cp.Summary)
	}
}

func TestMemStoreDelete(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	_ = store.Append(ctx, "t1", Message{Role: "user", Content: "hi"})

	if err := store.Delete(ctx, "t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	cp, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp != nil {
		t.Fatalf("expected nil after delete, got %+v", cp)
	}
}

func TestMemStoreLoadReturnsIndependentCopy(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	_ = store.Append(ctx, "t1", Message{Role: "user", Content: "original"})

	cp, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cp.Messages[0].Content = "mutated"

	cp2, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp2.Messages[0].Content != "original" {
		t.Fatalf("mutation of returned copy leaked into store: %q", cp2.Messages[0].Content)
	}
}
