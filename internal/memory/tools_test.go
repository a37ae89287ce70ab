package memory

import (
	"context"
	"testing"
)

func TestToolsSaveAndSearchMemory(t *testing.T) {
	store := NewInMemoryStore()
	tools := NewTools(store)
	ctx := context.Background()

	if _, err := tools.SaveMemory(ctx, "the user's favorite color is teal", "u1"); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}
	if _, err := tools.SaveMemory(ctx, "the user lives in Denver", "u1"); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}
	if _, err := tools.SaveMemory(ctx, "unrelated memory for another user", "u2"); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}

	result, err := tools.SearchMemory(ctx, "color", "u1")
	if err != nil {
		t.Fatalf("SearchMemory: %v", err)
	}
	if result != "the user's favorite color is teal" {
		t.Fatalf("unexpected search result: %q", result)
	}

	all, err := tools.SearchMemory(ctx, "", "u1")
	if err != nil {
		t.Fatalf("SearchMemory: %v", err)
	}
	if all == NoMemoriesFound {
		t.Fatal("expected saved memories, got NoMemoriesFound")
	}

	none, err := tools.SearchMemory(ctx, "something nobody said", "u1")
	if err != nil {
		t.Fatalf("SearchMemory: %v", err)
	}
	if none != NoMemoriesFound {
		t.Fatalf("expected NoMemoriesFound, got %q", none)
	}
}

func TestToolsSaveMemoryRejectsEmptyContent(t *testing.T) {
	tools := NewTools(NewInMemoryStore())
	if _, err := tools.SaveMemory(context.Background(), "   ", "u1"); err == nil {
		t.Fatal("expected error for empty content")
	}
}
