package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NoMemoriesFound is returned verbatim by SearchMemory when nothing in the
// caller's namespace matches.
const NoMemoriesFound = "no relevant memories found"

const maxSearchResults = 5

// memoriesNamespace scopes every Tool Surface read/write to a single user's
// slice of the store: queries and writes can never cross this prefix.
func memoriesNamespace(userID string) []string {
	return []string{"memories", userID}
}

// Tools exposes the two callable functions the cognition path may invoke
// mid-turn: search_memory and save_memory, both scoped to the namespace
// ("memories", userId).
type Tools struct {
	store Store
}

func NewTools(store Store) *Tools {
	return &Tools{store: store}
}

// SearchMemory returns up to five newline-separated memory values from the
// caller's namespace, most recently updated first, optionally filtered to
// those containing query. An empty result set yields NoMemoriesFound rather
// than an empty string, so the cognition path always has something to show
// the model.
func (t *Tools) SearchMemory(ctx context.Context, query, userID string) (string, error) {
	items, err := t.store.SearchPrefix(ctx, memoriesNamespace(userID), 0)
	if err != nil {
		return "", fmt.Errorf("search_memory: %w", err)
	}

	query = strings.TrimSpace(query)
	var matched []Item
	for _, it := range items {
		if query == "" || strings.Contains(strings.ToLower(it.Value), strings.ToLower(query)) {
			matched = append(matched, it)
			if len(matched) >= maxSearchResults {
				break
			}
		}
	}

	if len(matched) == 0 {
		return NoMemoriesFound, nil
	}

	lines := make([]string, 0, len(matched))
	for _, it := range matched {
		lines = append(lines, it.Value)
	}
	return strings.Join(lines, "\n"), nil
}

// SaveMemory inserts content under a fresh unique key in the caller's
// namespace and acknowledges the write.
func (t *Tools) SaveMemory(ctx context.Context, content, userID string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("save_memory: content is required")
	}

	err := t.store.Save(ctx, Item{
		Namespace: memoriesNamespace(userID),
		Key:       uuid.NewString(),
		Value:     content,
	})
	if err != nil {
		return "", fmt.Errorf("save_memory: %w", err)
	}
	return "memory saved", nil
}
