package checkpoint

import (
	"context"
	"strings"
)

// NewStore creates a Postgres-backed Checkpoint Store when a database URL
// is configured, otherwise an in-process store.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemStore(), nil
	}
	return NewPgStore(ctx, databaseURL)
}
