package memory

import (
	"context"
	"strings"
)

// NewStore creates a Postgres-backed store when a database URL is
// configured, otherwise an in-process store suited to single-instance
// deployments and tests.
func NewStore(ctx context.Context, databaseURL string, embeddingDim int) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL, embeddingDim)
}
