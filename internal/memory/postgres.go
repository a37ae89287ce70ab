package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// PostgresStore persists memory Items in PostgreSQL, with an optional
// pgvector embedding column for future semantic search over the same
// namespace-scoped rows the Tool Surface writes.
type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPostgresStore opens a pool, registers pgvector's wire types on every
// connection, and ensures the schema exists. embeddingDim sizes the vector
// column; it must match whatever embedding model a future RAG integration
// uses and cannot change without a manual migration.
func NewPostgresStore(ctx context.Context, databaseURL string, embeddingDim int) (*PostgresStore, error) {
	if embeddingDim <= 0 {
		embeddingDim = 1536
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory: parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("memory: connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool, embeddingDim); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, dim: embeddingDim}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_items (
			namespace TEXT[] NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, key)
		);`, dim),
		`CREATE INDEX IF NOT EXISTS idx_memory_items_namespace ON memory_items USING gin (namespace);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("memory: init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, item Item) error {
	now := time.Now().UTC()
	var embedding any
	if len(item.Embedding) > 0 {
		v := pgvector.NewVector(item.Embedding)
		embedding = &v
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory_items (namespace, key, value, embedding, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (namespace, key) DO UPDATE
		 SET value = EXCLUDED.value, embedding = EXCLUDED.embedding, updated_at = EXCLUDED.updated_at`,
		item.Namespace, item.Key, item.Value, embedding, now,
	)
	if err != nil {
		return fmt.Errorf("memory: save item: %w", err)
	}
	return nil
}

func (s *PostgresStore) SearchPrefix(ctx context.Context, namespace []string, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT namespace, key, value, created_at, updated_at
		 FROM memory_items
		 WHERE namespace[1:$2] = $1
		 ORDER BY updated_at DESC
		 LIMIT $3`,
		namespace, len(namespace), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: search prefix: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Namespace, &it.Key, &it.Value, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("memory: scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: iterate rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
