package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the remote, multi-instance Checkpoint Store backend. Each
// thread is one row; Append adds its message in a single upsert statement,
// so concurrent Appends to one thread are serialized by Postgres's row lock.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(ctx context.Context, databaseURL string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: connect postgres: %w", err)
	}
	if err := initCheckpointSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PgStore{pool: pool}, nil
}

func initCheckpointSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS checkpoints (
		thread_id TEXT PRIMARY KEY,
		messages JSONB NOT NULL DEFAULT '[]',
		summary TEXT NOT NULL DEFAULT '',
		token_count INTEGER NOT NULL DEFAULT 0
	);`)
	if err != nil {
		return fmt.Errorf("checkpoint: init schema: %w", err)
	}
	return nil
}

func (p *PgStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	var raw []byte
	cp := &Checkpoint{ThreadID: threadID}
	err := p.pool.QueryRow(ctx,
		`SELECT messages, summary, token_count FROM checkpoints WHERE thread_id=$1`,
		threadID,
	).Scan(&raw, &cp.Summary, &cp.TokenCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: load: %w", err)
	}
	if err := json.Unmarshal(raw, &cp.Messages); err != nil {
		return nil, fmt.Errorf("checkpoint: decode messages: %w", err)
	}
	return cp, nil
}

func (p *PgStore) Append(ctx context.Context, threadID string, msg Message) error {
	raw, err := json.Marshal([]Message{msg})
	if err != nil {
		return fmt.Errorf("checkpoint: encode message: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO checkpoints (thread_id, messages, token_count)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (thread_id) DO UPDATE
		 SET messages = checkpoints.messages || EXCLUDED.messages,
		     token_count = checkpoints.token_count + EXCLUDED.token_count`,
		threadID, raw, ApproxTokenCount(msg.Content),
	)
	if err != nil {
		return fmt.Errorf("checkpoint: append: %w", err)
	}
	return nil
}

func (p *PgStore) Save(ctx context.Context, threadID string, cp *Checkpoint) error {
	raw, err := json.Marshal(cp.Messages)
	if err != nil {
		return fmt.Errorf("checkpoint: encode messages: %w", err)
	}
	tokenCount := totalTokens(cp)

	_, err = p.pool.Exec(ctx,
		`INSERT INTO checkpoints (thread_id, messages, summary, token_count)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (thread_id) DO UPDATE
		 SET messages = EXCLUDED.messages, summary = EXCLUDED.summary, token_count = EXCLUDED.token_count`,
		threadID, raw, cp.Summary, tokenCount,
	)
	if err != nil {
		return fmt.Errorf("checkpoint: save: %w", err)
	}
	return nil
}

func (p *PgStore) Delete(ctx context.Context, threadID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM checkpoints WHERE thread_id=$1`, threadID)
	if err != nil {
		return fmt.Errorf("checkpoint: delete: %w", err)
	}
	return nil
}

func (p *PgStore) Close() error {
	p.pool.Close()
	return nil
}
