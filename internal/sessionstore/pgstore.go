package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the remote KV Session Store backend, suited to multi-instance
// deployments where session state must survive any single process.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(ctx context.Context, databaseURL string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSessionSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PgStore{pool: pool}, nil
}

func initSessionSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS gateway_sessions (
			key TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			active_turn_id TEXT NOT NULL DEFAULT '',
			interruption_count INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ NOT NULL,
			last_activity_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_gateway_sessions_tenant ON gateway_sessions (tenant_id, status);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init session schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (p *PgStore) GetOrCreate(ctx context.Context, env Envelope) (*Session, error) {
	key := Key(env.TenantID, env.Channel, env.UserID)
	now := time.Now().UTC()

	var s Session
	err := p.pool.QueryRow(ctx,
		`INSERT INTO gateway_sessions (key, tenant_id, channel, user_id, status, started_at, last_activity_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (key) DO UPDATE SET key = gateway_sessions.key
		 RETURNING key, tenant_id, channel, user_id, status, active_turn_id, interruption_count, started_at, last_activity_at`,
		key, env.TenantID, env.Channel, env.UserID, StatusActive, now,
	).Scan(&s.Key, &s.TenantID, &s.Channel, &s.UserID, &s.Status, &s.ActiveTurnID, &s.InterruptionCount, &s.StartedAt, &s.LastActivityAt)
	if err != nil {
		return nil, fmt.Errorf("get or create session: %w", err)
	}
	return &s, nil
}

func (p *PgStore) Save(ctx context.Context, s *Session) error {
	if s == nil || s.Key == "" {
		return ErrNotFound
	}
	_, err := p.pool.Exec(ctx,
		`UPDATE gateway_sessions
		 SET status=$2, active_turn_id=$3, interruption_count=$4, last_activity_at=$5
		 WHERE key=$1`,
		s.Key, s.Status, s.ActiveTurnID, s.InterruptionCount, s.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (p *PgStore) Get(ctx context.Context, key string) (*Session, error) {
	var s Session
	err := p.pool.QueryRow(ctx,
		`SELECT key, tenant_id, channel, user_id, status, active_turn_id, interruption_count, started_at, last_activity_at
		 FROM gateway_sessions WHERE key=$1`, key,
	).Scan(&s.Key, &s.TenantID, &s.Channel, &s.UserID, &s.Status, &s.ActiveTurnID, &s.InterruptionCount, &s.StartedAt, &s.LastActivityAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

func (p *PgStore) Touch(ctx context.Context, key string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE gateway_sessions SET last_activity_at=$2 WHERE key=$1`, key, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PgStore) StartTurn(ctx context.Context, key, turnID string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE gateway_sessions SET active_turn_id=$2, last_activity_at=$3 WHERE key=$1`,
		key, turnID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("start turn: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PgStore) Interrupt(ctx context.Context, key string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE gateway_sessions
		 SET interruption_count = interruption_count + 1, active_turn_id='', last_activity_at=$2
		 WHERE key=$1`, key, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("interrupt session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PgStore) End(ctx context.Context, key string) (*Session, error) {
	var s Session
	err := p.pool.QueryRow(ctx,
		`UPDATE gateway_sessions
		 SET status=$2, active_turn_id='', last_activity_at=$3
		 WHERE key=$1
		 RETURNING key, tenant_id, channel, user_id, status, active_turn_id, interruption_count, started_at, last_activity_at`,
		key, StatusEnded, time.Now().UTC(),
	).Scan(&s.Key, &s.TenantID, &s.Channel, &s.UserID, &s.Status, &s.ActiveTurnID, &s.InterruptionCount, &s.StartedAt, &s.LastActivityAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	return &s, nil
}

func (p *PgStore) ActiveCount(ctx context.Context) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM gateway_sessions WHERE status=$1`, StatusActive,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return count, nil
}

func (p *PgStore) Close() error {
	p.pool.Close()
	return nil
}
