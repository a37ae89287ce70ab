// Package sessionstore implements the gateway's Session Store: short-lived
// per-tenant-channel-user conversational state, keyed by a composite string
// and backed by one of several interchangeable storage backends.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

// Session is the short-lived conversational state for one tenant/channel/user
// tuple. It is distinct from a Checkpoint, which holds the longer-lived,
// summarized conversation history.
type Session struct {
	Key               string    `json:"key"`
	TenantID          string    `json:"tenant_id"`
	Channel           string    `json:"channel"`
	UserID            string    `json:"user_id"`
	Status            Status    `json:"status"`
	ActiveTurnID      string    `json:"active_turn_id,omitempty"`
	InterruptionCount int       `json:"interruption_count"`
	StartedAt         time.Time `json:"started_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
}

// Envelope carries the identity fields a backend needs to derive a Key and
// create a Session on first contact. It mirrors the inbound message shape
// from the Channel Gateway without importing that package, avoiding a
// dependency cycle (gateway depends on sessionstore, not the reverse).
type Envelope struct {
	TenantID string
	Channel  string
	UserID   string
}

// Key builds the canonical session key: tenant:{T}:channel:{C}:user:{U}.
func Key(tenantID, channel, userID string) string {
	return fmt.Sprintf("tenant:%s:channel:%s:user:%s", tenantID, channel, userID)
}

// Store is the Session Store contract. GetOrCreate must be atomic: two
// concurrent calls for the same key must never create two distinct sessions.
type Store interface {
	GetOrCreate(ctx context.Context, env Envelope) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, key string) (*Session, error)
	Touch(ctx context.Context, key string) error
	StartTurn(ctx context.Context, key, turnID string) error
	Interrupt(ctx context.Context, key string) error
	End(ctx context.Context, key string) (*Session, error)
	ActiveCount(ctx context.Context) (int, error)
	Close() error
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
