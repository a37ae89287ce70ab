package gateway

import (
	"context"
	"log"

	"github.com/quietloop/turnstream/internal/policy"
	"github.com/quietloop/turnstream/internal/sessionstore"
)

// TurnHandler is the capability the gateway needs from the Turn
// Orchestrator: process one turn of text to completion. Interrupting a
// session's running turn is not part of this interface. Composing on
// this narrow interface (rather than depending on the concrete
// orchestrator type) keeps the gateway ignorant of streaming/cancellation
// internals.
type TurnHandler interface {
	Process(ctx context.Context, sessionKey, userText string) (responseText string, err error)
}

// RouteInboundOutput is the result of routing one inbound message.
type RouteInboundOutput struct {
	SessionID    string
	ResponseText string
	Allowed      bool
}

// Router implements RouteInbound: the Channel Gateway's single operation.
type Router struct {
	sessions sessionstore.Store
	policy   TenantPolicy
	turns    TurnHandler
	logger   *log.Logger
}

func NewRouter(sessions sessionstore.Store, tenantPolicy TenantPolicy, turns TurnHandler) *Router {
	return &Router{sessions: sessions, policy: tenantPolicy, turns: turns, logger: log.Default()}
}

// RouteInbound enforces tenant policy, resolves (or creates) the session for
// this tenant/channel/user tuple, drives one orchestrator turn, and updates
// session activity. A policy-denied message never touches the session store
// or the orchestrator.
func (r *Router) RouteInbound(ctx context.Context, msg ChannelMessageIn) (RouteInboundOutput, error) {
	if !r.policy.Allow(msg) {
		return RouteInboundOutput{Allowed: false}, nil
	}

	sess, err := r.sessions.GetOrCreate(ctx, sessionstore.Envelope{
		TenantID: msg.TenantID,
		Channel:  msg.Channel,
		UserID:   msg.UserID,
	})
	if err != nil {
		return RouteInboundOutput{}, err
	}

	if redacted, changed := policy.RedactPII(msg.Text); changed {
		r.logger.Printf("gateway: routing message session=%s text=%q (redacted)", sess.Key, redacted)
	}

	responseText, err := r.turns.Process(ctx, sess.Key, msg.Text)
	if err != nil {
		return RouteInboundOutput{}, err
	}

	if err := r.sessions.Touch(ctx, sess.Key); err != nil {
		return RouteInboundOutput{}, err
	}

	return RouteInboundOutput{
		SessionID:    sess.Key,
		ResponseText: responseText,
		Allowed:      true,
	}, nil
}
