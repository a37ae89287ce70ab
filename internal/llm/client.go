// Package llm holds the narrow streaming client the Turn Orchestrator's
// cognition path talks to. It knows nothing about reflex matching, TTS, or
// session bookkeeping — just "submit this turn's text, receive deltas".
package llm

import "context"

// Request is one cognition-turn submission.
type Request struct {
	UserID        string   `json:"user_id"`
	SessionID     string   `json:"session_id"`
	TurnID        string   `json:"turn_id"`
	InputText     string   `json:"input_text"`
	MemoryContext []string `json:"memory_context,omitempty"`
	PersonaID     string   `json:"persona_id,omitempty"`
}

// Response is the final accumulated text once a stream completes.
type Response struct {
	Text string `json:"text"`
}

// DeltaFunc receives streaming text fragments as the model produces them.
// Returning an error (including ctx.Err()) aborts the stream.
type DeltaFunc func(delta string) error

// Client is the capability the Turn Orchestrator's cognition path needs
// from a language-model backend.
type Client interface {
	Stream(ctx context.Context, req Request, onDelta DeltaFunc) (Response, error)
}
