// Package gateway implements the Channel Gateway: the multi-tenant entry
// point that accepts inbound messages from any channel, enforces per-tenant
// policy, and routes allowed messages into a session-aware turn handler.
package gateway

import "time"

// Tenant is a single customer/workspace the gateway serves.
type Tenant struct {
	ID        string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	Metadata  map[string]string
}

// ChannelAccount binds a tenant to an external channel identity (a Telegram
// bot ID, a webhook endpoint name, a room prefix, etc).
type ChannelAccount struct {
	ID         string
	TenantID   string
	Channel    string
	ExternalID string
	IsActive   bool
	CreatedAt  time.Time
	Metadata   map[string]string
}

// ChannelMessageIn is one inbound message from any channel.
type ChannelMessageIn struct {
	TenantID string
	Channel  string
	UserID   string
	Text     string
	Metadata map[string]string
}

// ChannelMessageOut is the gateway's reply, destined for the same channel.
type ChannelMessageOut struct {
	TenantID string
	Channel  string
	UserID   string
	Text     string
	Metadata map[string]string
}
