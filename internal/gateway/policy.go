package gateway

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// TenantPolicy decides whether an inbound message is allowed through the
// gateway at all, before any session or orchestrator work happens.
type TenantPolicy interface {
	Allow(msg ChannelMessageIn) bool
}

// AllowAllPolicy allows every message through. It is the default for
// deployments that have not yet populated a StaticTenantPolicy's
// tenant/channel-account tables.
type AllowAllPolicy struct{}

func (AllowAllPolicy) Allow(ChannelMessageIn) bool { return true }

// StaticTenantPolicy enforces tenant-active and per-tenant channel-enabled
// gating from an in-memory tenant/channel-account table. This generalizes
// the teacher's allowlist-based BaseChannel.IsAllowed/CheckPolicy into a
// coarser, tenant-scoped on/off switch rather than a per-sender allowlist,
// matching the spec's single Allow(msg) bool contract.
type StaticTenantPolicy struct {
	mu       sync.RWMutex
	tenants  map[string]Tenant
	accounts map[string]map[string]ChannelAccount // tenantID -> channel -> account
}

func NewStaticTenantPolicy() *StaticTenantPolicy {
	return &StaticTenantPolicy{
		tenants:  make(map[string]Tenant),
		accounts: make(map[string]map[string]ChannelAccount),
	}
}

func (p *StaticTenantPolicy) PutTenant(t Tenant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tenants[t.ID] = t
}

func (p *StaticTenantPolicy) PutChannelAccount(a ChannelAccount) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accounts[a.TenantID] == nil {
		p.accounts[a.TenantID] = make(map[string]ChannelAccount)
	}
	p.accounts[a.TenantID][a.Channel] = a
}

func (p *StaticTenantPolicy) Allow(msg ChannelMessageIn) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tenant, ok := p.tenants[msg.TenantID]
	if !ok || !tenant.IsActive {
		return false
	}

	channels, ok := p.accounts[msg.TenantID]
	if !ok {
		// No channel accounts registered means no per-channel restriction
		// has been configured for this tenant; default to allowed.
		return true
	}
	account, ok := channels[msg.Channel]
	if !ok {
		return false
	}
	return account.IsActive
}

// TenantCredentials resolves per-tenant, per-channel secrets indirectly:
// the credentials file never holds literal secret values, only the names
// of environment variables holding them. This mirrors the teacher's
// config.Load() env-var-name-indirection idiom extended to a multi-tenant
// lookup table.
type TenantCredentials struct {
	file credentialsFile
}

type credentialsFile struct {
	Tenants map[string]tenantCredentialEntry `json:"tenants"`
}

type tenantCredentialEntry struct {
	Channels map[string]channelCredentialEntry `json:"channels"`
}

type channelCredentialEntry struct {
	TokenEnv  string                       `json:"token_env"`
	SecretEnv string                       `json:"secret_env"`
	Targets   map[string]targetCredential  `json:"targets,omitempty"`
}

type targetCredential struct {
	TokenEnv  string `json:"token_env"`
	SecretEnv string `json:"secret_env"`
}

// LoadTenantCredentials reads a JSON credentials file of the form
// {"tenants": {T: {"channels": {C: {"token_env", "secret_env",
// "targets": {id: {"token_env", "secret_env"}}}}}}}. An empty path yields a TenantCredentials that never
// resolves anything, which is a valid configuration for deployments with
// no webhook-verified channels.
func LoadTenantCredentials(path string) (*TenantCredentials, error) {
	if strings.TrimSpace(path) == "" {
		return &TenantCredentials{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant credentials file: %w", err)
	}
	var file credentialsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tenant credentials file: %w", err)
	}
	return &TenantCredentials{file: file}, nil
}

// Resolve looks up the token and secret for a tenant/channel/target,
// following the order: target-specific override, then channel default,
// then "not found". It never returns a literal secret from the file
// itself — only the value of the environment variable the file names.
func (c *TenantCredentials) Resolve(tenantID, channel, targetID string) (token, secret string, ok bool) {
	if c == nil {
		return "", "", false
	}
	tenant, tok := c.file.Tenants[tenantID]
	if !tok {
		return "", "", false
	}
	account, cok := tenant.Channels[channel]
	if !cok {
		return "", "", false
	}

	tokenEnv, secretEnv := account.TokenEnv, account.SecretEnv
	if targetID != "" {
		if target, tgok := account.Targets[targetID]; tgok {
			if target.TokenEnv != "" {
				tokenEnv = target.TokenEnv
			}
			if target.SecretEnv != "" {
				secretEnv = target.SecretEnv
			}
		}
	}

	if tokenEnv == "" && secretEnv == "" {
		return "", "", false
	}
	return os.Getenv(tokenEnv), os.Getenv(secretEnv), true
}
