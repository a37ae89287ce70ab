package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quietloop/turnstream/internal/checkpoint"
	"github.com/quietloop/turnstream/internal/config"
	"github.com/quietloop/turnstream/internal/gateway"
	"github.com/quietloop/turnstream/internal/httpapi"
	"github.com/quietloop/turnstream/internal/llm"
	"github.com/quietloop/turnstream/internal/memory"
	"github.com/quietloop/turnstream/internal/observability"
	"github.com/quietloop/turnstream/internal/sessionstore"
	"github.com/quietloop/turnstream/internal/stream"
	"github.com/quietloop/turnstream/internal/turn"
)

// BuildResult groups every long-lived collaborator Build wires together, so
// main can start the HTTP server and register the shutdown hook without
// knowing how any of them are constructed.
type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     sessionstore.Store
	Checkpoints  checkpoint.Store
	Orchestrator *turn.Orchestrator
	Metrics      *observability.Metrics

	// Cleanup closes the memory, checkpoint and session stores opened
	// during Build. Call it once, on shutdown.
	Cleanup func() error
}

// Build constructs the Channel Gateway, Session Store, Turn Orchestrator,
// Checkpoint Store/Summarizer, Tool Surface, and HTTP surface from cfg.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	sessions, err := sessionstore.New(ctx, cfg.SessionBackend, cfg.DatabaseURL, cfg.SessionFilePath, cfg.SessionInactivityTimeout)
	if err != nil {
		return nil, fmt.Errorf("session store init failed: %w", err)
	}

	checkpoints, err := checkpoint.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("checkpoint store init failed: %w", err)
	}

	memoryStore, err := memory.NewStore(ctx, cfg.DatabaseURL, cfg.MemoryEmbeddingDim)
	if err != nil {
		_ = sessions.Close()
		_ = checkpoints.Close()
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}
	memoryTools := memory.NewTools(memoryStore)

	llmClient, err := llm.NewClient(llm.Config{
		Provider:     cfg.LLMProvider,
		BaseURL:      cfg.LLMBaseURL,
		APIKey:       cfg.LLMAPIKey,
		Model:        cfg.LLMModel,
		Temperature:  cfg.LLMTemperature,
		MaxTokens:    cfg.LLMMaxTokens,
		Timeout:      cfg.LLMRequestTimeout,
		MaxRetries:   cfg.LLMMaxRetries,
		StreamStrict: false,
	})
	if err != nil {
		_ = sessions.Close()
		_ = checkpoints.Close()
		_ = memoryStore.Close()
		return nil, fmt.Errorf("llm client init failed: %w", err)
	}

	ttsProvider, voiceID, modelID := resolveTTSProvider(cfg)

	summarizer := checkpoint.NewSummarizer(checkpoints, summarizeFunc(llmClient), cfg.CheckpointTriggerTokens, cfg.CheckpointMaxSummary, slog.Default())

	orchestrator := turn.New(turn.Config{
		LLMClient:   llmClient,
		TTSProvider: ttsProvider,
		VoiceID:     voiceID,
		ModelID:     modelID,
		Sessions:    sessions,
		Checkpoints: checkpoints,
		Summarizer:  summarizer,
		MemoryTools: memoryTools,
		Metrics:     metrics,
		AgentScope:  cfg.AgentScope,
	})

	policy := gateway.TenantPolicy(gateway.AllowAllPolicy{})
	router := gateway.NewRouter(sessions, policy, orchestrator)

	credentials, err := gateway.LoadTenantCredentials(cfg.TenantCredentialsPath)
	if err != nil {
		_ = sessions.Close()
		_ = checkpoints.Close()
		_ = memoryStore.Close()
		return nil, fmt.Errorf("tenant credentials load failed: %w", err)
	}
	webhookHandler := gateway.NewWebhookHandler(credentials, router)
	roomTokens := gateway.NewRoomTokenIssuer(credentials)

	api := httpapi.New(cfg, sessions, orchestrator, webhookHandler, roomTokens, metrics)

	cleanup := func() error {
		var errs []string
		if err := memoryStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := checkpoints.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := sessions.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Checkpoints:  checkpoints,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Cleanup:      cleanup,
	}, nil
}

// resolveTTSProvider builds the Streaming Pipeline's TTS backend. A nil
// provider (the "mock"/unset case) yields a text-only deployment: the
// Pipeline treats a nil TTSProvider as a no-op per its own contract.
func resolveTTSProvider(cfg config.Config) (stream.TTSProvider, string, string) {
	mode := strings.ToLower(strings.TrimSpace(cfg.TTSProvider))
	useElevenLabs := (mode == "auto" && strings.TrimSpace(cfg.ElevenLabsAPIKey) != "") || mode == "elevenlabs"
	if !useElevenLabs {
		return nil, "", ""
	}
	provider := stream.NewElevenLabsProvider(stream.ElevenLabsConfig{
		APIKey:              cfg.ElevenLabsAPIKey,
		WSBaseURL:           cfg.ElevenLabsWSBaseURL,
		DefaultOutputFormat: cfg.ElevenLabsOutputFmt,
	})
	return provider, cfg.ElevenLabsTTSVoice, cfg.ElevenLabsTTSModel
}

// summarizeFunc adapts the llm.Client's streaming interface into the
// checkpoint package's plain-text SummarizeFunc shape, keeping the
// Checkpoint Store free of a direct dependency on the LLM client.
func summarizeFunc(client llm.Client) checkpoint.SummarizeFunc {
	return func(ctx context.Context, priorSummary string, messages []checkpoint.Message) (string, error) {
		var out strings.Builder
		req := llm.Request{
			InputText: checkpoint.RenderSummaryPrompt(priorSummary, messages),
		}
		resp, err := client.Stream(ctx, req, func(delta string) error {
			out.WriteString(delta)
			return nil
		})
		if err != nil {
			return "", err
		}
		if out.Len() > 0 {
			return out.String(), nil
		}
		return resp.Text, nil
	}
}
