package turn

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quietloop/turnstream/internal/checkpoint"
	"github.com/quietloop/turnstream/internal/gatewayerr"
	"github.com/quietloop/turnstream/internal/memory"
	"github.com/quietloop/turnstream/internal/observability"
	"github.com/quietloop/turnstream/internal/llm"
	"github.com/quietloop/turnstream/internal/sessionstore"
	"github.com/quietloop/turnstream/internal/stream"
)

// eventQueueDepth bounds the channel Stream hands back to callers. It only
// needs enough room to smooth out one text/audio burst; the pipeline's own
// bounded queue is what actually applies back-pressure to the LLM.
const eventQueueDepth = 16

// Config wires the Orchestrator's collaborators. TTSProvider, Sessions,
// MemoryTools, and Summarizer are all optional: a nil TTSProvider yields a
// text-only deployment, a nil Sessions skips ActiveTurnID bookkeeping, and
// so on.
type Config struct {
	LLMClient   llm.Client
	TTSProvider stream.TTSProvider
	VoiceID     string
	ModelID     string
	Sessions    sessionstore.Store
	Checkpoints checkpoint.Store
	Summarizer  *checkpoint.Summarizer
	MemoryTools *memory.Tools
	Metrics     *observability.Metrics
	Logger      *log.Logger
	AgentScope  string
	Now         func() time.Time
}

type activeTurn struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator implements the Turn Orchestrator: reflex/cognition dispatch,
// one cancellable active turn per session, and the plumbing between the
// LLM client, the streaming pipeline, and the checkpoint/memory stores.
type Orchestrator struct {
	llmClient   llm.Client
	tts         stream.TTSProvider
	voiceID     string
	modelID     string
	sessions    sessionstore.Store
	checkpoints checkpoint.Store
	summarizer  *checkpoint.Summarizer
	memoryTools *memory.Tools
	metrics     *observability.Metrics
	logger      *log.Logger
	agentScope  string
	now         func() time.Time

	mu     sync.Mutex
	active map[string]*activeTurn
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	agentScope := cfg.AgentScope
	if agentScope == "" {
		agentScope = "default"
	}
	return &Orchestrator{
		llmClient:   cfg.LLMClient,
		tts:         cfg.TTSProvider,
		voiceID:     cfg.VoiceID,
		modelID:     cfg.ModelID,
		sessions:    cfg.Sessions,
		checkpoints: cfg.Checkpoints,
		summarizer:  cfg.Summarizer,
		memoryTools: cfg.MemoryTools,
		metrics:     cfg.Metrics,
		logger:      logger,
		agentScope:  agentScope,
		now:         now,
		active:      make(map[string]*activeTurn),
	}
}

// Process drives one turn to completion and returns the concatenated
// assistant text, satisfying gateway.TurnHandler for transports (the
// webhook) that have no use for a streaming response.
func (o *Orchestrator) Process(ctx context.Context, sessionKey, userText string) (string, error) {
	events, err := o.Stream(ctx, sessionKey, userText)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for evt := range events {
		switch {
		case evt.TextChunk != nil:
			text.WriteString(evt.TextChunk.Text)
		case evt.Error != nil:
			return "", evt.Error.Err
		case evt.Interrupted != nil:
			return "", gatewayerr.New(gatewayerr.KindCancelled, "turn interrupted before completion", false)
		}
	}
	return text.String(), nil
}

// Stream is the full streaming contract: submit one turn on sessionKey and
// receive its TextChunk/AudioFrame/Metadata/Error/Interrupted events on the
// returned channel, closed once the turn (or its interruption) is fully
// emitted. Submitting a turn while one is already active on sessionKey
// cancels and drains the old one first, emitting its Interrupted frame
// before this turn's first event.
func (o *Orchestrator) Stream(ctx context.Context, sessionKey, userText string) (<-chan Event, error) {
	o.supersede(ctx, sessionKey)

	userID := userIDFromSessionKey(sessionKey)
	turnID := uuid.NewString()
	threadID := checkpoint.ThreadID(sessionKey, userID, o.agentScope)
	emotion := ClassifyEmotion(userText)

	turnCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.mu.Lock()
	o.active[sessionKey] = &activeTurn{id: turnID, cancel: cancel, done: done}
	o.mu.Unlock()

	if o.sessions != nil {
		if err := o.sessions.StartTurn(ctx, sessionKey, turnID); err != nil {
			o.logger.Printf("turn: StartTurn failed: %v", err)
		}
	}

	events := make(chan Event, eventQueueDepth)

	if response, ok := matchReflex(userText, o.now()); ok {
		go o.runReflexTurn(turnCtx, sessionKey, turnID, threadID, userText, emotion, response, events, done)
		return events, nil
	}

	go o.runCognitionTurn(turnCtx, sessionKey, userID, turnID, threadID, userText, emotion, events, done)
	return events, nil
}

// Interrupt cancels whatever turn is active on sessionKey. It is a no-op,
// and safe to call any number of times, when no turn is active.
func (o *Orchestrator) Interrupt(sessionKey string) {
	o.mu.Lock()
	cur := o.active[sessionKey]
	o.mu.Unlock()
	if cur == nil {
		return
	}
	cur.cancel()
	if o.metrics != nil {
		o.metrics.ObserveInterruption()
	}
}

// supersede cancels and waits for any turn already active on sessionKey, so
// its Interrupted frame always reaches the old stream before the new
// turn's first event.
func (o *Orchestrator) supersede(ctx context.Context, sessionKey string) {
	o.mu.Lock()
	prev := o.active[sessionKey]
	o.mu.Unlock()
	if prev == nil {
		return
	}
	prev.cancel()
	select {
	case <-prev.done:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) clearActive(sessionKey, turnID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cur, ok := o.active[sessionKey]; ok && cur.id == turnID {
		delete(o.active, sessionKey)
	}
}

func (o *Orchestrator) runReflexTurn(
	ctx context.Context,
	sessionKey, turnID, threadID, userText string,
	emotion Emotion,
	response string,
	events chan<- Event,
	done chan struct{},
) {
	defer close(done)
	defer o.clearActive(sessionKey, turnID)
	defer close(events)

	if o.metrics != nil {
		o.metrics.ObserveReflexHit()
	}

	if !sendEvent(ctx, events, Event{Metadata: &Metadata{TurnID: turnID, Emotion: emotion}}) {
		sendEvent(context.Background(), events, Event{Interrupted: &Interrupted{TurnID: turnID}})
		return
	}
	if !sendEvent(ctx, events, Event{TextChunk: &TextChunk{TurnID: turnID, Sequence: 1, Text: response, Final: true}}) {
		sendEvent(context.Background(), events, Event{Interrupted: &Interrupted{TurnID: turnID, AtText: 1}})
		return
	}

	audioSeq := o.drainSingleShotAudio(ctx, turnID, response, events)
	if ctx.Err() != nil {
		sendEvent(context.Background(), events, Event{Interrupted: &Interrupted{TurnID: turnID, AtText: 1, AtAudio: audioSeq}})
		return
	}

	o.finishTurn(ctx, sessionKey, threadID, userText, response)
}

// drainSingleShotAudio synthesizes one complete piece of text (the reflex
// response) and emits its AudioFrames, returning the last sequence number
// emitted. A nil TTS provider makes this a no-op.
func (o *Orchestrator) drainSingleShotAudio(ctx context.Context, turnID, text string, events chan<- Event) int {
	if o.tts == nil {
		return 0
	}
	pipeline := stream.NewPipeline(o.tts, o.voiceID, o.modelID, stream.TTSSettings{})
	if err := pipeline.Start(ctx); err != nil {
		o.logger.Printf("turn: tts start failed: %v", err)
		return 0
	}
	_ = pipeline.PushToken(ctx, text)
	_ = pipeline.Finalize(ctx)

	seq := 0
	for frame := range pipeline.Frames() {
		seq++
		if !sendEvent(ctx, events, Event{AudioFrame: &AudioFrame{TurnID: turnID, Sequence: seq, Payload: frame.Payload, Final: frame.Final}}) {
			break
		}
	}
	pipeline.Wait()
	_ = pipeline.Close()
	return seq
}

func (o *Orchestrator) runCognitionTurn(
	ctx context.Context,
	sessionKey, userID, turnID, threadID, userText string,
	emotion Emotion,
	events chan<- Event,
	done chan struct{},
) {
	defer close(done)
	defer o.clearActive(sessionKey, turnID)
	defer close(events)

	if !sendEvent(ctx, events, Event{Metadata: &Metadata{TurnID: turnID, Emotion: emotion}}) {
		sendEvent(context.Background(), events, Event{Interrupted: &Interrupted{TurnID: turnID}})
		return
	}

	var memoryContext []string
	if o.memoryTools != nil {
		if found, err := o.memoryTools.SearchMemory(ctx, userText, userID); err == nil && found != memory.NoMemoriesFound {
			memoryContext = []string{found}
		}
	}

	pipeline := stream.NewPipeline(o.tts, o.voiceID, o.modelID, stream.TTSSettings{})
	if err := pipeline.Start(ctx); err != nil {
		sendEvent(ctx, events, Event{Error: &ErrorFrame{TurnID: turnID, Err: gatewayerr.Wrap(gatewayerr.KindProviderTransient, "tts stream failed to start", true, err)}})
		return
	}

	frameDone := make(chan struct{})
	audioSeq := 0
	go func() {
		defer close(frameDone)
		seq := 0
		for frame := range pipeline.Frames() {
			seq++
			if !sendEvent(ctx, events, Event{AudioFrame: &AudioFrame{TurnID: turnID, Sequence: seq, Payload: frame.Payload, Final: frame.Final}}) {
				break
			}
		}
		audioSeq = seq
	}()

	var responseText strings.Builder
	textSeq := 0
	interrupted := false

	onDelta := func(delta string) error {
		if ctx.Err() != nil {
			interrupted = true
			return ctx.Err()
		}
		responseText.WriteString(delta)
		textSeq++
		if !sendEvent(ctx, events, Event{TextChunk: &TextChunk{TurnID: turnID, Sequence: textSeq, Text: delta, Final: false}}) {
			interrupted = true
			return ctx.Err()
		}
		if err := pipeline.PushToken(ctx, delta); err != nil {
			interrupted = true
			return err
		}
		return nil
	}

	req := llm.Request{
		UserID:        userID,
		SessionID:     sessionKey,
		TurnID:        turnID,
		InputText:     userText,
		MemoryContext: memoryContext,
	}

	_, streamErr := o.llmClient.Stream(ctx, req, onDelta)
	if streamErr != nil && ctx.Err() == nil {
		_ = pipeline.Finalize(ctx)
		<-frameDone
		pipeline.Wait()
		_ = pipeline.Close()
		sendEvent(context.Background(), events, Event{Error: &ErrorFrame{
			TurnID: turnID,
			Err:    gatewayerr.Wrap(gatewayerr.KindProviderTransient, "llm client failed", true, streamErr),
		}})
		return
	}
	if ctx.Err() != nil {
		interrupted = true
	}

	if !interrupted {
		textSeq++
		if !sendEvent(ctx, events, Event{TextChunk: &TextChunk{TurnID: turnID, Sequence: textSeq, Text: "", Final: true}}) {
			interrupted = true
		}
	}

	_ = pipeline.Finalize(ctx)
	<-frameDone
	pipeline.Wait()
	_ = pipeline.Close()

	if interrupted {
		if o.metrics != nil {
			o.metrics.ObserveInterruption()
		}
		sendEvent(context.Background(), events, Event{Interrupted: &Interrupted{TurnID: turnID, AtText: textSeq, AtAudio: audioSeq}})
		return
	}

	o.finishTurn(ctx, sessionKey, threadID, userText, responseText.String())
}

// finishTurn persists the completed turn and clears Session-level turn
// bookkeeping. Errors here are logged, never surfaced to the caller: the
// turn itself already completed successfully from the client's view.
func (o *Orchestrator) finishTurn(ctx context.Context, sessionKey, threadID, userText, responseText string) {
	if o.sessions != nil {
		if err := o.sessions.StartTurn(ctx, sessionKey, ""); err != nil {
			o.logger.Printf("turn: clearing active turn failed: %v", err)
		}
	}
	if o.checkpoints == nil {
		return
	}

	now := o.now()
	if err := o.checkpoints.Append(ctx, threadID, checkpoint.Message{Role: "user", Content: userText, Timestamp: now}); err != nil {
		o.logger.Printf("turn: checkpoint append (user) failed: %v", err)
		return
	}
	if err := o.checkpoints.Append(ctx, threadID, checkpoint.Message{Role: "assistant", Content: responseText, Timestamp: now}); err != nil {
		o.logger.Printf("turn: checkpoint append (assistant) failed: %v", err)
		return
	}
	if o.summarizer == nil {
		return
	}
	cp, err := o.checkpoints.Load(ctx, threadID)
	if err != nil {
		o.logger.Printf("turn: checkpoint load for summarizer failed: %v", err)
		return
	}
	o.summarizer.MaybeTrigger(ctx, threadID, cp)
}

func sendEvent(ctx context.Context, events chan<- Event, evt Event) bool {
	select {
	case events <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

// userIDFromSessionKey pulls the user segment out of a
// "tenant:{T}:channel:{C}:user:{U}" session key, per sessionstore.Key's
// format. Falls back to the whole key if it doesn't match, so callers
// always get a non-empty, stable scoping value.
func userIDFromSessionKey(sessionKey string) string {
	parts := strings.Split(sessionKey, ":")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "user" {
			return parts[i+1]
		}
	}
	return sessionKey
}
