package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/quietloop/turnstream/internal/config"
	"github.com/quietloop/turnstream/internal/gateway"
	"github.com/quietloop/turnstream/internal/observability"
	"github.com/quietloop/turnstream/internal/protocol"
	"github.com/quietloop/turnstream/internal/sessionstore"
	"github.com/quietloop/turnstream/internal/turn"
)

// gatewayWSChannel identifies the session-store channel for connections
// made directly against the WebSocket chat surface, as opposed to one
// driven through a chat-platform webhook.
const gatewayWSChannel = "websocket"

// TurnStreamer is the capability the WebSocket surface needs from the Turn
// Orchestrator.
type TurnStreamer interface {
	Stream(ctx context.Context, sessionKey, userText string) (<-chan turn.Event, error)
	Interrupt(sessionKey string)
}

// Server exposes the gateway's HTTP/WebSocket surface: the chat WebSocket,
// the chat-platform webhook, the media-room token endpoint, and health/
// metrics.
type Server struct {
	cfg        config.Config
	sessions   sessionstore.Store
	turns      TurnStreamer
	webhook    *gateway.WebhookHandler
	roomTokens *gateway.RoomTokenIssuer
	metrics    *observability.Metrics
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, sessions sessionstore.Store, turns TurnStreamer, webhook *gateway.WebhookHandler, roomTokens *gateway.RoomTokenIssuer, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:        cfg,
		sessions:   sessions,
		turns:      turns,
		webhook:    webhook,
		roomTokens: roomTokens,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow same-origin callers. This prevents other
				// sites from driving a tenant's chat session if the gateway is
				// ever exposed beyond a trusted frontend.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients (native apps, server-to-server) often
					// omit Origin entirely.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/gateway/ws", s.handleGatewayWS)
	if s.webhook != nil {
		s.webhook.Mount(r)
	}
	if s.roomTokens != nil {
		r.Post("/v1/rooms/token", s.roomTokens.HandleIssueToken)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleGatewayWS upgrades to a WebSocket chat session identified by
// tenant_id/user_id query parameters, resolving (or creating) the
// corresponding Session Store entry for this gateway's own "websocket"
// channel.
func (s *Server) handleGatewayWS(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if tenantID == "" || userID == "" {
		respondError(w, http.StatusBadRequest, "missing_identity", "tenant_id and user_id query parameters are required")
		return
	}

	sess, err := s.sessions.GetOrCreate(r.Context(), sessionstore.Envelope{
		TenantID: tenantID,
		Channel:  gatewayWSChannel,
		UserID:   userID,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "session_error", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	var turns sync.WaitGroup

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					s.metrics.WSWriteErrors.WithLabelValues("write_json").Inc()
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			select {
			case outbound <- protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "invalid_client_message", Detail: err.Error()}:
			case <-ctx.Done():
				break readLoop
			}
			continue
		}

		switch msg := parsed.(type) {
		case protocol.Ping:
			s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.TypePing)).Inc()
			select {
			case outbound <- protocol.Pong{Type: protocol.TypePong}:
			case <-ctx.Done():
				break readLoop
			}
		case protocol.ChatRequest:
			s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.TypeChatRequest)).Inc()
			turns.Add(1)
			go func() {
				defer turns.Done()
				s.runChatTurn(ctx, sess.Key, msg.Text, outbound)
			}()
		}
	}

	cancel()
	turns.Wait()
	close(outbound)
	<-writerDone

	if err := s.sessions.Touch(context.Background(), sess.Key); err != nil {
		s.metrics.ProviderErrors.WithLabelValues("sessionstore", "touch_failed").Inc()
	}
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

// runChatTurn drives one Stream call to completion, translating each turn
// Event into its wire frame. A turn that ends without an Error or
// Interrupted event gets a synthesized Complete frame, since the
// Orchestrator's event stream itself carries no explicit completion
// signal.
func (s *Server) runChatTurn(ctx context.Context, sessionKey, text string, outbound chan<- any) {
	events, err := s.turns.Stream(ctx, sessionKey, text)
	if err != nil {
		sendOutbound(ctx, outbound, protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "turn_start_failed", Detail: err.Error(), Retryable: true})
		return
	}

	var turnID string
	terminal := false

	for evt := range events {
		switch {
		case evt.TextChunk != nil:
			turnID = evt.TextChunk.TurnID
			sendOutbound(ctx, outbound, protocol.TextChunk{
				Type:     protocol.TypeTextChunk,
				TurnID:   evt.TextChunk.TurnID,
				Sequence: evt.TextChunk.Sequence,
				Text:     evt.TextChunk.Text,
				Final:    evt.TextChunk.Final,
			})
		case evt.AudioFrame != nil:
			turnID = evt.AudioFrame.TurnID
			sendOutbound(ctx, outbound, protocol.EncodeAudioChunk(evt.AudioFrame.TurnID, evt.AudioFrame.Sequence, evt.AudioFrame.Payload, evt.AudioFrame.Final))
		case evt.Metadata != nil:
			turnID = evt.Metadata.TurnID
			sendOutbound(ctx, outbound, protocol.Metadata{
				Type:    protocol.TypeMetadata,
				TurnID:  evt.Metadata.TurnID,
				Emotion: string(evt.Metadata.Emotion),
			})
		case evt.Error != nil:
			turnID = evt.Error.TurnID
			terminal = true
			s.metrics.ProviderErrors.WithLabelValues("turn", string(evt.Error.Err.Kind)).Inc()
			sendOutbound(ctx, outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				TurnID:    evt.Error.TurnID,
				Code:      string(evt.Error.Err.Kind),
				Detail:    evt.Error.Err.Message,
				Retryable: evt.Error.Err.Retryable,
			})
		case evt.Interrupted != nil:
			turnID = evt.Interrupted.TurnID
			terminal = true
			sendOutbound(ctx, outbound, protocol.Interrupted{
				Type:         protocol.TypeInterrupted,
				TurnID:       evt.Interrupted.TurnID,
				AtTextChunk:  evt.Interrupted.AtText,
				AtAudioChunk: evt.Interrupted.AtAudio,
			})
		}
	}

	if !terminal {
		sendOutbound(ctx, outbound, protocol.Complete{Type: protocol.TypeComplete, TurnID: turnID})
	}
}

func sendOutbound(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	case <-ctx.Done():
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.Ping:
		return m.Type, true
	case protocol.Pong:
		return m.Type, true
	case protocol.ChatRequest:
		return m.Type, true
	case protocol.TextChunk:
		return m.Type, true
	case protocol.AudioChunk:
		return m.Type, true
	case protocol.Metadata:
		return m.Type, true
	case protocol.Complete:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	case protocol.Interrupted:
		return m.Type, true
	default:
		return "", false
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
