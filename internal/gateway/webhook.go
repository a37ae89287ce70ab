package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

// WebhookEvent is one event inside an inbound webhook payload. Only
// text-message events are routed; every other event type is skipped and
// not counted as handled.
type WebhookEvent struct {
	Type     string            `json:"type"`
	UserID   string            `json:"user_id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type webhookPayload struct {
	Events []WebhookEvent `json:"events"`
}

type webhookResponse struct {
	Status  string `json:"status"`
	Handled int    `json:"handled"`
}

const webhookEventTypeMessage = "message"

// WebhookHandler verifies and dispatches chat-platform webhook deliveries.
type WebhookHandler struct {
	credentials *TenantCredentials
	router      *Router
}

func NewWebhookHandler(credentials *TenantCredentials, router *Router) *WebhookHandler {
	return &WebhookHandler{credentials: credentials, router: router}
}

// Mount registers the webhook route at /v1/gateway/webhook/{tenant}/{channel}
// on the given chi router.
func (h *WebhookHandler) Mount(r chi.Router) {
	r.Post("/v1/gateway/webhook/{tenant}/{channel}", h.handlePost)
	r.Get("/v1/gateway/webhook/{tenant}/{channel}", h.handleLiveness)
}

func (h *WebhookHandler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	channel := chi.URLParam(r, "channel")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(tenantID, channel, r.Header.Get("X-Signature"), body) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// Each event belongs to an independent user/session, so routing them
	// concurrently bounds total webhook latency to the slowest turn rather
	// than the sum of all of them.
	var (
		mu      sync.Mutex
		handled int
	)
	g, gctx := errgroup.WithContext(r.Context())
	for _, ev := range payload.Events {
		if ev.Type != webhookEventTypeMessage {
			continue
		}
		ev := ev
		g.Go(func() error {
			if _, err := h.router.RouteInbound(gctx, ChannelMessageIn{
				TenantID: tenantID,
				Channel:  channel,
				UserID:   ev.UserID,
				Text:     ev.Text,
				Metadata: ev.Metadata,
			}); err != nil {
				return nil
			}
			mu.Lock()
			handled++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(webhookResponse{Status: "ok", Handled: handled})
}

// verifySignature checks the X-Signature header against an HMAC-SHA256 of
// the raw body using the tenant/channel's resolved webhook secret. The
// comparison is constant-time to avoid leaking timing information about how
// much of the signature matched.
func (h *WebhookHandler) verifySignature(tenantID, channel, signature string, body []byte) bool {
	_, secret, ok := h.credentials.Resolve(tenantID, channel, "")
	if !ok || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
