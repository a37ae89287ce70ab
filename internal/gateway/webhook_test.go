package gateway

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quietloop/turnstream/internal/sessionstore"
)

func newTestWebhookHandler(t *testing.T, secretEnvValue string) (*WebhookHandler, *fakeTurnHandler) {
	t.Helper()
	t.Setenv("TEST_WEBHOOK_SECRET", secretEnvValue)

	credFile, err := os.CreateTemp(t.TempDir(), "creds-*.json")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	_, err = credFile.WriteString(`{
		"tenants": {
			"acme": {
				"channels": {
					"webchat": {"token_env": "", "secret_env": "TEST_WEBHOOK_SECRET"}
				}
			}
		}
	}`)
	if err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	credFile.Close()

	creds, err := LoadTenantCredentials(credFile.Name())
	if err != nil {
		t.Fatalf("LoadTenantCredentials: %v", err)
	}

	policy := NewStaticTenantPolicy()
	policy.PutTenant(Tenant{ID: "acme", IsActive: true})
	turns := &fakeTurnHandler{reply: "ack"}
	router := NewRouter(sessionstore.NewMemStore(time.Minute), policy, turns)

	return NewWebhookHandler(creds, router), turns
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	handler, _ := newTestWebhookHandler(t, "s3cret")
	r := chi.NewRouter()
	handler.Mount(r)

	body := []byte(`{"events":[{"type":"message","user_id":"u1","text":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/gateway/webhook/acme/webchat", bytes.NewReader(body))
	req.Header.Set("X-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhookAcceptsValidSignatureAndFiltersNonMessageEvents(t *testing.T) {
	handler, turns := newTestWebhookHandler(t, "s3cret")
	r := chi.NewRouter()
	handler.Mount(r)

	body := []byte(`{"events":[
		{"type":"message","user_id":"u1","text":"hi"},
		{"type":"reaction","user_id":"u1","text":"ignored"}
	]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/gateway/webhook/acme/webchat", bytes.NewReader(body))
	req.Header.Set("X-Signature", sign("s3cret", body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp webhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Handled != 1 {
		t.Fatalf("got response %+v", resp)
	}
	if turns.calls != 1 {
		t.Fatalf("expected exactly one routed message event, got %d calls", turns.calls)
	}
}

func TestWebhookLivenessGet(t *testing.T) {
	handler, _ := newTestWebhookHandler(t, "s3cret")
	r := chi.NewRouter()
	handler.Mount(r)

	req := httptest.NewRequest(http.MethodGet, "/v1/gateway/webhook/acme/webchat", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
