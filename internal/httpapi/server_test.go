package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quietloop/turnstream/internal/config"
	"github.com/quietloop/turnstream/internal/observability"
	"github.com/quietloop/turnstream/internal/sessionstore"
	"github.com/quietloop/turnstream/internal/turn"
)

type fakeTurnStreamer struct {
	events []turn.Event
}

func (f *fakeTurnStreamer) Stream(ctx context.Context, sessionKey, userText string) (<-chan turn.Event, error) {
	out := make(chan turn.Event, len(f.events))
	for _, evt := range f.events {
		out <- evt
	}
	close(out)
	return out, nil
}

func (f *fakeTurnStreamer) Interrupt(sessionKey string) {}

func newTestServer(t *testing.T, turns TurnStreamer) (*httptest.Server, sessionstore.Store) {
	t.Helper()
	sessions := sessionstore.NewMemStore(time.Minute)
	srv := New(config.Config{}, sessions, turns, nil, nil, observability.NewMetrics("test_"+t.Name()))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, sessions
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, &fakeTurnStreamer{})

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status = %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestGatewayWSRequiresIdentityQueryParams(t *testing.T) {
	ts, _ := newTestServer(t, &fakeTurnStreamer{})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/gateway/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without tenant_id/user_id")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}

func TestGatewayWSPingPong(t *testing.T) {
	ts, _ := newTestServer(t, &fakeTurnStreamer{})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/gateway/ws?tenant_id=acme&user_id=u1"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	var reply map[string]any
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if reply["type"] != "pong" {
		t.Fatalf("expected pong frame, got %+v", reply)
	}
}

func TestGatewayWSChatRequestStreamsFramesThenComplete(t *testing.T) {
	turnID := "t1"
	turns := &fakeTurnStreamer{events: []turn.Event{
		{Metadata: &turn.Metadata{TurnID: turnID, Emotion: turn.EmotionNeutral}},
		{TextChunk: &turn.TextChunk{TurnID: turnID, Sequence: 1, Text: "hi", Final: true}},
	}}
	ts, _ := newTestServer(t, turns)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/gateway/ws?tenant_id=acme&user_id=u1"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "chat_request", "session_id": "s1", "text": "hello"}); err != nil {
		t.Fatalf("write chat_request: %v", err)
	}

	var types []string
	for i := 0; i < 3; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		var envelope map[string]any
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.Fatalf("decode frame %d: %v", i, err)
		}
		types = append(types, envelope["type"].(string))
	}

	want := []string{"metadata", "text_chunk", "complete"}
	for i, w := range want {
		if types[i] != w {
			t.Fatalf("frame %d type = %q, want %q (all: %v)", i, types[i], w, types)
		}
	}
}
