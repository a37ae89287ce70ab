package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quietloop/turnstream/internal/reliability"
)

// HTTPConfig configures HTTPClient. BaseURL and APIKey come from the
// LLM_BASE_URL/LLM_API_KEY environment variables; Model/Temperature/
// MaxTokens are the per-request defaults the spec's LLM_* family names.
type HTTPConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
	MaxRetries   int
	StreamStrict bool
}

// HTTPClient streams completions from an HTTP endpoint that responds with
// either an SSE (text/event-stream) or NDJSON body of incremental deltas,
// falling back to a single whole-body JSON/text response when the provider
// doesn't stream at all.
type HTTPClient struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type requestPayload struct {
	UserID        string   `json:"user_id"`
	SessionID     string   `json:"session_id"`
	TurnID        string   `json:"turn_id"`
	InputText     string   `json:"input_text"`
	MemoryContext []string `json:"memory_context,omitempty"`
	PersonaID     string   `json:"persona_id,omitempty"`
	Model         string   `json:"model,omitempty"`
	Temperature   float64  `json:"temperature,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
}

func (c *HTTPClient) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (Response, error) {
	payload, err := json.Marshal(requestPayload{
		UserID:        req.UserID,
		SessionID:     req.SessionID,
		TurnID:        req.TurnID,
		InputText:     req.InputText,
		MemoryContext: req.MemoryContext,
		PersonaID:     req.PersonaID,
		Model:         c.cfg.Model,
		Temperature:   c.cfg.Temperature,
		MaxTokens:     c.cfg.MaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := reliability.ExponentialBackoff(attempt, 200*time.Millisecond, 5*time.Second)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Response{}, ctx.Err()
			}
		}

		res, status, err := c.send(ctx, payload)
		if err != nil {
			lastErr = err
			continue
		}
		if status < 200 || status >= 300 {
			body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
			res.Body.Close()
			lastErr = fmt.Errorf("llm http status %d: %s", status, string(body))
			if reliability.IsRetryableHTTPStatus(status) {
				continue
			}
			return Response{}, lastErr
		}

		defer res.Body.Close()
		return c.consumeBody(res, onDelta)
	}
	return Response{}, lastErr
}

func (c *HTTPClient) send(ctx context.Context, payload []byte) (*http.Response, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	return res, res.StatusCode, nil
}

func (c *HTTPClient) consumeBody(res *http.Response, onDelta DeltaFunc) (Response, error) {
	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") {
		return c.consumeSSE(res.Body, onDelta)
	}
	if strings.Contains(ct, "application/x-ndjson") || strings.Contains(ct, "application/ndjson") {
		return c.consumeNDJSON(res.Body, onDelta)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		text := strings.TrimSpace(string(body))
		if text == "" {
			return Response{}, nil
		}
		if onDelta != nil {
			if err := onDelta(text); err != nil {
				return Response{}, err
			}
		}
		return Response{Text: text}, nil
	}

	text := extractText(obj)
	if text != "" && onDelta != nil {
		if err := onDelta(text); err != nil {
			return Response{}, err
		}
	}
	return Response{Text: text}, nil
}

func (c *HTTPClient) consumeNDJSON(body io.Reader, onDelta DeltaFunc) (Response, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		delta, ok, done, err := c.streamDelta(line)
		if err != nil {
			return Response{}, err
		}
		if done {
			return Response{Text: out.String()}, nil
		}
		if !ok {
			continue
		}

		out.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return Response{}, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Response{}, fmt.Errorf("stream read: %w", err)
	}

	return Response{Text: out.String()}, nil
}

func (c *HTTPClient) consumeSSE(body io.Reader, onDelta DeltaFunc) (Response, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		out       strings.Builder
		dataLines []string
	)

	flushEvent := func() (done bool, err error) {
		if len(dataLines) == 0 {
			return false, nil
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]

		delta, ok, finished, err := c.streamDelta(payload)
		if err != nil {
			return false, err
		}
		if finished {
			return true, nil
		}
		if !ok {
			return false, nil
		}

		out.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			done, err := flushEvent()
			if err != nil {
				return Response{}, err
			}
			if done {
				return Response{Text: out.String()}, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			// SSE comment / keepalive.
			continue
		}

		field := line
		value := ""
		if idx := strings.IndexByte(line, ':'); idx >= 0 {
			field = line[:idx]
			value = line[idx+1:]
			if strings.HasPrefix(value, " ") {
				value = value[1:]
			}
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
		default:
			// Ignore event/id/retry and unknown fields.
		}
	}

	done, err := flushEvent()
	if err != nil {
		return Response{}, err
	}
	if done {
		return Response{Text: out.String()}, nil
	}
	if err := scanner.Err(); err != nil {
		return Response{}, fmt.Errorf("stream read: %w", err)
	}
	return Response{Text: out.String()}, nil
}

func (c *HTTPClient) streamDelta(payload string) (delta string, ok bool, done bool, err error) {
	raw := payload
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", false, false, nil
	}
	if strings.EqualFold(p, "[DONE]") {
		return "", false, true, nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(p), &obj); err == nil {
		delta = strings.TrimSpace(extractText(obj))
		if delta == "" {
			return "", false, false, nil
		}
		return delta, true, false, nil
	}

	if c.cfg.StreamStrict {
		return "", false, false, fmt.Errorf("invalid stream payload: %s", summarizePayload(p))
	}
	return raw, true, false, nil
}

func summarizePayload(p string) string {
	const maxLen = 200
	p = strings.TrimSpace(p)
	if len(p) <= maxLen {
		return p
	}
	return p[:maxLen] + "...(truncated)"
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "delta", "output", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
