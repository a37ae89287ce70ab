package llm

import (
	"context"
	"strings"
	"testing"
)

func TestMockClientEchoesInputText(t *testing.T) {
	c := NewMockClient()
	var deltas []string
	resp, err := c.Stream(context.Background(), Request{InputText: "hello"}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if !strings.Contains(resp.Text, "hello") {
		t.Fatalf("resp.Text = %q, want it to contain %q", resp.Text, "hello")
	}
	if len(deltas) != 1 || deltas[0] != resp.Text {
		t.Fatalf("deltas = %v, want a single delta matching resp.Text", deltas)
	}
}

func TestMockClientIncludesMemoryContext(t *testing.T) {
	c := NewMockClient()
	resp, err := c.Stream(context.Background(), Request{
		InputText:     "what do you remember",
		MemoryContext: []string{"likes pizza"},
	}, nil)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if !strings.Contains(resp.Text, "likes pizza") {
		t.Fatalf("resp.Text = %q, want it to mention memory context", resp.Text)
	}
}

func TestMockClientRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewMockClient()
	_, err := c.Stream(ctx, Request{InputText: "x"}, nil)
	if err != ctx.Err() {
		t.Fatalf("Stream() error = %v, want %v", err, ctx.Err())
	}
}
