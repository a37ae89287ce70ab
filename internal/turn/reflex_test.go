package turn

import (
	"testing"
	"time"
)

func TestMatchReflex(t *testing.T) {
	now := time.Date(2026, 7, 31, 15, 4, 0, 0, time.UTC)

	cases := []struct {
		name    string
		input   string
		wantOK  bool
		wantSub string
	}{
		{"greeting", "hello", true, "Hey"},
		{"greeting with punctuation", "Hello!", true, "Hey"},
		{"thanks", "thank you", true, "welcome"},
		{"time query", "what time is it", true, "3:04 PM"},
		{"not a reflex", "can you help me debug this stack trace", false, ""},
		{"greeting embedded in longer text", "hello, can you tell me about black holes", false, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := matchReflex(tc.input, now)
			if ok != tc.wantOK {
				t.Fatalf("matchReflex(%q) ok = %v, want %v", tc.input, ok, tc.wantOK)
			}
			if ok && tc.wantSub != "" && !contains(got, tc.wantSub) {
				t.Fatalf("matchReflex(%q) = %q, want substring %q", tc.input, got, tc.wantSub)
			}
		})
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
