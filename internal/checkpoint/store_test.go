package checkpoint

import "testing"

func TestThreadID(t *testing.T) {
	cases := []struct {
		name       string
		sessionKey string
		userID     string
		agentScope string
		want       string
	}{
		{"session present", "tenant:acme:channel:web:user:u1", "u1", "default", "session:tenant:acme:channel:web:user:u1"},
		{"session blank, user present", "", "u1", "assistant", "user:u1:assistant"},
		{"both blank", "", "", "default", "default"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ThreadID(tc.sessionKey, tc.userID, tc.agentScope); got != tc.want {
				t.Errorf("ThreadID(%q, %q, %q) = %q, want %q", tc.sessionKey, tc.userID, tc.agentScope, got, tc.want)
			}
		})
	}
}

func TestApproxTokenCount(t *testing.T) {
	if got := ApproxTokenCount("hello there friend"); got != 3 {
		t.Errorf("ApproxTokenCount = %d, want 3", got)
	}
	if got := ApproxTokenCount(""); got != 0 {
		t.Errorf("ApproxTokenCount(\"\") = %d, want 0", got)
	}
}

func TestTotalTokens(t *testing.T) {
	cp := &Checkpoint{
		Summary: "one two",
		Messages: []Message{
			{Role: "user", Content: "three four five"},
			{Role: "assistant", Content: "six"},
		},
	}
	if got := totalTokens(cp); got != 6 {
		t.Errorf("totalTokens = %d, want 6", got)
	}
}
