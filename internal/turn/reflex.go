package turn

import (
	"strings"
	"time"
)

// reflexMatch is one fixed pattern/responder pair. now is injected so
// responders stay deterministic and testable; production callers pass
// time.Now.
type reflexMatch struct {
	patterns []string
	respond  func(now time.Time) string
}

var reflexTable = []reflexMatch{
	{
		patterns: []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening"},
		respond:  func(time.Time) string { return "Hey, good to hear from you." },
	},
	{
		patterns: []string{"thanks", "thank you", "thx", "ty"},
		respond:  func(time.Time) string { return "You're welcome." },
	},
	{
		patterns: []string{"bye", "goodbye", "see you", "talk later"},
		respond:  func(time.Time) string { return "Talk soon." },
	},
	{
		patterns: []string{"what time is it", "current time", "what's the time"},
		respond:  func(now time.Time) string { return "It's " + now.Format("3:04 PM") + "." },
	},
	{
		patterns: []string{"what's today's date", "what is today's date", "what day is it", "today's date"},
		respond:  func(now time.Time) string { return "Today is " + now.Format("January 2, 2006") + "." },
	},
}

// matchReflex checks userText against the fixed reflex table and returns a
// response without touching the LLM if it matches. It only fires on short,
// exact-ish utterances (the trimmed, lowercased input must equal one of the
// patterns) so it never intercepts a longer message that merely contains a
// greeting in passing.
func matchReflex(userText string, now time.Time) (response string, ok bool) {
	normalized := strings.ToLower(strings.TrimSpace(userText))
	normalized = strings.TrimRight(normalized, "!.?")
	if normalized == "" {
		return "", false
	}

	for _, m := range reflexTable {
		for _, p := range m.patterns {
			if normalized == p {
				return m.respond(now), true
			}
		}
	}
	return "", false
}
