package turn

import "strings"

// Emotion is a coarse classification of the tone of a committed user turn,
// computed once before dispatch and never re-evaluated mid-stream.
type Emotion string

const (
	EmotionNeutral    Emotion = "neutral"
	EmotionHappy      Emotion = "happy"
	EmotionFrustrated Emotion = "frustrated"
	EmotionUrgent     Emotion = "urgent"
	EmotionConfused   Emotion = "confused"
)

var (
	happyWords = []string{
		"thanks", "thank you", "awesome", "great", "love it", "perfect", "glad", "haha", "lol",
	}
	frustratedWords = []string{
		"ugh", "annoying", "frustrated", "this is broken", "doesn't work", "not working", "stupid", "useless",
	}
	urgentWords = []string{
		"asap", "urgent", "right now", "immediately", "emergency", "hurry",
	}
	confusedWords = []string{
		"i don't understand", "confused", "what do you mean", "huh", "unclear", "not sure what",
	}
)

// ClassifyEmotion is a deterministic keyword/punctuation classifier: no
// model call, no state carried between turns. It exists to attach a coarse
// tone hint to the Turn record, not to drive behavior branches.
func ClassifyEmotion(text string) Emotion {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return EmotionNeutral
	}

	switch {
	case containsAny(lower, frustratedWords) || strings.Count(text, "!") >= 3:
		return EmotionFrustrated
	case containsAny(lower, urgentWords):
		return EmotionUrgent
	case containsAny(lower, confusedWords) || strings.Count(text, "?") >= 2:
		return EmotionConfused
	case containsAny(lower, happyWords):
		return EmotionHappy
	default:
		return EmotionNeutral
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
