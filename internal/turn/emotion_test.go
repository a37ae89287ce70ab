package turn

import "testing"

func TestClassifyEmotion(t *testing.T) {
	cases := []struct {
		text string
		want Emotion
	}{
		{"", EmotionNeutral},
		{"can you help me with something", EmotionNeutral},
		{"thanks so much, that's awesome", EmotionHappy},
		{"this is so annoying, it doesn't work at all!!!", EmotionFrustrated},
		{"I need this fixed ASAP", EmotionUrgent},
		{"I don't understand what you mean??", EmotionConfused},
	}

	for _, tc := range cases {
		if got := ClassifyEmotion(tc.text); got != tc.want {
			t.Errorf("ClassifyEmotion(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}
