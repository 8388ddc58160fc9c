package services

import "testing"

func TestCleanReply(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "What a great idea!", "What a great idea!"},
		{"trailing stay", "Tell me more! [STAY]", "Tell me more!"},
		{"trailing advance", "Onward we go! [ADVANCE]", "Onward we go!"},
		{"marker mid-reply", "We did it [ADVANCE] hooray!", "We did it  hooray!"},
		{"both markers", "[STAY] hmm [ADVANCE]", "hmm"},
		{"lowercase marker", "done! [advance]", "done!"},
		{"emotion colon prefix", "HAPPY: What a great idea!", "What a great idea!"},
		{"emotion bracket prefix", "[SAD] Oh no, the colors!", "Oh no, the colors!"},
		{"stacked prefixes", "HAPPY: [SURPRISED] Wow!", "Wow!"},
		{"prefix and marker", "THINKING: Hmm, let me see... [STAY]", "Hmm, let me see..."},
		{"emotion word mid-reply kept", "The crow looks SAD today.", "The crow looks SAD today."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CleanReply(tc.raw)
			if got != tc.want {
				t.Fatalf("CleanReply(%q) = %q, want %q", tc.raw, got, tc.want)
			}
			if again := CleanReply(got); again != got {
				t.Fatalf("CleanReply not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestDetectEmotion(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"default happy", "What a lovely page!", EmotionHappy},
		{"surprised", "Wow, SURPRISED doesn't begin to cover it!", EmotionSurprised},
		{"thinking", "Hmm, THINKING about that...", EmotionThinking},
		{"sad", "The crow is so SAD.", EmotionSad},
		{"surprised beats sad", "SAD and SURPRISED all at once", EmotionSurprised},
		{"thinking beats sad", "SAD but THINKING it through", EmotionThinking},
		{"lowercase counts", "that is surprised-face territory", EmotionSurprised},
		{"happy keyword still default path", "HAPPY days!", EmotionHappy},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectEmotion(tc.raw); got != tc.want {
				t.Fatalf("DetectEmotion(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}
