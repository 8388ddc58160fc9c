package services

import (
	"regexp"
	"strings"
)

const (
	EmotionHappy     = "HAPPY"
	EmotionSurprised = "SURPRISED"
	EmotionThinking  = "THINKING"
	EmotionSad       = "SAD"
)

// emotionPriority is the fixed detection order. First keyword found wins;
// HAPPY is the default when none appears.
var emotionPriority = []string{EmotionSurprised, EmotionThinking, EmotionSad}

var controlMarkerRe = regexp.MustCompile(`(?i)\[(?:stay|advance)\]`)

// CleanReply strips every control marker occurrence and any leading
// emotion-label prefix, then trims. Idempotent: cleaning cleaned text is a
// no-op.
func CleanReply(raw string) string {
	out := controlMarkerRe.ReplaceAllString(raw, "")
	out = strings.TrimSpace(out)

	for {
		stripped := stripEmotionPrefix(out)
		if stripped == out {
			return out
		}
		out = stripped
	}
}

func stripEmotionPrefix(s string) string {
	upper := strings.ToUpper(s)
	for _, e := range append([]string{EmotionHappy}, emotionPriority...) {
		for _, prefix := range []string{e + ":", "[" + e + "]"} {
			if strings.HasPrefix(upper, prefix) {
				return strings.TrimSpace(s[len(prefix):])
			}
		}
	}
	return s
}

// DetectEmotion scans raw model output for the known emotion keywords in
// priority order.
func DetectEmotion(raw string) string {
	upper := strings.ToUpper(raw)
	for _, e := range emotionPriority {
		if strings.Contains(upper, e) {
			return e
		}
	}
	return EmotionHappy
}
