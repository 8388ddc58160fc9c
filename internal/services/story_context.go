package services

import (
	"strings"

	"github.com/balaprakas/storybuddy-backend/internal/clients/gemini"
	"github.com/balaprakas/storybuddy-backend/internal/domain"
)

// Speaker labels used in the accumulated story context. The child is always
// labeled as the author so the model never confuses them with a character.
const (
	SpeakerChild = "Child"
	SpeakerBuddy = "Story Buddy"
)

// InitialStoryContext seeds every new session's transcript.
const InitialStoryContext = "The story begins."

// AppendContext grows the running transcript. Strictly append-only: the
// previous context is always a prefix of the result. Callers wanting a
// shorter window must window at read time.
func AppendContext(storyContext, speaker, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return storyContext
	}
	entry := speaker + ": " + text
	if !strings.HasSuffix(entry, ".") && !strings.HasSuffix(entry, "!") && !strings.HasSuffix(entry, "?") {
		entry += "."
	}
	if storyContext == "" {
		return entry
	}
	return storyContext + " " + entry
}

// RecentTranscript converts the newest audit records into model turns,
// oldest first, windowed to at most window records. The just-submitted user
// input is dropped when it already appears as the final user record, so the
// model never sees the same utterance twice.
func RecentTranscript(messages []*domain.ChatMessage, justSubmitted string, window int) []gemini.Message {
	if window <= 0 {
		window = 10
	}
	if len(messages) > window {
		messages = messages[len(messages)-window:]
	}

	out := make([]gemini.Message, 0, len(messages))
	for _, m := range messages {
		role := gemini.RoleModel
		if m.Role == domain.ChatRoleUser {
			role = gemini.RoleUser
		}
		out = append(out, gemini.Message{Role: role, Text: m.Content})
	}

	if n := len(out); n > 0 && out[n-1].Role == gemini.RoleUser &&
		strings.TrimSpace(out[n-1].Text) == strings.TrimSpace(justSubmitted) {
		out = out[:n-1]
	}
	return out
}
