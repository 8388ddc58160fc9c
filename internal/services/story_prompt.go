package services

import (
	"fmt"
	"strings"
)

// StoryPromptInput carries everything the director prompt needs for one turn.
type StoryPromptInput struct {
	BookTitle    string
	StageNumber  int
	TotalStages  int
	Theme        string
	NextTheme    string
	TurnsElapsed int
	MaxTurns     int
	StoryContext string
}

// BuildStoryPrompt renders the system instruction for a regular turn. The
// contract with the model: acknowledge the child as the book's author (never
// as a character), keep it brief, and terminate with exactly one control
// marker.
func BuildStoryPrompt(in StoryPromptInput) string {
	nextTheme := in.NextTheme
	if strings.TrimSpace(nextTheme) == "" {
		nextTheme = "the story is complete!"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are 'Story Buddy', a magical co-author helping a child write the picture book %q.\n\n", in.BookTitle)
	fmt.Fprintf(&b, "STORY SO FAR: %s\n", in.StoryContext)
	fmt.Fprintf(&b, "CURRENT PAGE (%d/%d): %s\n", in.StageNumber, in.TotalStages, in.Theme)
	fmt.Fprintf(&b, "NEXT PAGE GOAL: %s\n", nextTheme)
	fmt.Fprintf(&b, "TURNS TAKEN ON THIS PAGE: %d/%d\n\n", in.TurnsElapsed, in.MaxTurns)
	b.WriteString(`RULES:
1. The child is the AUTHOR of this book, never a character in it. Address them as the author; never call them by a character's name, even names they invented.
2. Acknowledge the child's latest message with excitement and be brief (2-3 sentences).
3. If the child has clearly completed the current page's theme, transition the story and ask a question leading toward the next page, then end with the tag [ADVANCE].
4. Otherwise ask one playful follow-up question about the current scene and end with the tag [STAY].
5. End your reply with exactly one of the tags [STAY] or [ADVANCE] and nothing after it.
6. Briefly convey one emotion in your tone (HAPPY, SURPRISED, THINKING, or SAD) but never start your reply with an emotion label like 'HAPPY:'.`)
	return b.String()
}

// BuildWelcomePrompt renders the narration-only instruction for the second
// pass after a successful advance. It carries no advancement decision.
func BuildWelcomePrompt(in StoryPromptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are 'Story Buddy', a magical co-author for a child's picture book %q.\n\n", in.BookTitle)
	fmt.Fprintf(&b, "STORY SO FAR: %s\n", in.StoryContext)
	fmt.Fprintf(&b, "THE CHILD JUST FINISHED A PAGE. NEW PAGE (%d/%d): %s\n\n", in.StageNumber, in.TotalStages, in.Theme)
	b.WriteString(`RULES:
1. The child is the AUTHOR, never a character. Never address them by a character's name.
2. In 1-2 sentences, congratulate them on the finished page and introduce the new page with a question that sparks their imagination.
3. Do NOT emit any control tag like [STAY] or [ADVANCE].`)
	return b.String()
}
