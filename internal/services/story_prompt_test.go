package services

import (
	"strings"
	"testing"
)

func TestBuildStoryPrompt(t *testing.T) {
	in := StoryPromptInput{
		BookTitle:    "The Rainbow Story",
		StageNumber:  3,
		TotalStages:  8,
		Theme:        "They use a magnifying glass to explore.",
		NextTheme:    "They find the Greedy Crow.",
		TurnsElapsed: 1,
		MaxTurns:     3,
		StoryContext: "The story begins. Child: The boy is Tom.",
	}
	got := BuildStoryPrompt(in)

	for _, want := range []string{
		"The Rainbow Story",
		"CURRENT PAGE (3/8): They use a magnifying glass to explore.",
		"NEXT PAGE GOAL: They find the Greedy Crow.",
		"TURNS TAKEN ON THIS PAGE: 1/3",
		"The story begins. Child: The boy is Tom.",
		"[ADVANCE]",
		"[STAY]",
		"AUTHOR",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestBuildStoryPromptNextThemeFallback(t *testing.T) {
	got := BuildStoryPrompt(StoryPromptInput{
		BookTitle:   "The Rainbow Story",
		StageNumber: 8,
		TotalStages: 8,
		Theme:       "A final lesson.",
	})
	if !strings.Contains(got, "NEXT PAGE GOAL: the story is complete!") {
		t.Fatalf("expected fallback next-page goal, got:\n%s", got)
	}
}

func TestBuildWelcomePrompt(t *testing.T) {
	got := BuildWelcomePrompt(StoryPromptInput{
		BookTitle:    "The Rainbow Story",
		StageNumber:  4,
		TotalStages:  8,
		Theme:        "They find the Greedy Crow.",
		StoryContext: "The story begins.",
	})
	for _, want := range []string{
		"NEW PAGE (4/8): They find the Greedy Crow.",
		"Do NOT emit any control tag",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("welcome prompt missing %q:\n%s", want, got)
		}
	}
}
