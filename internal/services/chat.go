package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/balaprakas/storybuddy-backend/internal/clients/gemini"
	"github.com/balaprakas/storybuddy-backend/internal/domain"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/balaprakas/storybuddy-backend/internal/pkg/errors"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
	"github.com/balaprakas/storybuddy-backend/internal/repos"
)

// StoryConfig is the injected pacing and UX configuration for chat turns.
type StoryConfig struct {
	Engine EngineConfig
	// ContextWindow caps how many recent audit records feed the prompt.
	ContextWindow int
	// FallbackReply is returned when the generation collaborator fails; the
	// session is left untouched in that case.
	FallbackReply string
	// ClosingReply is appended when the story finishes.
	ClosingReply string
	// TwoPassWelcome enables the narration-only second call that welcomes the
	// child onto a freshly advanced stage.
	TwoPassWelcome bool
}

func (c StoryConfig) withDefaults() StoryConfig {
	c.Engine = c.Engine.withDefaults()
	if c.ContextWindow <= 0 {
		c.ContextWindow = 10
	}
	if strings.TrimSpace(c.FallbackReply) == "" {
		c.FallbackReply = "The Story Buddy got a bit sleepy. Let's try that again in a moment!"
	}
	if strings.TrimSpace(c.ClosingReply) == "" {
		c.ClosingReply = "The End! Your book is complete. You are a wonderful author!"
	}
	return c
}

type ChatTurnRequest struct {
	SessionID uuid.UUID
	UserInput string
}

type ChatTurnResult struct {
	SessionID      uuid.UUID   `json:"session_id"`
	Reply          string      `json:"reply"`
	Emotion        string      `json:"emotion"`
	Action         StoryAction `json:"action"`
	CurrentStage   int         `json:"current_stage"`
	StageTurnCount int         `json:"stage_turn_count"`
	StoryContext   string      `json:"story_context"`
	ImageURL       string      `json:"image_url"`
}

// ChatService runs one co-authoring turn end to end: serialize per session,
// prompt the model, sanitize, decide the stage transition, persist the
// progression tuple atomically, and audit both sides of the exchange.
type ChatService interface {
	Turn(ctx context.Context, userID uuid.UUID, req ChatTurnRequest) (*ChatTurnResult, error)
}

type chatService struct {
	db          *gorm.DB
	log         *logger.Logger
	cfg         StoryConfig
	sessions    SessionService
	books       BookService
	sessionRepo repos.StorySessionRepo
	messageRepo repos.ChatMessageRepo
	generator   gemini.Client
	locker      SessionLocker
}

func NewChatService(
	db *gorm.DB,
	log *logger.Logger,
	cfg StoryConfig,
	sessions SessionService,
	books BookService,
	sessionRepo repos.StorySessionRepo,
	messageRepo repos.ChatMessageRepo,
	generator gemini.Client,
	locker SessionLocker,
) ChatService {
	return &chatService{
		db:          db,
		log:         log.With("service", "ChatService"),
		cfg:         cfg.withDefaults(),
		sessions:    sessions,
		books:       books,
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		generator:   generator,
		locker:      locker,
	}
}

func (cs *chatService) Turn(ctx context.Context, userID uuid.UUID, req ChatTurnRequest) (*ChatTurnResult, error) {
	userInput := strings.TrimSpace(req.UserInput)
	if userInput == "" {
		return nil, fmt.Errorf("empty user_input: %w", pkgerrors.ErrInvalidArgument)
	}
	if req.SessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id: %w", pkgerrors.ErrInvalidArgument)
	}

	// Turns for one session never run concurrently; a second in-flight turn
	// is rejected rather than queued.
	release, err := cs.locker.Acquire(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := cs.sessions.GetOwned(ctx, req.SessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.IsArchived {
		return nil, fmt.Errorf("session %s is archived: %w", session.ID, pkgerrors.ErrConflict)
	}

	book, err := cs.books.GetBook(ctx, session.BookID)
	if err != nil {
		return nil, err
	}
	stages, err := cs.books.StagesFor(ctx, session.BookID)
	if err != nil {
		return nil, err
	}
	byNumber := make(map[int]*domain.StoryStage, len(stages))
	for _, st := range stages {
		byNumber[st.StageNumber] = st
	}
	current, ok := byNumber[session.CurrentStage]
	if !ok {
		return nil, fmt.Errorf("stage %d of book %s: %w", session.CurrentStage, session.BookID, pkgerrors.ErrNotFound)
	}

	if session.IsFinished {
		// The book is done; no model call, no state change.
		return &ChatTurnResult{
			SessionID:      session.ID,
			Reply:          cs.cfg.ClosingReply,
			Emotion:        EmotionHappy,
			Action:         ActionFinish,
			CurrentStage:   session.CurrentStage,
			StageTurnCount: session.StageTurnCount,
			StoryContext:   session.StoryContext,
			ImageURL:       cs.books.ResolveImageURL(current.ImageRef),
		}, nil
	}

	next, nextExists := byNumber[session.CurrentStage+1]

	workingContext := AppendContext(session.StoryContext, SpeakerChild, userInput)

	turns := cs.recentTurns(ctx, session.ID, userInput)
	turns = append(turns, gemini.Message{Role: gemini.RoleUser, Text: userInput})

	prompt := StoryPromptInput{
		BookTitle:    book.Title,
		StageNumber:  session.CurrentStage,
		TotalStages:  len(stages),
		Theme:        current.Theme,
		TurnsElapsed: session.StageTurnCount,
		MaxTurns:     cs.cfg.Engine.MaxTurnsPerStage,
		StoryContext: workingContext,
	}
	if nextExists {
		prompt.NextTheme = next.Theme
	}

	raw, err := cs.generator.Generate(ctx, BuildStoryPrompt(prompt), turns)
	if err != nil {
		// Collaborator failure is recovered locally: apology reply, STAY,
		// persisted state untouched.
		cs.log.Warn("Generation failed, returning fallback", "session_id", session.ID, "error", err)
		return &ChatTurnResult{
			SessionID:      session.ID,
			Reply:          cs.cfg.FallbackReply,
			Emotion:        EmotionThinking,
			Action:         ActionStay,
			CurrentStage:   session.CurrentStage,
			StageTurnCount: session.StageTurnCount,
			StoryContext:   session.StoryContext,
			ImageURL:       cs.books.ResolveImageURL(current.ImageRef),
		}, nil
	}

	marker := ParseControlMarker(raw)
	reply := CleanReply(raw)
	emotion := DetectEmotion(raw)

	decision := Decide(cs.cfg.Engine, TurnInput{
		UserInput:       userInput,
		CurrentStage:    session.CurrentStage,
		TurnsElapsed:    session.StageTurnCount,
		NextStageExists: nextExists,
		Marker:          marker,
	})

	finalContext := AppendContext(workingContext, SpeakerBuddy, reply)

	switch decision.Action {
	case ActionAdvance:
		if cs.cfg.TwoPassWelcome {
			if welcome := cs.welcomeLine(ctx, book.Title, byNumber[decision.NextStage], decision.NextStage, len(stages), finalContext); welcome != "" {
				reply = reply + "\n\n" + welcome
				finalContext = AppendContext(finalContext, SpeakerBuddy, welcome)
			}
		}
	case ActionFinish:
		reply = reply + "\n\n" + cs.cfg.ClosingReply
		finalContext = AppendContext(finalContext, SpeakerBuddy, cs.cfg.ClosingReply)
	}

	// Never apply state derived from a request the server no longer considers
	// live.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	upd := repos.ProgressUpdate{
		FromStage:     session.CurrentStage,
		FromTurnCount: session.StageTurnCount,
		ToStage:       decision.NextStage,
		ToTurnCount:   decision.NextTurnCount,
		StoryContext:  finalContext,
		Finished:      decision.Action == ActionFinish,
	}
	if err := cs.sessionRepo.UpdateProgress(dbctx.New(ctx, nil), session.ID, upd); err != nil {
		return nil, fmt.Errorf("apply turn to session %s: %w", session.ID, err)
	}

	cs.audit(ctx, session.ID, userInput, reply, decision, emotion)

	resultStage := byNumber[decision.NextStage]
	imageURL := ""
	if resultStage != nil {
		imageURL = cs.books.ResolveImageURL(resultStage.ImageRef)
	}

	return &ChatTurnResult{
		SessionID:      session.ID,
		Reply:          reply,
		Emotion:        emotion,
		Action:         decision.Action,
		CurrentStage:   decision.NextStage,
		StageTurnCount: decision.NextTurnCount,
		StoryContext:   finalContext,
		ImageURL:       imageURL,
	}, nil
}

// recentTurns loads the replay window for the prompt. History is a prompt
// enrichment, not a correctness requirement, so load failures degrade to an
// empty window.
func (cs *chatService) recentTurns(ctx context.Context, sessionID uuid.UUID, userInput string) []gemini.Message {
	recent, err := cs.messageRepo.ListRecent(dbctx.New(ctx, nil), sessionID, cs.cfg.ContextWindow)
	if err != nil {
		cs.log.Warn("Failed to load recent messages for prompt", "session_id", sessionID, "error", err)
		return nil
	}
	// ListRecent is newest-first; the prompt wants causal order.
	ordered := make([]*domain.ChatMessage, len(recent))
	for i, m := range recent {
		ordered[len(recent)-1-i] = m
	}
	return RecentTranscript(ordered, userInput, cs.cfg.ContextWindow)
}

// welcomeLine is the optional second, narration-only call after an advance.
// It never carries an advancement decision and its failure only costs UX.
func (cs *chatService) welcomeLine(ctx context.Context, bookTitle string, stage *domain.StoryStage, stageNumber, totalStages int, storyContext string) string {
	if stage == nil {
		return ""
	}
	system := BuildWelcomePrompt(StoryPromptInput{
		BookTitle:    bookTitle,
		StageNumber:  stageNumber,
		TotalStages:  totalStages,
		Theme:        stage.Theme,
		StoryContext: storyContext,
	})
	turns := []gemini.Message{{
		Role: gemini.RoleUser,
		Text: "The author just finished that page. Welcome them to the next one.",
	}}
	raw, err := cs.generator.Generate(ctx, system, turns)
	if err != nil {
		cs.log.Warn("Welcome line generation failed, skipping", "error", err)
		return ""
	}
	return CleanReply(raw)
}

// audit appends both sides of the turn. A failed audit write is logged and
// never fails the turn; progression state is already durable at this point.
func (cs *chatService) audit(ctx context.Context, sessionID uuid.UUID, userInput, reply string, decision Decision, emotion string) {
	rows := []*domain.ChatMessage{
		{
			ID:        uuid.New(),
			SessionID: sessionID,
			Role:      domain.ChatRoleUser,
			Content:   userInput,
		},
		{
			ID:        uuid.New(),
			SessionID: sessionID,
			Role:      domain.ChatRoleAssistant,
			Content:   reply,
			Metadata: datatypes.JSONMap{
				"action":  string(decision.Action),
				"emotion": emotion,
				"stage":   decision.NextStage,
			},
		},
	}
	if _, err := cs.messageRepo.Create(dbctx.New(ctx, nil), rows); err != nil {
		cs.log.Warn("Failed to write audit messages", "session_id", sessionID, "error", err)
	}
}
