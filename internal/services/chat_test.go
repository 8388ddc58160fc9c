package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/balaprakas/storybuddy-backend/internal/clients/gemini"
	"github.com/balaprakas/storybuddy-backend/internal/domain"
	pkgerrors "github.com/balaprakas/storybuddy-backend/internal/pkg/errors"
	"github.com/balaprakas/storybuddy-backend/internal/repos"
	"github.com/balaprakas/storybuddy-backend/internal/repos/testutil"
)

// scriptedGenerator plays back canned model replies in order and records what
// it was asked.
type scriptedGenerator struct {
	replies []string
	err     error
	calls   int
	systems []string
}

func (g *scriptedGenerator) Generate(_ context.Context, system string, _ []gemini.Message) (string, error) {
	g.systems = append(g.systems, system)
	if g.err != nil {
		return "", g.err
	}
	i := g.calls
	g.calls++
	if i >= len(g.replies) {
		i = len(g.replies) - 1
	}
	return g.replies[i], nil
}

type chatFixture struct {
	db        *gorm.DB
	generator *scriptedGenerator
	chat      ChatService
	sessions  SessionService
	userID    uuid.UUID
	bookID    uuid.UUID
	session   *domain.StorySession
	stages    []*domain.StoryStage
}

func newChatFixture(t *testing.T, cfg StoryConfig, gen *scriptedGenerator) *chatFixture {
	t.Helper()
	gdb := testutil.OpenTestDB(t)
	log := testutil.NewTestLogger(t)

	sessionRepo := repos.NewStorySessionRepo(gdb, log)
	messageRepo := repos.NewChatMessageRepo(gdb, log)
	bookRepo := repos.NewBookRepo(gdb, log)
	stageRepo := repos.NewStoryStageRepo(gdb, log)

	f := &chatFixture{
		db:        gdb,
		generator: gen,
		userID:    uuid.New(),
		bookID:    uuid.New(),
	}

	if err := gdb.Create(&domain.User{ID: f.userID, Email: "tom@example.com"}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := gdb.Create(&domain.Book{ID: f.bookID, Slug: "rainbow-story", Title: "The Rainbow Story"}).Error; err != nil {
		t.Fatalf("seed book: %v", err)
	}
	themes := []string{
		"Introducing the heroes.",
		"The forest loses its colors.",
		"A final lesson about kindness.",
	}
	for i, theme := range themes {
		stage := &domain.StoryStage{
			ID:          uuid.New(),
			BookID:      f.bookID,
			StageNumber: i + 1,
			Theme:       theme,
			ImageRef:    fmt.Sprintf("https://example.com/stage%d.jpg", i+1),
		}
		if err := gdb.Create(stage).Error; err != nil {
			t.Fatalf("seed stage %d: %v", i+1, err)
		}
		f.stages = append(f.stages, stage)
	}

	bookService := NewBookService(gdb, log, bookRepo, stageRepo, nil)
	f.sessions = NewSessionService(gdb, log, sessionRepo, messageRepo)
	f.chat = NewChatService(gdb, log, cfg, f.sessions, bookService, sessionRepo, messageRepo, gen, NewLocalSessionLocker(log))

	started, err := f.sessions.Start(context.Background(), f.userID, f.bookID, false)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	f.session = started.Session
	return f
}

func (f *chatFixture) setProgress(t *testing.T, stage, turns int) {
	t.Helper()
	err := f.db.Model(&domain.StorySession{}).
		Where("id = ?", f.session.ID).
		Updates(map[string]interface{}{"current_stage": stage, "stage_turn_count": turns}).Error
	if err != nil {
		t.Fatalf("set progress: %v", err)
	}
}

func (f *chatFixture) reload(t *testing.T) *domain.StorySession {
	t.Helper()
	var s domain.StorySession
	if err := f.db.Where("id = ?", f.session.ID).First(&s).Error; err != nil {
		t.Fatalf("reload session: %v", err)
	}
	return &s
}

func (f *chatFixture) messageCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&domain.ChatMessage{}).Where("session_id = ?", f.session.ID).Count(&count).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return count
}

func chatConfig() StoryConfig {
	return StoryConfig{
		Engine:         EngineConfig{MinTurnsBeforeAdvance: 1, MaxTurnsPerStage: 3},
		TwoPassWelcome: false,
	}
}

func TestChatTurnStay(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"What a wonderful start! What does the chameleon look like? [STAY]"}}
	f := newChatFixture(t, chatConfig(), gen)

	result, err := f.chat.Turn(context.Background(), f.userID, ChatTurnRequest{
		SessionID: f.session.ID,
		UserInput: "The boy is called Tom",
	})
	if err != nil {
		t.Fatalf("turn: %v", err)
	}

	if result.Action != ActionStay {
		t.Fatalf("action = %s, want STAY", result.Action)
	}
	if result.CurrentStage != 1 || result.StageTurnCount != 1 {
		t.Fatalf("progress = %d/%d, want 1/1", result.CurrentStage, result.StageTurnCount)
	}
	if strings.Contains(result.Reply, "[STAY]") {
		t.Fatalf("marker leaked into reply: %q", result.Reply)
	}
	if result.Emotion != EmotionHappy {
		t.Fatalf("emotion = %s, want HAPPY", result.Emotion)
	}
	if result.ImageURL != "https://example.com/stage1.jpg" {
		t.Fatalf("image = %q", result.ImageURL)
	}
	if !strings.Contains(result.StoryContext, "Child: The boy is called Tom.") {
		t.Fatalf("context missing child entry: %q", result.StoryContext)
	}

	s := f.reload(t)
	if s.CurrentStage != 1 || s.StageTurnCount != 1 {
		t.Fatalf("persisted progress = %d/%d, want 1/1", s.CurrentStage, s.StageTurnCount)
	}
	if s.StoryContext != result.StoryContext {
		t.Fatalf("persisted context differs from response")
	}
	if got := f.messageCount(t); got != 2 {
		t.Fatalf("audit rows = %d, want 2", got)
	}
}

func TestChatTurnAdvance(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"Amazing page! Ready for the next one? [ADVANCE]"}}
	f := newChatFixture(t, chatConfig(), gen)
	f.setProgress(t, 1, 1)

	result, err := f.chat.Turn(context.Background(), f.userID, ChatTurnRequest{
		SessionID: f.session.ID,
		UserInput: "I have finished writing this part in my template",
	})
	if err != nil {
		t.Fatalf("turn: %v", err)
	}

	if result.Action != ActionAdvance {
		t.Fatalf("action = %s, want ADVANCE", result.Action)
	}
	if result.CurrentStage != 2 || result.StageTurnCount != 0 {
		t.Fatalf("progress = %d/%d, want 2/0", result.CurrentStage, result.StageTurnCount)
	}
	if result.ImageURL != "https://example.com/stage2.jpg" {
		t.Fatalf("image = %q, want stage 2 image", result.ImageURL)
	}

	s := f.reload(t)
	if s.CurrentStage != 2 || s.StageTurnCount != 0 || s.IsFinished {
		t.Fatalf("persisted session %+v", s)
	}
}

func TestChatTurnFinish(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"And they all lived colorfully ever after! [ADVANCE]"}}
	f := newChatFixture(t, chatConfig(), gen)
	f.setProgress(t, 3, 2)

	result, err := f.chat.Turn(context.Background(), f.userID, ChatTurnRequest{
		SessionID: f.session.ID,
		UserInput: "I have finished writing this part in my template",
	})
	if err != nil {
		t.Fatalf("turn: %v", err)
	}

	if result.Action != ActionFinish {
		t.Fatalf("action = %s, want FINISH", result.Action)
	}
	if result.CurrentStage != 3 {
		t.Fatalf("finish moved stage to %d", result.CurrentStage)
	}
	if !strings.Contains(result.Reply, "The End!") {
		t.Fatalf("finish reply missing closing: %q", result.Reply)
	}

	s := f.reload(t)
	if !s.IsFinished {
		t.Fatalf("session not marked finished")
	}
	if s.CurrentStage != 3 {
		t.Fatalf("persisted stage = %d, want 3", s.CurrentStage)
	}
}

func TestChatTurnGeneratorFailureLeavesStateUntouched(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("boom")}
	f := newChatFixture(t, chatConfig(), gen)
	f.setProgress(t, 2, 1)
	before := f.reload(t)

	result, err := f.chat.Turn(context.Background(), f.userID, ChatTurnRequest{
		SessionID: f.session.ID,
		UserInput: "The crow swoops down!",
	})
	if err != nil {
		t.Fatalf("turn should recover from generator failure, got %v", err)
	}

	if result.Action != ActionStay {
		t.Fatalf("fallback action = %s, want STAY", result.Action)
	}
	if !strings.Contains(result.Reply, "sleepy") {
		t.Fatalf("fallback reply = %q", result.Reply)
	}
	if result.CurrentStage != 2 || result.StageTurnCount != 1 {
		t.Fatalf("fallback reported progress %d/%d, want 2/1", result.CurrentStage, result.StageTurnCount)
	}

	after := f.reload(t)
	if after.CurrentStage != before.CurrentStage || after.StageTurnCount != before.StageTurnCount || after.StoryContext != before.StoryContext {
		t.Fatalf("generator failure mutated session: before=%+v after=%+v", before, after)
	}
	if got := f.messageCount(t); got != 0 {
		t.Fatalf("generator failure wrote %d audit rows", got)
	}
}

func TestChatTurnFinishedSessionSkipsGenerator(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"should never be used"}}
	f := newChatFixture(t, chatConfig(), gen)
	if err := f.db.Model(&domain.StorySession{}).Where("id = ?", f.session.ID).
		Updates(map[string]interface{}{"current_stage": 3, "is_finished": true}).Error; err != nil {
		t.Fatalf("mark finished: %v", err)
	}

	result, err := f.chat.Turn(context.Background(), f.userID, ChatTurnRequest{
		SessionID: f.session.ID,
		UserInput: "more story please",
	})
	if err != nil {
		t.Fatalf("turn on finished session: %v", err)
	}
	if result.Action != ActionFinish {
		t.Fatalf("action = %s, want FINISH", result.Action)
	}
	if gen.calls != 0 {
		t.Fatalf("finished session still called the generator %d times", gen.calls)
	}
}

func TestChatTurnOwnership(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"hello [STAY]"}}
	f := newChatFixture(t, chatConfig(), gen)

	_, err := f.chat.Turn(context.Background(), uuid.New(), ChatTurnRequest{
		SessionID: f.session.ID,
		UserInput: "The boy is called Tom",
	})
	if !errors.Is(err, pkgerrors.ErrUnauthorized) {
		t.Fatalf("foreign turn = %v, want ErrUnauthorized", err)
	}
}

func TestChatTurnRejectsEmptyInput(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"hello [STAY]"}}
	f := newChatFixture(t, chatConfig(), gen)

	_, err := f.chat.Turn(context.Background(), f.userID, ChatTurnRequest{
		SessionID: f.session.ID,
		UserInput: "   ",
	})
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("empty input = %v, want ErrInvalidArgument", err)
	}
}

func TestChatTurnTwoPassWelcome(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"What a finish for this page! [ADVANCE]",
		"Welcome to the next page, brave author!",
	}}
	cfg := chatConfig()
	cfg.TwoPassWelcome = true
	f := newChatFixture(t, cfg, gen)
	f.setProgress(t, 1, 1)

	result, err := f.chat.Turn(context.Background(), f.userID, ChatTurnRequest{
		SessionID: f.session.ID,
		UserInput: "I have finished writing this part in my template",
	})
	if err != nil {
		t.Fatalf("turn: %v", err)
	}

	if gen.calls != 2 {
		t.Fatalf("generator called %d times, want 2", gen.calls)
	}
	if !strings.Contains(result.Reply, "Welcome to the next page") {
		t.Fatalf("reply missing welcome line: %q", result.Reply)
	}
	if len(gen.systems) != 2 || !strings.Contains(gen.systems[1], "NEW PAGE (2/3)") {
		t.Fatalf("second call did not use the welcome prompt: %+v", gen.systems)
	}
	if !strings.Contains(result.StoryContext, "Welcome to the next page") {
		t.Fatalf("welcome line missing from context: %q", result.StoryContext)
	}
}
