package services

import (
	"strings"
)

// StoryAction is the outcome of one chat turn.
type StoryAction string

const (
	ActionStay    StoryAction = "STAY"
	ActionAdvance StoryAction = "ADVANCE"
	ActionFinish  StoryAction = "FINISH"
)

// ControlMarker is the tag the model is instructed to end its reply with.
// It is parsed exactly once, right after the generation call.
type ControlMarker int

const (
	MarkerNone ControlMarker = iota
	MarkerStay
	MarkerAdvance
)

const (
	markerStayTag    = "[STAY]"
	markerAdvanceTag = "[ADVANCE]"

	// completionPhrase is the fixed confirmation the UI submits when the child
	// presses "done" on the writing template. Matched case-insensitively as a
	// substring so both observed long and short variants hit.
	completionPhrase = "i have finished writing"
)

// ParseControlMarker scans raw model output. An [ADVANCE] anywhere wins over
// [STAY]; models occasionally emit both when they re-quote instructions.
func ParseControlMarker(raw string) ControlMarker {
	upper := strings.ToUpper(raw)
	if strings.Contains(upper, markerAdvanceTag) {
		return MarkerAdvance
	}
	if strings.Contains(upper, markerStayTag) {
		return MarkerStay
	}
	return MarkerNone
}

// HasCompletionSignal reports whether the user explicitly asked to move on.
func HasCompletionSignal(userInput string) bool {
	return strings.Contains(strings.ToLower(userInput), completionPhrase)
}

// EngineConfig carries the two stage-pacing knobs. Both are configuration,
// not constants: deployments have shipped gates of 1-2 and ceilings of 2-4.
type EngineConfig struct {
	// MinTurnsBeforeAdvance is the floor below which advancement is refused
	// even when explicitly signaled. Guards against stage-skipping on one
	// short reply.
	MinTurnsBeforeAdvance int
	// MaxTurnsPerStage forces advancement once reached, whatever the model
	// said. Guarantees the story cannot stall on a stage.
	MaxTurnsPerStage int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.MinTurnsBeforeAdvance <= 0 {
		c.MinTurnsBeforeAdvance = 1
	}
	if c.MaxTurnsPerStage <= 0 {
		c.MaxTurnsPerStage = 3
	}
	return c
}

// TurnInput is everything the decision needs for one turn. Ephemeral; none
// of it is persisted as-is.
type TurnInput struct {
	UserInput       string
	CurrentStage    int
	TurnsElapsed    int
	NextStageExists bool
	Marker          ControlMarker
}

// Decision is the engine's transition verdict plus the successor sub-state.
type Decision struct {
	Action        StoryAction
	NextStage     int
	NextTurnCount int
}

// Decide applies the advancement policy in fixed precedence order:
//  1. explicit completion signal (still subject to the minimum-turns gate)
//  2. minimum-turns gate: below the gate the turn always stays
//  3. turn ceiling: at or above the ceiling the turn always advances
//  4. otherwise the model's marker decides
func Decide(cfg EngineConfig, in TurnInput) Decision {
	cfg = cfg.withDefaults()

	var advance bool
	switch {
	case in.TurnsElapsed < cfg.MinTurnsBeforeAdvance:
		advance = false
	case in.TurnsElapsed >= cfg.MaxTurnsPerStage:
		advance = true
	default:
		advance = HasCompletionSignal(in.UserInput) || in.Marker == MarkerAdvance
	}

	if !advance {
		return Decision{
			Action:        ActionStay,
			NextStage:     in.CurrentStage,
			NextTurnCount: in.TurnsElapsed + 1,
		}
	}
	if !in.NextStageExists {
		// Terminal stage: never increment past the catalog.
		return Decision{
			Action:        ActionFinish,
			NextStage:     in.CurrentStage,
			NextTurnCount: 0,
		}
	}
	return Decision{
		Action:        ActionAdvance,
		NextStage:     in.CurrentStage + 1,
		NextTurnCount: 0,
	}
}
