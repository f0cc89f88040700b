// Package reduce implements the pure fold from a sequence of events to
// derived conversational state, per spec.md §4.2.
package reduce

import (
	"fmt"

	"github.com/AltairaLabs/miniagent/apperr"
	"github.com/AltairaLabs/miniagent/events"
)

// Role identifies the speaker of a prompt message in derived state.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the derived prompt-message sequence.
type Message struct {
	Role    Role
	Content string
}

// State is the reducer's output: everything a turn service or front-end
// needs to know about a conversation without replaying its event log.
type State struct {
	Messages              []Message
	NextEventNumber       int
	CurrentTurnNumber     int
	TurnInProgressEventID string
	HasTurnInProgress     bool
	LlmConfig             *events.SetLlmConfig
}

// Clone returns a deep-enough copy of s safe for a caller to hold onto
// independent of further reduction (the actor reduces into its own copy).
func (s State) Clone() State {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	if s.LlmConfig != nil {
		cfg := *s.LlmConfig
		out.LlmConfig = &cfg
	}
	return out
}

// Reduce folds events left-to-right into state, per spec.md §4.2. It is
// pure and total over every registered Kind; an event whose Kind carries
// no matching case is a ReducerError, since the tagged union is closed
// and every variant must be handled somewhere in this switch.
func Reduce(state State, evts ...events.Event) (State, error) {
	for _, e := range evts {
		next, err := reduceOne(state, e)
		if err != nil {
			return state, err
		}
		state = next
	}
	return state, nil
}

func reduceOne(state State, e events.Event) (State, error) {
	switch e.Kind {
	case events.KindSystemPrompt:
		p, ok := e.Payload.(*events.SystemPrompt)
		if !ok {
			return state, badPayload(e)
		}
		state.Messages = append(state.Messages, Message{Role: RoleSystem, Content: p.Content})

	case events.KindUserMessage:
		p, ok := e.Payload.(*events.UserMessage)
		if !ok {
			return state, badPayload(e)
		}
		state.Messages = append(state.Messages, Message{Role: RoleUser, Content: p.Content})

	case events.KindAssistantMsg:
		p, ok := e.Payload.(*events.AssistantMessage)
		if !ok {
			return state, badPayload(e)
		}
		state.Messages = append(state.Messages, Message{Role: RoleAssistant, Content: p.Content})

	case events.KindTextDelta:
		// no effect on messages; next_event_number still advances below.

	case events.KindSetLlmConfig:
		p, ok := e.Payload.(*events.SetLlmConfig)
		if !ok {
			return state, badPayload(e)
		}
		cfg := *p
		state.LlmConfig = &cfg

	case events.KindSessionStarted, events.KindSessionEnded:
		// lifecycle markers; no effect beyond counting.

	case events.KindTurnStarted:
		state.TurnInProgressEventID = e.ID
		state.HasTurnInProgress = true

	case events.KindTurnCompleted:
		p, ok := e.Payload.(*events.TurnCompleted)
		if !ok {
			return state, badPayload(e)
		}
		state.TurnInProgressEventID = ""
		state.HasTurnInProgress = false
		state.CurrentTurnNumber = p.TurnNumber

	case events.KindTurnFailed, events.KindTurnInterrupted:
		state.TurnInProgressEventID = ""
		state.HasTurnInProgress = false

	default:
		return state, apperr.ReducerError("reduce", fmt.Errorf("unknown event kind %q", e.Kind))
	}

	state.NextEventNumber++
	return state, nil
}

func badPayload(e events.Event) error {
	return apperr.ReducerError("reduce", fmt.Errorf("event kind %q carries mismatched payload type %T", e.Kind, e.Payload))
}
