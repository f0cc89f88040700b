package reduce

import (
	"testing"

	"github.com/AltairaLabs/miniagent/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduceAppendsMessagesByRole(t *testing.T) {
	state, err := Reduce(State{},
		events.Event{Kind: events.KindSystemPrompt, Payload: &events.SystemPrompt{Content: "be terse"}},
		events.Event{Kind: events.KindUserMessage, Payload: &events.UserMessage{Content: "hi"}},
		events.Event{Kind: events.KindAssistantMsg, Payload: &events.AssistantMessage{Content: "hello"}},
	)
	require.NoError(t, err)
	require.Len(t, state.Messages, 3)
	assert.Equal(t, Message{Role: RoleSystem, Content: "be terse"}, state.Messages[0])
	assert.Equal(t, Message{Role: RoleUser, Content: "hi"}, state.Messages[1])
	assert.Equal(t, Message{Role: RoleAssistant, Content: "hello"}, state.Messages[2])
	assert.Equal(t, 3, state.NextEventNumber)
}

func TestReduceTextDeltaOnlyAdvancesCounter(t *testing.T) {
	state, err := Reduce(State{}, events.Event{Kind: events.KindTextDelta, Payload: &events.TextDelta{Delta: "h"}})
	require.NoError(t, err)
	assert.Empty(t, state.Messages)
	assert.Equal(t, 1, state.NextEventNumber)
}

func TestReduceTurnLifecycle(t *testing.T) {
	started := events.Event{ID: "s:1", Kind: events.KindTurnStarted, Payload: &events.TurnStarted{TurnNumber: 1}}
	state, err := Reduce(State{}, started)
	require.NoError(t, err)
	assert.True(t, state.HasTurnInProgress)
	assert.Equal(t, "s:1", state.TurnInProgressEventID)

	state, err = Reduce(state, events.Event{Kind: events.KindTurnCompleted, Payload: &events.TurnCompleted{TurnNumber: 1, DurationMs: 12}})
	require.NoError(t, err)
	assert.False(t, state.HasTurnInProgress)
	assert.Empty(t, state.TurnInProgressEventID)
	assert.Equal(t, 1, state.CurrentTurnNumber)
}

func TestReduceTurnInterruptedClearsInProgress(t *testing.T) {
	state, err := Reduce(State{}, events.Event{Kind: events.KindTurnStarted, Payload: &events.TurnStarted{TurnNumber: 2}})
	require.NoError(t, err)
	state, err = Reduce(state, events.Event{Kind: events.KindTurnInterrupted, Payload: &events.TurnInterrupted{TurnNumber: 2, Reason: "new_input"}})
	require.NoError(t, err)
	assert.False(t, state.HasTurnInProgress)
}

func TestReduceSetLlmConfigReplaces(t *testing.T) {
	state, err := Reduce(State{}, events.Event{Kind: events.KindSetLlmConfig, Payload: &events.SetLlmConfig{APIFormat: "mock", Model: "m1"}})
	require.NoError(t, err)
	require.NotNil(t, state.LlmConfig)
	assert.Equal(t, "m1", state.LlmConfig.Model)

	state, err = Reduce(state, events.Event{Kind: events.KindSetLlmConfig, Payload: &events.SetLlmConfig{APIFormat: "mock", Model: "m2"}})
	require.NoError(t, err)
	assert.Equal(t, "m2", state.LlmConfig.Model)
}

func TestReduceUnknownKindFails(t *testing.T) {
	_, err := Reduce(State{}, events.Event{Kind: "bogus"})
	assert.Error(t, err)
}

func TestReduceIsAssociative(t *testing.T) {
	xs := []events.Event{
		{Kind: events.KindUserMessage, Payload: &events.UserMessage{Content: "a"}},
	}
	ys := []events.Event{
		{Kind: events.KindAssistantMsg, Payload: &events.AssistantMessage{Content: "b"}},
	}

	whole, err := Reduce(State{}, append(append([]events.Event{}, xs...), ys...)...)
	require.NoError(t, err)

	partial, err := Reduce(State{}, xs...)
	require.NoError(t, err)
	partial, err = Reduce(partial, ys...)
	require.NoError(t, err)

	assert.Equal(t, whole.Messages, partial.Messages)
	assert.Equal(t, whole.NextEventNumber, partial.NextEventNumber)
}

func TestStateCloneIsIndependent(t *testing.T) {
	state := State{Messages: []Message{{Role: RoleUser, Content: "x"}}, LlmConfig: &events.SetLlmConfig{Model: "m1"}}
	clone := state.Clone()
	clone.Messages[0].Content = "y"
	clone.LlmConfig.Model = "m2"
	assert.Equal(t, "x", state.Messages[0].Content)
	assert.Equal(t, "m1", state.LlmConfig.Model)
}
