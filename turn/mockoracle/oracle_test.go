package mockoracle

import (
	"context"
	"testing"
	"time"

	"github.com/AltairaLabs/miniagent/events"
	"github.com/AltairaLabs/miniagent/reduce"
	"github.com/AltairaLabs/miniagent/turn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, out <-chan turn.Chunk, errs <-chan error) ([]turn.Chunk, error) {
	t.Helper()
	var chunks []turn.Chunk
	for out != nil || errs != nil {
		select {
		case c, ok := <-out:
			if !ok {
				out = nil
				continue
			}
			chunks = append(chunks, c)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return chunks, err
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out draining oracle stream")
		}
	}
	return chunks, nil
}

func TestOracleStreamsDeltasThenAssistantMessage(t *testing.T) {
	o := New(turn.Config{}, WithChunkSize(3), WithChunkDelay(0))
	state := reduce.State{Messages: []reduce.Message{{Role: reduce.RoleUser, Content: "hi"}}}

	out, errs := o.Execute(context.Background(), state)
	chunks, err := drain(t, out, errs)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	last := chunks[len(chunks)-1]
	assert.Equal(t, events.KindAssistantMsg, last.Kind)
	msg := last.Payload.(*events.AssistantMessage)
	assert.Equal(t, "you said: hi", msg.Content)

	for _, c := range chunks[:len(chunks)-1] {
		assert.Equal(t, events.KindTextDelta, c.Kind)
	}
}

func TestOracleFailureSurfacesAsStreamError(t *testing.T) {
	o := New(turn.Config{}, WithResponder(WithFailure("boom")))
	out, errs := o.Execute(context.Background(), reduce.State{})
	_, err := drain(t, out, errs)
	require.Error(t, err)
}

func TestOracleCancellationStopsStream(t *testing.T) {
	o := New(turn.Config{}, WithChunkSize(1), WithChunkDelay(50*time.Millisecond))
	state := reduce.State{Messages: []reduce.Message{{Role: reduce.RoleUser, Content: "tell me a long story"}}}

	ctx, cancel := context.WithCancel(context.Background())
	out, errs := o.Execute(ctx, state)

	select {
	case <-out:
	case <-time.After(time.Second):
		t.Fatal("expected at least one delta before cancelling")
	}
	cancel()

	_, err := drain(t, out, errs)
	assert.ErrorIs(t, err, context.Canceled)
}
