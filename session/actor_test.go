package session

import (
	"context"
	"testing"
	"time"

	"github.com/AltairaLabs/miniagent/events"
	"github.com/AltairaLabs/miniagent/store"
	"github.com/AltairaLabs/miniagent/turn"
	"github.com/AltairaLabs/miniagent/turn/mockoracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestActor(t *testing.T, name string, opts ...mockoracle.Option) (*Actor, store.EventStore) {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	oracle := mockoracle.New(turn.Config{}, opts...)
	a, err := NewActor(context.Background(), Config{
		Name:        name,
		Store:       fs,
		TurnService: oracle,
		DebounceMs:  10,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.EndSession(ctx, "test_cleanup")
	})
	return a, fs
}

func waitForIdle(t *testing.T, a *Actor, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		idle, err := a.IsIdle(context.Background())
		require.NoError(t, err)
		if idle {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("actor did not become idle in time")
}

func collectFor(ch <-chan events.Event, d time.Duration) []events.Event {
	var out []events.Event
	timeout := time.After(d)
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		case <-timeout:
			return out
		}
	}
}

func TestFreshSessionOneTurn(t *testing.T) {
	a, _ := newTestActor(t, "alpha", mockoracle.WithChunkDelay(0))
	ctx := context.Background()

	sub, unsub, err := a.Subscribe(ctx)
	require.NoError(t, err)
	defer unsub()

	err = a.AddEvent(ctx, events.New(events.KindUserMessage, &events.UserMessage{Content: "hi"}))
	require.NoError(t, err)

	waitForIdle(t, a, time.Second)
	seen := collectFor(sub, 50*time.Millisecond)

	var kinds []events.Kind
	for _, e := range seen {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, events.KindUserMessage)
	assert.Contains(t, kinds, events.KindTurnStarted)
	assert.Contains(t, kinds, events.KindAssistantMsg)
	assert.Contains(t, kinds, events.KindTurnCompleted)

	log, err := a.GetEvents(ctx)
	require.NoError(t, err)
	for _, e := range log {
		assert.NotEqual(t, events.KindTextDelta, e.Kind, "persisted log must exclude TextDelta")
	}
}

func TestDebounceCoalescesTwoMessages(t *testing.T) {
	a, _ := newTestActor(t, "debounce-session", mockoracle.WithChunkDelay(0))
	ctx := context.Background()

	require.NoError(t, a.AddEvent(ctx, events.New(events.KindUserMessage, &events.UserMessage{Content: "a"})))
	time.Sleep(3 * time.Millisecond)
	require.NoError(t, a.AddEvent(ctx, events.New(events.KindUserMessage, &events.UserMessage{Content: "b"})))

	waitForIdle(t, a, time.Second)

	log, err := a.GetEvents(ctx)
	require.NoError(t, err)

	turnStarted := 0
	for _, e := range log {
		if e.Kind == events.KindTurnStarted {
			turnStarted++
		}
	}
	assert.Equal(t, 1, turnStarted, "exactly one turn should start for the coalesced pair")
}

func TestInterruptMidStreamEmitsTurnInterrupted(t *testing.T) {
	a, _ := newTestActor(t, "interrupt-session", mockoracle.WithChunkSize(1), mockoracle.WithChunkDelay(20*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, a.AddEvent(ctx, events.New(events.KindUserMessage, &events.UserMessage{Content: "tell me a story"})))

	// Wait for the turn to actually start streaming before interrupting.
	deadline := time.Now().Add(time.Second)
	for {
		log, err := a.GetEvents(ctx)
		require.NoError(t, err)
		found := false
		for _, e := range log {
			if e.Kind == events.KindTurnStarted {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("turn never started")
		}
		time.Sleep(2 * time.Millisecond)
	}

	require.NoError(t, a.AddEvent(ctx, events.New(events.KindUserMessage, &events.UserMessage{Content: "stop"})))

	waitForIdle(t, a, 2*time.Second)

	log, err := a.GetEvents(ctx)
	require.NoError(t, err)

	var interrupted *events.TurnInterrupted
	turnStartedCount := 0
	for _, e := range log {
		if e.Kind == events.KindTurnInterrupted {
			interrupted = e.Payload.(*events.TurnInterrupted)
		}
		if e.Kind == events.KindTurnStarted {
			turnStartedCount++
		}
	}
	require.NotNil(t, interrupted)
	assert.Equal(t, "new_input", interrupted.Reason)
	assert.Equal(t, 2, turnStartedCount)
}

func TestCrashSafePersistenceAcrossReload(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	oracle := mockoracle.New(turn.Config{}, mockoracle.WithChunkDelay(0))
	a, err := NewActor(ctx, Config{Name: "gamma", Store: fs, TurnService: oracle, DebounceMs: 5})
	require.NoError(t, err)

	require.NoError(t, a.AddEvent(ctx, events.New(events.KindUserMessage, &events.UserMessage{Content: "hi"})))
	waitForIdle(t, a, time.Second)
	require.NoError(t, a.EndSession(ctx, "test_teardown"))

	firstLog, err := fs.Load(ctx, "gamma")
	require.NoError(t, err)
	for _, e := range firstLog {
		assert.NotEqual(t, events.KindTextDelta, e.Kind)
	}

	a2, err := NewActor(ctx, Config{Name: "gamma", Store: fs, TurnService: oracle, DebounceMs: 5})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a2.EndSession(context.Background(), "cleanup") })

	reopened, err := a2.GetEvents(ctx)
	require.NoError(t, err)
	// reopened includes the replayed log plus a new SessionStarted marker.
	assert.GreaterOrEqual(t, len(reopened), len(firstLog))
	for i, e := range firstLog {
		assert.Equal(t, e.Kind, reopened[i].Kind)
	}
}

func TestSubscribeMissesPastSeesFuture(t *testing.T) {
	a, _ := newTestActor(t, "delta", mockoracle.WithChunkDelay(0))
	ctx := context.Background()

	require.NoError(t, a.AddEvent(ctx, events.New(events.KindUserMessage, &events.UserMessage{Content: "x"})))
	waitForIdle(t, a, time.Second)

	sub, unsub, err := a.Subscribe(ctx)
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, a.AddEvent(ctx, events.New(events.KindUserMessage, &events.UserMessage{Content: "y"})))
	waitForIdle(t, a, time.Second)

	seen := collectFor(sub, 100*time.Millisecond)
	for _, e := range seen {
		if p, ok := e.Payload.(*events.UserMessage); ok {
			assert.NotEqual(t, "x", p.Content, "subscriber must not observe events before it subscribed")
		}
	}

	log, err := a.GetEvents(ctx)
	require.NoError(t, err)
	var sawX bool
	for _, e := range log {
		if p, ok := e.Payload.(*events.UserMessage); ok && p.Content == "x" {
			sawX = true
		}
	}
	assert.True(t, sawX, "get_events must still return the full log including pre-subscribe events")
}

func TestEventNumbersAreDenseAndMonotonic(t *testing.T) {
	a, _ := newTestActor(t, "dense", mockoracle.WithChunkDelay(0))
	ctx := context.Background()

	require.NoError(t, a.AddEvent(ctx, events.New(events.KindUserMessage, &events.UserMessage{Content: "hi"})))
	waitForIdle(t, a, time.Second)

	log, err := a.GetEvents(ctx)
	require.NoError(t, err)
	for i, e := range log {
		assert.Equal(t, i, e.EventNumber)
	}
}
