package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AltairaLabs/miniagent/events"
	"github.com/AltairaLabs/miniagent/reduce"
	"github.com/AltairaLabs/miniagent/rtlog"
	"github.com/AltairaLabs/miniagent/turn"
	"github.com/google/uuid"
)

// currentTurnState is the cancellable handle the actor owns for its
// in-flight turn, per spec.md §9 ("Ownership of the in-flight turn").
// The partial-response buffer is only ever touched from the run loop.
type currentTurnState struct {
	runID        uuid.UUID
	turnNumber   int
	cancel       context.CancelFunc
	partial      strings.Builder
	startEventID string
	startedAt    time.Time
}

// loopState is the mutable state owned exclusively by the actor's run
// goroutine. Nothing outside run touches these fields.
type loopState struct {
	log         []events.Event
	derived     reduce.State
	subscribers map[chan events.Event]struct{}
	currentTurn *currentTurnState
	turnCounter int

	debounceTimer *time.Timer
	debounceArmed bool
}

func newLoopState(log []events.Event, derived reduce.State) *loopState {
	return &loopState{
		log:         append([]events.Event(nil), log...),
		derived:     derived,
		subscribers: make(map[chan events.Event]struct{}),
	}
}

// run is the actor's single consumer: every field on loop is mutated
// only here, satisfying the ownership rule that actor state changes on
// no goroutine but this one.
func (a *Actor) run(loop *loopState, loadedEventCount int) {
	defer close(a.done)

	ctx := context.Background()
	if _, err := a.ingestPersisted(ctx, loop, "", events.KindSessionStarted,
		&events.SessionStarted{LoadedEventCount: loadedEventCount}, false); err != nil {
		a.logError("failed to record session start: %v", err)
	}

	for {
		var timerC <-chan time.Time
		if loop.debounceArmed {
			timerC = loop.debounceTimer.C
		}

		select {
		case cmd := <-a.cmds:
			if a.handle(ctx, loop, cmd) {
				return
			}
		case <-timerC:
			loop.debounceArmed = false
			a.startTurn(ctx, loop)
		}
	}
}

// handle dispatches one command. It returns true once the actor has
// fully shut down and the run loop should exit.
func (a *Actor) handle(ctx context.Context, loop *loopState, cmd any) bool {
	switch c := cmd.(type) {
	case addEventCmd:
		a.handleAddEvent(ctx, loop, c)

	case subscribeCmd:
		ch := make(chan events.Event, a.subscriberBuf)
		loop.subscribers[ch] = struct{}{}
		c.resp <- ch

	case unsubscribeCmd:
		if _, ok := loop.subscribers[c.ch]; ok {
			delete(loop.subscribers, c.ch)
			close(c.ch)
		}

	case getEventsCmd:
		c.resp <- append([]events.Event(nil), loop.log...)

	case getStateCmd:
		c.resp <- loop.derived.Clone()

	case isIdleCmd:
		c.resp <- loop.currentTurn == nil

	case interruptCmd:
		if loop.currentTurn != nil {
			a.cancelCurrentTurn(ctx, loop, "manual_interrupt")
		}
		c.resp <- struct{}{}

	case endSessionCmd:
		a.handleEndSession(ctx, loop, c)
		return true

	case turnChunkCmd:
		a.handleTurnChunk(ctx, loop, c)

	case turnDoneCmd:
		a.handleTurnDone(ctx, loop, c)

	default:
		a.logError("unrecognized actor command %T", cmd)
	}
	return false
}

func (a *Actor) handleAddEvent(ctx context.Context, loop *loopState, c addEventCmd) {
	// A triggering event that arrives mid-turn cancels that turn (and
	// emits TurnInterrupted) before it is itself ingested, so the
	// interruption marker precedes the new input in the log and
	// broadcast, per spec.md §8 scenario 3.
	if c.e.TriggersTurn && loop.currentTurn != nil {
		a.cancelCurrentTurn(ctx, loop, "new_input")
	}

	stamped, err := a.ingestPersisted(ctx, loop, "", c.e.Kind, c.e.Payload, c.e.TriggersTurn)
	c.resp <- err
	if err != nil {
		return
	}
	if stamped.TriggersTurn {
		a.armDebounce(loop)
	}
}

func (a *Actor) handleEndSession(ctx context.Context, loop *loopState, c endSessionCmd) {
	if loop.currentTurn != nil {
		a.cancelCurrentTurn(ctx, loop, "session_ended")
	}
	if _, err := a.ingestPersisted(ctx, loop, "", events.KindSessionEnded, &events.SessionEnded{Reason: c.reason}, false); err != nil {
		a.logError("failed to record session end (best effort, not retried): %v", err)
	}
	for ch := range loop.subscribers {
		delete(loop.subscribers, ch)
		close(ch)
	}
	c.resp <- struct{}{}
}

func (a *Actor) handleTurnChunk(ctx context.Context, loop *loopState, c turnChunkCmd) {
	ct := loop.currentTurn
	if ct == nil || c.runID != ct.runID {
		return // stale delivery from an already-cancelled turn; discard
	}

	switch c.chunk.Kind {
	case events.KindTextDelta:
		delta, ok := c.chunk.Payload.(*events.TextDelta)
		if !ok {
			a.logError("turn service produced TextDelta with wrong payload type %T", c.chunk.Payload)
			return
		}
		ct.partial.WriteString(delta.Delta)
		a.ingestEphemeral(loop, ct.startEventID, events.KindTextDelta, delta)

	case events.KindAssistantMsg:
		if _, err := a.ingestPersisted(ctx, loop, ct.startEventID, events.KindAssistantMsg, c.chunk.Payload, false); err != nil {
			a.logError("failed to persist assistant message for turn %d: %v", ct.turnNumber, err)
		}

	default:
		a.logError("turn service produced unexpected chunk kind %q", c.chunk.Kind)
	}
}

func (a *Actor) handleTurnDone(ctx context.Context, loop *loopState, c turnDoneCmd) {
	ct := loop.currentTurn
	if ct == nil || c.runID != ct.runID {
		return // unwinding of an already-cancelled turn; its terminal is TurnInterrupted, already emitted
	}

	duration := time.Since(ct.startedAt).Milliseconds()
	loop.currentTurn = nil

	if c.err == nil {
		if _, err := a.ingestPersisted(ctx, loop, ct.startEventID, events.KindTurnCompleted,
			&events.TurnCompleted{TurnNumber: ct.turnNumber, DurationMs: duration}, false); err != nil {
			a.logError("failed to persist turn completion for turn %d: %v", ct.turnNumber, err)
		}
		rtlog.TurnCompleted(a.name, ct.turnNumber, duration)
		a.metrics.IncTurnCompleted()
		return
	}

	if _, err := a.ingestPersisted(ctx, loop, ct.startEventID, events.KindTurnFailed,
		&events.TurnFailed{TurnNumber: ct.turnNumber, Error: c.err.Error()}, false); err != nil {
		a.logError("failed to persist turn failure for turn %d: %v", ct.turnNumber, err)
	}
	rtlog.TurnFailed(a.name, ct.turnNumber, c.err)
	a.metrics.IncTurnFailed()
}

func (a *Actor) armDebounce(loop *loopState) {
	if loop.debounceArmed {
		a.metrics.IncDebounceCoalesced()
		if !loop.debounceTimer.Stop() {
			<-loop.debounceTimer.C
		}
		loop.debounceTimer.Reset(a.debounce)
		return
	}
	loop.debounceTimer = time.NewTimer(a.debounce)
	loop.debounceArmed = true
}

func (a *Actor) cancelCurrentTurn(ctx context.Context, loop *loopState, reason string) {
	ct := loop.currentTurn
	if ct == nil {
		return
	}
	partial := ct.partial.String()
	ct.cancel()
	loop.currentTurn = nil

	if _, err := a.ingestPersisted(ctx, loop, ct.startEventID, events.KindTurnInterrupted,
		&events.TurnInterrupted{TurnNumber: ct.turnNumber, PartialResponse: partial, Reason: reason}, false); err != nil {
		a.logError("failed to persist turn interruption for turn %d: %v", ct.turnNumber, err)
	}
	rtlog.TurnInterrupted(a.name, ct.turnNumber, reason)
	a.metrics.IncTurnInterrupted()
}

func (a *Actor) startTurn(ctx context.Context, loop *loopState) {
	loop.turnCounter++
	turnNumber := loop.turnCounter

	startedEvt, err := a.ingestPersisted(ctx, loop, "", events.KindTurnStarted, &events.TurnStarted{TurnNumber: turnNumber}, false)
	if err != nil {
		a.logError("failed to persist turn start for turn %d: %v", turnNumber, err)
		return
	}

	turnCtx, cancel := context.WithCancel(context.Background())
	runID := uuid.New()
	loop.currentTurn = &currentTurnState{
		runID:        runID,
		turnNumber:   turnNumber,
		cancel:       cancel,
		startEventID: startedEvt.ID,
		startedAt:    time.Now(),
	}
	rtlog.TurnStarted(a.name, turnNumber)
	a.metrics.IncTurnStarted()

	snapshot := loop.derived.Clone()
	out, errs := a.turnService.Execute(turnCtx, snapshot)
	go a.pumpTurn(runID, out, errs)
}

func (a *Actor) pumpTurn(runID uuid.UUID, out <-chan turn.Chunk, errs <-chan error) {
	for chunk := range out {
		select {
		case a.cmds <- turnChunkCmd{runID: runID, chunk: chunk}:
		case <-a.done:
			return
		}
	}

	err := <-errs
	select {
	case a.cmds <- turnDoneCmd{runID: runID, err: err}:
	case <-a.done:
	}
}

// ingestPersisted stamps identity fields onto a freshly-minted event,
// appends it to the store, and on success applies it to in-memory state
// and the broadcast, per spec.md §4.4's ingest algorithm. On append
// failure the event is not applied or broadcast; the caller's original
// request (if any) observes the SaveError.
func (a *Actor) ingestPersisted(ctx context.Context, loop *loopState, parentID string, kind events.Kind, payload events.Data, triggersTurn bool) (events.Event, error) {
	e := events.Event{
		ID:           fmt.Sprintf("%s:%d", a.name, loop.derived.NextEventNumber),
		EventNumber:  loop.derived.NextEventNumber,
		Timestamp:    time.Now(),
		SessionName:  a.name,
		ParentID:     parentID,
		TriggersTurn: triggersTurn,
		Kind:         kind,
		Payload:      payload,
	}

	if err := a.store.Append(ctx, a.name, []events.Event{e}); err != nil {
		return e, err
	}

	next, err := reduce.Reduce(loop.derived, e)
	if err != nil {
		return e, err
	}

	loop.log = append(loop.log, e)
	loop.derived = next
	a.metrics.IncEventsAppended()
	a.broadcast(loop, e)
	return e, nil
}

// ingestEphemeral stamps and applies a TextDelta: it advances
// next_event_number and reaches the broadcast, but is never appended to
// the store.
func (a *Actor) ingestEphemeral(loop *loopState, parentID string, kind events.Kind, payload events.Data) events.Event {
	e := events.Event{
		ID:          fmt.Sprintf("%s:%d", a.name, loop.derived.NextEventNumber),
		EventNumber: loop.derived.NextEventNumber,
		Timestamp:   time.Now(),
		SessionName: a.name,
		ParentID:    parentID,
		Kind:        kind,
		Payload:     payload,
	}
	next, err := reduce.Reduce(loop.derived, e)
	if err != nil {
		a.logError("unexpected reducer error on ephemeral event: %v", err)
		return e
	}
	loop.derived = next
	a.broadcast(loop, e)
	return e
}

// broadcast delivers e to every live subscriber without ever blocking on
// a slow one: a full per-subscriber buffer drops the event for that
// subscriber rather than stalling the actor, per spec.md §4.4.
func (a *Actor) broadcast(loop *loopState, e events.Event) {
	for ch := range loop.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}
