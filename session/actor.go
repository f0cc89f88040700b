// Package session implements the per-conversation actor: the single
// logical consumer that owns one conversation's event log, derived
// state, mailbox, broadcast fan-out, and in-flight turn, per spec.md
// §4.4. Every state mutation happens on the actor's own goroutine; all
// other callers communicate through its exported methods, which forward
// requests onto a single command channel.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AltairaLabs/miniagent/apperr"
	"github.com/AltairaLabs/miniagent/events"
	"github.com/AltairaLabs/miniagent/reduce"
	"github.com/AltairaLabs/miniagent/rtlog"
	"github.com/AltairaLabs/miniagent/rtmetrics"
	"github.com/AltairaLabs/miniagent/store"
	"github.com/AltairaLabs/miniagent/turn"
	"github.com/google/uuid"
)

// Config parameterizes an Actor.
type Config struct {
	Name        string
	Store       store.EventStore
	TurnService turn.Service
	DebounceMs  int
	Metrics     *rtmetrics.Metrics
}

// Actor is one conversation's single-consumer runtime.
type Actor struct {
	name        string
	store       store.EventStore
	turnService turn.Service
	debounce    time.Duration
	metrics     *rtmetrics.Metrics

	cmds chan any
	done chan struct{}

	// subscriberSeq and subscriberBuf size are actor-local constants, not
	// configuration: they bound per-subscriber backpressure buffering.
	subscriberBuf int
}

// NewActor constructs an Actor for name, loading and replaying its
// persisted log synchronously (per spec.md §4.4 lifecycle steps 1-2),
// then starting its consumer loop. Callers (normally the registry) treat
// construction as the creation step of get_or_create: an error here
// fails that call.
func NewActor(ctx context.Context, cfg Config) (*Actor, error) {
	if cfg.DebounceMs < 0 {
		return nil, fmt.Errorf("session: debounce_ms must be >= 0")
	}

	log, err := cfg.Store.Load(ctx, cfg.Name)
	if err != nil {
		return nil, err
	}

	derived, err := reduce.Reduce(reduce.State{}, log...)
	if err != nil {
		return nil, err
	}

	a := &Actor{
		name:          cfg.Name,
		store:         cfg.Store,
		turnService:   cfg.TurnService,
		debounce:      time.Duration(cfg.DebounceMs) * time.Millisecond,
		metrics:       cfg.Metrics,
		cmds:          make(chan any, 256),
		done:          make(chan struct{}),
		subscriberBuf: 64,
	}

	loop := newLoopState(log, derived)

	go a.run(loop, len(log))
	return a, nil
}

// Name returns the conversation name this actor owns.
func (a *Actor) Name() string { return a.name }

// --- command types exchanged with the run loop ---

type addEventCmd struct {
	e    events.Event
	resp chan error
}

type subscribeCmd struct {
	resp chan (<-chan events.Event)
}

type unsubscribeCmd struct {
	ch chan events.Event
}

type getEventsCmd struct {
	resp chan []events.Event
}

type getStateCmd struct {
	resp chan reduce.State
}

type isIdleCmd struct {
	resp chan bool
}

type interruptCmd struct {
	resp chan struct{}
}

type endSessionCmd struct {
	reason string
	resp   chan struct{}
}

type debounceFiredCmd struct{}

type turnChunkCmd struct {
	runID uuid.UUID
	chunk turn.Chunk
}

type turnDoneCmd struct {
	runID uuid.UUID
	err   error
}

// AddEvent submits an externally-supplied event for ingest. It blocks
// until the event has been durably appended (or failed to append).
func (a *Actor) AddEvent(ctx context.Context, e events.Event) error {
	resp := make(chan error, 1)
	select {
	case a.cmds <- addEventCmd{e: e, resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return apperr.ServiceError("add_event", fmt.Errorf("session %q is shut down", a.name))
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a live view of the broadcast from this point forward
// and an unsubscribe function that must be called to release it.
func (a *Actor) Subscribe(ctx context.Context) (<-chan events.Event, func(), error) {
	resp := make(chan (<-chan events.Event), 1)
	select {
	case a.cmds <- subscribeCmd{resp: resp}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-a.done:
		return nil, nil, apperr.ServiceError("subscribe", fmt.Errorf("session %q is shut down", a.name))
	}
	ch := <-resp
	unsubscribe := func() {
		select {
		case a.cmds <- unsubscribeCmd{ch: ch.(chan events.Event)}:
		case <-a.done:
		}
	}
	return ch, unsubscribe, nil
}

// GetEvents returns a snapshot of the persisted log.
func (a *Actor) GetEvents(ctx context.Context) ([]events.Event, error) {
	resp := make(chan []events.Event, 1)
	select {
	case a.cmds <- getEventsCmd{resp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.done:
		return nil, apperr.ServiceError("get_events", fmt.Errorf("session %q is shut down", a.name))
	}
	return <-resp, nil
}

// GetState returns a snapshot of derived state.
func (a *Actor) GetState(ctx context.Context) (reduce.State, error) {
	resp := make(chan reduce.State, 1)
	select {
	case a.cmds <- getStateCmd{resp: resp}:
	case <-ctx.Done():
		return reduce.State{}, ctx.Err()
	case <-a.done:
		return reduce.State{}, apperr.ServiceError("get_state", fmt.Errorf("session %q is shut down", a.name))
	}
	return <-resp, nil
}

// IsIdle reports whether no turn is currently in flight.
func (a *Actor) IsIdle(ctx context.Context) (bool, error) {
	resp := make(chan bool, 1)
	select {
	case a.cmds <- isIdleCmd{resp: resp}:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-a.done:
		return true, nil
	}
	return <-resp, nil
}

// InterruptTurn cancels any in-flight turn and waits for the
// interruption to be recorded before returning.
func (a *Actor) InterruptTurn(ctx context.Context) error {
	resp := make(chan struct{}, 1)
	select {
	case a.cmds <- interruptCmd{resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return nil
	}
	select {
	case <-resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EndSession gracefully stops the actor: cancels any in-flight turn,
// emits SessionEnded best-effort, and releases all subscribers.
func (a *Actor) EndSession(ctx context.Context, reason string) error {
	resp := make(chan struct{}, 1)
	select {
	case a.cmds <- endSessionCmd{reason: reason, resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return nil
	}
	select {
	case <-resp:
		return nil
	case <-a.done:
		return nil
	}
}

// Done returns a channel closed once the actor has fully shut down.
func (a *Actor) Done() <-chan struct{} { return a.done }

func (a *Actor) logError(format string, args ...any) {
	rtlog.WithSession(a.name).Error(fmt.Sprintf(format, args...))
}
