// Package service exposes the registry and its actors through the
// uniform, front-end-agnostic surface described in spec.md §4.6: every
// operation a CLI, HTTP, or voice gateway needs, with every error
// normalized to apperr.ServiceError so a front-end never has to reason
// about actor or store internals.
package service

import (
	"context"
	"time"

	"github.com/AltairaLabs/miniagent/apperr"
	"github.com/AltairaLabs/miniagent/events"
	"github.com/AltairaLabs/miniagent/reduce"
	"github.com/AltairaLabs/miniagent/registry"
	"github.com/AltairaLabs/miniagent/rtmetrics"
	"github.com/AltairaLabs/miniagent/statecache"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultIdleTimeout = 50 * time.Millisecond
	streamSafetyCap    = 30 * time.Second
)

// Service is the uniform facade over a Registry.
type Service struct {
	registry *registry.Registry
	metrics  *rtmetrics.Metrics
	cache    *statecache.Cache
}

// Config parameterizes a Service.
type Config struct {
	Registry *registry.Registry
	Metrics  *rtmetrics.Metrics
	// Cache is optional. When set, GetState consults it before falling
	// back to the actor, and every state-changing operation invalidates
	// the entry so the cache can never observe a stale turn count.
	Cache *statecache.Cache
}

// New constructs a Service.
func New(cfg Config) *Service {
	return &Service{registry: cfg.Registry, metrics: cfg.Metrics, cache: cfg.Cache}
}

// Metrics exposes the Prometheus registry backing this service's
// counters, so an out-of-scope HTTP gateway can mount /metrics without
// the facade itself opening a listener.
func (s *Service) Metrics() *prometheus.Registry {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.Registry()
}

// AddEvents submits kinds to session_name's log in order, stamping each
// via events.New before handing it to the actor. It invalidates any
// cached state snapshot for the session.
func (s *Service) AddEvents(ctx context.Context, sessionName string, items []events.Event) error {
	actor, err := s.registry.GetOrCreate(ctx, sessionName)
	if err != nil {
		return apperr.ServiceError("add_events:"+sessionName, err)
	}
	for _, e := range items {
		if err := actor.AddEvent(ctx, e); err != nil {
			return apperr.ServiceError("add_events:"+sessionName, err)
		}
	}
	s.invalidate(ctx, sessionName)
	return nil
}

// Subscribe returns a live view of session_name's broadcast and an
// unsubscribe function the caller must invoke when done.
func (s *Service) Subscribe(ctx context.Context, sessionName string) (<-chan events.Event, func(), error) {
	actor, err := s.registry.GetOrCreate(ctx, sessionName)
	if err != nil {
		return nil, nil, apperr.ServiceError("tap_event_stream:"+sessionName, err)
	}
	ch, unsubscribe, err := actor.Subscribe(ctx)
	if err != nil {
		return nil, nil, apperr.ServiceError("tap_event_stream:"+sessionName, err)
	}
	return ch, unsubscribe, nil
}

// GetEvents returns session_name's full persisted log.
func (s *Service) GetEvents(ctx context.Context, sessionName string) ([]events.Event, error) {
	actor, err := s.registry.Get(sessionName)
	if err != nil {
		return nil, apperr.ServiceError("get_events:"+sessionName, err)
	}
	log, err := actor.GetEvents(ctx)
	if err != nil {
		return nil, apperr.ServiceError("get_events:"+sessionName, err)
	}
	return log, nil
}

// GetState returns session_name's derived state, consulting the
// read-through cache first when one is configured.
func (s *Service) GetState(ctx context.Context, sessionName string) (reduce.State, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, sessionName); ok {
			return cached, nil
		}
	}

	actor, err := s.registry.Get(sessionName)
	if err != nil {
		return reduce.State{}, apperr.ServiceError("get_state:"+sessionName, err)
	}
	st, err := actor.GetState(ctx)
	if err != nil {
		return reduce.State{}, apperr.ServiceError("get_state:"+sessionName, err)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, sessionName, st)
	}
	return st, nil
}

// IsIdle reports whether session_name has no turn in flight.
func (s *Service) IsIdle(ctx context.Context, sessionName string) (bool, error) {
	actor, err := s.registry.Get(sessionName)
	if err != nil {
		return false, apperr.ServiceError("is_idle:"+sessionName, err)
	}
	idle, err := actor.IsIdle(ctx)
	if err != nil {
		return false, apperr.ServiceError("is_idle:"+sessionName, err)
	}
	return idle, nil
}

// InterruptTurn cancels session_name's in-flight turn, if any.
func (s *Service) InterruptTurn(ctx context.Context, sessionName string) error {
	actor, err := s.registry.Get(sessionName)
	if err != nil {
		return apperr.ServiceError("interrupt_turn:"+sessionName, err)
	}
	if err := actor.InterruptTurn(ctx); err != nil {
		return apperr.ServiceError("interrupt_turn:"+sessionName, err)
	}
	s.invalidate(ctx, sessionName)
	return nil
}

// EndSession closes session_name's actor scope.
func (s *Service) EndSession(ctx context.Context, sessionName, reason string) error {
	if err := s.registry.Shutdown(ctx, sessionName, reason); err != nil {
		return apperr.ServiceError("end_session:"+sessionName, err)
	}
	s.invalidate(ctx, sessionName)
	return nil
}

// ListSessions returns every currently-held session name.
func (s *Service) ListSessions() []string {
	return s.registry.List()
}

// AddAndStreamUntilIdle submits items to session_name, then streams
// every broadcast event until the actor has been idle for
// idleTimeout (default 50ms) or streamSafetyCap elapses, whichever
// comes first. The returned channel is closed when streaming ends; the
// caller does not need to call an unsubscribe function.
func (s *Service) AddAndStreamUntilIdle(ctx context.Context, sessionName string, items []events.Event, idleTimeout time.Duration) (<-chan events.Event, error) {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}

	actor, err := s.registry.GetOrCreate(ctx, sessionName)
	if err != nil {
		return nil, apperr.ServiceError("add_and_stream_until_idle:"+sessionName, err)
	}

	sub, unsubscribe, err := actor.Subscribe(ctx)
	if err != nil {
		return nil, apperr.ServiceError("add_and_stream_until_idle:"+sessionName, err)
	}

	for _, e := range items {
		if err := actor.AddEvent(ctx, e); err != nil {
			unsubscribe()
			return nil, apperr.ServiceError("add_and_stream_until_idle:"+sessionName, err)
		}
	}
	s.invalidate(ctx, sessionName)

	out := make(chan events.Event, 64)
	go func() {
		defer close(out)
		defer unsubscribe()

		deadline := time.NewTimer(streamSafetyCap)
		defer deadline.Stop()
		quiet := time.NewTimer(idleTimeout)
		defer quiet.Stop()

		for {
			select {
			case e, ok := <-sub:
				if !ok {
					return
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
				if !quiet.Stop() {
					select {
					case <-quiet.C:
					default:
					}
				}
				quiet.Reset(idleTimeout)
			case <-quiet.C:
				idle, err := actor.IsIdle(ctx)
				if err != nil || idle {
					return
				}
				quiet.Reset(idleTimeout)
			case <-deadline.C:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (s *Service) invalidate(ctx context.Context, sessionName string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, sessionName)
}
