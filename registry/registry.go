// Package registry implements the process-wide session registry: on
// demand actor creation, creation dedup, and scoped teardown, per
// spec.md §4.5.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/AltairaLabs/miniagent/apperr"
	"github.com/AltairaLabs/miniagent/rtmetrics"
	"github.com/AltairaLabs/miniagent/session"
	"github.com/AltairaLabs/miniagent/store"
	"github.com/AltairaLabs/miniagent/turn"
	"golang.org/x/sync/singleflight"
)

// Registry owns the mapping from session name to live Actor. Creation is
// deduplicated with singleflight: concurrent get_or_create calls for the
// same name all observe the one in-flight creation's result, which is
// exactly the "insert a fresh completion promise, await it, populate
// cache" algorithm spec.md §4.5 describes.
type Registry struct {
	store       store.EventStore
	debounceMs  int
	metrics     *rtmetrics.Metrics
	newService  func() turn.Service

	group singleflight.Group

	mu       sync.RWMutex
	sessions map[string]*session.Actor
}

// Config parameterizes a Registry.
type Config struct {
	Store      store.EventStore
	DebounceMs int
	Metrics    *rtmetrics.Metrics
	// NewTurnService constructs a fresh turn.Service for each created
	// actor. Most deployments share one stateless service instance
	// across all actors; this is a factory purely so tests can vary
	// oracle behavior per session name.
	NewTurnService func() turn.Service
}

// New constructs a Registry.
func New(cfg Config) *Registry {
	return &Registry{
		store:      cfg.Store,
		debounceMs: cfg.DebounceMs,
		metrics:    cfg.Metrics,
		newService: cfg.NewTurnService,
		sessions:   make(map[string]*session.Actor),
	}
}

// GetOrCreate returns the actor for name, creating it if necessary.
// Concurrent callers for the same name receive the same actor instance.
func (r *Registry) GetOrCreate(ctx context.Context, name string) (*session.Actor, error) {
	if a := r.cached(name); a != nil {
		return a, nil
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		// Re-check under the singleflight key: another caller may have
		// populated the cache between our cached() miss and Do() taking
		// the name's lock.
		if a := r.cached(name); a != nil {
			return a, nil
		}

		a, err := session.NewActor(ctx, session.Config{
			Name:        name,
			Store:       r.store,
			TurnService: r.newService(),
			DebounceMs:  r.debounceMs,
			Metrics:     r.metrics,
		})
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.sessions[name] = a
		r.mu.Unlock()
		r.metrics.SetRegistrySize(r.size())
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Actor), nil
}

// Get returns the actor for name if it already exists.
func (r *Registry) Get(name string) (*session.Actor, error) {
	if a := r.cached(name); a != nil {
		return a, nil
	}
	return nil, apperr.NotFoundError(name)
}

// List returns every currently-held session name, sorted for determinism.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown closes the named actor's scope and removes it from the
// cache. It is a no-op if the name is not currently held.
func (r *Registry) Shutdown(ctx context.Context, name string, reason string) error {
	r.mu.Lock()
	a, ok := r.sessions[name]
	if ok {
		delete(r.sessions, name)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	r.metrics.SetRegistrySize(r.size())
	return a.EndSession(ctx, reason)
}

// ShutdownAll closes every actor's scope.
func (r *Registry) ShutdownAll(ctx context.Context, reason string) error {
	for _, name := range r.List() {
		if err := r.Shutdown(ctx, name, reason); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) cached(name string) *session.Actor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[name]
}

func (r *Registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
