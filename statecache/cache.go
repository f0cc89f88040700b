// Package statecache provides an optional Redis-backed read-through
// cache of derived-state snapshots for read-heavy front-ends. It is
// never authoritative: the event log remains the source of truth, and a
// cache miss or failure simply falls back to recomputing from the log.
package statecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AltairaLabs/miniagent/events"
	"github.com/AltairaLabs/miniagent/reduce"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL    = 10 * time.Minute
	defaultPrefix = "miniagent"
)

// Cache is a read-through cache of reduce.State snapshots keyed by
// session name.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long a cached snapshot remains valid. 0 disables
// expiry. Default 10 minutes.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithPrefix sets the Redis key prefix. Default "miniagent".
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// New constructs a Cache backed by client.
func New(client *redis.Client, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		ttl:    defaultTTL,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) key(name string) string {
	return fmt.Sprintf("%s:state:%s", c.prefix, name)
}

// Get returns a cached snapshot for name, and whether it was present.
// Any Redis-level error is treated as a miss: callers always have a
// correct fallback (recompute from the event log), so a cache outage
// must never surface as an error to them.
func (c *Cache) Get(ctx context.Context, name string) (reduce.State, bool) {
	data, err := c.client.Get(ctx, c.key(name)).Bytes()
	if err != nil {
		return reduce.State{}, false
	}
	var snapshot wireState
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return reduce.State{}, false
	}
	return snapshot.toState(), true
}

// Set stores state under name, overwriting any previous snapshot.
func (c *Cache) Set(ctx context.Context, name string, state reduce.State) error {
	data, err := json.Marshal(fromState(state))
	if err != nil {
		return fmt.Errorf("statecache: marshal snapshot: %w", err)
	}
	return c.client.Set(ctx, c.key(name), data, c.ttl).Err()
}

// Invalidate removes name's cached snapshot, forcing the next Get to
// miss. Callers should invalidate whenever the underlying state changes
// rather than trying to keep the cache consistent incrementally.
func (c *Cache) Invalidate(ctx context.Context, name string) error {
	return c.client.Del(ctx, c.key(name)).Err()
}

// wireState is the JSON shape persisted to Redis; it mirrors
// reduce.State but keeps the cache's on-disk format decoupled from the
// in-process struct so the two can evolve independently.
type wireState struct {
	Messages              []reduce.Message     `json:"messages"`
	NextEventNumber       int                  `json:"next_event_number"`
	CurrentTurnNumber     int                  `json:"current_turn_number"`
	TurnInProgressEventID string               `json:"turn_in_progress_event_id,omitempty"`
	HasTurnInProgress     bool                 `json:"has_turn_in_progress"`
	LlmConfig             *events.SetLlmConfig `json:"llm_config,omitempty"`
}

func fromState(s reduce.State) wireState {
	return wireState{
		Messages:              s.Messages,
		NextEventNumber:       s.NextEventNumber,
		CurrentTurnNumber:     s.CurrentTurnNumber,
		TurnInProgressEventID: s.TurnInProgressEventID,
		HasTurnInProgress:     s.HasTurnInProgress,
		LlmConfig:             s.LlmConfig,
	}
}

func (w wireState) toState() reduce.State {
	return reduce.State{
		Messages:              w.Messages,
		NextEventNumber:       w.NextEventNumber,
		CurrentTurnNumber:     w.CurrentTurnNumber,
		TurnInProgressEventID: w.TurnInProgressEventID,
		HasTurnInProgress:     w.HasTurnInProgress,
		LlmConfig:             w.LlmConfig,
	}
}
