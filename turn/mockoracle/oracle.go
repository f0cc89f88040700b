// Package mockoracle implements a deterministic turn.Service used as the
// runtime's default oracle and the one the test suite drives: no network
// calls, a configurable response, and streaming paced by delta size
// rather than real latency.
package mockoracle

import (
	"context"
	"fmt"
	"time"

	"github.com/AltairaLabs/miniagent/events"
	"github.com/AltairaLabs/miniagent/reduce"
	"github.com/AltairaLabs/miniagent/turn"
)

// Responder produces the full reply text for a turn given the current
// derived state. The default Responder echoes the latest user message;
// callers may substitute a scripted one for tests.
type Responder func(state reduce.State) (string, error)

// Oracle is a scripted, deterministic turn.Service.
type Oracle struct {
	respond     Responder
	chunkSize   int
	chunkDelay  time.Duration
	failOnEmpty bool
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithResponder overrides how the oracle computes its reply text.
func WithResponder(r Responder) Option {
	return func(o *Oracle) { o.respond = r }
}

// WithChunkSize sets how many runes are emitted per TextDelta. A size of
// 0 or less emits the whole reply as a single delta.
func WithChunkSize(n int) Option {
	return func(o *Oracle) { o.chunkSize = n }
}

// WithChunkDelay sets the pause between emitted deltas, letting tests
// observe an in-flight turn and exercise cancellation mid-stream.
func WithChunkDelay(d time.Duration) Option {
	return func(o *Oracle) { o.chunkDelay = d }
}

// New constructs an Oracle. It matches the signature turn.NewService
// expects for its mock-format constructor.
func New(cfg turn.Config, opts ...Option) turn.Service {
	o := &Oracle{
		respond:    defaultResponder,
		chunkSize:  8,
		chunkDelay: time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func defaultResponder(state reduce.State) (string, error) {
	var lastUser string
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == reduce.RoleUser {
			lastUser = state.Messages[i].Content
			break
		}
	}
	if lastUser == "" {
		return "", fmt.Errorf("mockoracle: no user message found in state")
	}
	return fmt.Sprintf("you said: %s", lastUser), nil
}

// Execute streams the scripted reply as a sequence of TextDelta chunks
// followed by one AssistantMessage chunk. It stops promptly and closes
// both channels when ctx is cancelled, satisfying turn.Service's
// cancellation contract.
func (o *Oracle) Execute(ctx context.Context, state reduce.State) (<-chan turn.Chunk, <-chan error) {
	out := make(chan turn.Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		reply, err := o.respond(state)
		if err != nil {
			errs <- err
			return
		}

		runes := []rune(reply)
		size := o.chunkSize
		if size <= 0 {
			size = len(runes)
			if size == 0 {
				size = 1
			}
		}

		for i := 0; i < len(runes); i += size {
			end := i + size
			if end > len(runes) {
				end = len(runes)
			}
			delta := string(runes[i:end])

			select {
			case out <- turn.Chunk{Kind: events.KindTextDelta, Payload: &events.TextDelta{Delta: delta}}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}

			if o.chunkDelay > 0 {
				select {
				case <-time.After(o.chunkDelay):
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}

		select {
		case out <- turn.Chunk{Kind: events.KindAssistantMsg, Payload: &events.AssistantMessage{Content: reply}}:
		case <-ctx.Done():
			errs <- ctx.Err()
		}
	}()

	return out, errs
}

// WithFailure returns a Responder that always fails, for exercising
// TurnFailed in tests.
func WithFailure(message string) Responder {
	return func(reduce.State) (string, error) {
		return "", fmt.Errorf("mockoracle: scripted failure: %s", message)
	}
}
