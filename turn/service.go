// Package turn defines the pluggable streaming language-model oracle
// contract: turn.Service.Execute takes the conversation's current
// derived state and streams back the events of one turn, per spec.md
// §4.3. The session actor owns stamping identity fields and persisting
// the durable ones; the service itself never touches actor state.
package turn

import (
	"context"
	"fmt"

	"github.com/AltairaLabs/miniagent/apperr"
	"github.com/AltairaLabs/miniagent/events"
	"github.com/AltairaLabs/miniagent/reduce"
)

// Chunk is one element of a turn's output stream: either a TextDelta or
// the final AssistantMessage, carried as an events.Data payload so the
// actor can wrap it directly into an events.Event.
type Chunk struct {
	Payload events.Data
	Kind    events.Kind
}

// Service is the streaming oracle contract every turn implementation
// satisfies. Execute must be cancellable: once ctx is done or the caller
// stops reading from the returned channel, the implementation releases
// its underlying request promptly and closes the channel.
type Service interface {
	Execute(ctx context.Context, state reduce.State) (<-chan Chunk, <-chan error)
}

// Config selects and parameterizes a turn.Service, mirroring the
// llm_* configuration keys of spec.md §6.
type Config struct {
	APIFormat string
	Model     string
	BaseURL   string
	APIKeyEnv string
}

// ErrProviderNotWired is returned by NewService for every APIFormat token
// that names a real external model provider. Concrete HTTP clients for
// OpenAI/Anthropic/Gemini are out-of-scope external collaborators (spec
// §1); only the deterministic mock oracle is implemented in this repo.
var ErrProviderNotWired = fmt.Errorf("turn: provider not wired into this runtime")

// NewService dispatches on cfg.APIFormat against a provider type token:
// "mock" returns a working oracle, every recognized real-provider token
// returns a clearly apperr-wrapped ErrProviderNotWired rather than a
// stub implementation.
func NewService(cfg Config, newMock func(Config) Service) (Service, error) {
	switch cfg.APIFormat {
	case "", "mock":
		return newMock(cfg), nil
	case "openai-responses", "openai-chat-completions", "anthropic", "gemini":
		return nil, apperr.TurnError(cfg.APIFormat, ErrProviderNotWired)
	default:
		return nil, apperr.TurnError(cfg.APIFormat, fmt.Errorf("unrecognized llm_api_format %q", cfg.APIFormat))
	}
}
