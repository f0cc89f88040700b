// Package events defines the runtime's tagged-union event model: every
// event carries a Kind discriminator and a typed Payload, decoded through
// a registry of kind-to-payload constructors rather than an open class
// hierarchy of event types.
package events

import "time"

// Kind identifies which event variant a Payload carries.
type Kind string

const (
	KindSystemPrompt    Kind = "system_prompt"
	KindUserMessage     Kind = "user_message"
	KindAssistantMsg    Kind = "assistant_message"
	KindTextDelta       Kind = "text_delta"
	KindSetLlmConfig    Kind = "set_llm_config"
	KindSessionStarted  Kind = "session_started"
	KindSessionEnded    Kind = "session_ended"
	KindTurnStarted     Kind = "turn_started"
	KindTurnCompleted   Kind = "turn_completed"
	KindTurnFailed      Kind = "turn_failed"
	KindTurnInterrupted Kind = "turn_interrupted"
)

// Data is the marker interface implemented by every variant payload.
// It intentionally carries no methods: the type switch in reduce.Reduce
// and in codec.go is the single place that knows how to interpret a
// payload, keeping the set of variants closed.
type Data interface {
	isEventData()
}

// Event is the envelope common to every variant: identity, ordering, and
// ownership fields, plus the variant-specific Payload.
type Event struct {
	ID          string    `yaml:"id"`
	EventNumber int       `yaml:"event_number"`
	Timestamp   time.Time `yaml:"timestamp"`
	SessionName string    `yaml:"session_name"`
	ParentID    string    `yaml:"parent_id,omitempty"`
	TriggersTurn bool     `yaml:"triggers_turn"`
	Kind        Kind      `yaml:"kind"`
	Payload     Data      `yaml:"-"`
}

// Persisted reports whether this event's Kind belongs in the durable log.
// Only TextDelta is ephemeral: broadcast to subscribers but never
// written to the log.
func (e Event) Persisted() bool {
	return e.Kind != KindTextDelta
}

// --- payload variants ---

type SystemPrompt struct {
	Content string `yaml:"content"`
}

func (SystemPrompt) isEventData() {}

type Attachment struct {
	Name        string `yaml:"name"`
	ContentType string `yaml:"content_type"`
	URI         string `yaml:"uri"`
}

type UserMessage struct {
	Content     string       `yaml:"content"`
	Attachments []Attachment `yaml:"attachments,omitempty"`
}

func (UserMessage) isEventData() {}

type AssistantMessage struct {
	Content string `yaml:"content"`
}

func (AssistantMessage) isEventData() {}

type TextDelta struct {
	Delta string `yaml:"delta"`
}

func (TextDelta) isEventData() {}

type SetLlmConfig struct {
	APIFormat string `yaml:"api_format"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

func (SetLlmConfig) isEventData() {}

type SessionStarted struct {
	LoadedEventCount int `yaml:"loaded_event_count"`
}

func (SessionStarted) isEventData() {}

type SessionEnded struct {
	Reason string `yaml:"reason"`
}

func (SessionEnded) isEventData() {}

type TurnStarted struct {
	TurnNumber int `yaml:"turn_number"`
}

func (TurnStarted) isEventData() {}

type TurnCompleted struct {
	TurnNumber int   `yaml:"turn_number"`
	DurationMs int64 `yaml:"duration_ms"`
}

func (TurnCompleted) isEventData() {}

type TurnFailed struct {
	TurnNumber int    `yaml:"turn_number"`
	Error      string `yaml:"error"`
}

func (TurnFailed) isEventData() {}

type TurnInterrupted struct {
	TurnNumber     int    `yaml:"turn_number"`
	PartialResponse string `yaml:"partial_response"`
	Reason         string `yaml:"reason"`
}

func (TurnInterrupted) isEventData() {}

// TriggersTurn reports whether a freshly-constructed event of this kind
// should schedule a turn once ingested. Only UserMessage does, per
// spec.md §3.
func TriggersTurn(kind Kind) bool {
	return kind == KindUserMessage
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
