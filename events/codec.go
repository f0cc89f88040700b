package events

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// decoders maps a Kind to a constructor for its zero-value payload. Decode
// looks up the constructor for an event's Kind and unmarshals the payload
// node into it; an unrecognized Kind is a decode error, never silently
// ignored, per spec.md §4.1 ("Decoders must reject unknown tags").
var decoders = map[Kind]func() Data{
	KindSystemPrompt:    func() Data { return &SystemPrompt{} },
	KindUserMessage:     func() Data { return &UserMessage{} },
	KindAssistantMsg:    func() Data { return &AssistantMessage{} },
	KindTextDelta:       func() Data { return &TextDelta{} },
	KindSetLlmConfig:    func() Data { return &SetLlmConfig{} },
	KindSessionStarted:  func() Data { return &SessionStarted{} },
	KindSessionEnded:    func() Data { return &SessionEnded{} },
	KindTurnStarted:     func() Data { return &TurnStarted{} },
	KindTurnCompleted:   func() Data { return &TurnCompleted{} },
	KindTurnFailed:      func() Data { return &TurnFailed{} },
	KindTurnInterrupted: func() Data { return &TurnInterrupted{} },
}

// wireEvent is the on-disk envelope shape: the common fields plus a raw
// payload node, decoded on demand once the Kind is known.
type wireEvent struct {
	ID           string    `yaml:"id"`
	EventNumber  int       `yaml:"event_number"`
	Timestamp    string    `yaml:"timestamp"`
	SessionName  string    `yaml:"session_name"`
	ParentID     string    `yaml:"parent_id,omitempty"`
	TriggersTurn bool      `yaml:"triggers_turn"`
	Kind         Kind      `yaml:"kind"`
	Payload      yaml.Node `yaml:"payload"`
}

// MarshalYAML implements yaml.Marshaler so an Event round-trips through
// its envelope shape without exposing the Data interface field directly.
func (e Event) MarshalYAML() (any, error) {
	var payloadNode yaml.Node
	if err := payloadNode.Encode(e.Payload); err != nil {
		return nil, fmt.Errorf("encode payload for kind %q: %w", e.Kind, err)
	}
	return wireEvent{
		ID:           e.ID,
		EventNumber:  e.EventNumber,
		Timestamp:    e.Timestamp.Format(timeLayout),
		SessionName:  e.SessionName,
		ParentID:     e.ParentID,
		TriggersTurn: e.TriggersTurn,
		Kind:         e.Kind,
		Payload:      payloadNode,
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler, dispatching the payload node
// to the constructor registered for the envelope's Kind.
func (e *Event) UnmarshalYAML(node *yaml.Node) error {
	var w wireEvent
	if err := node.Decode(&w); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}

	ctor, ok := decoders[w.Kind]
	if !ok {
		return fmt.Errorf("unknown event kind %q", w.Kind)
	}
	payload := ctor()
	if err := w.Payload.Decode(payload); err != nil {
		return fmt.Errorf("decode payload for kind %q: %w", w.Kind, err)
	}

	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}

	e.ID = w.ID
	e.EventNumber = w.EventNumber
	e.Timestamp = ts
	e.SessionName = w.SessionName
	e.ParentID = w.ParentID
	e.TriggersTurn = w.TriggersTurn
	e.Kind = w.Kind
	e.Payload = payload
	return nil
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// LogFile is the top-level on-disk container for one conversation's
// persisted log: an ordered events list, per spec.md §6.
type LogFile struct {
	Events []Event `yaml:"events"`
}

// EncodeLog serializes a full conversation log to its on-disk YAML form.
func EncodeLog(log []Event) ([]byte, error) {
	return yaml.Marshal(LogFile{Events: log})
}

// DecodeLog parses a conversation log from its on-disk YAML form. An
// empty or absent file decodes to an empty, non-nil slice.
func DecodeLog(data []byte) ([]Event, error) {
	if len(data) == 0 {
		return []Event{}, nil
	}
	var f LogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Events == nil {
		return []Event{}, nil
	}
	return f.Events, nil
}
