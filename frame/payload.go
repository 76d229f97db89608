package frame

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Kind tells a plain text payload apart from one that parsed as JSON
type Kind int

const (
	Text Kind = iota
	Structured
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Structured:
		return "structured"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Payload is a received message. Text always holds the raw message with the
// terminator removed; Value is set only for Structured payloads.
type Payload struct {
	Kind  Kind
	Text  string
	Value interface{}
}

// Parse decodes text as JSON, falling back to a Text payload when it does not parse
func Parse(text string) Payload {
	var v interface{}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return Payload{Kind: Text, Text: text}
	}
	return Payload{Kind: Structured, Text: text, Value: v}
}

// NewText wraps a plain string
func NewText(text string) Payload {
	return Payload{Kind: Text, Text: text}
}

func (p Payload) String() string {
	return p.Text
}

// IsStructured reports whether the payload parsed as JSON
func (p Payload) IsStructured() bool {
	return p.Kind == Structured
}

// Unmarshal decodes a structured payload into v
func (p Payload) Unmarshal(v interface{}) error {
	if p.Kind != Structured {
		return fmt.Errorf("frame: payload is %s, not structured", p.Kind)
	}
	return json.Unmarshal([]byte(p.Text), v)
}

// MarshalJSON renders structured payloads as their JSON value and text
// payloads as a JSON string
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Kind == Structured {
		return []byte(p.Text), nil
	}
	return json.Marshal(p.Text)
}

// Proto converts the payload into a protobuf Value for protojson dumps
func (p Payload) Proto() (*structpb.Value, error) {
	if p.Kind != Structured {
		return structpb.NewStringValue(p.Text), nil
	}
	return structpb.NewValue(p.Value)
}
