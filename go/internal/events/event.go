// Package events publishes domain events (flag changes, applied sequences,
// delay and connection changes) to whatever bus is configured.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type names an event. It becomes the last token of the NATS subject.
type Type string

const (
	FlagDetected       Type = "flag.detected"
	FlagApplied        Type = "flag.applied"
	FlagFailed         Type = "flag.failed"
	DelayChanged       Type = "delay.changed"
	LightsConnected    Type = "lights.connected"
	LightsDisconnected Type = "lights.disconnected"
	SessionLive        Type = "session.live"
	TestMessageSet     Type = "test_message.set"
)

// Event is the envelope put on the wire.
type Event struct {
	ID        uuid.UUID       `json:"event_id"`
	Type      Type            `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// New builds an event with a fresh id, marshalling payload as JSON.
func New(typ Type, at time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return Event{
		ID:        uuid.New(),
		Type:      typ,
		Timestamp: at.UTC(),
		Payload:   raw,
	}, nil
}

// FlagPayload accompanies the flag.* events.
type FlagPayload struct {
	Flag     string `json:"flag"`
	Previous string `json:"previous,omitempty"`
	Delay    int    `json:"delay_seconds"`
	Manual   bool   `json:"manual,omitempty"`
	Error    string `json:"error,omitempty"`
}

type DelayPayload struct {
	Seconds int `json:"seconds"`
}

type LightsPayload struct {
	Devices int    `json:"devices"`
	Reason  string `json:"reason,omitempty"`
}

type SessionPayload struct {
	Live bool `json:"live"`
}

type TestMessagePayload struct {
	Category string `json:"category"`
	Flag     string `json:"flag,omitempty"`
	Message  string `json:"message"`
}
