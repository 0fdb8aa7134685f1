package invoker

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType represents the type of a stream message.
type MessageType string

const (
	// MessageTypeCall carries one rendered service call.
	MessageTypeCall MessageType = "CALL"
	// MessageTypeState carries observed attributes of an entity.
	MessageTypeState MessageType = "STATE"
)

// Message is the envelope of every line in a stream.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// CallMessage describes a service call.
type CallMessage struct {
	EntityID string                 `json:"entity_id,omitempty"`
	Service  string                 `json:"service"`
	Data     map[string]interface{} `json:"data"`
}

// StateMessage reports the attributes of an entity.
type StateMessage struct {
	EntityID   string                 `json:"entity_id"`
	Attributes map[string]interface{} `json:"attributes"`
}

// Validate checks if the message type is valid.
func (t MessageType) Validate() error {
	switch t {
	case MessageTypeCall, MessageTypeState:
		return nil
	default:
		return fmt.Errorf("invalid message type: %s", t)
	}
}

// Validate checks if the call message is valid.
func (c *CallMessage) Validate() error {
	if c.Service == "" {
		return fmt.Errorf("call service is required")
	}
	return nil
}

// Validate checks if the state message is valid.
func (s *StateMessage) Validate() error {
	if s.EntityID == "" {
		return fmt.Errorf("state entity_id is required")
	}
	return nil
}
