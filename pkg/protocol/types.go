// Package protocol defines the WebSocket wire format: the outbound message
// envelope, per-type payloads, the packager that builds frames, and the
// history reconstruction used on reconnect.
package protocol

import (
	"fmt"
	"time"

	"github.com/deckhand-io/deckhand/pkg/models"
)

// MessageType identifies an outbound frame.
type MessageType string

const (
	TypeChatMessage     MessageType = "chat_message"
	TypeActionRequest   MessageType = "action_request"
	TypeSlideUpdate     MessageType = "slide_update"
	TypeStatusUpdate    MessageType = "status_update"
	TypePresentationURL MessageType = "presentation_url"
	TypeSyncResponse    MessageType = "sync_response"
)

// IsValid checks if the message type is one of the six outbound kinds.
func (t MessageType) IsValid() bool {
	switch t {
	case TypeChatMessage, TypeActionRequest, TypeSlideUpdate,
		TypeStatusUpdate, TypePresentationURL, TypeSyncResponse:
		return true
	}
	return false
}

// Inbound frame types (client → server).
const (
	InboundUserMessage = "user_message"
	InboundSyncRequest = "sync_request"
)

// Message is the envelope for every server → client frame. Payload holds
// one of the typed payload structs from payloads.go.
type Message struct {
	MessageID string      `json:"message_id"` // UUID, fresh per frame
	SessionID string      `json:"session_id"`
	Timestamp string      `json:"timestamp"` // UTC RFC3339, trailing Z
	Type      MessageType `json:"type"`
	Role      models.Role `json:"role"`
	Payload   any         `json:"payload"`
}

// Validate checks the envelope invariants every outbound frame must
// satisfy before it is written to the socket.
func (m *Message) Validate() error {
	if m.MessageID == "" {
		return fmt.Errorf("message_id is empty")
	}
	if m.SessionID == "" {
		return fmt.Errorf("session_id is empty")
	}
	if !m.Type.IsValid() {
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	if !m.Role.IsValid() {
		return fmt.Errorf("unknown role %q", m.Role)
	}
	ts, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		return fmt.Errorf("timestamp %q is not RFC3339: %w", m.Timestamp, err)
	}
	if ts.Location() != time.UTC {
		return fmt.Errorf("timestamp %q is not UTC", m.Timestamp)
	}
	return nil
}

// InboundMessage is a client → server frame. Clients write data; servers
// never emit this shape.
type InboundMessage struct {
	Type string      `json:"type"` // user_message or sync_request
	Data InboundData `json:"data"`
}

// InboundData carries the inbound frame arguments.
type InboundData struct {
	Text          string `json:"text,omitempty"`
	SkipHistory   bool   `json:"skip_history,omitempty"`
	LastMessageID string `json:"last_message_id,omitempty"`
}
