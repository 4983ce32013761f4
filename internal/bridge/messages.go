package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/satriahrh/intake-bridge/internal/events"
)

// MessageType is the discriminator of client-facing JSON messages.
type MessageType string

// Bridge to client
const (
	MessageTypeState      MessageType = "state"
	MessageTypeTranscript MessageType = "transcript"
	MessageTypeError      MessageType = "error"
	MessageTypeStatus     MessageType = "status"
	MessageTypeSettings   MessageType = "settings"
)

// Client to bridge
const (
	MessageTypeStart MessageType = "start"
	MessageTypeStop  MessageType = "stop"
)

// StateMessage reports the conversational state
type StateMessage struct {
	Type  MessageType  `json:"type"`
	State events.State `json:"state"`
}

// TranscriptMessage carries one transcript fragment
type TranscriptMessage struct {
	Type    MessageType `json:"type"`
	Role    events.Role `json:"role"`
	Text    string      `json:"text"`
	Partial bool        `json:"partial"`
}

// ErrorMessage is sent before a fatal close
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// StatusMessage acknowledges client control messages and relays agent warnings
type StatusMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
	Level   string      `json:"level,omitempty"`
}

// SettingsMessage tells the client the agent accepted the session configuration
type SettingsMessage struct {
	Type       MessageType `json:"type"`
	Status     string      `json:"status"`
	Encoding   string      `json:"encoding"`
	SampleRate int         `json:"sample_rate"`
}

// ClientMessage is the envelope of client text frames
type ClientMessage struct {
	Type    MessageType `json:"type"`
	VoiceID string      `json:"voiceId,omitempty"`
}

// ParseClientMessage decodes a client text frame. Types are matched case-insensitively.
func ParseClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("invalid JSON format: %w", err)
	}
	msg.Type = MessageType(strings.ToLower(strings.TrimSpace(string(msg.Type))))
	msg.VoiceID = strings.TrimSpace(msg.VoiceID)
	return msg, nil
}

// eventMessage converts a normalized event into its client message. It
// returns nil for events the client does not see.
func eventMessage(ev events.Event) any {
	switch ev.Type {
	case events.TypeTranscript:
		return TranscriptMessage{Type: MessageTypeTranscript, Role: ev.Role, Text: ev.Text, Partial: !ev.Final}
	case events.TypeStateChanged:
		return StateMessage{Type: MessageTypeState, State: ev.State}
	case events.TypeWarning:
		return StatusMessage{Type: MessageTypeStatus, Message: ev.Message, Level: "warning"}
	case events.TypeError:
		return ErrorMessage{Type: MessageTypeError, Message: ev.Message}
	default:
		return nil
	}
}
