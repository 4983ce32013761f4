package events

// Type identifies a normalized event variant.
type Type string

const (
	TypeWelcome                   Type = "welcome"
	TypeConfigurationAcknowledged Type = "configuration_acknowledged"
	TypeTranscript                Type = "transcript"
	TypeStateChanged              Type = "state_changed"
	TypeWarning                   Type = "warning"
	TypeError                     Type = "error"
)

// Role is the speaker bucket of a transcript fragment.
type Role string

const (
	RoleUser  Role = "User"
	RoleAgent Role = "Agent"
)

// State is the conversational state reported to the client.
type State string

const (
	StateConnected    State = "Connected"
	StateListening    State = "Listening"
	StateSpeaking     State = "Speaking"
	StateDisconnected State = "Disconnected"
)

// Event is the normalized form of an upstream control message.
// Only the fields relevant to Type are populated.
type Event struct {
	Type Type

	// Tag is the wire-level type tag the event was folded from.
	Tag string

	// TypeTranscript
	Role  Role
	Text  string
	Final bool

	// TypeStateChanged
	State State

	// TypeWarning, TypeError
	Message string
}

// IsUserUtterance reports whether the event is a finalized, non-empty user
// transcript.
func (e Event) IsUserUtterance() bool {
	return e.Type == TypeTranscript && e.Role == RoleUser && e.Final && e.Text != ""
}
