package events

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind is the outcome of classifying one upstream message.
type Kind int

const (
	// KindDiscard means the message carries nothing to forward.
	KindDiscard Kind = iota
	// KindAudio means the payload is agent speech to relay verbatim.
	KindAudio
	// KindEvent means the payload was folded into an Event.
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindEvent:
		return "event"
	default:
		return "discard"
	}
}

// Precedence of interchangeable field names on upstream payloads.
var (
	roleFields    = []string{"role", "speaker", "actor"}
	textFields    = []string{"content", "text", "transcript", "message"}
	finalFields   = []string{"final", "is_final", "isFinal"}
	messageFields = []string{"message", "description", "error", "code"}
)

type tagRule struct {
	typ          Type
	state        State
	impliedRole  Role
	defaultFinal bool
}

// tagRules is keyed by the lowercased wire tag.
var tagRules = map[string]tagRule{
	"welcome": {typ: TypeWelcome},

	"settingsapplied":      {typ: TypeConfigurationAcknowledged},
	"settingsacknowledged": {typ: TypeConfigurationAcknowledged},

	"conversationtext":    {typ: TypeTranscript, impliedRole: RoleUser, defaultFinal: true},
	"transcript":          {typ: TypeTranscript, impliedRole: RoleUser, defaultFinal: true},
	"usertranscript":      {typ: TypeTranscript, impliedRole: RoleUser, defaultFinal: true},
	"userresponse":        {typ: TypeTranscript, impliedRole: RoleUser, defaultFinal: true},
	"history":             {typ: TypeTranscript, impliedRole: RoleUser, defaultFinal: true},
	"addusermessage":      {typ: TypeTranscript, impliedRole: RoleUser, defaultFinal: true},
	"addassistantmessage": {typ: TypeTranscript, impliedRole: RoleAgent, defaultFinal: true},
	"partialtranscript":   {typ: TypeTranscript, impliedRole: RoleUser, defaultFinal: false},
	"agenttranscript":     {typ: TypeTranscript, impliedRole: RoleAgent, defaultFinal: true},
	"agentresponse":       {typ: TypeTranscript, impliedRole: RoleAgent, defaultFinal: true},

	"userstartedspeaking":  {typ: TypeStateChanged, state: StateListening},
	"agentstartedspeaking": {typ: TypeStateChanged, state: StateSpeaking},
	"agentstoppedspeaking": {typ: TypeStateChanged, state: StateListening},

	"agentwarning": {typ: TypeWarning},
	"agenterror":   {typ: TypeError},
	"error":        {typ: TypeError},
}

// IsAudio reports whether an upstream payload is raw audio: a binary frame
// whose first byte is not the start of a JSON object.
func IsAudio(binary bool, payload []byte) bool {
	return binary && len(payload) > 0 && payload[0] != '{'
}

// Classify folds one upstream message into audio, a normalized event, or
// nothing. Malformed JSON and unknown tags are discarded.
func Classify(binary bool, payload []byte) (Kind, Event) {
	if IsAudio(binary, payload) {
		return KindAudio, Event{}
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return KindDiscard, Event{}
	}

	tag, _ := fields["type"].(string)
	rule, ok := tagRules[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return KindDiscard, Event{Tag: tag}
	}

	ev := Event{Type: rule.typ, Tag: tag}
	switch rule.typ {
	case TypeTranscript:
		ev.Text = strings.TrimSpace(firstString(fields, textFields))
		if ev.Text == "" {
			return KindDiscard, ev
		}
		ev.Role = bucketRole(firstString(fields, roleFields), rule.impliedRole)
		ev.Final = firstBool(fields, finalFields, rule.defaultFinal)
	case TypeStateChanged:
		ev.State = rule.state
	case TypeWarning, TypeError:
		ev.Message = firstString(fields, messageFields)
		if ev.Message == "" {
			ev.Message = tag
		}
	}
	return KindEvent, ev
}

// bucketRole maps free-form speaker labels onto User or Agent.
func bucketRole(raw string, implied Role) Role {
	role := strings.ToLower(strings.TrimSpace(raw))
	if role == "" {
		return implied
	}
	if strings.Contains(role, "agent") || strings.Contains(role, "assistant") {
		return RoleAgent
	}
	return RoleUser
}

func firstString(fields map[string]any, names []string) string {
	for _, name := range names {
		switch v := fields[name].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func firstBool(fields map[string]any, names []string, fallback bool) bool {
	for _, name := range names {
		switch v := fields[name].(type) {
		case bool:
			return v
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return true
			case "false":
				return false
			}
		}
	}
	return fallback
}
