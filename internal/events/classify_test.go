package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAudio(t *testing.T) {
	tests := []struct {
		name    string
		binary  bool
		payload []byte
		want    bool
	}{
		{name: "binary pcm", binary: true, payload: []byte{0x01, 0x7b}, want: true},
		{name: "binary json", binary: true, payload: []byte(`{"type":"Welcome"}`), want: false},
		{name: "text json", binary: false, payload: []byte(`{"type":"Welcome"}`), want: false},
		{name: "text non json", binary: false, payload: []byte("hello"), want: false},
		{name: "empty binary", binary: true, payload: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAudio(tt.binary, tt.payload))
		})
	}
}

func TestClassify_MappingTable(t *testing.T) {
	tests := []struct {
		payload string
		want    Event
	}{
		{`{"type":"Welcome","request_id":"x"}`, Event{Type: TypeWelcome, Tag: "Welcome"}},
		{`{"type":"SettingsApplied"}`, Event{Type: TypeConfigurationAcknowledged, Tag: "SettingsApplied"}},
		{`{"type":"SettingsAcknowledged"}`, Event{Type: TypeConfigurationAcknowledged, Tag: "SettingsAcknowledged"}},

		{`{"type":"ConversationText","role":"user","content":"hi"}`,
			Event{Type: TypeTranscript, Tag: "ConversationText", Role: RoleUser, Text: "hi", Final: true}},
		{`{"type":"ConversationText","role":"assistant","content":"hello"}`,
			Event{Type: TypeTranscript, Tag: "ConversationText", Role: RoleAgent, Text: "hello", Final: true}},
		{`{"type":"Transcript","speaker":"Caller","text":"hi"}`,
			Event{Type: TypeTranscript, Tag: "Transcript", Role: RoleUser, Text: "hi", Final: true}},
		{`{"type":"UserTranscript","transcript":"hi","is_final":false}`,
			Event{Type: TypeTranscript, Tag: "UserTranscript", Role: RoleUser, Text: "hi", Final: false}},
		{`{"type":"UserResponse","role":"user","content":"hi","final":true}`,
			Event{Type: TypeTranscript, Tag: "UserResponse", Role: RoleUser, Text: "hi", Final: true}},
		{`{"type":"History","role":"AGENT","content":"hi"}`,
			Event{Type: TypeTranscript, Tag: "History", Role: RoleAgent, Text: "hi", Final: true}},
		{`{"type":"AddUserMessage","message":"hi"}`,
			Event{Type: TypeTranscript, Tag: "AddUserMessage", Role: RoleUser, Text: "hi", Final: true}},
		{`{"type":"AddAssistantMessage","message":"hi"}`,
			Event{Type: TypeTranscript, Tag: "AddAssistantMessage", Role: RoleAgent, Text: "hi", Final: true}},
		{`{"type":"PartialTranscript","text":"hi"}`,
			Event{Type: TypeTranscript, Tag: "PartialTranscript", Role: RoleUser, Text: "hi", Final: false}},
		{`{"type":"AgentTranscript","text":"hi"}`,
			Event{Type: TypeTranscript, Tag: "AgentTranscript", Role: RoleAgent, Text: "hi", Final: true}},
		{`{"type":"AgentResponse","actor":"virtual_assistant","text":"hi"}`,
			Event{Type: TypeTranscript, Tag: "AgentResponse", Role: RoleAgent, Text: "hi", Final: true}},

		{`{"type":"UserStartedSpeaking"}`, Event{Type: TypeStateChanged, Tag: "UserStartedSpeaking", State: StateListening}},
		{`{"type":"AgentStartedSpeaking","total_latency":0.4}`, Event{Type: TypeStateChanged, Tag: "AgentStartedSpeaking", State: StateSpeaking}},
		{`{"type":"AgentStoppedSpeaking"}`, Event{Type: TypeStateChanged, Tag: "AgentStoppedSpeaking", State: StateListening}},

		{`{"type":"AgentWarning","description":"slow","code":"W1"}`, Event{Type: TypeWarning, Tag: "AgentWarning", Message: "slow"}},
		{`{"type":"AgentError","message":"bad"}`, Event{Type: TypeError, Tag: "AgentError", Message: "bad"}},
		{`{"type":"Error","description":"Failed to parse settings","code":"INVALID_SETTINGS"}`,
			Event{Type: TypeError, Tag: "Error", Message: "Failed to parse settings"}},
		{`{"type":"Error"}`, Event{Type: TypeError, Tag: "Error", Message: "Error"}},
	}

	for _, tt := range tests {
		t.Run(tt.want.Tag, func(t *testing.T) {
			kind, ev := Classify(false, []byte(tt.payload))
			assert.Equal(t, KindEvent, kind)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestClassify_TagsAreCaseInsensitive(t *testing.T) {
	kind, ev := Classify(false, []byte(`{"type":"settingsapplied"}`))
	assert.Equal(t, KindEvent, kind)
	assert.Equal(t, TypeConfigurationAcknowledged, ev.Type)
}

func TestClassify_FieldPrecedence(t *testing.T) {
	kind, ev := Classify(false, []byte(`{"type":"Transcript","speaker":"agent","role":"user","text":"second","content":"first","is_final":false,"final":true}`))
	assert.Equal(t, KindEvent, kind)
	assert.Equal(t, RoleUser, ev.Role)
	assert.Equal(t, "first", ev.Text)
	assert.True(t, ev.Final)
}

func TestClassify_BinaryJSONIsControl(t *testing.T) {
	kind, ev := Classify(true, []byte(`{"type":"AgentStartedSpeaking"}`))
	assert.Equal(t, KindEvent, kind)
	assert.Equal(t, StateSpeaking, ev.State)
}

func TestClassify_Audio(t *testing.T) {
	kind, _ := Classify(true, []byte{0x00, 0x01, 0x02})
	assert.Equal(t, KindAudio, kind)
}

func TestClassify_Discards(t *testing.T) {
	tests := []struct {
		name    string
		binary  bool
		payload string
	}{
		{name: "malformed", payload: `{"type":`},
		{name: "not an object", payload: `[1,2,3]`},
		{name: "null", payload: `null`},
		{name: "no type", payload: `{"content":"hi"}`},
		{name: "unknown tag", payload: `{"type":"FunctionCallRequest"}`},
		{name: "injection refused", payload: `{"type":"InjectionRefused"}`},
		{name: "empty transcript", payload: `{"type":"ConversationText","role":"user","content":"   "}`},
		{name: "empty binary", binary: true, payload: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, _ := Classify(tt.binary, []byte(tt.payload))
			assert.Equal(t, KindDiscard, kind)
		})
	}
}

func TestEvent_IsUserUtterance(t *testing.T) {
	assert.True(t, Event{Type: TypeTranscript, Role: RoleUser, Text: "hi", Final: true}.IsUserUtterance())
	assert.False(t, Event{Type: TypeTranscript, Role: RoleUser, Text: "hi"}.IsUserUtterance())
	assert.False(t, Event{Type: TypeTranscript, Role: RoleAgent, Text: "hi", Final: true}.IsUserUtterance())
	assert.False(t, Event{Type: TypeWarning, Message: "hi"}.IsUserUtterance())
}
