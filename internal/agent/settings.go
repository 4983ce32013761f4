package agent

import (
	"encoding/json"

	"github.com/satriahrh/intake-bridge/internal/audio"
	"github.com/satriahrh/intake-bridge/internal/config"
)

// Settings is the session configuration message sent once per connection,
// before any audio.
type Settings struct {
	Type  string        `json:"type"`
	Audio AudioSettings `json:"audio"`
	Agent AgentSettings `json:"agent"`
}

type AudioSettings struct {
	Input  AudioFormat `json:"input"`
	Output AudioFormat `json:"output"`
}

type AudioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Container  string `json:"container,omitempty"`
}

type AgentSettings struct {
	Language string         `json:"language"`
	Listen   ListenSettings `json:"listen"`
	Think    ThinkSettings  `json:"think"`
	Speak    SpeakSettings  `json:"speak"`
	Greeting string         `json:"greeting,omitempty"`
}

type ListenSettings struct {
	Provider Provider `json:"provider"`
}

type ThinkSettings struct {
	Provider Provider `json:"provider"`
	Prompt   string   `json:"prompt"`
}

type SpeakSettings struct {
	Provider Provider `json:"provider"`
}

type Provider struct {
	Type        string   `json:"type"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// NewSettings builds the session configuration. A non-nil persona overrides
// the voice and, when it has one, the greeting.
func NewSettings(cfg config.AgentConfig, format audio.Format, persona *config.Persona) Settings {
	temperature := cfg.ThinkTemperature
	s := Settings{
		Type: "Settings",
		Audio: AudioSettings{
			Input: AudioFormat{
				Encoding:   format.Encoding,
				SampleRate: format.SampleRate,
			},
			Output: AudioFormat{
				Encoding:   format.Encoding,
				SampleRate: format.SampleRate,
				Container:  "none",
			},
		},
		Agent: AgentSettings{
			Language: cfg.Language,
			Listen: ListenSettings{
				Provider: Provider{Type: cfg.ListenProvider, Model: cfg.ListenModel},
			},
			Think: ThinkSettings{
				Provider: Provider{Type: cfg.ThinkProvider, Model: cfg.ThinkModel, Temperature: &temperature},
				Prompt:   cfg.Prompt,
			},
			Speak: SpeakSettings{
				Provider: Provider{Type: cfg.SpeakProvider, Model: cfg.SpeakModel},
			},
			Greeting: cfg.Greeting,
		},
	}

	if persona != nil {
		if persona.SpeakModel != "" {
			s.Agent.Speak.Provider.Model = persona.SpeakModel
		}
		if persona.Greeting != "" {
			s.Agent.Greeting = cfg.PersonaGreeting(*persona)
		}
	}
	return s
}

// Marshal encodes the settings for the wire.
func (s Settings) Marshal() ([]byte, error) {
	return json.Marshal(s)
}
