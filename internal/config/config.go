package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/satriahrh/intake-bridge/internal/audio"
)

const (
	defaultPort              = "8080"
	defaultAgentURL          = "wss://agent.deepgram.com/v1/agent/converse"
	defaultHandshakeTimeout  = 8 * time.Second
	defaultKeepaliveInterval = 25 * time.Second
	defaultLanguage          = "en"
	defaultListenProvider    = "deepgram"
	defaultListenModel       = "nova-3"
	defaultThinkProvider     = "open_ai"
	defaultThinkModel        = "gpt-4o-mini"
	defaultThinkTemperature  = 0.7
	defaultSpeakProvider     = "deepgram"
	defaultSpeakModel        = "aura-2-thalia-en"
	defaultFirmName          = "the firm"
	defaultGreeting          = "Thank you for calling {firm}. How can I help you today?"
	defaultGreetingGateMax   = 8 * time.Second
	defaultCloseGrace        = 2 * time.Second
	defaultPongWait          = 30 * time.Second

	// MinPromptLength is the shortest prompt accepted from configuration.
	MinPromptLength = 40
	// MaxPromptLength caps the prompt sent upstream.
	MaxPromptLength = 6000
)

const defaultPrompt = `You are the intake assistant for {firm}. Greet the caller warmly, then find out ` +
	`whether they are a new or existing client. For new matters collect their full name, ` +
	`a callback phone number or email, what happened, when it happened and where it happened. ` +
	`Ask one question at a time, keep answers short, and never give legal advice.`

// ClientTextPolicy selects how text frames from the client are treated.
type ClientTextPolicy string

const (
	// ClientTextControl interprets start/stop envelopes and acknowledges the rest.
	ClientTextControl ClientTextPolicy = "control"
	// ClientTextIgnore drops every client text frame.
	ClientTextIgnore ClientTextPolicy = "ignore"
)

// PrerollPolicy selects what happens to audio captured before the upstream is ready.
type PrerollPolicy string

const (
	PrerollBuffer PrerollPolicy = "buffer"
	PrerollDrop   PrerollPolicy = "drop"
)

// Config is the process-wide configuration. It is read-only after Load.
type Config struct {
	Port         string
	PersonasFile string

	Agent  AgentConfig
	Bridge BridgeConfig
	AMQP   AMQPConfig
}

// AgentConfig describes the upstream voice agent and the session it should run.
type AgentConfig struct {
	URL               string
	APIKey            string
	HandshakeTimeout  time.Duration
	KeepaliveInterval time.Duration

	Language         string
	ListenProvider   string
	ListenModel      string
	ThinkProvider    string
	ThinkModel       string
	ThinkTemperature float64
	SpeakProvider    string
	SpeakModel       string
	Prompt           string
	Greeting         string
	FirmName         string
}

// BridgeConfig collapses the bridge variants into explicit switches.
type BridgeConfig struct {
	ClientText      ClientTextPolicy
	Preroll         PrerollPolicy
	PrerollFrames   int
	Format          audio.Format
	GreetingGate    bool
	GreetingGateMax time.Duration
	CloseGrace      time.Duration
	PongWait        time.Duration
}

// AMQPConfig enables publishing intake snapshots when URL and Queue are set.
type AMQPConfig struct {
	URL   string
	Queue string
}

// Enabled reports whether an AMQP publisher should be started.
func (c AMQPConfig) Enabled() bool {
	return c.URL != "" && c.Queue != ""
}

// Load builds the configuration from environment variables.
func Load() (Config, error) {
	format, err := audio.ParseFormat(os.Getenv("BRIDGE_AUDIO_FORMAT"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:         envString("PORT", defaultPort),
		PersonasFile: os.Getenv("PERSONAS_FILE"),
		Agent: AgentConfig{
			URL:               envString("AGENT_URL", defaultAgentURL),
			APIKey:            strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			HandshakeTimeout:  envDuration("AGENT_HANDSHAKE_TIMEOUT", defaultHandshakeTimeout),
			KeepaliveInterval: envDuration("AGENT_KEEPALIVE_INTERVAL", defaultKeepaliveInterval),
			Language:          envString("AGENT_LANGUAGE", defaultLanguage),
			ListenProvider:    envString("LISTEN_PROVIDER", defaultListenProvider),
			ListenModel:       envString("LISTEN_MODEL", defaultListenModel),
			ThinkProvider:     envString("THINK_PROVIDER", defaultThinkProvider),
			ThinkModel:        envString("THINK_MODEL", defaultThinkModel),
			ThinkTemperature:  envFloat("THINK_TEMPERATURE", defaultThinkTemperature),
			SpeakProvider:     envString("SPEAK_PROVIDER", defaultSpeakProvider),
			SpeakModel:        envString("SPEAK_MODEL", defaultSpeakModel),
			FirmName:          envString("FIRM_NAME", defaultFirmName),
		},
		Bridge: BridgeConfig{
			ClientText:      ClientTextPolicy(strings.ToLower(envString("BRIDGE_CLIENT_TEXT", string(ClientTextControl)))),
			Preroll:         PrerollPolicy(strings.ToLower(envString("BRIDGE_PREROLL", string(PrerollBuffer)))),
			PrerollFrames:   envInt("BRIDGE_PREROLL_FRAMES", audio.DefaultPrerollFrames),
			Format:          format,
			GreetingGate:    envBool("BRIDGE_GREETING_GATE", false),
			GreetingGateMax: envDuration("BRIDGE_GREETING_GATE_MAX", defaultGreetingGateMax),
			CloseGrace:      envDuration("BRIDGE_CLOSE_GRACE", defaultCloseGrace),
			PongWait:        envDuration("BRIDGE_PONG_WAIT", defaultPongWait),
		},
		AMQP: AMQPConfig{
			URL:   os.Getenv("AMQP_URL"),
			Queue: os.Getenv("AMQP_QUEUE_NAME"),
		},
	}

	cfg.Agent.Prompt = NormalizePrompt(os.Getenv("AGENT_PROMPT"), cfg.Agent.FirmName)
	cfg.Agent.Greeting = withFirm(envString("AGENT_GREETING", defaultGreeting), cfg.Agent.FirmName)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would make every connection fail. A missing
// API key is not an error here: it is reported per connection.
func (c Config) Validate() error {
	switch c.Bridge.ClientText {
	case ClientTextControl, ClientTextIgnore:
	default:
		return fmt.Errorf("BRIDGE_CLIENT_TEXT must be %q or %q, got %q", ClientTextControl, ClientTextIgnore, c.Bridge.ClientText)
	}
	switch c.Bridge.Preroll {
	case PrerollBuffer, PrerollDrop:
	default:
		return fmt.Errorf("BRIDGE_PREROLL must be %q or %q, got %q", PrerollBuffer, PrerollDrop, c.Bridge.Preroll)
	}
	if c.Bridge.PrerollFrames <= 0 {
		return fmt.Errorf("BRIDGE_PREROLL_FRAMES must be positive, got %d", c.Bridge.PrerollFrames)
	}
	if c.Agent.ThinkTemperature < 0 || c.Agent.ThinkTemperature > 2 {
		return fmt.Errorf("THINK_TEMPERATURE must be between 0 and 2, got %f", c.Agent.ThinkTemperature)
	}
	if c.Agent.HandshakeTimeout <= 0 || c.Agent.KeepaliveInterval <= 0 {
		return fmt.Errorf("agent timeouts must be positive")
	}
	return nil
}

// NormalizePrompt falls back to the built-in prompt when the configured one is
// too short to be meaningful, and caps its length.
func NormalizePrompt(prompt, firm string) string {
	prompt = strings.TrimSpace(prompt)
	if len(prompt) < MinPromptLength {
		prompt = defaultPrompt
	}
	prompt = withFirm(prompt, firm)
	if len(prompt) > MaxPromptLength {
		prompt = strings.ToValidUTF8(prompt[:MaxPromptLength], "")
	}
	return prompt
}

func withFirm(s, firm string) string {
	return strings.ReplaceAll(s, "{firm}", firm)
}

// PersonaGreeting fills the {firm} and {name} placeholders of a persona greeting.
func (c AgentConfig) PersonaGreeting(p Persona) string {
	return strings.ReplaceAll(withFirm(p.Greeting, c.FirmName), "{name}", p.Name)
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
