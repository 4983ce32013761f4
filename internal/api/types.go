package api

// HealthResponse is returned by the health check.
type HealthResponse struct {
	Status            string `json:"status"`
	Service           string `json:"service"`
	ActiveConnections int    `json:"activeConnections"`
}

// ConfigResponse exposes the non-secret part of the running configuration.
type ConfigResponse struct {
	Agent  AgentInfo  `json:"agent"`
	Bridge BridgeInfo `json:"bridge"`
	Voices []string   `json:"voices"`
	Intake IntakeInfo `json:"intake"`
}

// AgentInfo describes the upstream agent session. The API key itself is never echoed.
type AgentInfo struct {
	URL              string  `json:"url"`
	APIKeyConfigured bool    `json:"apiKeyConfigured"`
	Language         string  `json:"language"`
	ListenModel      string  `json:"listenModel"`
	ThinkProvider    string  `json:"thinkProvider"`
	ThinkModel       string  `json:"thinkModel"`
	ThinkTemperature float64 `json:"thinkTemperature"`
	SpeakModel       string  `json:"speakModel"`
}

// BridgeInfo describes how client audio and text are handled.
type BridgeInfo struct {
	Encoding      string `json:"encoding"`
	SampleRate    int    `json:"sampleRate"`
	FrameBytes    int    `json:"frameBytes"`
	ClientText    string `json:"clientText"`
	Preroll       string `json:"preroll"`
	PrerollFrames int    `json:"prerollFrames"`
	GreetingGate  bool   `json:"greetingGate"`
}

// IntakeInfo reports where finished intake records go.
type IntakeInfo struct {
	Publisher string `json:"publisher"`
}
