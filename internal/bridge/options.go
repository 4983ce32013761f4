package bridge

import (
	"time"

	"github.com/satriahrh/intake-bridge/internal/audio"
	"github.com/satriahrh/intake-bridge/internal/config"
)

// Options selects the bridge behavior variants explicitly.
type Options struct {
	ClientText      config.ClientTextPolicy
	Preroll         config.PrerollPolicy
	PrerollMax      int
	Format          audio.Format
	GreetingGate    bool
	GreetingGateMax time.Duration
	CloseGrace      time.Duration
	PingPeriod      time.Duration
	PongWait        time.Duration
}

// OptionsFromConfig derives the options from the loaded configuration.
// The ping period is nine tenths of the pong wait.
func OptionsFromConfig(cfg config.BridgeConfig) Options {
	return Options{
		ClientText:      cfg.ClientText,
		Preroll:         cfg.Preroll,
		PrerollMax:      cfg.PrerollFrames,
		Format:          cfg.Format,
		GreetingGate:    cfg.GreetingGate,
		GreetingGateMax: cfg.GreetingGateMax,
		CloseGrace:      cfg.CloseGrace,
		PingPeriod:      (cfg.PongWait * 9) / 10,
		PongWait:        cfg.PongWait,
	}
}
