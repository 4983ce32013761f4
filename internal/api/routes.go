package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/intake-bridge/internal/bridge"
	"github.com/satriahrh/intake-bridge/internal/config"
	"github.com/satriahrh/intake-bridge/internal/metrics"
)

const serviceName = "intake-bridge"

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *bridge.Hub, cfg config.Config, personas *config.Personas, m *metrics.Metrics, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{
			Status:            "ok",
			Service:           serviceName,
			ActiveConnections: hub.ActiveCount(),
		})
	})

	e.GET("/config", func(c echo.Context) error {
		return c.JSON(http.StatusOK, configResponse(cfg, personas))
	})

	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	// Bridge endpoint; credentials for the upstream live on the server.
	e.GET("/ws", func(c echo.Context) error {
		logger.Debug("Client connecting", zap.String("remote", c.RealIP()))
		return hub.HandleWebSocket(c)
	})
}

func configResponse(cfg config.Config, personas *config.Personas) ConfigResponse {
	publisher := "log"
	if cfg.AMQP.Enabled() {
		publisher = "amqp"
	}

	return ConfigResponse{
		Agent: AgentInfo{
			URL:              cfg.Agent.URL,
			APIKeyConfigured: cfg.Agent.APIKey != "",
			Language:         cfg.Agent.Language,
			ListenModel:      cfg.Agent.ListenModel,
			ThinkProvider:    cfg.Agent.ThinkProvider,
			ThinkModel:       cfg.Agent.ThinkModel,
			ThinkTemperature: cfg.Agent.ThinkTemperature,
			SpeakModel:       cfg.Agent.SpeakModel,
		},
		Bridge: BridgeInfo{
			Encoding:      cfg.Bridge.Format.Encoding,
			SampleRate:    cfg.Bridge.Format.SampleRate,
			FrameBytes:    cfg.Bridge.Format.FrameBytes(),
			ClientText:    string(cfg.Bridge.ClientText),
			Preroll:       string(cfg.Bridge.Preroll),
			PrerollFrames: cfg.Bridge.PrerollFrames,
			GreetingGate:  cfg.Bridge.GreetingGate,
		},
		Voices: personas.IDs(),
		Intake: IntakeInfo{Publisher: publisher},
	}
}
