package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/intake-bridge/adapters/rabbitmq"
	"github.com/satriahrh/intake-bridge/domain/repositories"
	"github.com/satriahrh/intake-bridge/internal/agent"
	"github.com/satriahrh/intake-bridge/internal/api"
	"github.com/satriahrh/intake-bridge/internal/bridge"
	"github.com/satriahrh/intake-bridge/internal/config"
	"github.com/satriahrh/intake-bridge/internal/metrics"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	if err := agent.ValidateConfig(cfg.Agent); err != nil {
		// Still serve: every client gets a clear error instead of a dead port.
		logger.Error("Agent is not configured, connections will be refused", zap.Error(err))
	}

	personas, err := config.LoadPersonas(cfg.PersonasFile)
	if err != nil {
		logger.Fatal("Failed to load personas", zap.Error(err))
	}

	m := metrics.New()

	var publisher repositories.IntakePublisher
	if cfg.AMQP.Enabled() {
		p, err := rabbitmq.NewPublisher(cfg.AMQP, m, logger)
		if err != nil {
			logger.Error("Intake publishing disabled", zap.Error(err))
		} else {
			publisher = p
			defer p.Close()
		}
	}

	// Initialize bridge hub
	hub := bridge.NewHub(agent.NewDialer(cfg.Agent, logger), bridge.Deps{
		Agent:     cfg.Agent,
		Options:   bridge.OptionsFromConfig(cfg.Bridge),
		Personas:  personas,
		Publisher: publisher,
		Metrics:   m,
	}, logger)
	go hub.Run()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, hub, cfg, personas, m, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Intake bridge started",
		zap.String("port", cfg.Port),
		zap.String("format", cfg.Bridge.Format.Name),
		zap.String("clientText", string(cfg.Bridge.ClientText)),
		zap.String("preroll", string(cfg.Bridge.Preroll)),
		zap.Strings("voices", personas.IDs()))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := hub.Shutdown(ctx); err != nil {
		logger.Error("Bridges did not finish in time", zap.Error(err))
	}

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
