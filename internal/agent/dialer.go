package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/intake-bridge/internal/config"
)

const maxHandshakeBody = 512

var (
	// ErrMissingCredential means no API key is configured for the agent.
	ErrMissingCredential = errors.New("agent API key is not configured")
	// ErrMissingEndpoint means no agent URL is configured.
	ErrMissingEndpoint = errors.New("agent URL is not configured")
)

// Conn is the subset of *websocket.Conn the session needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens the upstream agent connection.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// HandshakeError is returned when the agent answers the upgrade request with
// a non-success HTTP response.
type HandshakeError struct {
	StatusCode int
	Header     http.Header
	Body       string
	Err        error
}

func (e *HandshakeError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream handshake failed: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream handshake failed: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// ValidateConfig reports the configuration problems that make dialing pointless.
func ValidateConfig(cfg config.AgentConfig) error {
	if cfg.APIKey == "" {
		return ErrMissingCredential
	}
	if cfg.URL == "" {
		return ErrMissingEndpoint
	}
	return nil
}

// WebsocketDialer dials the agent over a gorilla websocket.
type WebsocketDialer struct {
	url              string
	apiKey           string
	handshakeTimeout time.Duration
	logger           *zap.Logger
}

// NewDialer creates a dialer for the configured agent endpoint.
func NewDialer(cfg config.AgentConfig, logger *zap.Logger) *WebsocketDialer {
	return &WebsocketDialer{
		url:              cfg.URL,
		apiKey:           cfg.APIKey,
		handshakeTimeout: cfg.HandshakeTimeout,
		logger:           logger,
	}
}

// Dial performs the upgrade handshake. Non-2xx answers are returned as
// *HandshakeError; nothing is retried.
func (d *WebsocketDialer) Dial(ctx context.Context) (Conn, error) {
	if d.apiKey == "" {
		return nil, ErrMissingCredential
	}
	if d.url == "" {
		return nil, ErrMissingEndpoint
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.handshakeTimeout,
	}
	header := http.Header{}
	header.Set("Authorization", "Token "+d.apiKey)

	conn, resp, err := dialer.DialContext(ctx, d.url, header)
	if err != nil {
		if resp != nil {
			herr := newHandshakeError(resp, err)
			d.logger.Error("Agent handshake rejected",
				zap.Int("statusCode", herr.StatusCode),
				zap.Any("headers", herr.Header),
				zap.String("body", herr.Body))
			return nil, herr
		}
		return nil, fmt.Errorf("failed to dial agent: %w", err)
	}
	return conn, nil
}

func newHandshakeError(resp *http.Response, err error) *HandshakeError {
	herr := &HandshakeError{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Err:        err,
	}
	if resp.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxHandshakeBody))
		resp.Body.Close()
		herr.Body = string(body)
	}
	return herr
}
