package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/intake-bridge/internal/events"
)

// Time allowed to write a message to the agent.
const writeWait = 10 * time.Second

var keepAliveMessage = []byte(`{"type":"KeepAlive"}`)

var (
	// ErrNotReady is returned when audio is offered before the settings were acknowledged.
	ErrNotReady = errors.New("agent session is not ready")
	// ErrClosed is returned once the session is closing or closed.
	ErrClosed = errors.New("agent session is closed")
)

// State is the lifecycle phase of the upstream session.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateConfigSent
	StateReady
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateConfigSent:
		return "config_sent"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s == StateClosing || s == StateClosed || s == StateFailed
}

// Handler receives everything the session reads from the agent. Callbacks
// other than OnFailure run on the session's read goroutine, in arrival order.
type Handler interface {
	// OnOpen fires once the transport handshake completed.
	OnOpen()
	// OnEvent receives every normalized control event.
	OnEvent(ev events.Event)
	// OnAudio receives agent speech verbatim.
	OnAudio(payload []byte)
	// OnReady fires once, when the settings are acknowledged.
	OnReady()
	// OnFailure fires at most once, when the session enters StateFailed.
	OnFailure(err error)
	// OnClosed fires when the agent closes the connection normally.
	OnClosed()
}

// Session owns one upstream agent connection.
type Session struct {
	dialer            Dialer
	settings          []byte
	handler           Handler
	keepaliveInterval time.Duration
	logger            *zap.Logger

	mu         sync.Mutex
	state      State
	configSent bool
	conn       Conn
	keepalive  *keepalive
	cancelDial context.CancelFunc

	// Serializes writes on conn
	writeMu sync.Mutex

	closeOnce     sync.Once
	closeConnOnce sync.Once
}

// NewSession prepares a session. Nothing is dialed until Connect.
func NewSession(dialer Dialer, settings Settings, handler Handler, keepaliveInterval time.Duration, logger *zap.Logger) (*Session, error) {
	payload, err := settings.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return &Session{
		dialer:            dialer,
		settings:          payload,
		handler:           handler,
		keepaliveInterval: keepaliveInterval,
		logger:            logger,
		state:             StateConnecting,
	}, nil
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the agent, sends the settings and starts reading. It blocks
// only for the handshake. Failures are also reported through OnFailure.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancelDial = cancel
	s.mu.Unlock()
	defer cancel()

	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Closed while the handshake was in flight.
		s.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	s.conn = conn
	s.state = StateOpen
	s.keepalive = newKeepalive(s.keepaliveInterval, s.sendKeepAlive, s.logger)
	s.keepalive.Start()
	s.mu.Unlock()

	s.logger.Info("Agent connection opened")
	s.handler.OnOpen()

	if err := s.sendSettings(); err != nil {
		return err
	}

	go s.readLoop(conn)
	return nil
}

// SendAudio forwards one frame. It refuses audio until the settings are acknowledged.
func (s *Session) SendAudio(frame []byte) error {
	state := s.State()
	if state.terminal() {
		return ErrClosed
	}
	if state != StateReady {
		return ErrNotReady
	}
	return s.write(websocket.BinaryMessage, frame)
}

// Close shuts the session down. It is idempotent and safe to call from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		failed := s.state == StateFailed
		if !failed {
			s.state = StateClosing
		}
		conn := s.conn
		ka := s.keepalive
		cancel := s.cancelDial
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if ka != nil {
			ka.Stop()
		}
		if conn != nil && !failed {
			s.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			s.writeMu.Unlock()
		}
		s.closeConn()

		s.mu.Lock()
		if !failed {
			s.state = StateClosed
		}
		s.mu.Unlock()
		s.logger.Info("Agent session closed")
	})
}

// sendSettings sends the configuration exactly once, from Open.
func (s *Session) sendSettings() error {
	s.mu.Lock()
	if s.configSent || s.state != StateOpen {
		s.mu.Unlock()
		return nil
	}
	s.configSent = true
	s.state = StateConfigSent
	s.mu.Unlock()

	if err := s.write(websocket.TextMessage, s.settings); err != nil {
		return err
	}
	s.logger.Info("Agent settings sent", zap.Int("bytes", len(s.settings)))
	return nil
}

func (s *Session) sendKeepAlive() error {
	return s.write(websocket.TextMessage, keepAliveMessage)
}

// markReady moves ConfigSent to Ready and reports whether it did.
func (s *Session) markReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConfigSent {
		return false
	}
	s.state = StateReady
	return true
}

func (s *Session) write(messageType int, payload []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotReady
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(messageType, payload); err != nil {
		err = fmt.Errorf("failed to write to agent: %w", err)
		// Callers may hold their own locks; report asynchronously.
		go s.fail(err)
		return err
	}
	return nil
}

func (s *Session) readLoop(conn Conn) {
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			s.handleReadError(err)
			return
		}

		kind, ev := events.Classify(messageType == websocket.BinaryMessage, payload)
		switch kind {
		case events.KindAudio:
			s.handler.OnAudio(payload)
		case events.KindDiscard:
			s.logger.Debug("Discarded agent message",
				zap.String("tag", ev.Tag),
				zap.Int("size", len(payload)))
		case events.KindEvent:
			s.dispatch(ev)
		}
	}
}

func (s *Session) dispatch(ev events.Event) {
	switch ev.Type {
	case events.TypeWelcome:
		if err := s.sendSettings(); err != nil {
			return
		}
	case events.TypeConfigurationAcknowledged:
		if s.markReady() {
			s.logger.Info("Agent settings acknowledged")
			s.handler.OnReady()
		}
	}
	s.handler.OnEvent(ev)
}

func (s *Session) handleReadError(err error) {
	if s.State().terminal() {
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
		s.logger.Info("Agent closed the connection", zap.String("reason", closeErr.Text))
		s.Close()
		s.handler.OnClosed()
		return
	}

	s.fail(fmt.Errorf("agent connection lost: %w", err))
}

// fail moves the session to Failed once and notifies the handler.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state.terminal() {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	ka := s.keepalive
	s.mu.Unlock()

	if ka != nil {
		ka.Stop()
	}
	s.closeConn()

	var herr *HandshakeError
	if !errors.As(err, &herr) {
		s.logger.Error("Agent session failed", zap.Error(err))
	}
	s.handler.OnFailure(err)
}

func (s *Session) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	s.closeConnOnce.Do(func() {
		conn.Close()
	})
}
