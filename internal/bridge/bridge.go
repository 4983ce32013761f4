package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/intake-bridge/domain/entities"
	"github.com/satriahrh/intake-bridge/domain/repositories"
	"github.com/satriahrh/intake-bridge/internal/agent"
	"github.com/satriahrh/intake-bridge/internal/audio"
	"github.com/satriahrh/intake-bridge/internal/config"
	"github.com/satriahrh/intake-bridge/internal/events"
	"github.com/satriahrh/intake-bridge/internal/intake"
	"github.com/satriahrh/intake-bridge/internal/metrics"
)

const (
	defaultPongWait   = 30 * time.Second
	defaultCloseGrace = 2 * time.Second
	publishTimeout    = 5 * time.Second
)

// Deps are the process-wide collaborators shared by every bridge.
type Deps struct {
	Agent    config.AgentConfig
	Options  Options
	Personas *config.Personas
	// Publisher is optional; nil only logs the intake snapshot.
	Publisher repositories.IntakePublisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	// OnClose runs once after teardown.
	OnClose func(b *Bridge)
}

// Bridge relays one client connection to one upstream agent session.
type Bridge struct {
	deps   Deps
	opts   Options
	dialer agent.Dialer
	logger *zap.Logger
	client *client

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	conn         *entities.Connection
	session      *agent.Session
	reassembler  *audio.Reassembler
	preroll      *audio.Preroll
	intake       *intake.Intake
	started      bool
	ready        bool
	gated        bool
	gateDeadline time.Time
	closed       bool

	teardownOnce sync.Once
	done         chan struct{}
}

// Attach takes ownership of an accepted client socket and starts bridging it.
// A missing credential or endpoint is reported to the client, the socket is
// closed with a policy violation and the error is returned; nothing is dialed.
func Attach(ctx context.Context, conn ClientConn, dialer agent.Dialer, deps Deps) (*Bridge, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	opts := normalizeOptions(deps.Options)
	record := entities.NewConnection()

	ctx, cancel := context.WithCancel(ctx)
	b := &Bridge{
		deps:        deps,
		opts:        opts,
		dialer:      dialer,
		logger:      deps.Logger.With(zap.String("connectionID", record.ID)),
		ctx:         ctx,
		cancel:      cancel,
		conn:        record,
		reassembler: audio.NewReassembler(opts.Format.FrameBytes()),
		preroll:     audio.NewPreroll(opts.PrerollMax),
		intake:      intake.New(),
		done:        make(chan struct{}),
	}
	b.client = newClient(conn, b, opts, b.logger)

	b.deps.Metrics.ConnectionOpened()
	b.logger.Info("Client connected",
		zap.String("clientText", string(opts.ClientText)),
		zap.String("preroll", string(opts.Preroll)),
		zap.Int("prerollMax", b.preroll.Max()),
		zap.String("format", opts.Format.Name),
		zap.Bool("greetingGate", opts.GreetingGate))

	cfgErr := agent.ValidateConfig(deps.Agent)
	if cfgErr != nil {
		// Nothing the client sends may start a session.
		b.closed = true
	}
	b.client.start()

	if cfgErr != nil {
		b.logger.Error("Refusing connection", zap.Error(cfgErr))
		b.deps.Metrics.RecordUpstreamFailure("config")
		b.client.sendJSON(ErrorMessage{Type: MessageTypeError, Message: "server misconfigured: " + cfgErr.Error()})
		go b.teardown(websocket.ClosePolicyViolation, "configuration error", true)
		return b, cfgErr
	}

	if opts.ClientText == config.ClientTextIgnore {
		b.mu.Lock()
		b.startSessionLocked(nil)
		b.mu.Unlock()
	}
	return b, nil
}

func normalizeOptions(opts Options) Options {
	if opts.ClientText == "" {
		opts.ClientText = config.ClientTextControl
	}
	if opts.Preroll == "" {
		opts.Preroll = config.PrerollBuffer
	}
	if opts.PrerollMax <= 0 {
		opts.PrerollMax = audio.DefaultPrerollFrames
	}
	if opts.Format.FrameBytes() <= 0 {
		opts.Format = audio.PCM16k
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaultPongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = (opts.PongWait * 9) / 10
	}
	if opts.CloseGrace <= 0 {
		opts.CloseGrace = defaultCloseGrace
	}
	return opts
}

// ID returns the connection identifier.
func (b *Bridge) ID() string {
	return b.conn.ID
}

// Done is closed when teardown has finished.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Close tears the bridge down as if the client had asked to stop.
func (b *Bridge) Close() {
	b.teardown(websocket.CloseGoingAway, "server shutting down", false)
}

// Connection returns a copy of the connection record.
func (b *Bridge) Connection() entities.Connection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.Snapshot()
}

// Intake returns a copy of the current intake record.
func (b *Bridge) Intake() intake.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.intake.Snapshot()
}

// startSessionLocked dials the agent in the background. Callers hold b.mu.
func (b *Bridge) startSessionLocked(persona *config.Persona) {
	b.started = true
	settings := agent.NewSettings(b.deps.Agent, b.opts.Format, persona)
	session, err := agent.NewSession(b.dialer, settings, sessionHandler{b}, b.deps.Agent.KeepaliveInterval, b.logger)
	if err != nil {
		go b.fail("upstream", err)
		return
	}
	b.session = session
	b.conn.Phase = agent.StateConnecting.String()

	go func() {
		// Failures arrive through OnFailure.
		_ = session.Connect(b.ctx)
	}()
}

func (b *Bridge) handleClientText(payload []byte) {
	if b.opts.ClientText == config.ClientTextIgnore {
		b.logger.Debug("Ignoring client text", zap.Int("size", len(payload)))
		return
	}

	msg, err := ParseClientMessage(payload)
	if err != nil {
		b.logger.Debug("Discarding malformed client message", zap.Error(err))
		return
	}

	switch msg.Type {
	case MessageTypeStart:
		b.handleStart(msg)
	case MessageTypeStop:
		b.logger.Info("Client requested stop")
		b.teardown(websocket.CloseNormalClosure, "stopped", false)
	default:
		b.client.sendJSON(StatusMessage{Type: MessageTypeStatus, Message: fmt.Sprintf("ignored message type %q", msg.Type)})
	}
}

func (b *Bridge) handleStart(msg ClientMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if b.started {
		b.client.sendJSON(StatusMessage{Type: MessageTypeStatus, Message: "session already started"})
		return
	}

	var persona *config.Persona
	voiceName := ""
	if msg.VoiceID != "" && b.deps.Personas != nil {
		if p, ok := b.deps.Personas.Lookup(msg.VoiceID); ok {
			persona = &p
			voiceName = p.Name
			b.conn.VoiceID = p.ID
		} else {
			b.client.sendJSON(StatusMessage{
				Type:    MessageTypeStatus,
				Message: fmt.Sprintf("unknown voice %q, using default", msg.VoiceID),
				Level:   "warning",
			})
		}
	}

	b.logger.Info("Starting agent session",
		zap.String("voiceID", b.conn.VoiceID),
		zap.String("voiceName", voiceName))
	b.startSessionLocked(persona)
	b.client.sendJSON(StatusMessage{Type: MessageTypeStatus, Message: "starting"})
}

// handleClientAudio reframes a chunk and gates every whole frame.
func (b *Bridge) handleClientAudio(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.conn.ClientBytesIn += int64(len(chunk))
	b.deps.Metrics.RecordClientBytes("in", len(chunk))

	frames := b.reassembler.Accept(chunk)
	for i, frame := range frames {
		switch {
		case b.ready && b.gateActiveLocked():
			b.dropLocked(entities.DropGreetingGate, 1)
		case b.ready:
			if err := b.session.SendAudio(frame); err != nil {
				// The session is going away; the rest of the chunk has nowhere to go.
				b.logger.Debug("Failed to forward frame", zap.Error(err))
				b.dropLocked(entities.DropClosed, len(frames)-i)
				return
			}
			b.conn.FramesUpstream++
			b.deps.Metrics.RecordFramesUpstream(1)
		case b.opts.Preroll == config.PrerollBuffer:
			if b.preroll.Push(frame) {
				b.dropLocked(entities.DropPrerollOverflow, 1)
			}
		default:
			b.dropLocked(entities.DropNotReady, 1)
		}
	}
}

func (b *Bridge) gateActiveLocked() bool {
	if !b.gated {
		return false
	}
	if time.Now().After(b.gateDeadline) {
		b.gated = false
		b.logger.Debug("Greeting gate expired")
		return false
	}
	return true
}

func (b *Bridge) dropLocked(reason entities.DropReason, n int) {
	b.conn.RecordDrop(reason, n)
	b.deps.Metrics.RecordFramesDropped(string(reason), n)
}

func (b *Bridge) handleClientGone(err error) {
	if err != nil {
		b.teardown(websocket.CloseGoingAway, "client error", false)
		return
	}
	b.teardown(websocket.CloseNormalClosure, "client closed", false)
}

// fail surfaces a fatal error to the client and tears the bridge down.
func (b *Bridge) fail(kind string, err error) {
	b.deps.Metrics.RecordUpstreamFailure(kind)
	b.client.sendJSON(ErrorMessage{Type: MessageTypeError, Message: err.Error()})
	b.teardown(websocket.CloseInternalServerErr, "upstream failure", true)
}

// teardown closes both legs once, logs the final intake record and publishes it.
func (b *Bridge) teardown(code int, reason string, failed bool) {
	b.teardownOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		session := b.session
		b.conn.Close(failed)
		if session != nil {
			b.conn.Phase = session.State().String()
		}
		record := b.conn.Snapshot()
		snapshot := entities.NewIntakeSnapshot(b.conn, b.intake.Snapshot())
		b.mu.Unlock()

		b.cancel()
		if session != nil {
			session.Close()
		}

		b.client.sendJSON(StateMessage{Type: MessageTypeState, State: events.StateDisconnected})
		b.client.shutdown(code, reason, b.opts.CloseGrace)

		b.logger.Info("Connection closed",
			zap.String("reason", reason),
			zap.String("status", string(record.Status)),
			zap.String("phase", record.Phase),
			zap.Duration("duration", record.Duration()),
			zap.Int64("clientBytesIn", record.ClientBytesIn),
			zap.Int64("bytesToClient", record.BytesToClient),
			zap.Int64("framesUpstream", record.FramesUpstream),
			zap.Int64("totalDropped", record.TotalDropped()),
			zap.Any("framesDropped", record.FramesDropped),
			zap.Bool("intakeComplete", snapshot.Complete),
			zap.Any("intake", snapshot.Record))

		b.publish(snapshot)

		outcome := "closed"
		if failed {
			outcome = "failed"
		}
		b.deps.Metrics.ConnectionClosed(outcome, record.Duration().Seconds())

		close(b.done)
		if b.deps.OnClose != nil {
			b.deps.OnClose(b)
		}
	})
}

func (b *Bridge) publish(snapshot entities.IntakeSnapshot) {
	if b.deps.Publisher == nil || len(snapshot.Record.Utterances) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := b.deps.Publisher.PublishIntake(ctx, snapshot); err != nil {
		b.logger.Error("Failed to publish intake snapshot", zap.Error(err))
		b.deps.Metrics.RecordIntakePublish("error")
		return
	}
	b.deps.Metrics.RecordIntakePublish("ok")
}

// sessionHandler adapts agent callbacks onto the bridge.
type sessionHandler struct {
	b *Bridge
}

func (h sessionHandler) OnOpen() {
	b := h.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.conn.Phase = agent.StateOpen.String()
	b.client.sendJSON(StateMessage{Type: MessageTypeState, State: events.StateConnected})
}

// OnReady opens the gate and drains the preroll ahead of any newer frame.
func (h sessionHandler) OnReady() {
	b := h.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.ready = true
	b.conn.Phase = agent.StateReady.String()

	queued := b.preroll.Len()
	sent, err := b.preroll.DrainInto(b.session.SendAudio)
	b.conn.FramesUpstream += int64(sent)
	b.deps.Metrics.RecordFramesUpstream(sent)
	if err != nil {
		b.dropLocked(entities.DropClosed, queued-sent)
		b.logger.Warn("Preroll drain interrupted", zap.Int("sent", sent), zap.Error(err))
	} else if sent > 0 {
		b.logger.Info("Preroll drained", zap.Int("frames", sent))
	}

	if b.opts.GreetingGate {
		b.gated = true
		b.gateDeadline = time.Now().Add(b.opts.GreetingGateMax)
	}

	b.client.sendJSON(SettingsMessage{
		Type:       MessageTypeSettings,
		Status:     "applied",
		Encoding:   b.opts.Format.Encoding,
		SampleRate: b.opts.Format.SampleRate,
	})
}

func (h sessionHandler) OnEvent(ev events.Event) {
	b := h.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	switch ev.Type {
	case events.TypeWelcome, events.TypeConfigurationAcknowledged:
		b.logger.Debug("Agent handshake event", zap.String("tag", ev.Tag))
		return
	case events.TypeTranscript:
		if ev.IsUserUtterance() {
			b.ingestLocked(ev.Text)
		}
	case events.TypeStateChanged:
		if b.gated && strings.EqualFold(ev.Tag, "AgentStoppedSpeaking") {
			b.gated = false
			b.logger.Debug("Greeting finished, microphone open")
		}
	case events.TypeWarning:
		b.logger.Warn("Agent warning", zap.String("message", ev.Message))
	case events.TypeError:
		b.logger.Error("Agent error", zap.String("message", ev.Message))
	}

	if msg := eventMessage(ev); msg != nil {
		b.client.sendJSON(msg)
	}
}

func (b *Bridge) ingestLocked(text string) {
	upd := b.intake.Ingest(text)
	if upd.Duplicate {
		b.logger.Debug("Duplicate utterance ignored")
		return
	}
	if len(upd.Filled) > 0 {
		b.logger.Info("Intake fields filled", zap.Any("fields", upd.Filled))
	}
	if upd.Completed {
		b.deps.Metrics.RecordIntakeCompleted()
		b.logger.Info("Intake complete", zap.Any("intake", b.intake.Snapshot()))
	}
}

func (h sessionHandler) OnAudio(payload []byte) {
	b := h.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if b.client.sendBinary(payload) {
		b.conn.BytesToClient += int64(len(payload))
		b.deps.Metrics.RecordClientBytes("out", len(payload))
	}
}

func (h sessionHandler) OnFailure(err error) {
	kind := "transport"
	var herr *agent.HandshakeError
	if errors.As(err, &herr) {
		kind = "handshake"
	}
	h.b.fail(kind, err)
}

func (h sessionHandler) OnClosed() {
	h.b.teardown(websocket.CloseNormalClosure, "agent closed", false)
}
