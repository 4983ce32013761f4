package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/intake-bridge/internal/audio"
	"github.com/satriahrh/intake-bridge/internal/config"
	"github.com/satriahrh/intake-bridge/internal/events"
)

const testAPIKey = "test-key"

type recordingHandler struct {
	mu       sync.Mutex
	events   []events.Event
	audio    [][]byte
	opened   int
	failures int

	readyCh  chan struct{}
	failCh   chan error
	closedCh chan struct{}
	eventCh  chan events.Event
	audioCh  chan []byte
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		readyCh:  make(chan struct{}, 1),
		failCh:   make(chan error, 4),
		closedCh: make(chan struct{}, 1),
		eventCh:  make(chan events.Event, 16),
		audioCh:  make(chan []byte, 16),
	}
}

func (h *recordingHandler) OnOpen() {
	h.mu.Lock()
	h.opened++
	h.mu.Unlock()
}

func (h *recordingHandler) OnEvent(ev events.Event) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	h.eventCh <- ev
}

func (h *recordingHandler) OnAudio(payload []byte) {
	h.mu.Lock()
	h.audio = append(h.audio, payload)
	h.mu.Unlock()
	h.audioCh <- payload
}

func (h *recordingHandler) OnReady() { h.readyCh <- struct{}{} }

func (h *recordingHandler) OnFailure(err error) {
	h.mu.Lock()
	h.failures++
	h.mu.Unlock()
	h.failCh <- err
}

func (h *recordingHandler) OnClosed() { h.closedCh <- struct{}{} }

func (h *recordingHandler) failureCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}

// newAgentServer starts a fake agent that runs script for every accepted connection.
func newAgentServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token "+testAPIKey {
			w.Header().Set("Dg-Error", "INVALID_AUTH")
			http.Error(w, `{"err_code":"INVALID_AUTH","err_msg":"Invalid credentials."}`, http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testAgentConfig(url string) config.AgentConfig {
	return config.AgentConfig{
		URL:               "ws" + strings.TrimPrefix(url, "http"),
		APIKey:            testAPIKey,
		HandshakeTimeout:  2 * time.Second,
		KeepaliveInterval: time.Hour,
		Language:          "en",
		ListenProvider:    "deepgram",
		ListenModel:       "nova-3",
		ThinkProvider:     "open_ai",
		ThinkModel:        "gpt-4o-mini",
		ThinkTemperature:  0.7,
		SpeakProvider:     "deepgram",
		SpeakModel:        "aura-2-thalia-en",
		Prompt:            "You are a helpful intake assistant for a law firm.",
		Greeting:          "Hello!",
	}
}

func newTestSession(t *testing.T, cfg config.AgentConfig, h Handler) *Session {
	t.Helper()
	// Session goroutines may outlive the test body, so they log nowhere.
	logger := zap.NewNop()
	s, err := NewSession(NewDialer(cfg, logger), NewSettings(cfg, audio.PCM16k, nil), h, cfg.KeepaliveInterval, logger)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
	var zero T
	return zero
}

func TestSession_SettingsBeforeAudio(t *testing.T) {
	proceed := make(chan struct{})
	received := make(chan []byte, 4)

	srv := newAgentServer(t, func(conn *websocket.Conn) {
		mt, msg, err := conn.ReadMessage()
		if err != nil || mt != websocket.TextMessage {
			return
		}
		received <- msg

		<-proceed
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"SettingsApplied"}`))

		mt, msg, err = conn.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.BinaryMessage {
			received <- msg
		}
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02})
		conn.ReadMessage()
	})

	h := newRecordingHandler()
	s := newTestSession(t, testAgentConfig(srv.URL), h)
	require.NoError(t, s.Connect(context.Background()))

	settings := waitFor(t, received)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(settings, &decoded))
	assert.Equal(t, "Settings", decoded["type"])

	assert.Equal(t, StateConfigSent, s.State())
	assert.ErrorIs(t, s.SendAudio(make([]byte, 640)), ErrNotReady)

	close(proceed)
	waitFor(t, h.readyCh)
	assert.Equal(t, StateReady, s.State())

	frame := make([]byte, 640)
	frame[0] = 0x7f
	require.NoError(t, s.SendAudio(frame))
	assert.Equal(t, frame, waitFor(t, received))

	assert.Equal(t, []byte{0x01, 0x02}, waitFor(t, h.audioCh))
	ev := waitFor(t, h.eventCh)
	assert.Equal(t, events.TypeConfigurationAcknowledged, ev.Type)

	s.Close()
	assert.Equal(t, StateClosed, s.State())
	assert.Zero(t, h.failureCount())
}

func TestSession_WelcomeDoesNotResendSettings(t *testing.T) {
	counted := make(chan int, 1)

	srv := newAgentServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Welcome","request_id":"abc"}`))
		settingsCount := 0
		conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if mt == websocket.TextMessage && strings.Contains(string(msg), `"Settings"`) {
				settingsCount++
			}
		}
		counted <- settingsCount
	})

	h := newRecordingHandler()
	s := newTestSession(t, testAgentConfig(srv.URL), h)
	require.NoError(t, s.Connect(context.Background()))

	ev := waitFor(t, h.eventCh)
	assert.Equal(t, events.TypeWelcome, ev.Type)
	assert.Equal(t, 1, waitFor(t, counted))
}

func TestSession_HandshakeRejected(t *testing.T) {
	srv := newAgentServer(t, func(conn *websocket.Conn) {})

	cfg := testAgentConfig(srv.URL)
	cfg.APIKey = "wrong-key"

	h := newRecordingHandler()
	s := newTestSession(t, cfg, h)

	err := s.Connect(context.Background())
	require.Error(t, err)

	var herr *HandshakeError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusUnauthorized, herr.StatusCode)
	assert.Equal(t, "INVALID_AUTH", herr.Header.Get("Dg-Error"))
	assert.Contains(t, herr.Body, "Invalid credentials")
	assert.Contains(t, herr.Error(), "HTTP 401")

	assert.Equal(t, err, waitFor(t, h.failCh))
	assert.Equal(t, StateFailed, s.State())

	s.Close()
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, 1, h.failureCount())
}

func TestSession_AbnormalCloseFails(t *testing.T) {
	srv := newAgentServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "boom"))
	})

	h := newRecordingHandler()
	s := newTestSession(t, testAgentConfig(srv.URL), h)
	require.NoError(t, s.Connect(context.Background()))

	err := waitFor(t, h.failCh)
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, websocket.CloseInternalServerErr, closeErr.Code)
	assert.Equal(t, StateFailed, s.State())
}

func TestSession_NormalCloseFromAgent(t *testing.T) {
	srv := newAgentServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		conn.ReadMessage()
	})

	h := newRecordingHandler()
	s := newTestSession(t, testAgentConfig(srv.URL), h)
	require.NoError(t, s.Connect(context.Background()))

	waitFor(t, h.closedCh)
	assert.Equal(t, StateClosed, s.State())
	assert.Zero(t, h.failureCount())
}

func TestSession_Keepalive(t *testing.T) {
	keepalives := make(chan string, 4)

	srv := newAgentServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.Contains(string(msg), "KeepAlive") {
				keepalives <- string(msg)
			}
		}
	})

	cfg := testAgentConfig(srv.URL)
	cfg.KeepaliveInterval = 20 * time.Millisecond

	h := newRecordingHandler()
	s := newTestSession(t, cfg, h)
	require.NoError(t, s.Connect(context.Background()))

	assert.JSONEq(t, `{"type":"KeepAlive"}`, waitFor(t, keepalives))
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	srv := newAgentServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	h := newRecordingHandler()
	s := newTestSession(t, testAgentConfig(srv.URL), h)
	require.NoError(t, s.Connect(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.SendAudio(make([]byte, 640)), ErrClosed)
	assert.ErrorIs(t, s.Connect(context.Background()), ErrClosed)
	assert.Zero(t, h.failureCount())
}

func TestDialer_MissingConfiguration(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cfg := testAgentConfig("http://127.0.0.1:1")
	cfg.APIKey = ""
	_, err := NewDialer(cfg, logger).Dial(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.ErrorIs(t, ValidateConfig(cfg), ErrMissingCredential)

	cfg.APIKey = testAPIKey
	cfg.URL = ""
	_, err = NewDialer(cfg, logger).Dial(context.Background())
	assert.ErrorIs(t, err, ErrMissingEndpoint)
	assert.ErrorIs(t, ValidateConfig(cfg), ErrMissingEndpoint)
}
